// Package kafkahook publishes parking lifecycle events to a Kafka topic as
// JSON. Messages are keyed by lot ID so every event of a lot lands on the
// same partition in order.
package kafkahook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/xraph/parking/lot"
	"github.com/xraph/parking/plugin"
	"github.com/xraph/parking/session"
	"github.com/xraph/parking/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin             = (*Publisher)(nil)
	_ plugin.OnShutdown         = (*Publisher)(nil)
	_ plugin.OnLotCreated       = (*Publisher)(nil)
	_ plugin.OnEntered          = (*Publisher)(nil)
	_ plugin.OnSessionRefreshed = (*Publisher)(nil)
	_ plugin.OnLeft             = (*Publisher)(nil)
	_ plugin.OnSettlementFailed = (*Publisher)(nil)
)

// Event types carried in the "event_type" header and the payload.
const (
	EventLotCreated       = "lot.created"
	EventEntered          = "session.entered"
	EventRefreshed        = "session.refreshed"
	EventLeft             = "session.left"
	EventSettlementFailed = "settlement.failed"
)

// Event is the JSON payload of every message.
type Event struct {
	Type      string       `json:"type"`
	LotID     string       `json:"lot_id"`
	Owner     string       `json:"owner,omitempty"`
	UserID    string       `json:"user_id,omitempty"`
	SessionID string       `json:"session_id,omitempty"`
	ReceiptID string       `json:"receipt_id,omitempty"`
	Remain    *uint32      `json:"remain,omitempty"`
	Capacity  uint32       `json:"capacity,omitempty"`
	UnitPrice *types.Money `json:"unit_price,omitempty"`
	Fee       *types.Money `json:"fee,omitempty"`
	Error     string       `json:"error,omitempty"`
	At        time.Time    `json:"at"`
}

// Publisher is a plugin that sends lifecycle events to Kafka.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithTopic overrides the destination topic.
func WithTopic(topic string) Option {
	return func(p *Publisher) { p.topic = topic }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

// New creates a Publisher on an existing producer. The Publisher owns the
// producer and closes it on engine shutdown.
func New(producer sarama.SyncProducer, opts ...Option) *Publisher {
	p := &Publisher{
		producer: producer,
		topic:    DefaultConfig().Topic,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements plugin.Plugin.
func (p *Publisher) Name() string { return "kafka-hook" }

// OnShutdown implements plugin.OnShutdown.
func (p *Publisher) OnShutdown(_ context.Context) error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("kafkahook: close producer: %w", err)
	}
	return nil
}

// OnLotCreated implements plugin.OnLotCreated.
func (p *Publisher) OnLotCreated(ctx context.Context, l *lot.Lot) error {
	price := l.CurrentPrice
	return p.publish(ctx, &Event{
		Type:      EventLotCreated,
		LotID:     l.ID.String(),
		Owner:     l.Owner,
		Remain:    &l.Remain,
		Capacity:  l.Capacity,
		UnitPrice: &price,
		At:        l.CreatedAt,
	})
}

// OnEntered implements plugin.OnEntered.
func (p *Publisher) OnEntered(ctx context.Context, s *session.Session, l *lot.Lot) error {
	price := l.CurrentPrice
	return p.publish(ctx, &Event{
		Type:      EventEntered,
		LotID:     l.ID.String(),
		Owner:     l.Owner,
		UserID:    s.UserID,
		SessionID: s.ID.String(),
		Remain:    &l.Remain,
		Capacity:  l.Capacity,
		UnitPrice: &price,
		At:        s.EnterTime,
	})
}

// OnSessionRefreshed implements plugin.OnSessionRefreshed.
func (p *Publisher) OnSessionRefreshed(ctx context.Context, s *session.Session, _ types.Money) error {
	fee := s.CurrentFee
	return p.publish(ctx, &Event{
		Type:      EventRefreshed,
		LotID:     s.LotID.String(),
		UserID:    s.UserID,
		SessionID: s.ID.String(),
		Fee:       &fee,
		At:        s.CurrentTime,
	})
}

// OnLeft implements plugin.OnLeft.
func (p *Publisher) OnLeft(ctx context.Context, r *session.Receipt, l *lot.Lot) error {
	price, fee := r.UnitPrice, r.Fee
	return p.publish(ctx, &Event{
		Type:      EventLeft,
		LotID:     r.LotID.String(),
		Owner:     r.Owner,
		UserID:    r.UserID,
		SessionID: r.SessionID.String(),
		ReceiptID: r.ID.String(),
		Remain:    &l.Remain,
		Capacity:  l.Capacity,
		UnitPrice: &price,
		Fee:       &fee,
		At:        r.ExitTime,
	})
}

// OnSettlementFailed implements plugin.OnSettlementFailed.
func (p *Publisher) OnSettlementFailed(ctx context.Context, s *session.Session, fee types.Money, cause error) error {
	evt := &Event{
		Type:      EventSettlementFailed,
		LotID:     s.LotID.String(),
		UserID:    s.UserID,
		SessionID: s.ID.String(),
		Fee:       &fee,
		At:        s.UpdatedAt,
	}
	if cause != nil {
		evt.Error = cause.Error()
	}
	return p.publish(ctx, evt)
}

func (p *Publisher) publish(_ context.Context, evt *Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("kafkahook: marshal %s: %w", evt.Type, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(evt.LotID),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(evt.Type)},
			{Key: []byte("producer"), Value: []byte("parking")},
		},
		Timestamp: evt.At,
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("kafkahook: send %s: %w", evt.Type, err)
	}

	p.logger.Debug("parking event published",
		"type", evt.Type,
		"topic", p.topic,
		"partition", partition,
		"offset", offset,
	)
	return nil
}
