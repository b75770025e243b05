package kafkahook

import (
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// Config configures the Kafka producer behind a Publisher.
type Config struct {
	Brokers         []string
	Topic           string
	ClientID        string
	RetryMax        int
	Timeout         time.Duration
	RequiredAcks    sarama.RequiredAcks
	Compression     sarama.CompressionCodec
	Idempotent      bool
	MaxMessageBytes int
}

// DefaultConfig returns a producer configuration that waits for every
// in-sync replica and keys messages by lot.
func DefaultConfig() Config {
	return Config{
		Brokers:         []string{"localhost:9092"},
		Topic:           "parking.events",
		ClientID:        "parking",
		RetryMax:        3,
		Timeout:         10 * time.Second,
		RequiredAcks:    sarama.WaitForAll,
		Compression:     sarama.CompressionSnappy,
		Idempotent:      true,
		MaxMessageBytes: 1_000_000,
	}
}

// saramaConfig translates cfg into a sarama configuration for a
// synchronous producer.
func (cfg Config) saramaConfig() *sarama.Config {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.RequiredAcks = cfg.RequiredAcks
	sc.Producer.Compression = cfg.Compression
	sc.Producer.Retry.Max = cfg.RetryMax
	sc.Producer.Timeout = cfg.Timeout
	sc.Producer.Idempotent = cfg.Idempotent
	sc.Producer.MaxMessageBytes = cfg.MaxMessageBytes
	sc.Producer.Partitioner = sarama.NewHashPartitioner

	// Idempotent producers need a single in-flight request per broker.
	if cfg.Idempotent {
		sc.Net.MaxOpenRequests = 1
	}
	return sc
}

// NewProducer dials cfg.Brokers and returns a synchronous producer.
func NewProducer(cfg Config) (sarama.SyncProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafkahook: no brokers configured")
	}
	p, err := sarama.NewSyncProducer(cfg.Brokers, cfg.saramaConfig())
	if err != nil {
		return nil, fmt.Errorf("kafkahook: create producer: %w", err)
	}
	return p, nil
}
