// Package observability provides a metrics plugin for the parking engine
// that records lifecycle event counts through a MetricFactory.
package observability

import (
	"context"
	"errors"

	"github.com/xraph/parking/funds"
	"github.com/xraph/parking/lot"
	"github.com/xraph/parking/plugin"
	"github.com/xraph/parking/session"
	"github.com/xraph/parking/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin             = (*MetricsExtension)(nil)
	_ plugin.OnInit             = (*MetricsExtension)(nil)
	_ plugin.OnLotCreated       = (*MetricsExtension)(nil)
	_ plugin.OnEntered          = (*MetricsExtension)(nil)
	_ plugin.OnSessionRefreshed = (*MetricsExtension)(nil)
	_ plugin.OnLeft             = (*MetricsExtension)(nil)
	_ plugin.OnSettlementFailed = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// Gauge interface for values that move both ways.
type Gauge interface {
	Set(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
	Gauge(name string) Gauge
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as an engine plugin to track parking activity.
type MetricsExtension struct {
	factory MetricFactory

	// Lot metrics
	LotCreated   Counter
	LotOccupancy Gauge
	UnitPrice    Histogram

	// Session metrics
	SessionEntered   Counter
	SessionRefreshed Counter
	SessionLeft      Counter
	SessionDuration  Histogram
	FeeAccrued       Counter

	// Settlement metrics
	SettlementSucceeded Counter
	SettlementFailed    Counter
	InsufficientFunds   Counter
	FeeCollected        Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Lot metrics
		LotCreated:   factory.Counter("parking.lot.created"),
		LotOccupancy: factory.Gauge("parking.lot.occupancy_ratio"),
		UnitPrice:    factory.Histogram("parking.lot.unit_price"),

		// Session metrics
		SessionEntered:   factory.Counter("parking.session.entered"),
		SessionRefreshed: factory.Counter("parking.session.refreshed"),
		SessionLeft:      factory.Counter("parking.session.left"),
		SessionDuration:  factory.Histogram("parking.session.duration_seconds"),
		FeeAccrued:       factory.Counter("parking.session.fee_accrued"),

		// Settlement metrics
		SettlementSucceeded: factory.Counter("parking.settlement.succeeded"),
		SettlementFailed:    factory.Counter("parking.settlement.failed"),
		InsufficientFunds:   factory.Counter("parking.settlement.insufficient_funds"),
		FeeCollected:        factory.Histogram("parking.settlement.fee"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Lot hooks
// ──────────────────────────────────────────────────

// OnLotCreated implements plugin.OnLotCreated.
func (m *MetricsExtension) OnLotCreated(_ context.Context, l *lot.Lot) error {
	m.LotCreated.Inc()
	m.observeLot(l)
	return nil
}

// ──────────────────────────────────────────────────
// Session hooks
// ──────────────────────────────────────────────────

// OnEntered implements plugin.OnEntered.
func (m *MetricsExtension) OnEntered(_ context.Context, _ *session.Session, l *lot.Lot) error {
	m.SessionEntered.Inc()
	m.observeLot(l)
	return nil
}

// OnSessionRefreshed implements plugin.OnSessionRefreshed.
func (m *MetricsExtension) OnSessionRefreshed(_ context.Context, _ *session.Session, accrued types.Money) error {
	m.SessionRefreshed.Inc()
	m.FeeAccrued.Add(float64(accrued.Amount))
	return nil
}

// OnLeft implements plugin.OnLeft.
func (m *MetricsExtension) OnLeft(_ context.Context, r *session.Receipt, l *lot.Lot) error {
	m.SessionLeft.Inc()
	m.SettlementSucceeded.Inc()
	m.SessionDuration.Observe(r.Duration().Seconds())
	m.FeeCollected.Observe(float64(r.Fee.Amount))
	m.observeLot(l)
	return nil
}

// OnSettlementFailed implements plugin.OnSettlementFailed.
func (m *MetricsExtension) OnSettlementFailed(_ context.Context, _ *session.Session, _ types.Money, cause error) error {
	m.SettlementFailed.Inc()
	if errors.Is(cause, funds.ErrInsufficientFunds) {
		m.InsufficientFunds.Inc()
	}
	return nil
}

func (m *MetricsExtension) observeLot(l *lot.Lot) {
	if l == nil || l.Capacity == 0 {
		return
	}
	m.LotOccupancy.Set(float64(l.Occupied()) / float64(l.Capacity))
	m.UnitPrice.Observe(float64(l.CurrentPrice.Amount))
}
