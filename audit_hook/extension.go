// Package audithook bridges parking lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not import an
// audit library directly. Callers inject a RecorderFunc adapter at wiring
// time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/parking/lot"
	"github.com/xraph/parking/plugin"
	"github.com/xraph/parking/session"
	"github.com/xraph/parking/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin             = (*Extension)(nil)
	_ plugin.OnLotCreated       = (*Extension)(nil)
	_ plugin.OnEntered          = (*Extension)(nil)
	_ plugin.OnSessionRefreshed = (*Extension)(nil)
	_ plugin.OnLeft             = (*Extension)(nil)
	_ plugin.OnSettlementFailed = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges parking lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Lot hooks
// ──────────────────────────────────────────────────

// OnLotCreated implements plugin.OnLotCreated.
func (e *Extension) OnLotCreated(ctx context.Context, l *lot.Lot) error {
	return e.record(ctx, ActionLotCreated, SeverityInfo, OutcomeSuccess,
		ResourceLot, l.ID.String(), l.Owner, CategoryRegistry, nil,
		"capacity", l.Capacity,
		"min_price", l.MinPrice.String(),
		"max_price", l.MaxPrice.String(),
		"latitude", l.Latitude,
		"longitude", l.Longitude,
	)
}

// ──────────────────────────────────────────────────
// Session hooks
// ──────────────────────────────────────────────────

// OnEntered implements plugin.OnEntered.
func (e *Extension) OnEntered(ctx context.Context, s *session.Session, l *lot.Lot) error {
	return e.record(ctx, ActionSessionEntered, SeverityInfo, OutcomeSuccess,
		ResourceSession, s.ID.String(), s.UserID, CategoryParking, nil,
		"lot_id", l.ID.String(),
		"remain", l.Remain,
		"unit_price", l.CurrentPrice.String(),
	)
}

// OnSessionRefreshed implements plugin.OnSessionRefreshed.
func (e *Extension) OnSessionRefreshed(ctx context.Context, s *session.Session, accrued types.Money) error {
	return e.record(ctx, ActionSessionRefreshed, SeverityInfo, OutcomeSuccess,
		ResourceSession, s.ID.String(), s.UserID, CategoryParking, nil,
		"lot_id", s.LotID.String(),
		"accrued", accrued.String(),
		"fee", s.CurrentFee.String(),
	)
}

// OnLeft implements plugin.OnLeft.
func (e *Extension) OnLeft(ctx context.Context, r *session.Receipt, l *lot.Lot) error {
	return e.record(ctx, ActionSessionLeft, SeverityInfo, OutcomeSuccess,
		ResourceReceipt, r.ID.String(), r.UserID, CategoryPayment, nil,
		"session_id", r.SessionID.String(),
		"lot_id", l.ID.String(),
		"owner", r.Owner,
		"fee", r.Fee.String(),
		"unit_price", r.UnitPrice.String(),
		"duration_seconds", int64(r.Duration().Seconds()),
	)
}

// OnSettlementFailed implements plugin.OnSettlementFailed.
func (e *Extension) OnSettlementFailed(ctx context.Context, s *session.Session, fee types.Money, cause error) error {
	return e.record(ctx, ActionSettlementFailed, SeverityCritical, OutcomeFailure,
		ResourceSession, s.ID.String(), s.UserID, CategoryPayment, cause,
		"lot_id", s.LotID.String(),
		"fee", fee.String(),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, actor, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Actor:      actor,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
