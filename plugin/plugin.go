// Package plugin provides an extensible plugin system for the parking
// engine. Plugins hook into lot and session lifecycle events; a hook
// failure is logged and never undoes the state change that triggered it.
package plugin

import (
	"context"

	"github.com/xraph/parking/lot"
	"github.com/xraph/parking/session"
	"github.com/xraph/parking/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Lot hooks
// ──────────────────────────────────────────────────

// OnLotCreated is called after a lot has been registered.
type OnLotCreated interface {
	Plugin
	OnLotCreated(ctx context.Context, l *lot.Lot) error
}

// ──────────────────────────────────────────────────
// Session hooks
// ──────────────────────────────────────────────────

// OnEntered is called after a user has entered a lot. l reflects the
// post-entry occupancy and price.
type OnEntered interface {
	Plugin
	OnEntered(ctx context.Context, s *session.Session, l *lot.Lot) error
}

// OnSessionRefreshed is called after a live session accrued fees.
type OnSessionRefreshed interface {
	Plugin
	OnSessionRefreshed(ctx context.Context, s *session.Session, accrued types.Money) error
}

// OnLeft is called after a session has been settled and closed.
type OnLeft interface {
	Plugin
	OnLeft(ctx context.Context, r *session.Receipt, l *lot.Lot) error
}

// OnSettlementFailed is called when the fee transfer at exit was
// declined. The session is still live.
type OnSettlementFailed interface {
	Plugin
	OnSettlementFailed(ctx context.Context, s *session.Session, fee types.Money, cause error) error
}
