package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/parking/lot"
	"github.com/xraph/parking/session"
	"github.com/xraph/parking/types"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit             []OnInit
	onShutdown         []OnShutdown
	onLotCreated       []OnLotCreated
	onEntered          []OnEntered
	onSessionRefreshed []OnSessionRefreshed
	onLeft             []OnLeft
	onSettlementFailed []OnSettlementFailed
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets how long a single hook may run.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnLotCreated); ok {
		r.onLotCreated = append(r.onLotCreated, v)
	}
	if v, ok := p.(OnEntered); ok {
		r.onEntered = append(r.onEntered, v)
	}
	if v, ok := p.(OnSessionRefreshed); ok {
		r.onSessionRefreshed = append(r.onSessionRefreshed, v)
	}
	if v, ok := p.(OnLeft); ok {
		r.onLeft = append(r.onLeft, v)
	}
	if v, ok := p.(OnSettlementFailed); ok {
		r.onSettlementFailed = append(r.onSettlementFailed, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeOf((*OnInit)(nil)).Elem()},
	{"OnShutdown", reflect.TypeOf((*OnShutdown)(nil)).Elem()},
	{"OnLotCreated", reflect.TypeOf((*OnLotCreated)(nil)).Elem()},
	{"OnEntered", reflect.TypeOf((*OnEntered)(nil)).Elem()},
	{"OnSessionRefreshed", reflect.TypeOf((*OnSessionRefreshed)(nil)).Elem()},
	{"OnLeft", reflect.TypeOf((*OnLeft)(nil)).Elem()},
	{"OnSettlementFailed", reflect.TypeOf((*OnSettlementFailed)(nil)).Elem()},
}

// implementedInterfaces returns the hooks a plugin implements.
func implementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.typ) {
			interfaces = append(interfaces, h.name)
		}
	}
	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit runs call for every plugin in hooks, logging failures.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, hooks []T, call func(T) error) {
	for _, p := range hooks {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return call(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	emit(ctx, r, "OnInit", plugins, func(p OnInit) error {
		return p.OnInit(ctx, engine)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	emit(ctx, r, "OnShutdown", plugins, func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitLotCreated emits a lot created event.
func (r *Registry) EmitLotCreated(ctx context.Context, l *lot.Lot) {
	r.mu.RLock()
	plugins := r.onLotCreated
	r.mu.RUnlock()

	emit(ctx, r, "OnLotCreated", plugins, func(p OnLotCreated) error {
		return p.OnLotCreated(ctx, l)
	})
}

// EmitEntered emits an entered event.
func (r *Registry) EmitEntered(ctx context.Context, s *session.Session, l *lot.Lot) {
	r.mu.RLock()
	plugins := r.onEntered
	r.mu.RUnlock()

	emit(ctx, r, "OnEntered", plugins, func(p OnEntered) error {
		return p.OnEntered(ctx, s, l)
	})
}

// EmitSessionRefreshed emits a session refreshed event.
func (r *Registry) EmitSessionRefreshed(ctx context.Context, s *session.Session, accrued types.Money) {
	r.mu.RLock()
	plugins := r.onSessionRefreshed
	r.mu.RUnlock()

	emit(ctx, r, "OnSessionRefreshed", plugins, func(p OnSessionRefreshed) error {
		return p.OnSessionRefreshed(ctx, s, accrued)
	})
}

// EmitLeft emits a left event.
func (r *Registry) EmitLeft(ctx context.Context, rc *session.Receipt, l *lot.Lot) {
	r.mu.RLock()
	plugins := r.onLeft
	r.mu.RUnlock()

	emit(ctx, r, "OnLeft", plugins, func(p OnLeft) error {
		return p.OnLeft(ctx, rc, l)
	})
}

// EmitSettlementFailed emits a settlement failed event.
func (r *Registry) EmitSettlementFailed(ctx context.Context, s *session.Session, fee types.Money, cause error) {
	r.mu.RLock()
	plugins := r.onSettlementFailed
	r.mu.RUnlock()

	emit(ctx, r, "OnSettlementFailed", plugins, func(p OnSettlementFailed) error {
		return p.OnSettlementFailed(ctx, s, fee, cause)
	})
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the parking pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
