package plugin_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/parking/lot"
	"github.com/xraph/parking/plugin"
	"github.com/xraph/parking/session"
	"github.com/xraph/parking/types"
)

type recorder struct {
	name string
	mu   sync.Mutex
	seen []string
	fail error
	wait time.Duration
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) add(event string) error {
	if r.wait > 0 {
		time.Sleep(r.wait)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, event)
	return r.fail
}

func (r *recorder) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

func (r *recorder) OnInit(context.Context, any) error { return r.add("init") }
func (r *recorder) OnShutdown(context.Context) error  { return r.add("shutdown") }
func (r *recorder) OnLotCreated(context.Context, *lot.Lot) error {
	return r.add("lot_created")
}
func (r *recorder) OnEntered(context.Context, *session.Session, *lot.Lot) error {
	return r.add("entered")
}
func (r *recorder) OnSessionRefreshed(context.Context, *session.Session, types.Money) error {
	return r.add("refreshed")
}
func (r *recorder) OnLeft(context.Context, *session.Receipt, *lot.Lot) error {
	return r.add("left")
}
func (r *recorder) OnSettlementFailed(context.Context, *session.Session, types.Money, error) error {
	return r.add("settlement_failed")
}

type nameOnly struct{}

func (nameOnly) Name() string { return "name-only" }

func quietRegistry(buf *bytes.Buffer) *plugin.Registry {
	return plugin.NewRegistry().WithLogger(slog.New(slog.NewTextHandler(buf, nil)))
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	var buf bytes.Buffer
	r := quietRegistry(&buf)
	require.NoError(t, r.Register(&recorder{name: "a"}))
	require.Error(t, r.Register(&recorder{name: "a"}))
	require.NoError(t, r.Register(nameOnly{}))

	assert.Equal(t, 2, r.Count())
	assert.NotNil(t, r.Get("a"))
	assert.Nil(t, r.Get("missing"))
	assert.Len(t, r.List(), 2)
	assert.Contains(t, buf.String(), "OnSettlementFailed")
}

func TestEmitDispatchesEveryHook(t *testing.T) {
	var buf bytes.Buffer
	r := quietRegistry(&buf)
	rec := &recorder{name: "rec"}
	require.NoError(t, r.Register(rec))
	require.NoError(t, r.Register(nameOnly{}))

	ctx := context.Background()
	l := &lot.Lot{}
	s := &session.Session{}
	r.EmitInit(ctx, nil)
	r.EmitLotCreated(ctx, l)
	r.EmitEntered(ctx, s, l)
	r.EmitSessionRefreshed(ctx, s, types.USD(5))
	r.EmitSettlementFailed(ctx, s, types.USD(5), errors.New("declined"))
	r.EmitLeft(ctx, &session.Receipt{}, l)
	r.EmitShutdown(ctx)

	assert.Equal(t, []string{
		"init", "lot_created", "entered", "refreshed", "settlement_failed", "left", "shutdown",
	}, rec.events())
}

func TestEmitLogsFailures(t *testing.T) {
	var buf bytes.Buffer
	r := quietRegistry(&buf)
	require.NoError(t, r.Register(&recorder{name: "broken", fail: errors.New("sink down")}))

	r.EmitLotCreated(context.Background(), &lot.Lot{})
	assert.Contains(t, buf.String(), "plugin OnLotCreated failed")
	assert.Contains(t, buf.String(), "sink down")
}

func TestEmitTimesOut(t *testing.T) {
	var buf bytes.Buffer
	r := quietRegistry(&buf).WithTimeout(10 * time.Millisecond)
	require.NoError(t, r.Register(&recorder{name: "slow", wait: 200 * time.Millisecond}))

	start := time.Now()
	r.EmitLotCreated(context.Background(), &lot.Lot{})
	assert.Less(t, time.Since(start), 150*time.Millisecond)
	assert.Contains(t, buf.String(), "plugin timeout: slow")
}
