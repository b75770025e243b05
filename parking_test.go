package parking_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/parking"
	"github.com/xraph/parking/auth"
	"github.com/xraph/parking/clock"
	"github.com/xraph/parking/funds"
	"github.com/xraph/parking/id"
	"github.com/xraph/parking/lot"
	"github.com/xraph/parking/session"
	"github.com/xraph/parking/store"
	"github.com/xraph/parking/store/memory"
	"github.com/xraph/parking/store/sqlstore"
	"github.com/xraph/parking/types"
)

var (
	epoch = time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC)
	dbSeq atomic.Int64
)

type harness struct {
	engine *parking.Engine
	clock  *clock.Manual
	bank   *funds.Ledger
	events *events
}

type events struct {
	mu   sync.Mutex
	seen []string
}

func (*events) Name() string { return "events" }

func (e *events) add(s string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seen = append(e.seen, s)
	return nil
}

func (e *events) list() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.seen...)
}

func (e *events) OnLotCreated(context.Context, *lot.Lot) error { return e.add("lot_created") }
func (e *events) OnEntered(context.Context, *session.Session, *lot.Lot) error {
	return e.add("entered")
}
func (e *events) OnSessionRefreshed(context.Context, *session.Session, types.Money) error {
	return e.add("refreshed")
}
func (e *events) OnLeft(context.Context, *session.Receipt, *lot.Lot) error { return e.add("left") }
func (e *events) OnSettlementFailed(context.Context, *session.Session, types.Money, error) error {
	return e.add("settlement_failed")
}

type storeFactory func(t *testing.T) store.Store

func factories() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(*testing.T) store.Store { return memory.New() },
		"sqlite": func(t *testing.T) store.Store {
			t.Helper()
			s, err := sqlstore.OpenSQLite(fmt.Sprintf("file:engine_%d?mode=memory&cache=shared", dbSeq.Add(1)))
			require.NoError(t, err)
			return s
		},
	}
}

func newHarness(t *testing.T, newStore storeFactory, opts ...parking.Option) *harness {
	t.Helper()
	h := &harness{
		clock:  clock.NewManual(epoch),
		bank:   funds.NewLedger(),
		events: &events{},
	}
	opts = append([]parking.Option{
		parking.WithLogger(slog.New(slog.DiscardHandler)),
		parking.WithClock(h.clock),
		parking.WithPlugin(h.events),
	}, opts...)
	h.engine = parking.New(newStore(t), h.bank, opts...)
	require.NoError(t, h.engine.Start(context.Background()))
	t.Cleanup(func() { _ = h.engine.Stop() })
	return h
}

func as(user string) context.Context {
	return auth.WithAccount(context.Background(), user)
}

func (h *harness) lot(t *testing.T, owner string, capacity uint32) *lot.Lot {
	t.Helper()
	l, err := h.engine.CreateLot(as(owner), lot.Params{
		Capacity: capacity,
		MinPrice: types.USD(100),
		MaxPrice: types.USD(200),
	})
	require.NoError(t, err)
	return l
}

func (h *harness) fund(t *testing.T, user string, cents int64) {
	t.Helper()
	require.NoError(t, h.bank.Deposit(context.Background(), user, types.USD(cents)))
}

func eachStore(t *testing.T, fn func(t *testing.T, newStore storeFactory)) {
	for name, f := range factories() {
		t.Run(name, func(t *testing.T) { fn(t, f) })
	}
}

func TestCreateLot(t *testing.T) {
	eachStore(t, func(t *testing.T, f storeFactory) {
		h := newHarness(t, f)
		ctx := context.Background()

		l, err := h.engine.CreateLot(as("owner"), lot.Params{
			Latitude:  37774929,
			Longitude: -122419416,
			Capacity:  10,
			MinPrice:  types.Money{Amount: 100},
			MaxPrice:  types.Money{Amount: 200},
			Metadata:  map[string]string{"zone": "a"},
		})
		require.NoError(t, err)
		assert.Equal(t, id.PrefixLot, l.ID.Prefix())
		assert.Equal(t, "owner", l.Owner)
		assert.Equal(t, uint32(10), l.Remain)
		assert.Equal(t, types.USD(100), l.CurrentPrice)
		assert.Equal(t, types.USD(200), l.MaxPrice)
		assert.Equal(t, epoch, l.PricedAt)

		got, err := h.engine.GetLot(ctx, l.ID)
		require.NoError(t, err)
		assert.Equal(t, l.ID, got.ID)
		assert.Equal(t, int32(37774929), got.Latitude)
		assert.Equal(t, int32(-122419416), got.Longitude)
		assert.Equal(t, "a", got.Metadata["zone"])

		n, err := h.engine.LotCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), n)

		byIndex, err := h.engine.LotByIndex(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, l.ID, byIndex)

		byOwner, err := h.engine.OwnerLotByIndex(ctx, "owner", 0)
		require.NoError(t, err)
		assert.Equal(t, l.ID, byOwner)

		owned, err := h.engine.ListOwnerLots(ctx, "owner", lot.ListOpts{})
		require.NoError(t, err)
		assert.Len(t, owned, 1)

		assert.Equal(t, []string{"lot_created"}, h.events.list())
	})
}

func TestCreateLotValidation(t *testing.T) {
	h := newHarness(t, factories()["memory"])

	tests := []struct {
		name   string
		params lot.Params
	}{
		{"zero capacity", lot.Params{Capacity: 0, MinPrice: types.USD(1), MaxPrice: types.USD(2)}},
		{"negative min", lot.Params{Capacity: 1, MinPrice: types.USD(-1), MaxPrice: types.USD(2)}},
		{"max below min", lot.Params{Capacity: 1, MinPrice: types.USD(5), MaxPrice: types.USD(2)}},
		{"currency mismatch", lot.Params{Capacity: 1, MinPrice: types.USD(1), MaxPrice: types.EUR(2)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.CreateLot(as("owner"), tt.params)
			assert.ErrorIs(t, err, parking.ErrInvalidParameters)
		})
	}

	n, err := h.engine.LotCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUnauthorized(t *testing.T) {
	h := newHarness(t, factories()["memory"])
	ctx := context.Background()

	_, err := h.engine.CreateLot(ctx, lot.Params{Capacity: 1})
	assert.ErrorIs(t, err, parking.ErrUnauthorized)
	_, err = h.engine.Enter(ctx, id.NewLotID())
	assert.ErrorIs(t, err, parking.ErrUnauthorized)
	_, err = h.engine.Refresh(ctx)
	assert.ErrorIs(t, err, parking.ErrUnauthorized)
	_, err = h.engine.Leave(ctx)
	assert.ErrorIs(t, err, parking.ErrUnauthorized)
	_, err = h.engine.Quote(ctx)
	assert.ErrorIs(t, err, parking.ErrUnauthorized)
}

func TestCustomAuthenticatorErrorsAreUnauthorized(t *testing.T) {
	h := newHarness(t, factories()["memory"], parking.WithAuthenticator(
		auth.AuthenticatorFunc(func(context.Context) (string, error) {
			return "", errors.New("token revoked")
		}),
	))

	_, err := h.engine.Enter(context.Background(), id.NewLotID())
	assert.ErrorIs(t, err, parking.ErrUnauthorized)
	assert.Contains(t, err.Error(), "token revoked")
}

func TestEnterAndLeave(t *testing.T) {
	eachStore(t, func(t *testing.T, f storeFactory) {
		h := newHarness(t, f)
		ctx := context.Background()
		l := h.lot(t, "owner", 10)
		h.fund(t, "driver", 10_000)

		sess, err := h.engine.Enter(as("driver"), l.ID)
		require.NoError(t, err)
		assert.Equal(t, l.ID, sess.LotID)
		assert.Equal(t, epoch, sess.EnterTime)
		assert.Equal(t, types.USD(0), sess.CurrentFee)

		entered, err := h.engine.GetLot(ctx, l.ID)
		require.NoError(t, err)
		assert.Equal(t, uint32(9), entered.Remain)
		assert.Equal(t, types.USD(110), entered.CurrentPrice)

		occupants, err := h.engine.Occupants(ctx, l.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"driver"}, occupants)

		h.clock.Advance(time.Minute)
		quote, err := h.engine.Quote(as("driver"))
		require.NoError(t, err)
		assert.Equal(t, types.USD(6600), quote)

		receipt, err := h.engine.Leave(as("driver"))
		require.NoError(t, err)
		assert.Equal(t, types.USD(6600), receipt.Fee)
		assert.Equal(t, types.USD(110), receipt.UnitPrice)
		assert.Equal(t, "owner", receipt.Owner)
		assert.Equal(t, sess.ID, receipt.SessionID)
		assert.Equal(t, time.Minute, receipt.Duration())

		left, err := h.engine.GetLot(ctx, l.ID)
		require.NoError(t, err)
		assert.Equal(t, uint32(10), left.Remain)
		assert.Equal(t, types.USD(100), left.CurrentPrice)
		assert.Equal(t, epoch.Add(time.Minute), left.PricedAt)

		occupants, err = h.engine.Occupants(ctx, l.ID)
		require.NoError(t, err)
		assert.Empty(t, occupants)

		_, err = h.engine.Session(ctx, "driver")
		assert.ErrorIs(t, err, parking.ErrNotFound)

		driverBalance, _ := h.bank.Balance(ctx, "driver", "usd")
		ownerBalance, _ := h.bank.Balance(ctx, "owner", "usd")
		assert.Equal(t, types.USD(3400), driverBalance)
		assert.Equal(t, types.USD(6600), ownerBalance)

		receipts, err := h.engine.Receipts(ctx, "driver", session.ListOpts{})
		require.NoError(t, err)
		require.Len(t, receipts, 1)
		assert.Equal(t, receipt.ID, receipts[0].ID)

		assert.Equal(t, []string{"lot_created", "entered", "left"}, h.events.list())
	})
}

func TestRefreshAccruesAtCurrentPrice(t *testing.T) {
	eachStore(t, func(t *testing.T, f storeFactory) {
		h := newHarness(t, f)
		l := h.lot(t, "owner", 10)
		h.fund(t, "a", 100_000)
		h.fund(t, "b", 100_000)

		_, err := h.engine.Enter(as("a"), l.ID)
		require.NoError(t, err)

		h.clock.Advance(30 * time.Second)
		sess, err := h.engine.Refresh(as("a"))
		require.NoError(t, err)
		assert.Equal(t, types.USD(3300), sess.CurrentFee)
		assert.Equal(t, epoch.Add(30*time.Second), sess.CurrentTime)

		_, err = h.engine.Enter(as("b"), l.ID)
		require.NoError(t, err)

		h.clock.Advance(30 * time.Second)
		receipt, err := h.engine.Leave(as("a"))
		require.NoError(t, err)
		assert.Equal(t, types.USD(120), receipt.UnitPrice)
		assert.Equal(t, types.USD(3300+30*120), receipt.Fee)
	})
}

func TestRefreshTruncatesPartialSeconds(t *testing.T) {
	h := newHarness(t, factories()["memory"])
	l := h.lot(t, "owner", 10)

	_, err := h.engine.Enter(as("driver"), l.ID)
	require.NoError(t, err)

	h.clock.Advance(1999 * time.Millisecond)
	quote, err := h.engine.Quote(as("driver"))
	require.NoError(t, err)
	assert.Equal(t, types.USD(110), quote)
}

func TestEnterErrors(t *testing.T) {
	eachStore(t, func(t *testing.T, f storeFactory) {
		h := newHarness(t, f)
		ctx := context.Background()
		l := h.lot(t, "owner", 1)

		_, err := h.engine.Enter(as("a"), id.NewLotID())
		assert.ErrorIs(t, err, parking.ErrNotFound)

		_, err = h.engine.Enter(as("a"), l.ID)
		require.NoError(t, err)

		_, err = h.engine.Enter(as("b"), l.ID)
		assert.ErrorIs(t, err, parking.ErrLotFull)

		other := h.lot(t, "owner", 5)
		_, err = h.engine.Enter(as("a"), other.ID)
		assert.ErrorIs(t, err, parking.ErrAlreadyParked)

		unchanged, err := h.engine.GetLot(ctx, other.ID)
		require.NoError(t, err)
		assert.Equal(t, uint32(5), unchanged.Remain)

		_, err = h.engine.Leave(as("b"))
		assert.ErrorIs(t, err, parking.ErrNotFound)
	})
}

func TestRemainTracksOccupants(t *testing.T) {
	eachStore(t, func(t *testing.T, f storeFactory) {
		h := newHarness(t, f)
		ctx := context.Background()
		l := h.lot(t, "owner", 4)
		users := []string{"u1", "u2", "u3", "u4"}
		for _, u := range users {
			h.fund(t, u, 1_000_000)
		}

		check := func() {
			t.Helper()
			got, err := h.engine.GetLot(ctx, l.ID)
			require.NoError(t, err)
			occupants, err := h.engine.Occupants(ctx, l.ID)
			require.NoError(t, err)
			assert.Equal(t, int(got.Capacity-got.Remain), len(occupants))
		}

		for _, u := range users {
			_, err := h.engine.Enter(as(u), l.ID)
			require.NoError(t, err)
			h.clock.Advance(5 * time.Second)
			check()
		}
		for _, u := range users[:2] {
			_, err := h.engine.Leave(as(u))
			require.NoError(t, err)
			h.clock.Advance(5 * time.Second)
			check()
		}

		got, err := h.engine.GetLot(ctx, l.ID)
		require.NoError(t, err)
		assert.Equal(t, uint32(2), got.Remain)
		assert.Equal(t, types.USD(150), got.CurrentPrice)
	})
}

func TestLeaveSettlementFailureChangesNothing(t *testing.T) {
	eachStore(t, func(t *testing.T, f storeFactory) {
		h := newHarness(t, f)
		ctx := context.Background()
		l := h.lot(t, "owner", 10)
		h.fund(t, "driver", 1_000)

		sess, err := h.engine.Enter(as("driver"), l.ID)
		require.NoError(t, err)

		h.clock.Advance(time.Minute)
		_, err = h.engine.Leave(as("driver"))
		require.ErrorIs(t, err, parking.ErrSettlementFailed)
		assert.ErrorIs(t, err, parking.ErrInsufficientFunds)

		still, err := h.engine.Session(ctx, "driver")
		require.NoError(t, err)
		assert.Equal(t, sess.ID, still.ID)
		assert.Equal(t, types.USD(0), still.CurrentFee)

		got, err := h.engine.GetLot(ctx, l.ID)
		require.NoError(t, err)
		assert.Equal(t, uint32(9), got.Remain)
		assert.Equal(t, types.USD(110), got.CurrentPrice)

		occupants, err := h.engine.Occupants(ctx, l.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"driver"}, occupants)

		receipts, err := h.engine.Receipts(ctx, "driver", session.ListOpts{})
		require.NoError(t, err)
		assert.Empty(t, receipts)

		balance, _ := h.bank.Balance(ctx, "driver", "usd")
		assert.Equal(t, types.USD(1_000), balance)
		assert.Contains(t, h.events.list(), "settlement_failed")

		h.fund(t, "driver", 10_000)
		receipt, err := h.engine.Leave(as("driver"))
		require.NoError(t, err)
		assert.Equal(t, types.USD(6600), receipt.Fee)
	})
}

func TestLeaveZeroFeeSkipsTransfer(t *testing.T) {
	var calls atomic.Int32
	bank := funds.TransferFunc(func(context.Context, string, string, types.Money) error {
		calls.Add(1)
		return errors.New("should not be called")
	})

	e := parking.New(memory.New(), bank,
		parking.WithLogger(slog.New(slog.DiscardHandler)),
		parking.WithClock(clock.NewManual(epoch)),
	)
	l, err := e.CreateLot(as("owner"), lot.Params{Capacity: 3, MinPrice: types.USD(1), MaxPrice: types.USD(2)})
	require.NoError(t, err)

	_, err = e.Enter(as("driver"), l.ID)
	require.NoError(t, err)
	receipt, err := e.Leave(as("driver"))
	require.NoError(t, err)
	assert.True(t, receipt.Fee.IsZero())
	assert.Zero(t, calls.Load())
}

func TestClockGoingBackwards(t *testing.T) {
	h := newHarness(t, factories()["memory"])
	l := h.lot(t, "owner", 10)

	h.clock.Advance(time.Minute)
	_, err := h.engine.Enter(as("driver"), l.ID)
	require.NoError(t, err)

	h.clock.Set(epoch)
	_, err = h.engine.Refresh(as("driver"))
	assert.ErrorIs(t, err, parking.ErrTimeOrderingViolation)
	assert.True(t, parking.IsArithmeticError(err))

	_, err = h.engine.Leave(as("driver"))
	assert.ErrorIs(t, err, parking.ErrTimeOrderingViolation)

	sess, err := h.engine.CurrentSession(as("driver"))
	require.NoError(t, err)
	assert.Equal(t, epoch.Add(time.Minute), sess.CurrentTime)
}

func TestConcurrentEntriesNeverOverfill(t *testing.T) {
	h := newHarness(t, factories()["memory"])
	l := h.lot(t, "owner", 5)

	var (
		wg       sync.WaitGroup
		admitted atomic.Int32
		full     atomic.Int32
	)
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.Enter(as(fmt.Sprintf("u%d", i)), l.ID)
			switch {
			case err == nil:
				admitted.Add(1)
			case errors.Is(err, parking.ErrLotFull):
				full.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), admitted.Load())
	assert.Equal(t, int32(15), full.Load())

	got, err := h.engine.GetLot(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Remain)
	assert.Equal(t, types.USD(200), got.CurrentPrice)
}

// stallingClock parks the first armed caller right after it reads the
// time, until release is closed.
type stallingClock struct {
	*clock.Manual
	armed   atomic.Bool
	read    chan struct{}
	release chan struct{}
}

func (c *stallingClock) Now() time.Time {
	now := c.Manual.Now()
	if c.armed.CompareAndSwap(true, false) {
		close(c.read)
		<-c.release
	}
	return now
}

func TestClockReadUnderStoreLock(t *testing.T) {
	sc := &stallingClock{
		Manual:  clock.NewManual(epoch),
		read:    make(chan struct{}),
		release: make(chan struct{}),
	}
	h := newHarness(t, factories()["memory"], parking.WithClock(sc))
	l := h.lot(t, "owner", 10)

	sc.armed.Store(true)
	firstErr := make(chan error, 1)
	go func() {
		_, err := h.engine.Enter(as("first"), l.ID)
		firstErr <- err
	}()
	<-sc.read

	sc.Advance(time.Second)
	secondErr := make(chan error, 1)
	go func() {
		_, err := h.engine.Enter(as("second"), l.ID)
		secondErr <- err
	}()

	select {
	case err := <-secondErr:
		secondErr <- err
	case <-time.After(100 * time.Millisecond):
	}
	close(sc.release)

	require.NoError(t, <-firstErr)
	require.NoError(t, <-secondErr)

	got, err := h.engine.GetLot(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(8), got.Remain)
	assert.Equal(t, epoch.Add(time.Second), got.PricedAt)
}

type lotKeeper struct {
	mu  sync.Mutex
	got *lot.Lot
}

func (*lotKeeper) Name() string { return "lot-keeper" }

func (k *lotKeeper) OnLotCreated(_ context.Context, l *lot.Lot) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.got = l
	return nil
}

func TestPluginsReceiveCopies(t *testing.T) {
	keeper := &lotKeeper{}
	h := newHarness(t, factories()["memory"], parking.WithPlugin(keeper))

	l := h.lot(t, "owner", 10)
	l.Remain = 0
	l.Metadata = map[string]string{"mutated": "yes"}

	keeper.mu.Lock()
	defer keeper.mu.Unlock()
	require.NotNil(t, keeper.got)
	assert.NotSame(t, l, keeper.got)
	assert.Equal(t, uint32(10), keeper.got.Remain)
	assert.Empty(t, keeper.got.Metadata)
}
