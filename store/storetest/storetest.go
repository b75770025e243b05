// Package storetest holds behavioural tests every store.Store backend
// must pass. Backends call Run from their own _test.go files.
package storetest

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/parking"
	"github.com/xraph/parking/id"
	"github.com/xraph/parking/lot"
	"github.com/xraph/parking/session"
	"github.com/xraph/parking/store"
	"github.com/xraph/parking/types"
)

// Factory returns an empty, migrated store. It is called once per subtest.
type Factory func(t *testing.T) store.Store

var epoch = time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC)

// Run exercises the registry contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"CreateAndGetLot", testCreateAndGetLot},
		{"CreateLotValidation", testCreateLotValidation},
		{"EnumerationIndices", testEnumerationIndices},
		{"ListLotsPaging", testListLotsPaging},
		{"UpdateLot", testUpdateLot},
		{"Occupants", testOccupants},
		{"Sessions", testSessions},
		{"Receipts", testReceipts},
		{"TransactCommit", testTransactCommit},
		{"TransactRollback", testTransactRollback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

// NewLot returns a valid, not yet stored lot owned by owner.
func NewLot(owner string, capacity uint32, minPrice, maxPrice int64) *lot.Lot {
	return &lot.Lot{
		Entity:    types.NewEntityAt(epoch),
		ID:        id.NewLotID(),
		Owner:     owner,
		Latitude:  52_520_008,
		Longitude: 13_404_954,
		Capacity:  capacity,
		MinPrice:  types.USD(minPrice),
		MaxPrice:  types.USD(maxPrice),
	}
}

// NewSession returns a fresh session for user in lotID.
func NewSession(user string, lotID id.LotID, at time.Time) *session.Session {
	return &session.Session{
		Entity:      types.NewEntityAt(at),
		ID:          id.NewSessionID(),
		UserID:      user,
		LotID:       lotID,
		EnterTime:   at,
		CurrentTime: at,
		CurrentFee:  types.USD(0),
	}
}

func testCreateAndGetLot(t *testing.T, s store.Store) {
	ctx := context.Background()
	l := NewLot("alice", 10, 100, 200)
	require.NoError(t, s.CreateLot(ctx, l))

	got, err := s.GetLot(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, l.ID.String(), got.ID.String())
	assert.Equal(t, "alice", got.Owner)
	assert.Equal(t, uint32(10), got.Capacity)
	assert.Equal(t, uint32(10), got.Remain)
	assert.Equal(t, types.USD(100), got.CurrentPrice)
	assert.Equal(t, types.USD(200), got.MaxPrice)
	assert.Equal(t, int32(52_520_008), got.Latitude)
	assert.True(t, got.PricedAt.Equal(epoch), "priced_at seeded from creation")

	_, err = s.GetLot(ctx, id.NewLotID())
	assert.ErrorIs(t, err, parking.ErrNotFound)
}

func testCreateLotValidation(t *testing.T, s store.Store) {
	ctx := context.Background()
	tests := []struct {
		name   string
		mutate func(l *lot.Lot)
	}{
		{"zero capacity", func(l *lot.Lot) { l.Capacity = 0 }},
		{"inverted prices", func(l *lot.Lot) { l.MinPrice = types.USD(300) }},
		{"negative min", func(l *lot.Lot) { l.MinPrice = types.USD(-1) }},
		{"mixed currency", func(l *lot.Lot) { l.MaxPrice = types.EUR(200) }},
		{"no owner", func(l *lot.Lot) { l.Owner = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLot("alice", 10, 100, 200)
			tt.mutate(l)
			err := s.CreateLot(ctx, l)
			require.ErrorIs(t, err, parking.ErrInvalidParameters)
		})
	}

	n, err := s.LotCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "rejected lots must not reach the indices")
}

func testEnumerationIndices(t *testing.T, s store.Store) {
	ctx := context.Background()
	owners := []string{"alice", "bob", "alice", "carol", "alice", "bob"}
	created := make([]*lot.Lot, 0, len(owners))
	for _, owner := range owners {
		l := NewLot(owner, 5, 10, 20)
		require.NoError(t, s.CreateLot(ctx, l))
		created = append(created, l)
	}

	total, err := s.LotCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(owners)), total)

	for i, l := range created {
		got, err := s.LotByIndex(ctx, uint64(i))
		require.NoError(t, err)
		assert.Equal(t, l.ID.String(), got.String(), "global ordinal %d", i)
		assert.Equal(t, uint64(i), l.GlobalIndex)
	}
	_, err = s.LotByIndex(ctx, total)
	assert.ErrorIs(t, err, parking.ErrNotFound)

	want := map[string][]string{}
	for _, l := range created {
		want[l.Owner] = append(want[l.Owner], l.ID.String())
	}
	for owner, ids := range want {
		n, err := s.OwnerLotCount(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, uint64(len(ids)), n)
		for i, lotID := range ids {
			got, err := s.OwnerLotByIndex(ctx, owner, uint64(i))
			require.NoError(t, err)
			assert.Equal(t, lotID, got.String(), "%s ordinal %d", owner, i)
		}
		_, err = s.OwnerLotByIndex(ctx, owner, n)
		assert.ErrorIs(t, err, parking.ErrNotFound)
	}

	n, err := s.OwnerLotCount(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testListLotsPaging(t *testing.T, s store.Store) {
	ctx := context.Background()
	var ids []string
	for i := 0; i < 5; i++ {
		owner := "alice"
		if i%2 == 1 {
			owner = "bob"
		}
		l := NewLot(owner, 3, 1, 2)
		require.NoError(t, s.CreateLot(ctx, l))
		ids = append(ids, l.ID.String())
	}

	all, err := s.ListLots(ctx, lot.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, l := range all {
		assert.Equal(t, ids[i], l.ID.String())
	}

	page, err := s.ListLots(ctx, lot.ListOpts{Offset: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[1], page[0].ID.String())
	assert.Equal(t, ids[2], page[1].ID.String())

	bobs, err := s.ListLots(ctx, lot.ListOpts{Owner: "bob"})
	require.NoError(t, err)
	require.Len(t, bobs, 2)
	assert.Equal(t, ids[1], bobs[0].ID.String())
	assert.Equal(t, ids[3], bobs[1].ID.String())

	past, err := s.ListLots(ctx, lot.ListOpts{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, past)

	rest, err := s.ListLots(ctx, lot.ListOpts{Offset: 1, Limit: math.MaxInt})
	require.NoError(t, err)
	require.Len(t, rest, 4)
	assert.Equal(t, ids[1], rest[0].ID.String())
}

func testUpdateLot(t *testing.T, s store.Store) {
	ctx := context.Background()
	l := NewLot("alice", 4, 100, 200)
	require.NoError(t, s.CreateLot(ctx, l))

	later := epoch.Add(time.Minute)
	err := s.UpdateLot(ctx, l.ID, func(l *lot.Lot) error {
		l.Remain--
		l.CurrentPrice = types.USD(125)
		l.PricedAt = later
		return nil
	})
	require.NoError(t, err)

	got, err := s.GetLot(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), got.Remain)
	assert.Equal(t, types.USD(125), got.CurrentPrice)
	assert.True(t, got.PricedAt.Equal(later))

	boom := errors.New("boom")
	err = s.UpdateLot(ctx, l.ID, func(l *lot.Lot) error {
		l.Remain = 0
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = s.UpdateLot(ctx, l.ID, func(l *lot.Lot) error {
		l.Capacity = 99
		return nil
	})
	require.ErrorIs(t, err, parking.ErrInvalidParameters)

	got, err = s.GetLot(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), got.Remain, "failed updates leave the lot unchanged")
	assert.Equal(t, uint32(4), got.Capacity)

	err = s.UpdateLot(ctx, id.NewLotID(), func(*lot.Lot) error { return nil })
	assert.ErrorIs(t, err, parking.ErrNotFound)
}

func testOccupants(t *testing.T, s store.Store) {
	ctx := context.Background()
	l := NewLot("alice", 4, 1, 2)
	require.NoError(t, s.CreateLot(ctx, l))

	got, err := s.Occupants(ctx, l.ID)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.AddOccupant(ctx, l.ID, "zed"))
	require.NoError(t, s.AddOccupant(ctx, l.ID, "amy"))
	require.NoError(t, s.AddOccupant(ctx, l.ID, "amy"))

	got, err = s.Occupants(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"amy", "zed"}, got)

	require.NoError(t, s.RemoveOccupant(ctx, l.ID, "amy"))
	require.NoError(t, s.RemoveOccupant(ctx, l.ID, "amy"), "removing an absent user is a no-op")
	require.NoError(t, s.RemoveOccupant(ctx, l.ID, "never-there"))

	got, err = s.Occupants(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"zed"}, got)

	_, err = s.Occupants(ctx, id.NewLotID())
	assert.ErrorIs(t, err, parking.ErrNotFound)
}

func testSessions(t *testing.T, s store.Store) {
	ctx := context.Background()
	l := NewLot("alice", 4, 1, 2)
	require.NoError(t, s.CreateLot(ctx, l))

	sess := NewSession("bob", l.ID, epoch)
	require.NoError(t, s.SetSession(ctx, sess))
	err := s.SetSession(ctx, NewSession("bob", l.ID, epoch))
	require.ErrorIs(t, err, parking.ErrAlreadyParked)

	got, err := s.GetSession(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, sess.ID.String(), got.ID.String())
	assert.Equal(t, l.ID.String(), got.LotID.String())
	assert.True(t, got.EnterTime.Equal(epoch))
	assert.Equal(t, types.USD(0), got.CurrentFee)

	later := epoch.Add(90 * time.Second)
	got.CurrentTime = later
	got.CurrentFee = types.USD(900)
	require.NoError(t, s.UpdateSession(ctx, got))

	got, err = s.GetSession(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, got.CurrentTime.Equal(later))
	assert.True(t, got.EnterTime.Equal(epoch))
	assert.Equal(t, types.USD(900), got.CurrentFee)

	require.NoError(t, s.ClearSession(ctx, "bob"))
	require.NoError(t, s.ClearSession(ctx, "bob"))
	_, err = s.GetSession(ctx, "bob")
	assert.ErrorIs(t, err, parking.ErrNotFound)

	err = s.UpdateSession(ctx, NewSession("carol", l.ID, epoch))
	assert.ErrorIs(t, err, parking.ErrNotFound)
}

func testReceipts(t *testing.T, s store.Store) {
	ctx := context.Background()
	lotID := id.NewLotID()

	var ids []string
	for i := 0; i < 3; i++ {
		exit := epoch.Add(time.Duration(i+1) * time.Hour)
		r := &session.Receipt{
			Entity:    types.NewEntityAt(exit),
			ID:        id.NewReceiptID(),
			SessionID: id.NewSessionID(),
			UserID:    "bob",
			LotID:     lotID,
			Owner:     "alice",
			EnterTime: epoch,
			ExitTime:  exit,
			UnitPrice: types.USD(110),
			Fee:       types.USD(int64(i+1) * 1000),
		}
		require.NoError(t, s.AppendReceipt(ctx, r))
		ids = append(ids, r.ID.String())
	}

	got, err := s.ListReceipts(ctx, "bob", session.ListOpts{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, ids[2], got[0].ID.String(), "newest first")
	assert.Equal(t, ids[0], got[2].ID.String())
	assert.Equal(t, types.USD(3000), got[0].Fee)
	assert.Equal(t, "alice", got[0].Owner)

	page, err := s.ListReceipts(ctx, "bob", session.ListOpts{Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[1], page[0].ID.String())

	none, err := s.ListReceipts(ctx, "carol", session.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testTransactCommit(t *testing.T, s store.Store) {
	ctx := context.Background()
	l := NewLot("alice", 2, 1, 2)
	require.NoError(t, s.CreateLot(ctx, l))

	err := s.Transact(ctx, func(ctx context.Context, tx store.Registry) error {
		if err := tx.UpdateLot(ctx, l.ID, func(l *lot.Lot) error {
			l.Remain--
			return nil
		}); err != nil {
			return err
		}
		if err := tx.AddOccupant(ctx, l.ID, "bob"); err != nil {
			return err
		}
		return tx.SetSession(ctx, NewSession("bob", l.ID, epoch))
	})
	require.NoError(t, err)

	got, err := s.GetLot(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), got.Remain)

	occ, err := s.Occupants(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, occ)

	_, err = s.GetSession(ctx, "bob")
	require.NoError(t, err)
}

func testTransactRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	l := NewLot("alice", 2, 1, 2)
	require.NoError(t, s.CreateLot(ctx, l))
	require.NoError(t, s.AddOccupant(ctx, l.ID, "carol"))
	require.NoError(t, s.SetSession(ctx, NewSession("carol", l.ID, epoch)))

	boom := errors.New("transfer declined")
	var fresh *lot.Lot
	err := s.Transact(ctx, func(ctx context.Context, tx store.Registry) error {
		if err := tx.UpdateLot(ctx, l.ID, func(l *lot.Lot) error {
			l.Remain = 0
			l.CurrentPrice = types.USD(2)
			return nil
		}); err != nil {
			return err
		}
		if err := tx.AddOccupant(ctx, l.ID, "bob"); err != nil {
			return err
		}
		if err := tx.RemoveOccupant(ctx, l.ID, "carol"); err != nil {
			return err
		}
		if err := tx.ClearSession(ctx, "carol"); err != nil {
			return err
		}
		if err := tx.SetSession(ctx, NewSession("bob", l.ID, epoch)); err != nil {
			return err
		}
		fresh = NewLot("dave", 1, 1, 1)
		if err := tx.CreateLot(ctx, fresh); err != nil {
			return err
		}
		if err := tx.AppendReceipt(ctx, &session.Receipt{
			Entity: types.NewEntityAt(epoch), ID: id.NewReceiptID(), SessionID: id.NewSessionID(),
			UserID: "carol", LotID: l.ID, Owner: "alice", EnterTime: epoch, ExitTime: epoch,
			UnitPrice: types.USD(1), Fee: types.USD(0),
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetLot(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), got.Remain)
	assert.Equal(t, types.USD(1), got.CurrentPrice)

	occ, err := s.Occupants(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"carol"}, occ)

	_, err = s.GetSession(ctx, "carol")
	require.NoError(t, err)
	_, err = s.GetSession(ctx, "bob")
	assert.ErrorIs(t, err, parking.ErrNotFound)

	_, err = s.GetLot(ctx, fresh.ID)
	assert.ErrorIs(t, err, parking.ErrNotFound)
	n, err := s.LotCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
	n, err = s.OwnerLotCount(ctx, "dave")
	require.NoError(t, err)
	assert.Zero(t, n)

	receipts, err := s.ListReceipts(ctx, "carol", session.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, receipts)
}
