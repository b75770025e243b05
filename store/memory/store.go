// Package memory provides an in-process store.Store. It is safe for
// concurrent use; Transact holds the store lock for the whole callback and
// undoes every write if the callback fails.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/xraph/parking"
	"github.com/xraph/parking/id"
	"github.com/xraph/parking/lot"
	"github.com/xraph/parking/session"
	"github.com/xraph/parking/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

type Store struct {
	mu     sync.RWMutex
	closed bool

	// Lot storage and enumeration indices
	lots    map[string]*lot.Lot
	global  []id.LotID
	byOwner map[string][]id.LotID

	// Occupant sets keyed by lot
	occupants map[string]map[string]struct{}

	// Live sessions keyed by user
	sessions map[string]*session.Session

	// Receipts keyed by user, oldest first
	receipts map[string][]*session.Receipt
}

func New() *Store {
	return &Store{
		lots:      make(map[string]*lot.Lot),
		byOwner:   make(map[string][]id.LotID),
		occupants: make(map[string]map[string]struct{}),
		sessions:  make(map[string]*session.Session),
		receipts:  make(map[string][]*session.Receipt),
	}
}

// Transact runs fn with the store locked. Writes made through tx are
// journaled and reverted in reverse order when fn returns an error.
func (s *Store) Transact(ctx context.Context, fn func(ctx context.Context, tx store.Registry) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return parking.ErrStoreClosed
	}

	v := &view{s: s, journal: true}
	if err := fn(ctx, v); err != nil {
		v.rollback()
		return err
	}
	return nil
}

// Lot Store implementation
func (s *Store) CreateLot(ctx context.Context, l *lot.Lot) error {
	return s.write(func(v *view) error { return v.CreateLot(ctx, l) })
}

func (s *Store) GetLot(ctx context.Context, lotID id.LotID) (*lot.Lot, error) {
	var out *lot.Lot
	err := s.read(func(v *view) (err error) {
		out, err = v.GetLot(ctx, lotID)
		return err
	})
	return out, err
}

func (s *Store) UpdateLot(ctx context.Context, lotID id.LotID, mutate func(*lot.Lot) error) error {
	return s.write(func(v *view) error { return v.UpdateLot(ctx, lotID, mutate) })
}

func (s *Store) ListLots(ctx context.Context, opts lot.ListOpts) ([]*lot.Lot, error) {
	var out []*lot.Lot
	err := s.read(func(v *view) (err error) {
		out, err = v.ListLots(ctx, opts)
		return err
	})
	return out, err
}

func (s *Store) LotCount(ctx context.Context) (uint64, error) {
	var n uint64
	err := s.read(func(v *view) (err error) {
		n, err = v.LotCount(ctx)
		return err
	})
	return n, err
}

func (s *Store) LotByIndex(ctx context.Context, index uint64) (id.LotID, error) {
	var out id.LotID
	err := s.read(func(v *view) (err error) {
		out, err = v.LotByIndex(ctx, index)
		return err
	})
	return out, err
}

func (s *Store) OwnerLotCount(ctx context.Context, owner string) (uint64, error) {
	var n uint64
	err := s.read(func(v *view) (err error) {
		n, err = v.OwnerLotCount(ctx, owner)
		return err
	})
	return n, err
}

func (s *Store) OwnerLotByIndex(ctx context.Context, owner string, index uint64) (id.LotID, error) {
	var out id.LotID
	err := s.read(func(v *view) (err error) {
		out, err = v.OwnerLotByIndex(ctx, owner, index)
		return err
	})
	return out, err
}

// Occupant Store implementation
func (s *Store) AddOccupant(ctx context.Context, lotID id.LotID, userID string) error {
	return s.write(func(v *view) error { return v.AddOccupant(ctx, lotID, userID) })
}

func (s *Store) RemoveOccupant(ctx context.Context, lotID id.LotID, userID string) error {
	return s.write(func(v *view) error { return v.RemoveOccupant(ctx, lotID, userID) })
}

func (s *Store) Occupants(ctx context.Context, lotID id.LotID) ([]string, error) {
	var out []string
	err := s.read(func(v *view) (err error) {
		out, err = v.Occupants(ctx, lotID)
		return err
	})
	return out, err
}

// Session Store implementation
func (s *Store) SetSession(ctx context.Context, sess *session.Session) error {
	return s.write(func(v *view) error { return v.SetSession(ctx, sess) })
}

func (s *Store) GetSession(ctx context.Context, userID string) (*session.Session, error) {
	var out *session.Session
	err := s.read(func(v *view) (err error) {
		out, err = v.GetSession(ctx, userID)
		return err
	})
	return out, err
}

func (s *Store) UpdateSession(ctx context.Context, sess *session.Session) error {
	return s.write(func(v *view) error { return v.UpdateSession(ctx, sess) })
}

func (s *Store) ClearSession(ctx context.Context, userID string) error {
	return s.write(func(v *view) error { return v.ClearSession(ctx, userID) })
}

// Receipt Store implementation
func (s *Store) AppendReceipt(ctx context.Context, r *session.Receipt) error {
	return s.write(func(v *view) error { return v.AppendReceipt(ctx, r) })
}

func (s *Store) ListReceipts(ctx context.Context, userID string, opts session.ListOpts) ([]*session.Receipt, error) {
	var out []*session.Receipt
	err := s.read(func(v *view) (err error) {
		out, err = v.ListReceipts(ctx, userID, opts)
		return err
	})
	return out, err
}

// Core methods
func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return parking.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

func (s *Store) read(fn func(v *view) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return parking.ErrStoreClosed
	}
	return fn(&view{s: s})
}

func (s *Store) write(fn func(v *view) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return parking.ErrStoreClosed
	}
	return fn(&view{s: s})
}

// paginate applies offset and limit the same way for every listing; a
// zero limit means no limit.
func paginate(n, offset, limit int) (start, end int) {
	start = offset
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	if limit <= 0 || limit > n-start {
		end = n
	} else {
		end = start + limit
	}
	return start, end
}

func sortedMembers(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for u := range set {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}
