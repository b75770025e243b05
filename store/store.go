package store

import (
	"context"

	"github.com/xraph/parking/id"
	"github.com/xraph/parking/lot"
	"github.com/xraph/parking/session"
)

// Registry is the set of entity operations a backend provides. Instead of
// embedding lot.Store and session.Store, the methods are declared
// explicitly so the two can evolve without naming conflicts.
type Registry interface {
	// Lot methods
	CreateLot(ctx context.Context, l *lot.Lot) error
	GetLot(ctx context.Context, lotID id.LotID) (*lot.Lot, error)
	UpdateLot(ctx context.Context, lotID id.LotID, mutate func(*lot.Lot) error) error
	ListLots(ctx context.Context, opts lot.ListOpts) ([]*lot.Lot, error)
	LotCount(ctx context.Context) (uint64, error)
	LotByIndex(ctx context.Context, index uint64) (id.LotID, error)
	OwnerLotCount(ctx context.Context, owner string) (uint64, error)
	OwnerLotByIndex(ctx context.Context, owner string, index uint64) (id.LotID, error)

	// Occupant methods
	AddOccupant(ctx context.Context, lotID id.LotID, userID string) error
	RemoveOccupant(ctx context.Context, lotID id.LotID, userID string) error
	Occupants(ctx context.Context, lotID id.LotID) ([]string, error)

	// Session methods
	SetSession(ctx context.Context, s *session.Session) error
	GetSession(ctx context.Context, userID string) (*session.Session, error)
	UpdateSession(ctx context.Context, s *session.Session) error
	ClearSession(ctx context.Context, userID string) error

	// Receipt methods
	AppendReceipt(ctx context.Context, r *session.Receipt) error
	ListReceipts(ctx context.Context, userID string, opts session.ListOpts) ([]*session.Receipt, error)
}

// Store is the unified storage interface for all parking entities.
type Store interface {
	Registry

	// Transact runs fn against a view of the store in which every write
	// is applied all-or-nothing: if fn returns an error nothing it did is
	// kept.
	Transact(ctx context.Context, fn func(ctx context.Context, tx Registry) error) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Compile-time checks that the entity sub-interfaces stay in step with
// Registry.
var (
	_ lot.Store     = Registry(nil)
	_ session.Store = Registry(nil)
)
