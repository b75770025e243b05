// Package lot defines parking lots and the registry operations over them.
package lot

import (
	"context"

	"github.com/xraph/parking/id"
)

// Store keeps lots and their enumeration indices. Create appends the lot
// to its owner's index and to the global index; ordinals are dense and
// start at zero.
type Store interface {
	CreateLot(ctx context.Context, l *Lot) error
	GetLot(ctx context.Context, lotID id.LotID) (*Lot, error)
	UpdateLot(ctx context.Context, lotID id.LotID, mutate func(*Lot) error) error
	ListLots(ctx context.Context, opts ListOpts) ([]*Lot, error)
	LotCount(ctx context.Context) (uint64, error)
	LotByIndex(ctx context.Context, index uint64) (id.LotID, error)
	OwnerLotCount(ctx context.Context, owner string) (uint64, error)
	OwnerLotByIndex(ctx context.Context, owner string, index uint64) (id.LotID, error)

	AddOccupant(ctx context.Context, lotID id.LotID, userID string) error
	RemoveOccupant(ctx context.Context, lotID id.LotID, userID string) error
	Occupants(ctx context.Context, lotID id.LotID) ([]string, error)
}

// ListOpts filters and pages ListLots. Results are ordered by ordinal:
// the owner's ordinal when Owner is set, the global one otherwise.
type ListOpts struct {
	Owner  string
	Limit  int
	Offset int
}
