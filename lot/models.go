package lot

import (
	"time"

	"github.com/xraph/parking/id"
	"github.com/xraph/parking/types"
)

// Lot is a parking facility. Capacity and Owner never change after
// creation; Remain, CurrentPrice and PricedAt move with every entry and
// exit. Lots are never deleted.
type Lot struct {
	types.Entity
	ID           id.LotID          `json:"id"`
	Owner        string            `json:"owner"`
	Latitude     int32             `json:"latitude"`
	Longitude    int32             `json:"longitude"`
	Capacity     uint32            `json:"capacity"`
	Remain       uint32            `json:"remain"`
	MinPrice     types.Money       `json:"min_price"`
	MaxPrice     types.Money       `json:"max_price"`
	CurrentPrice types.Money       `json:"current_price"`
	PricedAt     time.Time         `json:"priced_at"`
	OwnerIndex   uint64            `json:"owner_index"`
	GlobalIndex  uint64            `json:"global_index"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Occupied returns the number of taken slots.
func (l *Lot) Occupied() uint32 {
	if l.Remain > l.Capacity {
		return 0
	}
	return l.Capacity - l.Remain
}

// Full reports whether no slot is free.
func (l *Lot) Full() bool { return l.Remain == 0 }

// Clone returns a deep copy so callers can mutate without touching
// stored state.
func (l *Lot) Clone() *Lot {
	c := *l
	if l.Metadata != nil {
		c.Metadata = make(map[string]string, len(l.Metadata))
		for k, v := range l.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Params are the caller-supplied attributes of a new lot.
type Params struct {
	Latitude  int32
	Longitude int32
	Capacity  uint32
	MinPrice  types.Money
	MaxPrice  types.Money
	Metadata  map[string]string
}
