// Package pricing computes occupancy-driven unit prices and the fee a
// session accrues between two moments.
//
// The unit price moves linearly from a lot's minimum price when it is
// empty to its maximum price when it is full:
//
//	price = min + (occupied * (max - min)) / capacity
//
// and the fee over an interval is the whole number of elapsed seconds
// multiplied by that price. Every step is checked integer arithmetic; an
// input that would wrap is rejected with a specific error rather than
// producing a wrong fee.
package pricing

import (
	"errors"
	"math"
	"math/bits"
	"time"

	"github.com/xraph/parking/lot"
	"github.com/xraph/parking/types"
)

// Sentinel errors returned by ComputeNewFee.
var (
	ErrArithmeticOverflow    = errors.New("parking: arithmetic overflow")
	ErrArithmeticUnderflow   = errors.New("parking: arithmetic underflow")
	ErrFeeOverflow           = errors.New("parking: fee overflow")
	ErrTimeOrderingViolation = errors.New("parking: new time precedes old time")
	ErrInvalidPriceRange     = errors.New("parking: max price below min price")
)

// MillisPerSecond converts the millisecond timestamps to billable seconds.
const MillisPerSecond = 1000

// Input is everything the fee computation reads. Times are Unix
// milliseconds.
type Input struct {
	Capacity uint32
	Remain   uint32
	MinPrice int64
	MaxPrice int64
	OldTime  int64
	NewTime  int64
}

// Quote is the result of a fee computation: the fee owed for the
// interval and the unit price (per second) it was charged at.
type Quote struct {
	Fee       int64
	UnitPrice int64
}

// ComputeNewFee prices the interval [OldTime, NewTime] at the unit price
// implied by the lot's current occupancy.
func ComputeNewFee(in Input) (Quote, error) {
	if in.Remain > in.Capacity {
		return Quote{}, ErrArithmeticUnderflow
	}

	elapsed, err := ElapsedSeconds(in.OldTime, in.NewTime)
	if err != nil {
		return Quote{}, err
	}

	price, err := UnitPrice(in.Capacity, in.Remain, in.MinPrice, in.MaxPrice)
	if err != nil {
		return Quote{}, err
	}

	fee, ok := types.CheckedMul(elapsed, price)
	if !ok {
		return Quote{}, ErrFeeOverflow
	}

	return Quote{Fee: fee, UnitPrice: price}, nil
}

// ElapsedSeconds returns the whole seconds between two millisecond
// timestamps, truncating any fraction.
func ElapsedSeconds(oldTime, newTime int64) (int64, error) {
	if newTime < oldTime {
		return 0, ErrTimeOrderingViolation
	}
	diff, ok := types.CheckedSub(newTime, oldTime)
	if !ok {
		return 0, ErrArithmeticOverflow
	}
	secs, ok := types.CheckedDiv(diff, MillisPerSecond)
	if !ok {
		return 0, ErrArithmeticOverflow
	}
	return secs, nil
}

// UnitPrice interpolates the per-second price for a lot with the given
// capacity and free slots.
func UnitPrice(capacity, remain uint32, minPrice, maxPrice int64) (int64, error) {
	if remain > capacity {
		return 0, ErrArithmeticUnderflow
	}
	occupied := capacity - remain

	if maxPrice < minPrice {
		return 0, ErrInvalidPriceRange
	}
	priceRange, ok := types.CheckedSub(maxPrice, minPrice)
	if !ok {
		return 0, ErrArithmeticOverflow
	}

	// occupied * range can exceed 64 bits; carry it in 128.
	hi, lo := bits.Mul64(uint64(occupied), uint64(priceRange))
	if capacity == 0 || hi >= uint64(capacity) {
		return 0, ErrArithmeticOverflow
	}
	quo, _ := bits.Div64(hi, lo, uint64(capacity))
	if quo > math.MaxInt64 {
		return 0, ErrArithmeticOverflow
	}

	price, ok := types.CheckedAdd(minPrice, int64(quo))
	if !ok {
		return 0, ErrArithmeticOverflow
	}
	return price, nil
}

// InputFor builds the Input for pricing l over [oldTime, newTime] at its
// present occupancy.
func InputFor(l *lot.Lot, oldTime, newTime time.Time) Input {
	return Input{
		Capacity: l.Capacity,
		Remain:   l.Remain,
		MinPrice: l.MinPrice.Amount,
		MaxPrice: l.MaxPrice.Amount,
		OldTime:  oldTime.UnixMilli(),
		NewTime:  newTime.UnixMilli(),
	}
}
