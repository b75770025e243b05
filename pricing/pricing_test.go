package pricing_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/parking/lot"
	"github.com/xraph/parking/pricing"
	"github.com/xraph/parking/types"
)

func TestUnitPriceInterpolation(t *testing.T) {
	tests := []struct {
		name     string
		capacity uint32
		remain   uint32
		min, max int64
		want     int64
	}{
		{"empty lot charges min", 10, 10, 100, 200, 100},
		{"full lot charges max", 10, 0, 100, 200, 200},
		{"one taken", 10, 9, 100, 200, 110},
		{"half taken", 4, 2, 0, 1000, 500},
		{"truncates toward min", 3, 2, 0, 10, 3},
		{"flat range", 50, 17, 42, 42, 42},
		{"single slot full", 1, 0, 5, 9, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pricing.UnitPrice(tt.capacity, tt.remain, tt.min, tt.max)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnitPriceBoundsAndMonotonicity(t *testing.T) {
	const capacity = 37
	ranges := [][2]int64{{0, 0}, {1, 2}, {100, 200}, {7, 1_000_003}, {0, math.MaxInt64}}
	for _, r := range ranges {
		prev := int64(math.MinInt64)
		for remain := uint32(capacity); ; remain-- {
			price, err := pricing.UnitPrice(capacity, remain, r[0], r[1])
			require.NoError(t, err)
			assert.GreaterOrEqual(t, price, r[0])
			assert.LessOrEqual(t, price, r[1])
			assert.GreaterOrEqual(t, price, prev, "price must not fall as occupancy rises")
			prev = price
			if remain == 0 {
				break
			}
		}
	}
}

func TestUnitPriceWideRangeUsesFullPrecision(t *testing.T) {
	// occupied * range overflows 64 bits but the quotient does not.
	price, err := pricing.UnitPrice(math.MaxUint32, 0, 0, math.MaxInt64)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), price)

	price, err = pricing.UnitPrice(math.MaxUint32, math.MaxUint32/2+1, 0, math.MaxInt64)
	require.NoError(t, err)
	assert.Less(t, price, int64(math.MaxInt64))
	assert.Greater(t, price, int64(math.MaxInt64/4))
}

func TestUnitPriceErrors(t *testing.T) {
	tests := []struct {
		name     string
		capacity uint32
		remain   uint32
		min, max int64
		wantErr  error
	}{
		{"remain above capacity", 5, 6, 1, 2, pricing.ErrArithmeticUnderflow},
		{"inverted range", 5, 5, 10, 9, pricing.ErrInvalidPriceRange},
		{"zero capacity", 0, 0, 1, 2, pricing.ErrArithmeticOverflow},
		{"range wraps", 5, 5, math.MinInt64, math.MaxInt64, pricing.ErrArithmeticOverflow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pricing.UnitPrice(tt.capacity, tt.remain, tt.min, tt.max)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestElapsedSeconds(t *testing.T) {
	tests := []struct {
		name     string
		old, new int64
		want     int64
	}{
		{"zero", 5000, 5000, 0},
		{"sub-second truncates", 0, 999, 0},
		{"exact", 1000, 61000, 60},
		{"fraction dropped", 0, 2500, 2},
		{"negative epoch", -3000, 0, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pricing.ElapsedSeconds(tt.old, tt.new)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := pricing.ElapsedSeconds(10, 9)
	require.ErrorIs(t, err, pricing.ErrTimeOrderingViolation)

	_, err = pricing.ElapsedSeconds(math.MinInt64, math.MaxInt64)
	require.ErrorIs(t, err, pricing.ErrArithmeticOverflow)
}

func TestComputeNewFee(t *testing.T) {
	t.Run("occupancy scenario", func(t *testing.T) {
		q, err := pricing.ComputeNewFee(pricing.Input{
			Capacity: 10, Remain: 9,
			MinPrice: 100, MaxPrice: 200,
			OldTime: 0, NewTime: 60_000,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(110), q.UnitPrice)
		assert.Equal(t, int64(6600), q.Fee)
	})

	t.Run("zero elapsed owes nothing", func(t *testing.T) {
		q, err := pricing.ComputeNewFee(pricing.Input{
			Capacity: 10, Remain: 0,
			MinPrice: 100, MaxPrice: 200,
			OldTime: 1_700_000_000_000, NewTime: 1_700_000_000_999,
		})
		require.NoError(t, err)
		assert.Zero(t, q.Fee)
		assert.Equal(t, int64(200), q.UnitPrice)
	})

	t.Run("time ordering", func(t *testing.T) {
		_, err := pricing.ComputeNewFee(pricing.Input{
			Capacity: 10, Remain: 5, MinPrice: 1, MaxPrice: 2,
			OldTime: 2000, NewTime: 1000,
		})
		require.ErrorIs(t, err, pricing.ErrTimeOrderingViolation)
	})

	t.Run("occupancy checked before time", func(t *testing.T) {
		_, err := pricing.ComputeNewFee(pricing.Input{
			Capacity: 1, Remain: 2, MinPrice: 1, MaxPrice: 2,
			OldTime: 2000, NewTime: 1000,
		})
		require.ErrorIs(t, err, pricing.ErrArithmeticUnderflow)
	})

	t.Run("fee overflow", func(t *testing.T) {
		_, err := pricing.ComputeNewFee(pricing.Input{
			Capacity: 1, Remain: 0,
			MinPrice: math.MaxInt64 / 2, MaxPrice: math.MaxInt64,
			OldTime: 0, NewTime: 3000,
		})
		require.ErrorIs(t, err, pricing.ErrFeeOverflow)
	})

	t.Run("extreme timestamps", func(t *testing.T) {
		_, err := pricing.ComputeNewFee(pricing.Input{
			Capacity: 1, Remain: 1, MinPrice: 0, MaxPrice: 0,
			OldTime: math.MinInt64, NewTime: math.MaxInt64,
		})
		require.ErrorIs(t, err, pricing.ErrArithmeticOverflow)
	})

	t.Run("largest capacity", func(t *testing.T) {
		q, err := pricing.ComputeNewFee(pricing.Input{
			Capacity: math.MaxUint32, Remain: 1,
			MinPrice: 0, MaxPrice: 1_000_000,
			OldTime: 0, NewTime: 1000,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(999_999), q.UnitPrice)
		assert.Equal(t, q.UnitPrice, q.Fee)
	})
}

func TestInputFor(t *testing.T) {
	start := time.UnixMilli(1_000)
	l := &lot.Lot{
		Capacity: 8,
		Remain:   3,
		MinPrice: types.USD(10),
		MaxPrice: types.USD(90),
	}
	in := pricing.InputFor(l, start, start.Add(90*time.Second))
	assert.Equal(t, pricing.Input{
		Capacity: 8, Remain: 3,
		MinPrice: 10, MaxPrice: 90,
		OldTime: 1_000, NewTime: 91_000,
	}, in)

	q, err := pricing.ComputeNewFee(in)
	require.NoError(t, err)
	assert.Equal(t, int64(60), q.UnitPrice)
	assert.Equal(t, int64(5400), q.Fee)
}
