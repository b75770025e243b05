package redisfunds_test

import (
	"context"
	"fmt"
	"math"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/parking/funds"
	"github.com/xraph/parking/funds/redisfunds"
	"github.com/xraph/parking/types"
)

func newLedger(t *testing.T) *redisfunds.Ledger {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	prefix := fmt.Sprintf("parking-test-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := client.Keys(ctx, "{"+prefix+"}:*").Result()
		if len(keys) > 0 {
			_ = client.Del(ctx, keys...).Err()
		}
	})
	return redisfunds.New(client, redisfunds.WithPrefix(prefix))
}

func TestTransfer(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Deposit(ctx, "bob", types.USD(10_000)))

	require.NoError(t, l.Transfer(ctx, "bob", "alice", types.USD(6_600)))

	bob, err := l.Balance(ctx, "bob", "usd")
	require.NoError(t, err)
	alice, err := l.Balance(ctx, "alice", "usd")
	require.NoError(t, err)
	assert.Equal(t, types.USD(3_400), bob)
	assert.Equal(t, types.USD(6_600), alice)
}

func TestTransferInsufficient(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Deposit(ctx, "bob", types.USD(100)))

	err := l.Transfer(ctx, "bob", "alice", types.USD(101))
	require.ErrorIs(t, err, funds.ErrInsufficientFunds)

	bob, err := l.Balance(ctx, "bob", "usd")
	require.NoError(t, err)
	alice, err := l.Balance(ctx, "alice", "usd")
	require.NoError(t, err)
	assert.Equal(t, int64(100), bob.Amount)
	assert.Zero(t, alice.Amount)
}

func TestTransferOverflow(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Deposit(ctx, "rich", types.USD(math.MaxInt64)))
	require.NoError(t, l.Deposit(ctx, "bob", types.USD(5)))

	err := l.Transfer(ctx, "bob", "rich", types.USD(5))
	require.ErrorIs(t, err, types.ErrOverflow)

	bob, err := l.Balance(ctx, "bob", "usd")
	require.NoError(t, err)
	assert.Equal(t, int64(5), bob.Amount)
}

func TestTransferInvalidAmount(t *testing.T) {
	// Validation happens before any Redis round trip.
	l := redisfunds.New(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}))
	err := l.Transfer(context.Background(), "bob", "alice", types.USD(0))
	require.ErrorIs(t, err, funds.ErrInvalidAmount)
}
