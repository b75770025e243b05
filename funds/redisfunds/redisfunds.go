// Package redisfunds keeps account balances in Redis and transfers between
// them with a single Lua script, so a debit and its credit are applied
// together even with many engines sharing one Redis.
package redisfunds

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/parking/funds"
	"github.com/xraph/parking/types"
)

var _ funds.Transferer = (*Ledger)(nil)

// DefaultPrefix namespaces the balance keys.
const DefaultPrefix = "parking"

// Lua script for an atomic transfer. Integer arithmetic stays inside
// Redis: the credit runs first so an overflow fails before anything moved,
// and a debit that goes negative is reverted.
var transferScript = redis.NewScript(`
-- KEYS[1] = source balance
-- KEYS[2] = destination balance
-- ARGV[1] = amount
local amount = ARGV[1]

local credited = redis.pcall("INCRBY", KEYS[2], amount)
if type(credited) == "table" and credited.err then
    return {-1, credited.err}
end

local left = redis.call("DECRBY", KEYS[1], amount)
if left < 0 then
    redis.call("INCRBY", KEYS[1], amount)
    redis.call("DECRBY", KEYS[2], amount)
    return {0, tostring(left)}
end

return {1, tostring(left)}
`)

// Ledger is a funds.Transferer backed by Redis.
type Ledger struct {
	client redis.UniversalClient
	prefix string
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithPrefix overrides the key namespace.
func WithPrefix(prefix string) Option {
	return func(l *Ledger) { l.prefix = prefix }
}

// New creates a Ledger on client.
func New(client redis.UniversalClient, opts ...Option) *Ledger {
	l := &Ledger{client: client, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// key builds the balance key. The hash tag keeps every balance of a
// ledger on one cluster slot, which multi-key scripts require.
func (l *Ledger) key(account, currency string) string {
	return fmt.Sprintf("{%s}:balance:%s:%s", l.prefix, strings.ToLower(currency), account)
}

// Deposit credits amount to account.
func (l *Ledger) Deposit(ctx context.Context, account string, amount types.Money) error {
	if amount.Amount <= 0 {
		return fmt.Errorf("%w: %s", funds.ErrInvalidAmount, amount)
	}
	if err := l.client.IncrBy(ctx, l.key(account, amount.Currency), amount.Amount).Err(); err != nil {
		return fmt.Errorf("redisfunds: deposit: %w", err)
	}
	return nil
}

// Balance returns the balance of account in currency.
func (l *Ledger) Balance(ctx context.Context, account, currency string) (types.Money, error) {
	n, err := l.client.Get(ctx, l.key(account, currency)).Int64()
	if errors.Is(err, redis.Nil) {
		return types.Zero(currency), nil
	}
	if err != nil {
		return types.Money{}, fmt.Errorf("redisfunds: balance: %w", err)
	}
	return types.New(n, currency), nil
}

// Transfer implements funds.Transferer.
func (l *Ledger) Transfer(ctx context.Context, from, to string, amount types.Money) error {
	if amount.Amount <= 0 {
		return fmt.Errorf("%w: %s", funds.ErrInvalidAmount, amount)
	}
	if from == to {
		return nil
	}

	keys := []string{l.key(from, amount.Currency), l.key(to, amount.Currency)}
	result, err := transferScript.Run(ctx, l.client, keys, strconv.FormatInt(amount.Amount, 10)).Slice()
	if err != nil {
		return fmt.Errorf("redisfunds: transfer: %w", err)
	}
	if len(result) != 2 {
		return fmt.Errorf("redisfunds: unexpected script result %v", result)
	}

	status, ok := result[0].(int64)
	if !ok {
		return fmt.Errorf("redisfunds: invalid status in script result %v", result)
	}
	switch status {
	case 1:
		return nil
	case 0:
		return fmt.Errorf("%w: %s cannot cover %s", funds.ErrInsufficientFunds, from, amount)
	default:
		return types.ErrOverflow
	}
}
