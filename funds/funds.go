// Package funds moves money between accounts when a session is settled.
// The engine depends only on Transferer; Ledger is an in-process
// implementation and redisfunds a shared one.
package funds

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/xraph/parking/types"
)

// Sentinel errors returned by Transferer implementations.
var (
	ErrInsufficientFunds = errors.New("parking: insufficient funds")
	ErrInvalidAmount     = errors.New("parking: invalid transfer amount")
)

// Transferer debits from and credits to atomically. Either both sides
// change or neither does.
type Transferer interface {
	Transfer(ctx context.Context, from, to string, amount types.Money) error
}

// TransferFunc adapts a plain function to Transferer.
type TransferFunc func(ctx context.Context, from, to string, amount types.Money) error

// Transfer implements Transferer.
func (f TransferFunc) Transfer(ctx context.Context, from, to string, amount types.Money) error {
	return f(ctx, from, to, amount)
}

// Ledger keeps balances in memory, one per account and currency.
type Ledger struct {
	mu       sync.Mutex
	balances map[string]int64
}

// NewLedger returns an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[string]int64)}
}

func balanceKey(account, currency string) string {
	return account + "|" + currency
}

// Deposit credits amount to account.
func (l *Ledger) Deposit(_ context.Context, account string, amount types.Money) error {
	if amount.Amount <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := balanceKey(account, amount.Currency)
	next, ok := types.CheckedAdd(l.balances[key], amount.Amount)
	if !ok {
		return types.ErrOverflow
	}
	l.balances[key] = next
	return nil
}

// Balance returns the balance of account in currency.
func (l *Ledger) Balance(_ context.Context, account, currency string) (types.Money, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return types.New(l.balances[balanceKey(account, currency)], currency), nil
}

// Transfer implements Transferer.
func (l *Ledger) Transfer(ctx context.Context, from, to string, amount types.Money) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount.Amount <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	if from == to {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fromKey := balanceKey(from, amount.Currency)
	toKey := balanceKey(to, amount.Currency)

	if l.balances[fromKey] < amount.Amount {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientFunds,
			from, types.New(l.balances[fromKey], amount.Currency), amount)
	}
	credited, ok := types.CheckedAdd(l.balances[toKey], amount.Amount)
	if !ok {
		return types.ErrOverflow
	}

	l.balances[fromKey] -= amount.Amount
	l.balances[toKey] = credited
	return nil
}
