package parking

import (
	"github.com/xraph/parking/lot"
)

// ValidateLot checks the creation-time invariants of a lot: a positive
// capacity and a non-negative, ordered price band in a single currency.
// Stores call it before persisting a new lot.
func ValidateLot(l *lot.Lot) error {
	if l == nil {
		return ValidationError{Field: "lot", Message: "must not be nil"}
	}
	if l.ID.IsNil() {
		return ValidationError{Field: "id", Message: "must be set"}
	}
	if l.Owner == "" {
		return ValidationError{Field: "owner", Message: "must not be empty"}
	}
	if l.Capacity == 0 {
		return ValidationError{Field: "capacity", Message: "must be greater than zero"}
	}
	if l.MinPrice.Amount < 0 {
		return ValidationError{Field: "min_price", Message: "must not be negative"}
	}
	if l.MaxPrice.Amount < l.MinPrice.Amount {
		return ValidationError{Field: "max_price", Message: "must not be below min_price"}
	}
	if !l.MinPrice.SameCurrency(l.MaxPrice) {
		return ValidationError{Field: "max_price", Message: "currency differs from min_price"}
	}
	return nil
}

// PrepareLot resets the mutable state of a lot that is about to be
// created: every slot free, the price at its floor and the pricing clock
// starting at creation.
func PrepareLot(l *lot.Lot) {
	l.Remain = l.Capacity
	l.CurrentPrice = l.MinPrice
	if l.PricedAt.IsZero() {
		l.PricedAt = l.CreatedAt
	}
}

// CheckLotUpdate rejects an update that rewrites identity or capacity, or
// that leaves more free slots than the lot has.
func CheckLotUpdate(prev, next *lot.Lot) error {
	switch {
	case next.ID.String() != prev.ID.String():
		return ValidationError{Field: "id", Message: "is immutable"}
	case next.Owner != prev.Owner:
		return ValidationError{Field: "owner", Message: "is immutable"}
	case next.Capacity != prev.Capacity:
		return ValidationError{Field: "capacity", Message: "is immutable"}
	case next.OwnerIndex != prev.OwnerIndex || next.GlobalIndex != prev.GlobalIndex:
		return ValidationError{Field: "index", Message: "is immutable"}
	case next.Remain > next.Capacity:
		return ErrArithmeticOverflow
	}
	return nil
}
