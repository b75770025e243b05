package parking

import (
	"errors"
	"fmt"

	"github.com/xraph/parking/auth"
	"github.com/xraph/parking/funds"
	"github.com/xraph/parking/pricing"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound          = errors.New("parking: not found")
	ErrInvalidParameters = errors.New("parking: invalid parameters")
	ErrUnauthorized      = auth.ErrUnauthorized

	// Lifecycle errors
	ErrLotFull          = errors.New("parking: lot is full")
	ErrAlreadyParked    = errors.New("parking: user already has an active session")
	ErrSettlementFailed = errors.New("parking: settlement failed")

	// Pricing errors
	ErrArithmeticOverflow    = pricing.ErrArithmeticOverflow
	ErrArithmeticUnderflow   = pricing.ErrArithmeticUnderflow
	ErrFeeOverflow           = pricing.ErrFeeOverflow
	ErrTimeOrderingViolation = pricing.ErrTimeOrderingViolation
	ErrInvalidPriceRange     = pricing.ErrInvalidPriceRange

	// Funds errors
	ErrInsufficientFunds = funds.ErrInsufficientFunds
	ErrInvalidAmount     = funds.ErrInvalidAmount

	// Store errors
	ErrStoreNotReady     = errors.New("parking: store not ready")
	ErrStoreClosed       = errors.New("parking: store is closed")
	ErrTransactionFailed = errors.New("parking: transaction failed")
	ErrMigrationFailed   = errors.New("parking: migration failed")
)

// ValidationError represents a validation failure with details. It
// matches ErrInvalidParameters under errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("parking: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is see ErrInvalidParameters.
func (e ValidationError) Unwrap() error {
	return ErrInvalidParameters
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsArithmeticError returns true if the error came out of fee
// computation.
func IsArithmeticError(err error) bool {
	return errors.Is(err, ErrArithmeticOverflow) ||
		errors.Is(err, ErrArithmeticUnderflow) ||
		errors.Is(err, ErrFeeOverflow) ||
		errors.Is(err, ErrTimeOrderingViolation) ||
		errors.Is(err, ErrInvalidPriceRange)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrTransactionFailed)
}
