package domain

import "errors"

// Validation errors: the request itself is malformed. Rejected before any
// state is read or written.
var (
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInvalidOutcome    = errors.New("outcome must be YES or NO")
	ErrInvalidLimitPrice = errors.New("limit price must be between 0 and 1")
	ErrInvalidShares     = errors.New("shares must be positive")
)

// State errors: the request is well formed but a business rule rejects it.
// Safe to retry after correcting inputs. No side effects.
var (
	ErrNotFound                  = errors.New("not found")
	ErrMarketNotFound            = errors.New("market not found")
	ErrMarketNotOpen             = errors.New("market is not open for trading")
	ErrInsufficientBalance       = errors.New("insufficient balance")
	ErrInsufficientShares        = errors.New("insufficient shares")
	ErrPositionNotFound          = errors.New("position not found")
	ErrOrderNotFound             = errors.New("order not found")
	ErrOrderNotResting           = errors.New("order is not resting in the book")
	ErrInsufficientPoolLiquidity = errors.New("insufficient pool liquidity")
	ErrRatioLimitExceeded        = errors.New("withdrawal exceeds ratio limit")
	ErrSolvencyMarginViolated    = errors.New("withdrawal violates solvency margin")
	ErrMarketCanceled            = errors.New("market is canceled")
	ErrLockHeld                  = errors.New("lock already held")
)

// Fatal integrity errors: indicate a bug or data corruption, never a user
// mistake. They abort the enclosing transaction entirely and surface to the
// caller as an internal error with no detail leaked.
var (
	ErrCustodyAccountMissing = errors.New("custody account missing")
	ErrLedgerImbalance       = errors.New("ledger entries do not balance")
)

// IsValidation reports whether err belongs to the validation class.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidOutcome) ||
		errors.Is(err, ErrInvalidLimitPrice) ||
		errors.Is(err, ErrInvalidShares)
}

// IsFatal reports whether err belongs to the fatal/integrity class.
func IsFatal(err error) bool {
	return errors.Is(err, ErrCustodyAccountMissing) ||
		errors.Is(err, ErrLedgerImbalance)
}
