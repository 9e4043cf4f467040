// Package coreerr defines the stable error discriminants surfaced by the
// market core. Every exported entry point returns one of these sentinels
// (wrapped with context via fmt.Errorf's %w), so callers discriminate with
// errors.Is rather than string matching.
package coreerr

import "errors"

var (
	// ErrInvalidInputs covers out-of-range probabilities, non-positive
	// stake/amount, NaN/Inf, and unrecognized side strings.
	ErrInvalidInputs = errors.New("core: invalid inputs")

	// ErrEventNotFound is returned when the event row does not exist.
	ErrEventNotFound = errors.New("core: event not found")

	// ErrEventClosed is returned when a buy or sell targets a resolved event.
	ErrEventClosed = errors.New("core: event is already resolved")

	// ErrUserNotFound is returned when the user row does not exist.
	ErrUserNotFound = errors.New("core: user not found")

	// ErrInsufficientFunds is returned when the conditional balance
	// deduction affects zero rows.
	ErrInsufficientFunds = errors.New("core: insufficient balance")

	// ErrInsufficientShares is returned when a sell exceeds the caller's
	// recorded position on the requested side.
	ErrInsufficientShares = errors.New("core: insufficient shares")

	// ErrHoldPeriodActive is returned when an unexpired audit record
	// blocks a sell on the same (user, event).
	ErrHoldPeriodActive = errors.New("core: hold period still active")

	// ErrStakeTooLarge is returned when stake/b exceeds the exp() overflow
	// guard (700). Non-retriable.
	ErrStakeTooLarge = errors.New("core: stake too large relative to liquidity")

	// ErrOversell is returned by the pure Market entity when a sell would
	// drive a quantity negative. Callers are expected to pre-check against
	// the caller's position; this is a last-resort guard.
	ErrOversell = errors.New("core: sell exceeds outstanding quantity")

	// ErrConflictAfterRetries is returned when a serializable transaction
	// keeps failing with a serialization/deadlock error past the retry
	// budget. Retriable at the caller's discretion.
	ErrConflictAfterRetries = errors.New("core: conflict persisted after retries")

	// ErrPersistence wraps an unexpected storage-layer failure that is not
	// a recognized serialization conflict.
	ErrPersistence = errors.New("core: persistence error")

	// ErrNonFinite is returned by the ledger conversion when asked to
	// convert a NaN or infinite value to ledger units.
	ErrNonFinite = errors.New("core: non-finite value")
)
