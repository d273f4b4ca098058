package domain

import "errors"

var (
	// ErrProviderAuth marks authentication failures against the odds
	// provider. Fatal to the cycle, never retried.
	ErrProviderAuth = errors.New("provider authentication failed")
	// ErrQuotaExhausted marks an exhausted provider request quota. Fatal to
	// the cycle, never retried.
	ErrQuotaExhausted = errors.New("provider quota exhausted")
	// ErrTransient marks timeouts, 5xx responses, and connection resets.
	// Retried with bounded backoff; a timeout counts the same as any other
	// transient failure for retry accounting.
	ErrTransient = errors.New("transient network failure")
	// ErrValidation marks malformed quotes or recipients. Dropped and
	// counted, non-fatal.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidAllocation marks degenerate stake-allocation input. Fatal to
	// that opportunity only.
	ErrInvalidAllocation = errors.New("invalid allocation input")
	// ErrPermanentDelivery marks message sends that will never succeed
	// (invalid number, carrier rejection). Not retried.
	ErrPermanentDelivery = errors.New("permanent delivery failure")
	// ErrCycleRunning is returned when a trigger arrives while a cycle is
	// already in flight.
	ErrCycleRunning = errors.New("cycle already running")
	// ErrNotFound is returned by stores for missing records.
	ErrNotFound = errors.New("not found")
	// ErrLockHeld is returned when a distributed lock is already held.
	ErrLockHeld = errors.New("lock already held")
)

// IsFatalProviderError reports whether err should abort the whole cycle
// rather than just the sport being fetched.
func IsFatalProviderError(err error) bool {
	return errors.Is(err, ErrProviderAuth) || errors.Is(err, ErrQuotaExhausted)
}
