package shared

import "errors"

// Sentinel errors forming the core error taxonomy. Every domain error wraps
// exactly one of these so transport layers can classify without knowing the
// originating package.
var (
	// ErrValidation indicates malformed or missing input. Never retried.
	ErrValidation = errors.New("validation failed")
	// ErrPreconditionFailed indicates a valid request the current system
	// state does not permit. The caller must resolve state before retrying.
	ErrPreconditionFailed = errors.New("precondition failed")
	// ErrConcurrencyConflict indicates lock contention or a stale read.
	// Safe to retry a bounded number of times with the same input.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrNotFound indicates a referenced resource does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrIntegrityViolation indicates an invariant would break. Always fatal
	// to the operation; the enclosing transaction rolls back in full.
	ErrIntegrityViolation = errors.New("integrity violation")
	// ErrForbidden marks an actor whose role does not permit the operation.
	ErrForbidden = errors.New("forbidden")
)

// Retryable reports whether the error kind permits an automatic retry.
func Retryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}
