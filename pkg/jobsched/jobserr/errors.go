// Package jobserr defines the typed error kinds the scheduler's API surface
// returns. Internals still wrap with fmt.Errorf("...: %w", err) the way the
// rest of this codebase does; the sentinels here are what callers branch on
// with errors.Is/errors.As.
package jobserr

import "errors"

// Sentinel error kinds. Wrap with fmt.Errorf("%w: detail", Kind) at the call
// site and classify with errors.Is.
var (
	// ErrNotFound is returned when a job or preset id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned for malformed input: bad id, unparseable
	// cron expression, negative interval, a past one-time run date, or a
	// duplicate id on create.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned when a mutation races a concurrent one; safe
	// to retry.
	ErrConflict = errors.New("conflict")

	// ErrStoreUnavailable is returned when the persistence backend is down
	// or its file is corrupt.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrSpawnFailed is returned when the pipeline child process could not
	// be started (binary missing, permission denied).
	ErrSpawnFailed = errors.New("spawn failed")

	// ErrTimeout is returned when a firing exceeded its deadline.
	ErrTimeout = errors.New("timeout")

	// ErrOverflow is returned when the worker pool rejects a firing because
	// it is saturated; the scheduler turns this into a Missed event.
	ErrOverflow = errors.New("pool overflow")
)

// Error wraps a sentinel Kind with a human-readable Detail, preserving
// errors.Is/errors.As against Kind via Unwrap.
type Error struct {
	Kind   error
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Detail
}

// Unwrap exposes the sentinel Kind to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Kind }

// New builds an *Error for the given sentinel kind and detail message.
func New(kind error, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// NotFound builds an ErrNotFound-classified error.
func NotFound(detail string) *Error { return New(ErrNotFound, detail) }

// Validation builds an ErrValidation-classified error.
func Validation(detail string) *Error { return New(ErrValidation, detail) }

// Conflict builds an ErrConflict-classified error.
func Conflict(detail string) *Error { return New(ErrConflict, detail) }

// StoreUnavailable builds an ErrStoreUnavailable-classified error.
func StoreUnavailable(detail string) *Error { return New(ErrStoreUnavailable, detail) }

// SpawnFailed builds an ErrSpawnFailed-classified error.
func SpawnFailed(detail string) *Error { return New(ErrSpawnFailed, detail) }

// Timeout builds an ErrTimeout-classified error.
func Timeout(detail string) *Error { return New(ErrTimeout, detail) }

// Overflow builds an ErrOverflow-classified error.
func Overflow(detail string) *Error { return New(ErrOverflow, detail) }
