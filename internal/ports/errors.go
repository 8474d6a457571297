package ports

import "errors"

// Standard application-level errors.
// Adapters and services wrap underlying errors with these sentinels so that
// callers can classify failures with errors.Is. Wrapped messages name the
// violated rule or offending field; callers need no extra translation.
var (
	// ErrValidation marks malformed or invariant-violating input.
	// Never retried automatically.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a referenced record that does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrConflict marks an illegal state transition, such as editing or
	// re-closing an already-closed trade.
	ErrConflict = errors.New("conflicting state transition")

	// ErrUnauthorized and ErrForbidden mark cross-trader access. The
	// boundary above this core is expected to have pre-checked identity;
	// these exist so adapters have a standard sentinel to surface.
	ErrUnauthorized = errors.New("caller identity missing or invalid")
	ErrForbidden    = errors.New("caller may not access this trader's ledger")

	// ErrServiceUnavailable marks a backing store or upstream service that
	// is unreachable or timed out. Safe to retry; guaranteed to leave no
	// partially-applied state.
	ErrServiceUnavailable = errors.New("backing service unavailable")

	// ErrTimeout marks an operation that exceeded its deadline.
	ErrTimeout = errors.New("operation timed out")
)
