package storage

import "errors"

// Error taxonomy shared by all backends. Backends wrap these sentinels with
// context (fmt.Errorf("...: %w", ...)); callers classify with errors.Is.
// Storage never retries silently: a returned error reflects the true outcome
// of the attempted durable operation.
var (
	// ErrIO reports an unreadable or unwritable backing medium.
	ErrIO = errors.New("storage: io failure")

	// ErrCorrupted reports persisted data failing structural or
	// consistency checks (gaps, duplicate indices, bad manifests).
	ErrCorrupted = errors.New("storage: data corrupted")

	// ErrNotFound reports an absent index, file, or record.
	ErrNotFound = errors.New("storage: not found")

	// ErrInvalidArgument reports a malformed URI, an out-of-range index,
	// or an unregistered backend scheme.
	ErrInvalidArgument = errors.New("storage: invalid argument")

	// ErrInProgress reports a conflicting writer or copier already active.
	ErrInProgress = errors.New("storage: operation already in progress")

	// ErrCancelled reports a copy job stopped by request.
	ErrCancelled = errors.New("storage: cancelled")

	// ErrUnsupported reports use of an optional capability the backend
	// does not implement. This is a configuration error, not a runtime
	// condition; callers must not proceed as if the capability took hold.
	ErrUnsupported = errors.New("storage: operation not supported")
)
