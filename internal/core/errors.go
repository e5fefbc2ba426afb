package core

import "errors"

// Failure classes shared by every layer. Callers wrap them with %w and test
// with errors.Is; missing optional fields are never errors.
var (
	// ErrSourceUnavailable means event or cohort storage could not be opened
	// or read. The current request fails; nothing retries it.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrMalformedRecord means a record or timestamp failed to parse. The
	// whole computation is aborted, no partial result is produced.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrInvalidRequest means a query or stream request carried a missing or
	// unusable window or page value.
	ErrInvalidRequest = errors.New("invalid request")
)
