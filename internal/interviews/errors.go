package interviews

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrStaleStage signals a compare-and-swap miss: the interview moved on
	// since the caller read it. Callers treat it as a no-op for duplicate or
	// out-of-order events.
	ErrStaleStage = errors.New("stale stage")
)
