package pagination

import (
	"errors"
	"fmt"
)

// Common errors returned by the paginator.
var (
	// ErrNilSource is returned by New when no source is given.
	ErrNilSource = errors.New("pagination source is required")

	// ErrFetchPanic marks a fetch that panicked instead of returning an error.
	ErrFetchPanic = errors.New("fetch panicked")
)

// FetchError wraps a failure raised while fetching the batch at Key.
type FetchError struct {
	Key any
	Err error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch at key %v: %v", e.Key, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// recoveredError converts a recovered panic value into an error chained to
// ErrFetchPanic.
func recoveredError(key any, r any) error {
	var cause error
	switch v := r.(type) {
	case error:
		cause = fmt.Errorf("%w: %w", ErrFetchPanic, v)
	default:
		cause = fmt.Errorf("%w: %v", ErrFetchPanic, v)
	}
	return &FetchError{Key: key, Err: cause}
}
