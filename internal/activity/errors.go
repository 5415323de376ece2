package activity

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the mutation taxonomy. Handlers branch on these
// with errors.Is; raw store errors never cross the engine boundary.
var (
	// ErrNotFound indicates the referenced activity, comment, or participant
	// does not exist.
	ErrNotFound = errors.New("activity: not found")
	// ErrInvalidInput indicates malformed input rejected before any store call.
	ErrInvalidInput = errors.New("activity: invalid input")
	// ErrNotActive indicates the activity status forbids mutation.
	ErrNotActive = errors.New("activity: not active")
	// ErrVoteLimitExceeded indicates the voter is at the per-user vote cap.
	ErrVoteLimitExceeded = errors.New("activity: vote limit exceeded")
	// ErrWriteConflict indicates optimistic-concurrency retries were exhausted.
	ErrWriteConflict = errors.New("activity: write conflict")
	// ErrStoreUnavailable indicates the underlying store could not be reached.
	ErrStoreUnavailable = errors.New("activity: store unavailable")
	// ErrVersionConflict is returned by the store when a conditional update
	// observes a stale version. The engine retries on it; it is not surfaced.
	ErrVersionConflict = errors.New("activity: version conflict")
)

// EngineError carries a dotted operation code alongside the underlying cause.
type EngineError struct {
	code string
	err  error
}

func (e *EngineError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *EngineError) Unwrap() error {
	return e.err
}

// Code returns the dotted operation code, e.g. "activity.submit_rating.slot_out_of_range".
func (e *EngineError) Code() string {
	return e.code
}

func newEngineError(operation, reason string, cause error) error {
	return &EngineError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}
