package activity

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const defaultMaxAttempts = 5

// BackoffFunc maps a zero-based attempt number to the delay before the next try.
type BackoffFunc func(attempt int) time.Duration

// defaultBackoff grows linearly: 50ms before the first retry, then +100ms per
// attempt.
func defaultBackoff(attempt int) time.Duration {
	return 50*time.Millisecond + time.Duration(attempt)*100*time.Millisecond
}

// withRetry runs op up to maxAttempts times, sleeping per backoff between
// tries, retrying only on version conflicts. Every other error aborts
// immediately. Exhausting the budget surfaces ErrWriteConflict so callers can
// report a transient failure.
func withRetry(ctx context.Context, maxAttempts int, backoff BackoffFunc, op func() error) error {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if backoff == nil {
		backoff = defaultBackoff
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff(attempt - 1)):
			}
		}
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, ErrVersionConflict) {
			return lastErr
		}
	}
	return fmt.Errorf("%w: after %d attempts: %v", ErrWriteConflict, maxAttempts, lastErr)
}
