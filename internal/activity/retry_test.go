package activity

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestWithRetrySucceedsFirstTry(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 5, func(int) time.Duration { return 0 }, func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one call, got %d", calls)
	}
}

func TestWithRetryRetriesOnlyVersionConflicts(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := withRetry(context.Background(), 5, func(int) time.Duration { return 0 }, func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the original error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("non-conflict errors must abort immediately, got %d calls", calls)
	}
}

func TestWithRetryRecoversWithinBudget(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 5, func(int) time.Duration { return 0 }, func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("%w: stale", ErrVersionConflict)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected three calls, got %d", calls)
	}
}

func TestWithRetryExhaustionSurfacesWriteConflict(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 3, func(int) time.Duration { return 0 }, func() error {
		calls++
		return fmt.Errorf("%w: stale", ErrVersionConflict)
	})
	if !errors.Is(err, ErrWriteConflict) {
		t.Fatalf("expected ErrWriteConflict, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected exactly maxAttempts calls, got %d", calls)
	}
}

func TestWithRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := withRetry(ctx, 5, func(int) time.Duration { return time.Hour }, func() error {
		calls++
		cancel()
		return fmt.Errorf("%w: stale", ErrVersionConflict)
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected the sleep to observe cancellation, got %d calls", calls)
	}
}

func TestDefaultBackoffGrowsLinearly(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 50 * time.Millisecond},
		{1, 150 * time.Millisecond},
		{2, 250 * time.Millisecond},
	}
	for _, tc := range tests {
		if got := defaultBackoff(tc.attempt); got != tc.expected {
			t.Fatalf("defaultBackoff(%d) = %v, expected %v", tc.attempt, got, tc.expected)
		}
	}
}
