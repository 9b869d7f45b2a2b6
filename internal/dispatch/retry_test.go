package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicy_ZeroValueRunsOnce(t *testing.T) {
	t.Parallel()

	var calls int
	err := RetryPolicy{}.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("boom")
	})
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if calls != 1 {
		t.Fatalf("expected 1 attempt, got %d", calls)
	}
}

func TestRetryPolicy_StopsOnSuccess(t *testing.T) {
	t.Parallel()

	var calls int
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond}
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryPolicy_ReturnsLastError(t *testing.T) {
	t.Parallel()

	var calls int
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("attempt " + string(rune('0'+calls)))
	})
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if err == nil || err.Error() != "attempt 3" {
		t.Fatalf("expected last attempt's error, got %v", err)
	}
}

func TestRetryPolicy_CancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	var calls int
	p := RetryPolicy{MaxAttempts: 10, BaseDelay: time.Hour}
	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, func(context.Context) error {
			calls++
			return errors.New("boom")
		})
	}()

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Do did not return after cancellation")
	}
	if calls != 1 {
		t.Fatalf("expected 1 attempt before cancellation, got %d", calls)
	}
}

func TestRetryPolicy_BackoffDelayCapped(t *testing.T) {
	t.Parallel()

	// With base 1ms and cap 2ms, five failing attempts should still
	// complete quickly.
	start := time.Now()
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	_ = p.Do(context.Background(), func(context.Context) error {
		return errors.New("boom")
	})
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("expected capped backoff, took %v", elapsed)
	}
}
