package dispatch

import (
	"context"
	"time"
)

const (
	defaultRetryBase = 500 * time.Millisecond
	defaultRetryCap  = 8 * time.Second
)

// RetryPolicy bounds repeated attempts of a single operation with
// exponential backoff. The zero value performs exactly one attempt.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Do runs op until it succeeds, attempts are exhausted, or ctx is
// cancelled while backing off. The returned error is the last attempt's.
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := p.BaseDelay
	if delay <= 0 {
		delay = defaultRetryBase
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultRetryCap
	}

	var last error
	for i := 0; i < attempts; i++ {
		last = op(ctx)
		if last == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	return last
}
