package application

import (
	"context"
	"time"
)

// RetryPolicy bounds a single event store call.
type RetryPolicy struct {
	// Attempts is the total number of tries; values below 1 mean one try.
	Attempts int
	// Timeout applies to each attempt on its own.
	Timeout time.Duration
	// Backoff is the first wait; it doubles per retry up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration
	// Retryable, when set, stops retrying on errors it rejects.
	Retryable func(error) bool
}

func (p RetryPolicy) do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	wait := p.Backoff
	var err error
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		attemptCtx, cancel := withTimeout(ctx, p.Timeout)
		err = op(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt >= attempts || (p.Retryable != nil && !p.Retryable(err)) {
			return err
		}
		if waitErr := waitBackoff(ctx, wait); waitErr != nil {
			return waitErr
		}
		wait *= 2
		if p.MaxBackoff > 0 && wait > p.MaxBackoff {
			wait = p.MaxBackoff
		}
	}
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func waitBackoff(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
