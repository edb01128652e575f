package refresh

import (
	"context"
	"time"
)

// RetryPolicy describes the backoff applied between refresh attempts.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Delay returns the backoff before the given attempt (0-based). The
// delay doubles per attempt and is capped at MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// SleepFunc suspends until the duration elapses or the context is done.
// Injected so tests can run without real delays.
type SleepFunc func(ctx context.Context, d time.Duration) error

func DefaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryDo runs attempt up to policy.MaxAttempts times, sleeping the
// policy delay between tries. Only errors the classifier accepts are
// retried; anything else is returned immediately.
func retryDo(ctx context.Context, policy RetryPolicy, sleep SleepFunc, retryable func(error) bool, attempt func(ctx context.Context) error) error {
	var lastErr error

	for i := 0; i < policy.MaxAttempts; i++ {
		if i > 0 {
			if err := sleep(ctx, policy.Delay(i-1)); err != nil {
				return err
			}
		}

		lastErr = attempt(ctx)
		if lastErr == nil {
			return nil
		}

		if !retryable(lastErr) {
			return lastErr
		}
	}

	return lastErr
}
