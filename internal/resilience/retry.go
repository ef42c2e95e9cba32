package resilience

import (
	"context"
	"fmt"
	"time"
)

// Policy configures Retry for one call site.
type Policy struct {
	// Name identifies the policy in logs.
	Name string

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BaseDelay is the delay after the first failed attempt.
	BaseDelay time.Duration

	// MaxDelay caps the delay between attempts.
	MaxDelay time.Duration

	// Multiplier grows the delay on each subsequent attempt.
	Multiplier float64

	// Classifier decides which errors are retryable.
	// If nil, DefaultRules().Retryable is used.
	Classifier Classifier

	// OnRetry, if set, is called before sleeping ahead of each retry.
	OnRetry func(attempt int, err error, delay time.Duration)
}

func (p Policy) retryable(err error) bool {
	if p.Classifier == nil {
		return DefaultRules().Retryable(err)
	}
	return !IsNonRetryable(err) && p.Classifier(err)
}

// Retry invokes op until it succeeds, fails with an error the policy
// classifies as fatal, or MaxRetries retries have been spent.
//
// A fatal error is returned as a *NonRetryableError wrapping the error op
// returned, so it never compares equal to that error with ==. Use errors.Is
// or errors.As to match the original. An error that is already a
// NonRetryableError is not wrapped twice. When retries are exhausted the
// last error is returned unchanged. Cancelling ctx stops the loop during a
// backoff sleep.
func Retry[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	maxRetries := max(p.MaxRetries, 0)

	for attempt := 1; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		if !p.retryable(err) {
			return zero, Permanent(err)
		}

		if attempt > maxRetries {
			return zero, err
		}

		delay := Backoff(attempt, p.BaseDelay, p.Multiplier, p.MaxDelay)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}

		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return zero, fmt.Errorf("retry %q interrupted after attempt %d: %w (last error: %w)",
				p.Name, attempt, sleepErr, err)
		}
	}
}

// Do is Retry for operations without a result value.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := Retry(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
