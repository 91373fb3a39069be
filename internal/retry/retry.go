// Package retry wraps external calls in bounded exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy is the attempt budget for one kind of external call.
type Policy struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
}

// DefaultPolicy is used for every network call unless configured otherwise.
var DefaultPolicy = Policy{MaxAttempts: 3, InitialDelay: time.Second}

// Notify is called after each failed attempt that will be retried.
type Notify func(attempt int, err error, wait time.Duration)

// Permanent marks err as not worth retrying. Do returns the unwrapped err.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Do runs op up to maxAttempts times, sleeping initialDelay before the second attempt
// and doubling the delay after that. The last error is returned as-is.
func Do[T any](ctx context.Context, maxAttempts int, initialDelay time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	return DoNotify(ctx, maxAttempts, initialDelay, op, nil)
}

// DoNotify is Do with a callback on every retried failure.
func DoNotify[T any](ctx context.Context, maxAttempts int, initialDelay time.Duration, op func(ctx context.Context) (T, error), notify Notify) (T, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	b := newBackOff(ctx, maxAttempts, initialDelay)
	attempt := 0
	operation := func() (T, error) {
		attempt++
		return op(ctx)
	}
	onRetry := func(err error, wait time.Duration) {
		if notify != nil {
			notify(attempt, err, wait)
		}
	}
	return backoff.RetryNotifyWithData(operation, b, onRetry)
}

// WithPolicy is Do driven by a Policy.
func WithPolicy[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error), notify Notify) (T, error) {
	return DoNotify(ctx, p.MaxAttempts, p.InitialDelay, op, notify)
}

func newBackOff(ctx context.Context, maxAttempts int, initialDelay time.Duration) backoff.BackOff {
	expo := &backoff.ExponentialBackOff{
		InitialInterval:     initialDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         time.Hour,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	expo.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(expo, uint64(maxAttempts-1)), ctx)
}
