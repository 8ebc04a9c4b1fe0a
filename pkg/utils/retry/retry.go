package retry

import (
	"context"
	"errors"
	"time"
)

// ErrRetry tells Blocking to call the function again.
var ErrRetry = errors.New("retry")

// Backoff is a (blocking) function returns when to retry.
//
// If context is canceled, Backoff should return ctx.Err().
// Otherwise it returns nil after waiting.
type Backoff func(context.Context) error

// StaticBackoff returns a Backoff function that waits for a fixed interval.
var StaticBackoff = func(interval time.Duration) Backoff {
	return ExponentialBackoff(interval, 1)
}

// ExponentialBackoff returns a Backoff function that waits with exponential backoff.
//
// For N-th call, it waits for `initialInterval * r^N` or context to be done.
// The interval does not grow beyond maxInterval, if it is positive.
var ExponentialBackoff = func(initialInterval time.Duration, r float64, maxInterval ...time.Duration) Backoff {
	interval := initialInterval
	return func(ctx context.Context) error {
		timer := time.NewTimer(interval)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			next := time.Duration(int64(float64(interval) * r))
			for _, m := range maxInterval {
				if 0 < m && m < next {
					next = m
				}
			}
			interval = next
			return nil
		}
	}
}

// Immediately returns a Backoff which does not wait at the first time,
// and waits as b after that.
func Immediately(b Backoff) Backoff {
	first := true
	return func(ctx context.Context) error {
		if first {
			first = false
			return ctx.Err()
		}
		return b(ctx)
	}
}

// Blocking calls f until it returns nil or non-retry error.
//
// Before each call, it waits with b. If b returns error, Blocking returns it.
// If f returns ErrRetry, Blocking calls f again.
//
// It returns the last value and error which f returns.
func Blocking[T any](ctx context.Context, b Backoff, f func() (T, error)) (T, error) {
	last := *new(T)
	for {
		if err := b(ctx); err != nil {
			return last, err
		}

		var err error
		last, err = f()
		if err == nil {
			return last, nil
		}
		if errors.Is(err, ErrRetry) {
			continue
		}
		return last, err
	}
}
