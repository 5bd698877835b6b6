// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package retry runs an operation under a bounded retry policy with
// exponential backoff. Only failures classified as transient are retried;
// everything else is returned on the first attempt.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// BaseDelay is the default first backoff delay. Tests override this to
// avoid real sleeps.
var BaseDelay = time.Second

// DefaultMaxRetries is used when a Policy leaves MaxRetries unset.
const DefaultMaxRetries = 3

// Policy parameterizes Do.
type Policy struct {
	// MaxRetries is the number of attempts allowed after the first failure.
	// Zero or negative means DefaultMaxRetries.
	MaxRetries int

	// Backoff returns the delay before retry number attempt (1-based).
	// Nil means Exponential(BaseDelay, 0).
	Backoff func(attempt int) time.Duration

	// Retryable classifies a failure. Nil means IsTransient.
	Retryable func(err error) bool

	// OnRetry, when set, is called before each backoff wait.
	OnRetry func(attempt int, delay time.Duration, err error)
}

func (p Policy) maxRetries() int {
	if p.MaxRetries <= 0 {
		return DefaultMaxRetries
	}
	return p.MaxRetries
}

func (p Policy) backoff(attempt int) time.Duration {
	if p.Backoff == nil {
		return Exponential(BaseDelay, 0)(attempt)
	}
	return p.Backoff(attempt)
}

func (p Policy) retryable(err error) bool {
	if p.Retryable == nil {
		return IsTransient(err)
	}
	return p.Retryable(err)
}

// Exponential returns a backoff that starts at base and doubles each retry:
// base, 2*base, 4*base, ... A positive limit caps every delay.
func Exponential(base, limit time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		d := time.Duration(math.Pow(2, float64(attempt-1))) * base
		if limit > 0 && d > limit {
			return limit
		}
		return d
	}
}

// Fixed returns a backoff that always waits d.
func Fixed(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return d }
}

// ExhaustedError reports that every allowed attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do calls op until it succeeds, fails with a non-retryable error, the
// policy's retries are spent, or ctx is done. It returns the result, the
// number of attempts made, and the error.
//
// A non-retryable failure is returned as-is. Exhaustion returns an
// *ExhaustedError wrapping the last failure. If ctx ends during a backoff
// wait, ctx.Err() is returned.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, int, error) {
	var zero T
	maxRetries := p.maxRetries()

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := p.backoff(attempt)
			if p.OnRetry != nil {
				p.OnRetry(attempt, delay, lastErr)
			}
			if err := sleep(ctx, delay); err != nil {
				return zero, attempt, err
			}
		}

		v, err := op(ctx)
		if err == nil {
			return v, attempt + 1, nil
		}
		// The run itself was cancelled; the failure says nothing about
		// the upstream.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, attempt + 1, err
		}
		if !p.retryable(err) {
			return zero, attempt + 1, err
		}
		lastErr = err
	}
	return zero, maxRetries + 1, &ExhaustedError{Attempts: maxRetries + 1, Err: lastErr}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// transientError marks a failure as eligible for retry.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// MarkTransient wraps err so IsTransient reports true for it. A nil err
// stays nil.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err, or anything it wraps, was marked with
// MarkTransient.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}
