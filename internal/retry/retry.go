// Package retry provides the single retry policy used by every network
// call in the engine: answer sync and session completion share the same
// mechanics and differ only in attempt counts, backoff schedule and
// per-attempt timeout.
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy describes a bounded retry loop.
type Policy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// Backoff is the sleep after each failed attempt. Backoff[i] is slept
	// after attempt i+1 fails. Shorter schedules repeat their last entry.
	Backoff []time.Duration
	// Timeout bounds each individual attempt. Zero means no per-attempt
	// timeout beyond the caller's context.
	Timeout time.Duration
}

// permanentError wraps an error that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so Do stops retrying immediately and returns it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Do runs op under the policy. Each attempt gets its own deadline; an
// attempt that exceeds it is abandoned and counted as a failure. Do returns
// nil on the first success, the unwrapped error for permanent failures, and
// the last attempt's error once the budget is exhausted.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if p.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		}
		err := op(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}

		var pe *permanentError
		if errors.As(err, &pe) {
			return pe.err
		}
		lastErr = err

		if attempt == attempts-1 {
			break
		}
		if err := sleep(ctx, p.backoffFor(attempt)); err != nil {
			return err
		}
	}
	return lastErr
}

func (p Policy) backoffFor(attempt int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	if attempt >= len(p.Backoff) {
		return p.Backoff[len(p.Backoff)-1]
	}
	return p.Backoff[attempt]
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
