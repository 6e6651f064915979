// Package retry provides bounded exponential-backoff execution for
// asynchronous operations, plus per-task retry bookkeeping.
package retry

import (
	"context"
	"time"

	"github.com/agentmesh/conductor/internal/errs"
)

// Policy controls how an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// InitialDelay is the sleep before the second attempt.
	InitialDelay time.Duration
	// Multiplier scales the delay after each failed attempt.
	Multiplier float64
	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration
	// AttemptTimeout bounds each individual attempt. It is clamped below
	// the remaining time to the caller's deadline so a retry loop can never
	// outlive the caller's patience.
	AttemptTimeout time.Duration
	// Retryable decides whether an error is worth another attempt.
	// Non-retryable errors return immediately without sleeping.
	Retryable func(error) bool
}

// DefaultPolicy returns the policy used for bus delivery and dispatch:
// three attempts, 500ms initial delay doubling up to 10s, and the transient
// error classes as the only retryable failures.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     10 * time.Second,
		Retryable:    errs.Retryable,
	}
}

// normalized fills zero fields with safe defaults.
func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 500 * time.Millisecond
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2.0
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 10 * time.Second
	}
	if p.Retryable == nil {
		p.Retryable = errs.Retryable
	}
	return p
}

// Execute runs fn under the policy. It returns the first success, or the
// last error once attempts are exhausted or a non-retryable error occurs.
// Backoff sleeps are interruptible by ctx.
func Execute[T any](ctx context.Context, policy Policy, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	p := policy.normalized()

	delay := p.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		attemptCtx, cancel := attemptContext(ctx, p.AttemptTimeout)
		result, err := fn(attemptCtx)
		cancel()

		if err == nil {
			return result, nil
		}
		lastErr = err

		if !p.Retryable(err) || attempt == p.MaxAttempts {
			return zero, lastErr
		}

		sleep := delay
		if sleep > p.MaxDelay {
			sleep = p.MaxDelay
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(sleep):
		}
		delay = time.Duration(float64(delay) * p.Multiplier)
	}

	return zero, lastErr
}

// attemptContext derives a per-attempt context. The attempt deadline is kept
// strictly inside the parent deadline so the final attempt still has room to
// report an error before the caller gives up.
func attemptContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		budget := remaining - remaining/10
		if timeout <= 0 || timeout > budget {
			timeout = budget
		}
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
