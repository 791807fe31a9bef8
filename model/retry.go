package model

import (
	"context"
	"math/rand"
	"time"
)

// RetryOptions configures the Retryable wrapper.
type RetryOptions struct {
	// MaxAttempts is the total number of invocation attempts (first try included).
	MaxAttempts int
	// BaseDelay is the delay before the first retry; subsequent retries double it.
	BaseDelay time.Duration
	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration
	// Timeout bounds each individual invocation attempt. Zero disables it.
	Timeout time.Duration
}

// Retryable wraps a Model and retries transient failures with exponential
// backoff plus jitter. Non-retryable errors surface immediately; the last
// error is returned once attempts are exhausted.
type Retryable struct {
	inner Model
	opts  RetryOptions
}

// NewRetryable wraps m with retry behavior.
func NewRetryable(m Model, optFns ...func(o *RetryOptions)) *Retryable {
	opts := RetryOptions{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Retryable{inner: m, opts: opts}
}

// Invoke implements Model with retry semantics.
func (r *Retryable) Invoke(ctx context.Context, req Request) (*Response, error) {
	var lastErr error

	for attempt := 0; attempt < r.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepWithJitter(ctx, r.backoffDelay(attempt)); err != nil {
				return nil, err
			}
		}

		attemptCtx := ctx
		cancel := func() {}
		if r.opts.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		}

		resp, err := r.inner.Invoke(attemptCtx, req)
		cancel()

		if err == nil {
			return resp, nil
		}

		lastErr = err

		if !IsRetryable(err) || ctx.Err() != nil {
			return nil, err
		}
	}

	return nil, lastErr
}

// Info delegates to the wrapped model.
func (r *Retryable) Info() Info { return r.inner.Info() }

// backoffDelay computes the capped exponential delay for the given attempt (1-based retry).
func (r *Retryable) backoffDelay(attempt int) time.Duration {
	delay := r.opts.BaseDelay << (attempt - 1)
	if delay > r.opts.MaxDelay {
		delay = r.opts.MaxDelay
	}
	return delay
}

// sleepWithJitter waits for delay plus up to 25% random jitter, aborting early
// on context cancellation.
func sleepWithJitter(ctx context.Context, delay time.Duration) error {
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	select {
	case <-time.After(delay + jitter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
