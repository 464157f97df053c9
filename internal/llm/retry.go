package llm

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy decides whether and when a failed provider call is attempted
// again. Timeouts, rate limits, invalid responses and unavailability are
// retried up to MaxAttempts; truncation and caller cancellation are not.
type RetryPolicy struct {
	RetryConfig

	// Sleep waits between attempts. It returns early with ctx.Err() when
	// the context is done.
	Sleep func(ctx context.Context, d time.Duration) error

	// Jitter returns a value in [-1, 1) scaling the ±20% backoff jitter.
	Jitter func() float64
}

// NewRetryPolicy returns a policy using wall-clock sleeps and random jitter.
func NewRetryPolicy(cfg RetryConfig) *RetryPolicy {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}
	return &RetryPolicy{
		RetryConfig: cfg,
		Sleep:       sleepContext,
		Jitter:      func() float64 { return 2*rand.Float64() - 1 },
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs fn until it succeeds, fails with a non-retryable error or the
// attempts run out. Each attempt gets its own AttemptTimeout deadline; an
// attempt that overruns it fails with *ErrTimeout.
func (p *RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := range p.MaxAttempts {
		err := p.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !p.Retryable(err) {
			return err
		}
		if attempt == p.MaxAttempts-1 {
			break
		}
		if err := p.Sleep(ctx, p.Backoff(attempt, err)); err != nil {
			return err
		}
	}
	return lastErr
}

func (p *RetryPolicy) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.AttemptTimeout <= 0 {
		return fn(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
	defer cancel()

	err := fn(actx)
	if err != nil && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
		var te *ErrTimeout
		if !errors.As(err, &te) {
			err = &ErrTimeout{After: p.AttemptTimeout, Err: err}
		}
	}
	return err
}

// Retryable reports whether err is worth another attempt.
func (p *RetryPolicy) Retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}

	// Max tokens is a configuration issue, not transient.
	var maxTok *ErrMaxTokensExceeded
	if errors.As(err, &maxTok) {
		return false
	}

	var (
		timeout *ErrTimeout
		rl      *ErrRateLimit
		inv     *ErrInvalidResponse
		unavail *ErrProviderUnavailable
	)
	switch {
	case errors.As(err, &timeout), errors.As(err, &rl),
		errors.As(err, &inv), errors.As(err, &unavail):
		return true
	}

	// A bare deadline from the caller's context is final.
	if errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Other errors (network, etc.) are treated as transient.
	return true
}

// Backoff computes the wait before the attempt after the given one.
func (p *RetryPolicy) Backoff(attempt int, err error) time.Duration {
	// Respect RetryAfter for rate limits.
	var rl *ErrRateLimit
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter
	}

	wait := float64(p.InitialWait) * math.Pow(p.Multiplier, float64(attempt))
	if p.MaxWait > 0 && wait > float64(p.MaxWait) {
		wait = float64(p.MaxWait)
	}

	// Add ±20% jitter.
	if p.Jitter != nil {
		wait += wait * 0.2 * p.Jitter()
	}
	if wait < 0 {
		wait = 0
	}
	return time.Duration(wait)
}

// RetryProvider is a decorator that retries transient errors with
// exponential backoff and jitter.
type RetryProvider struct {
	inner  Provider
	policy *RetryPolicy
}

// WithRetry wraps a Provider with a default RetryPolicy built from cfg.
func WithRetry(p Provider, cfg RetryConfig) Provider {
	return WithRetryPolicy(p, NewRetryPolicy(cfg))
}

// WithRetryPolicy wraps a Provider with the given policy.
func WithRetryPolicy(p Provider, policy *RetryPolicy) Provider {
	return &RetryProvider{inner: p, policy: policy}
}

func (r *RetryProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	var resp *Response
	err := r.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = r.inner.Generate(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *RetryProvider) ModelID() string {
	return r.inner.ModelID()
}
