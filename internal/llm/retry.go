package llm

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// RetryProvider retries transient failures with exponential backoff.
// A response that fails schema validation is retried once, since a second
// sample often conforms.
type RetryProvider struct {
	inner  Provider
	config RetryConfig
}

// WithRetry wraps p with retries configured by cfg.
func WithRetry(p Provider, cfg RetryConfig) Provider {
	return &RetryProvider{inner: p, config: cfg}
}

func (r *RetryProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	attempts := max(r.config.MaxAttempts, 1)
	invalidSeen := false

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		var resp *Response
		resp, err = r.inner.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}

		switch retryClass(err) {
		case never:
			return nil, err
		case once:
			if invalidSeen {
				return nil, err
			}
			invalidSeen = true
		}
		if attempt == attempts-1 {
			break
		}

		t := time.NewTimer(r.backoff(attempt, err))
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return nil, err
}

func (r *RetryProvider) ModelID() string {
	return r.inner.ModelID()
}

type retryability int

const (
	always retryability = iota
	once
	never
)

// retryClass decides how an error may be retried. Unknown errors, usually
// network failures, are treated as transient.
func retryClass(err error) retryability {
	var (
		maxTok   *ErrMaxTokensExceeded
		rejected *ErrRequestRejected
		open     *ErrCircuitOpen
		invalid  *ErrInvalidResponse
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return never
	case errors.As(err, &maxTok), errors.As(err, &rejected):
		// Same request, same outcome.
		return never
	case errors.As(err, &open):
		// The breaker stays open longer than any backoff here.
		return never
	case errors.As(err, &invalid):
		return once
	}
	return always
}

// backoff returns the wait before the next attempt: the server's
// Retry-After when given, else InitialWait*Multiplier^attempt capped at
// MaxWait, with ±20% jitter.
func (r *RetryProvider) backoff(attempt int, err error) time.Duration {
	var rl *ErrRateLimit
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter
	}

	wait := float64(r.config.InitialWait)
	for range attempt {
		wait *= r.config.Multiplier
	}
	if limit := float64(r.config.MaxWait); limit > 0 && wait > limit {
		wait = limit
	}
	wait += wait * 0.2 * (2*rand.Float64() - 1)
	return time.Duration(max(wait, 0))
}
