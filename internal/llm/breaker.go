package llm

import (
	"context"
	"errors"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// StateObserver is told about every breaker state transition.
type StateObserver func(name, from, to string)

// BreakerProvider is a decorator that stops calling a failing provider
// for a while instead of piling more requests onto it.
type BreakerProvider struct {
	inner Provider
	name  string
	cb    *gobreaker.CircuitBreaker[*Response]
}

// WithCircuitBreaker wraps a Provider with a circuit breaker. A zero
// ConsecutiveFailures returns p unchanged.
func WithCircuitBreaker(p Provider, name string, cfg BreakerConfig, log *zap.Logger, observe StateObserver) Provider {
	if cfg.ConsecutiveFailures == 0 {
		return p
	}
	if log == nil {
		log = zap.NewNop()
	}

	cb := gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("llm circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			if observe != nil {
				observe(name, from.String(), to.String())
			}
		},
	})

	return &BreakerProvider{inner: p, name: name, cb: cb}
}

func (b *BreakerProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	resp, err := b.cb.Execute(func() (*Response, error) {
		return b.inner.Generate(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &ErrCircuitOpen{Name: b.name, Err: err}
	}
	return resp, err
}

func (b *BreakerProvider) ModelID() string {
	return b.inner.ModelID()
}

// State returns the current breaker state: "closed", "half-open" or "open".
func (b *BreakerProvider) State() string {
	return b.cb.State().String()
}

// countsAsSuccess keeps caller-side failures from tripping the breaker:
// the provider answered, or the caller gave up first.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var invResp *ErrInvalidResponse
	if errors.As(err, &invResp) {
		return true
	}
	var maxTok *ErrMaxTokensExceeded
	return errors.As(err, &maxTok)
}
