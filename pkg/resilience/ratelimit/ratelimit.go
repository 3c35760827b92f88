// Package ratelimit throttles backend request rate with a token bucket.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"

	"agentcore/pkg/llm"
	"agentcore/pkg/llmerrors"
)

// Config defines the request rate limit for one backend.
type Config struct {
	// RequestsPerSecond is the sustained admission rate.
	RequestsPerSecond float64
	// Burst is how many requests may be admitted at once.
	Burst int
}

// DefaultConfig provides reasonable rate limit defaults.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 2,
		Burst:             4,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = d.RequestsPerSecond
	}
	if c.Burst <= 0 {
		c.Burst = d.Burst
	}
	return c
}

// Limiter wraps a token bucket shared across concurrent runs.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a limiter with a full bucket.
func New(config Config) *Limiter {
	config = config.withDefaults()
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
	}
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return llmerrors.Wrap(llmerrors.ErrorTypeCancelled, ctx.Err(),
				"cancelled waiting for rate limit")
		}
		return llmerrors.Wrap(llmerrors.ErrorTypeRateLimited, err, "rate limit wait failed")
	}
	return nil
}

// Allow reports whether a token is available right now, consuming it if so.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// Middleware gates Complete and Stream establishment on the limiter.
func Middleware(l *Limiter) llm.Middleware {
	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				if err := l.Wait(ctx); err != nil {
					return llm.CompletionResponse{}, err
				}
				return next.Complete(ctx, req)
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				if err := l.Wait(ctx); err != nil {
					return nil, err
				}
				return next.Stream(ctx, req)
			},
			func() string { return next.ModelName() },
		)
	}
}
