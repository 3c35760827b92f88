// Package retry provides bounded exponential backoff around backend calls.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"agentcore/pkg/llmerrors"
)

// Config defines retry behavior.
type Config struct {
	// MaxRetries is the number of re-attempts after the initial call.
	MaxRetries int
	// InitialDelay seeds the exponential backoff.
	InitialDelay time.Duration
	// MaxDelay caps the backoff.
	MaxDelay time.Duration
	// Multiplier grows the delay between attempts.
	Multiplier float64
	// JitterFactor randomizes each delay by ±JitterFactor·delay to avoid
	// thundering herds. Zero disables jitter.
	JitterFactor float64
}

// DefaultConfig provides reasonable retry defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.Multiplier <= 1 {
		c.Multiplier = d.Multiplier
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = 0
	}
	return c
}

// Classifier decides whether an error is worth retrying.
type Classifier func(error) bool

// Observer is invoked before each backoff sleep, after attempt failures.
type Observer func(attempt int, delay time.Duration, err error)

// Policy encapsulates retry configuration, classification, and observation.
// Policies are shared across concurrent runs; they hold no mutable state.
type Policy struct {
	Config     Config
	Classifier Classifier
	Observer   Observer
}

// NewPolicy creates a retry policy. A nil classifier retries rate-limit,
// timeout, and transient backend errors per llmerrors.IsRetryable.
func NewPolicy(config Config, classifier Classifier) *Policy {
	if classifier == nil {
		classifier = llmerrors.IsRetryable
	}
	return &Policy{
		Config:     config.withDefaults(),
		Classifier: classifier,
	}
}

// WithObserver sets the pre-sleep observer and returns the policy.
func (p *Policy) WithObserver(o Observer) *Policy {
	p.Observer = o
	return p
}

// Delay computes the backoff before re-attempt number attempt (1-based).
func (p *Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}

	delay := time.Duration(float64(p.Config.InitialDelay) *
		math.Pow(p.Config.Multiplier, float64(attempt-1)))
	if delay > p.Config.MaxDelay || delay <= 0 {
		delay = p.Config.MaxDelay
	}

	if p.Config.JitterFactor > 0 {
		// Uniform in [-jitter, +jitter]; the global source is locked and
		// safe under concurrent runs.
		//nolint:gosec // jitter does not need a cryptographic source
		jitter := (rand.Float64()*2 - 1) * p.Config.JitterFactor * float64(delay)
		delay += time.Duration(jitter)
		if delay < 0 {
			delay = p.Config.InitialDelay
		}
	}

	return delay
}

// ShouldRetry reports whether err passes the configured classifier.
func (p *Policy) ShouldRetry(err error) bool {
	return p.Classifier(err)
}

// Execute runs fn, retrying classifier-approved failures up to MaxRetries
// times with context-preemptible backoff sleeps. A rate-limit error's
// retry-after hint stretches the computed delay when it is longer.
func (p *Policy) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= p.Config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := p.Delay(attempt)
			if hint := retryAfterHint(lastErr); hint > delay {
				delay = hint
			}
			if p.Observer != nil {
				p.Observer(attempt, delay, lastErr)
			}
			select {
			case <-ctx.Done():
				return llmerrors.Wrap(llmerrors.ErrorTypeCancelled, ctx.Err(), "retry cancelled")
			case <-time.After(delay):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !p.ShouldRetry(lastErr) {
			return lastErr
		}
	}

	return lastErr
}

func retryAfterHint(err error) time.Duration {
	var e *llmerrors.Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}
