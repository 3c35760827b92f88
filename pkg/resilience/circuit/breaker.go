// Package circuit provides a per-backend circuit breaker isolating the
// agent loop from a repeatedly failing backend.
package circuit

import (
	"sync"
	"time"

	"agentcore/pkg/llmerrors"
)

// State is the circuit breaker state.
type State int

const (
	// Closed passes calls through, counting consecutive failures.
	Closed State = iota
	// Open fast-rejects calls until the reset timeout elapses.
	Open
	// HalfOpen admits exactly one probe call at a time.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config defines the breaker's transition thresholds.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit.
	FailureThreshold int
	// SuccessThreshold is the number of consecutive half-open successes
	// that closes it again.
	SuccessThreshold int
	// ResetTimeout is how long the circuit stays open before admitting
	// a probe.
	ResetTimeout time.Duration
}

// DefaultConfig provides reasonable breaker defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		ResetTimeout:     30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = d.SuccessThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = d.ResetTimeout
	}
	return c
}

// Breaker is a mutex-guarded failure-isolation state machine. One instance
// is shared per backend across concurrent runs; all transitions happen
// inside its own methods.
type Breaker struct {
	mu            sync.Mutex
	config        Config
	state         State
	failureCount  int
	successCount  int
	probeInFlight bool
	lastFailure   time.Time
	now           func() time.Time // injectable clock for tests
}

// New creates a breaker in the closed state.
func New(config Config) *Breaker {
	return &Breaker{
		config: config.withDefaults(),
		state:  Closed,
		now:    time.Now,
	}
}

// Allow reports whether a call may proceed. An open circuit rejects with a
// typed, retryable-later error that never masks the underlying failure; a
// half-open circuit admits exactly one probe at a time.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return nil

	case Open:
		if b.now().Sub(b.lastFailure) >= b.config.ResetTimeout {
			b.state = HalfOpen
			b.successCount = 0
			b.probeInFlight = true
			return nil
		}
		return llmerrors.Newf(llmerrors.ErrorTypeCircuitOpen,
			"circuit open, retry after %s", b.config.ResetTimeout)

	case HalfOpen:
		if b.probeInFlight {
			return llmerrors.New(llmerrors.ErrorTypeCircuitOpen,
				"circuit half-open, probe in flight")
		}
		b.probeInFlight = true
		return nil

	default:
		return llmerrors.New(llmerrors.ErrorTypeCircuitOpen, "circuit in unknown state")
	}
}

// Record reports the outcome of an admitted call.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.onSuccess()
	} else {
		b.onFailure()
	}
}

// GetState returns the current state.
func (b *Breaker) GetState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset manually returns the breaker to closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failureCount = 0
	b.successCount = 0
	b.probeInFlight = false
}

func (b *Breaker) onSuccess() {
	switch b.state {
	case Closed:
		b.failureCount = 0

	case HalfOpen:
		b.probeInFlight = false
		b.successCount++
		if b.successCount >= b.config.SuccessThreshold {
			b.state = Closed
			b.failureCount = 0
			b.successCount = 0
		}
	}
}

func (b *Breaker) onFailure() {
	b.lastFailure = b.now()

	switch b.state {
	case Closed:
		b.failureCount++
		if b.failureCount >= b.config.FailureThreshold {
			b.state = Open
		}

	case HalfOpen:
		// Any half-open failure reopens immediately.
		b.state = Open
		b.probeInFlight = false
		b.successCount = 0
	}
}
