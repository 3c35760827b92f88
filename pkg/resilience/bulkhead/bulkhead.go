// Package bulkhead provides a bounded concurrency admission gate with a
// bounded wait queue, isolating the process from backend slowness.
package bulkhead

import (
	"context"
	"sync"
	"time"

	"agentcore/pkg/llmerrors"
)

// Config defines the bulkhead's capacity.
type Config struct {
	// MaxConcurrent is the number of executions admitted at once.
	MaxConcurrent int
	// MaxQueue is how many callers may wait for a slot. Zero means no
	// queueing: the gate rejects as soon as all slots are busy.
	MaxQueue int
	// QueueWait bounds how long a queued caller waits before rejection.
	QueueWait time.Duration
}

// DefaultConfig provides reasonable bulkhead defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 4,
		MaxQueue:      8,
		QueueWait:     30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = d.MaxConcurrent
	}
	if c.MaxQueue < 0 {
		c.MaxQueue = 0
	}
	if c.QueueWait <= 0 {
		c.QueueWait = d.QueueWait
	}
	return c
}

// Observer is notified with the time an Acquire spent waiting for
// admission, whether or not a slot was granted.
type Observer func(wait time.Duration)

// Bulkhead admits up to MaxConcurrent executions, queues up to MaxQueue
// waiters, and fast-rejects everything beyond that. One instance is shared
// per backend across concurrent runs.
type Bulkhead struct {
	mu       sync.Mutex
	config   Config
	slots    chan struct{}
	queued   int
	observer Observer
}

// New creates a bulkhead with all slots free.
func New(config Config) *Bulkhead {
	config = config.withDefaults()
	return &Bulkhead{
		config: config,
		slots:  make(chan struct{}, config.MaxConcurrent),
	}
}

// WithObserver registers an admission-wait observer, typically a telemetry
// recorder. Returns the bulkhead for chaining.
func (b *Bulkhead) WithObserver(o Observer) *Bulkhead {
	b.observer = o
	return b
}

func (b *Bulkhead) observe(start time.Time) {
	if b.observer != nil {
		b.observer(time.Since(start))
	}
}

// Acquire claims a slot, queueing if necessary. The returned release
// function must be called exactly once. Queue overflow rejects
// immediately; a queue-wait timeout rejects with a distinct error and the
// waiter is removed.
func (b *Bulkhead) Acquire(ctx context.Context) (func(), error) {
	start := time.Now()

	// Fast path: free slot, no queueing.
	select {
	case b.slots <- struct{}{}:
		b.observe(start)
		return b.releaseFunc(), nil
	default:
	}

	b.mu.Lock()
	if b.queued >= b.config.MaxQueue {
		b.mu.Unlock()
		b.observe(start)
		return nil, llmerrors.Newf(llmerrors.ErrorTypeBulkheadRejected,
			"bulkhead queue full (%d waiting)", b.config.MaxQueue)
	}
	b.queued++
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.queued--
		b.mu.Unlock()
	}()
	defer b.observe(start)

	timer := time.NewTimer(b.config.QueueWait)
	defer timer.Stop()

	select {
	case b.slots <- struct{}{}:
		return b.releaseFunc(), nil
	case <-timer.C:
		return nil, llmerrors.Newf(llmerrors.ErrorTypeBulkheadRejected,
			"bulkhead queue wait exceeded %s", b.config.QueueWait)
	case <-ctx.Done():
		return nil, llmerrors.Wrap(llmerrors.ErrorTypeCancelled, ctx.Err(),
			"cancelled waiting for bulkhead slot")
	}
}

func (b *Bulkhead) releaseFunc() func() {
	var once sync.Once
	return func() {
		once.Do(func() { <-b.slots })
	}
}

// Active returns the number of executions currently admitted.
func (b *Bulkhead) Active() int {
	return len(b.slots)
}

// Queued returns the number of callers waiting for a slot.
func (b *Bulkhead) Queued() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queued
}
