// Package runstore persists finished conversation turns. The store sits
// outside the critical path: turns are handed to a buffered worker after a
// run completes and written asynchronously.
package runstore

import (
	"context"
	"time"
)

// Turn is one persisted conversation entry.
type Turn struct {
	CreatedAt  time.Time
	RunID      string
	MessageID  string
	Role       string
	Content    string
	ToolCallID string
	Seq        int
	IsError    bool
}

// Sink receives finished turns, append-only.
type Sink interface {
	// AppendTurns stores one run's turns in order.
	AppendTurns(ctx context.Context, turns []Turn) error

	// Close releases the sink's resources.
	Close() error
}
