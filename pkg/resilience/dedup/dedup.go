// Package dedup coalesces identical in-flight backend calls so N callers
// with the same request fingerprint share one execution and one outcome.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"agentcore/pkg/llm"
	"agentcore/pkg/llmerrors"
)

// KeyFunc derives a deduplication key from a request's semantic content.
type KeyFunc func(req llm.CompletionRequest) string

// DefaultKey fingerprints the request over its messages, tool names, and
// sampling parameters.
func DefaultKey(req llm.CompletionRequest) string {
	var sb strings.Builder
	for i := range req.Messages {
		m := &req.Messages[i]
		sb.WriteString(string(m.Role))
		sb.WriteByte(':')
		sb.WriteString(m.Content)
		sb.WriteByte('\n')
		for j := range m.ToolResults {
			fmt.Fprintf(&sb, "result:%s:%s\n", m.ToolResults[j].ToolCallID, m.ToolResults[j].Content)
		}
	}
	names := make([]string, 0, len(req.Tools))
	for i := range req.Tools {
		names = append(names, req.Tools[i].Name)
	}
	sort.Strings(names)
	fmt.Fprintf(&sb, "tools:%s temp:%g max:%d", strings.Join(names, ","), req.Temperature, req.MaxTokens)

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// pendingCall is the shared future for one in-flight execution.
type pendingCall struct {
	done    chan struct{}
	resp    llm.CompletionResponse
	err     error
	started time.Time
}

// Deduplicator maintains the key to in-flight-call mapping. Entries are
// removed on settlement so a later identical request re-executes; the TTL
// sweep is a defensive backstop against entries that never settle.
type Deduplicator struct {
	mu      sync.Mutex
	pending map[string]*pendingCall
	ttl     time.Duration
}

// New creates a deduplicator. ttl bounds how long an unsettled entry may
// linger before Sweep evicts it; zero disables TTL eviction.
func New(ttl time.Duration) *Deduplicator {
	return &Deduplicator{
		pending: make(map[string]*pendingCall),
		ttl:     ttl,
	}
}

// Do executes fn for the first caller of key and hands every concurrent
// caller of the same key the identical outcome. Waiters remain
// individually cancellable without disturbing the execution.
func (d *Deduplicator) Do(ctx context.Context, key string, fn func(ctx context.Context) (llm.CompletionResponse, error)) (llm.CompletionResponse, error) {
	d.mu.Lock()
	if call, ok := d.pending[key]; ok {
		d.mu.Unlock()
		select {
		case <-call.done:
			return call.resp, call.err
		case <-ctx.Done():
			return llm.CompletionResponse{}, llmerrors.Wrap(
				llmerrors.ErrorTypeCancelled, ctx.Err(), "cancelled waiting for deduplicated call")
		}
	}

	call := &pendingCall{done: make(chan struct{}), started: time.Now()}
	d.pending[key] = call
	d.mu.Unlock()

	call.resp, call.err = fn(ctx)

	d.mu.Lock()
	// Only remove our own entry; a TTL sweep may have replaced it.
	if d.pending[key] == call {
		delete(d.pending, key)
	}
	d.mu.Unlock()

	close(call.done)
	return call.resp, call.err
}

// Sweep evicts entries older than the TTL. Evicted executions still settle
// for their original waiters; only new callers stop attaching to them.
func (d *Deduplicator) Sweep() int {
	if d.ttl <= 0 {
		return 0
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	evicted := 0
	cutoff := time.Now().Add(-d.ttl)
	for key, call := range d.pending {
		if call.started.Before(cutoff) {
			delete(d.pending, key)
			evicted++
		}
	}
	return evicted
}

// StartSweeper runs Sweep at the given interval until ctx is cancelled.
func (d *Deduplicator) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.Sweep()
			}
		}
	}()
}

// Pending returns the number of in-flight entries.
func (d *Deduplicator) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
