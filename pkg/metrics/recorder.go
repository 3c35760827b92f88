// Package metrics provides passive telemetry recording for backend calls
// and resilience events. The execution path never blocks on a recorder and
// isolates its failures.
package metrics

import "time"

// Recorder receives telemetry events. Implementations must be safe for
// concurrent use; one recorder is shared across runs.
type Recorder interface {
	// ObserveRequest records one completed backend request.
	ObserveRequest(model, status, errorType string, promptTokens, completionTokens int, duration time.Duration)

	// IncRetry counts a retry re-attempt against a model.
	IncRetry(model string)

	// IncRejection counts a fast-fail rejection (circuit open, bulkhead full).
	IncRejection(model, reason string)

	// ObserveQueueWait records time spent waiting for admission.
	ObserveQueueWait(model string, duration time.Duration)

	// ObserveCompaction records one history compaction pass.
	ObserveCompaction(strategy string, tokensBefore, tokensAfter int)
}

// NoopRecorder discards all events.
type NoopRecorder struct{}

// Nop returns a recorder that discards everything.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveRequest does nothing.
func (n *NoopRecorder) ObserveRequest(_, _, _ string, _, _ int, _ time.Duration) {}

// IncRetry does nothing.
func (n *NoopRecorder) IncRetry(_ string) {}

// IncRejection does nothing.
func (n *NoopRecorder) IncRejection(_, _ string) {}

// ObserveQueueWait does nothing.
func (n *NoopRecorder) ObserveQueueWait(_ string, _ time.Duration) {}

// ObserveCompaction does nothing.
func (n *NoopRecorder) ObserveCompaction(_ string, _, _ int) {}
