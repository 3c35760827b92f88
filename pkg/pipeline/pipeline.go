// Package pipeline provides ordered request/response/error transformation
// stages around every backend invocation, plus a hard-short-circuit
// interceptor chain for screening.
package pipeline

import (
	"context"
	"fmt"

	"agentcore/pkg/llm"
	"agentcore/pkg/logx"
)

// RequestContext is the mutable state threaded through a single backend
// invocation's stages. It is owned by one run and never shared across
// goroutines.
type RequestContext struct {
	// Request is the outgoing request; before-request stages may mutate it.
	Request *llm.CompletionRequest
	// Response is populated after the backend call, or by a stage that
	// answers the request itself.
	Response *llm.CompletionResponse
	// Answered marks the request as resolved without a backend call.
	// Setting it from a before-request stage skips the backend (the
	// cache-hit pattern); Response must be set alongside it.
	Answered bool
	// RetryRequested is set by error stages to ask the loop for one
	// additional backend attempt within the current iteration. Only the
	// blocking Complete path honors it; a failed stream establishment
	// surfaces directly, since replaying a partially consumed stream is
	// not possible.
	RetryRequested bool
	// Meta carries scratch values between stages within one invocation.
	Meta map[string]any
	// Iteration is the loop iteration this invocation belongs to, 1-based.
	Iteration int
}

// NewRequestContext creates the per-invocation stage state.
func NewRequestContext(req *llm.CompletionRequest, iteration int) *RequestContext {
	return &RequestContext{
		Request:   req,
		Meta:      make(map[string]any),
		Iteration: iteration,
	}
}

// Stage is a named pipeline participant. Capabilities are declared by
// implementing the optional hook interfaces below; a stage implements only
// the phases it cares about.
type Stage interface {
	Name() string
}

// RequestHook runs before the backend call, in registration order. Each
// hook sees the prior hook's mutations. Returning an error aborts the
// remainder of the phase.
type RequestHook interface {
	BeforeRequest(ctx context.Context, rc *RequestContext) error
}

// ResponseHook runs after the backend call, in reverse registration order.
type ResponseHook interface {
	AfterResponse(ctx context.Context, rc *RequestContext) error
}

// ErrorHook observes a backend or pipeline failure. Every registered error
// hook runs; there is no short-circuit, so each stage can record or react
// to the failure. A hook may set rc.RetryRequested.
type ErrorHook interface {
	OnError(ctx context.Context, rc *RequestContext, callErr error)
}

// ToolCallHook observes each tool call before dispatch.
type ToolCallHook interface {
	OnToolCall(ctx context.Context, rc *RequestContext, call *llm.ToolCall) error
}

// ToolResultHook observes each tool result before it is appended to history.
type ToolResultHook interface {
	OnToolResult(ctx context.Context, rc *RequestContext, result *llm.ToolResult) error
}

// Pipeline holds the ordered stage list. Construct once, share read-only
// across runs; all per-invocation state lives in the RequestContext.
type Pipeline struct {
	logger *logx.Logger
	stages []Stage
}

// New creates a pipeline over the given stages. A nil logger gets a default.
func New(logger *logx.Logger, stages ...Stage) *Pipeline {
	if logger == nil {
		logger = logx.NewLogger("pipeline")
	}
	return &Pipeline{logger: logger, stages: stages}
}

// Stages returns the registered stage names in order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// BeforeRequest runs request hooks in registration order. The phase ends
// early once a stage answers the request; later stages never see a request
// the backend will not receive.
func (p *Pipeline) BeforeRequest(ctx context.Context, rc *RequestContext) error {
	for _, s := range p.stages {
		hook, ok := s.(RequestHook)
		if !ok {
			continue
		}
		if err := hook.BeforeRequest(ctx, rc); err != nil {
			return fmt.Errorf("stage %s before-request: %w", s.Name(), err)
		}
		if rc.Answered {
			p.logger.Debug("stage %s answered the request, skipping backend", s.Name())
			return nil
		}
	}
	return nil
}

// AfterResponse runs response hooks in reverse registration order, so the
// first-registered stage unwraps last.
func (p *Pipeline) AfterResponse(ctx context.Context, rc *RequestContext) error {
	for i := len(p.stages) - 1; i >= 0; i-- {
		hook, ok := p.stages[i].(ResponseHook)
		if !ok {
			continue
		}
		if err := hook.AfterResponse(ctx, rc); err != nil {
			return fmt.Errorf("stage %s after-response: %w", p.stages[i].Name(), err)
		}
	}
	return nil
}

// OnError notifies every error hook. Hooks run in registration order and
// all of them run regardless of what earlier hooks did.
func (p *Pipeline) OnError(ctx context.Context, rc *RequestContext, callErr error) {
	for _, s := range p.stages {
		if hook, ok := s.(ErrorHook); ok {
			hook.OnError(ctx, rc, callErr)
		}
	}
}

// OnToolCall runs tool-call hooks in registration order.
func (p *Pipeline) OnToolCall(ctx context.Context, rc *RequestContext, call *llm.ToolCall) error {
	for _, s := range p.stages {
		hook, ok := s.(ToolCallHook)
		if !ok {
			continue
		}
		if err := hook.OnToolCall(ctx, rc, call); err != nil {
			return fmt.Errorf("stage %s on-tool-call: %w", s.Name(), err)
		}
	}
	return nil
}

// OnToolResult runs tool-result hooks in registration order.
func (p *Pipeline) OnToolResult(ctx context.Context, rc *RequestContext, result *llm.ToolResult) error {
	for _, s := range p.stages {
		hook, ok := s.(ToolResultHook)
		if !ok {
			continue
		}
		if err := hook.OnToolResult(ctx, rc, result); err != nil {
			return fmt.Errorf("stage %s on-tool-result: %w", s.Name(), err)
		}
	}
	return nil
}
