// Package agent implements the execution loop: it seeds a conversation,
// drives backend completions through the pipeline and resilience stack,
// dispatches tool calls, and terminates on a tool-call-free response or the
// iteration cap.
package agent

import (
	"context"
	"time"

	"github.com/google/uuid"

	"agentcore/pkg/compact"
	"agentcore/pkg/contextmgr"
	"agentcore/pkg/llm"
	"agentcore/pkg/llmerrors"
	"agentcore/pkg/logx"
	"agentcore/pkg/metrics"
	"agentcore/pkg/pipeline"
	"agentcore/pkg/runstore"
	"agentcore/pkg/tokens"
	"agentcore/pkg/tools"
)

// Options bound one executor's behavior.
type Options struct {
	// SystemPrompt seeds every run's history. Empty means no system message.
	SystemPrompt string
	// MaxIterations caps backend calls per run.
	MaxIterations int
	// MaxTokens and Temperature are passed through to the backend.
	MaxTokens   int
	Temperature float32
	// ToolTimeout bounds each tool execution.
	ToolTimeout time.Duration
	// ParallelTools executes a response's tool calls concurrently. Failure
	// isolation is unchanged: each call settles into its own result.
	ParallelTools bool
	// Compaction configures the history budget.
	Compaction compact.Options
}

// DefaultOptions provides reasonable loop defaults.
func DefaultOptions() Options {
	return Options{
		MaxIterations: 10,
		MaxTokens:     llm.DefaultMaxTokens,
		Temperature:   llm.DefaultTemperature,
		ToolTimeout:   30 * time.Second,
		Compaction:    compact.DefaultOptions(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxIterations <= 0 {
		o.MaxIterations = d.MaxIterations
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = d.MaxTokens
	}
	if o.Temperature <= 0 {
		o.Temperature = d.Temperature
	}
	if o.ToolTimeout <= 0 {
		o.ToolTimeout = d.ToolTimeout
	}
	return o
}

// Deps are the executor's collaborators. Client is required; everything
// else has a working zero-configuration substitute.
type Deps struct {
	// Client is the backend, usually already wrapped by BuildClient.
	Client llm.Client
	// Registry supplies the run's tools. Nil means no tools.
	Registry *tools.Registry
	// Pipeline stages run around every backend call.
	Pipeline *pipeline.Pipeline
	// Interceptors screen requests before the pipeline.
	Interceptors *pipeline.InterceptorChain
	// Compactor keeps history inside the token budget.
	Compactor compact.Compactor
	// Counter backs token accounting.
	Counter tokens.Counter
	// Recorder receives telemetry. Never blocks the run.
	Recorder metrics.Recorder
	// Sink persists finished turns after run completion.
	Sink *runstore.Worker
	// Logger receives run lifecycle logs.
	Logger *logx.Logger
}

// Result is a completed run.
type Result struct {
	// RunID identifies the run in logs and persistence.
	RunID string
	// Content is the final assistant answer.
	Content string
	// Messages is the full history as the run ended, post compaction.
	Messages []contextmgr.Message
	// ToolResults collects every tool outcome in execution order.
	ToolResults []llm.ToolResult
	// Usage aggregates backend-reported token consumption.
	Usage llm.Usage
	// Iterations is how many backend calls the run took.
	Iterations int
}

// Executor runs conversations. One executor is shared across concurrent
// runs; all per-run state lives on the stack of Run or Stream.
type Executor struct {
	deps Deps
	opts Options
}

// New creates an executor.
func New(deps Deps, opts Options) (*Executor, error) {
	if deps.Client == nil {
		return nil, llmerrors.New(llmerrors.ErrorTypeUnknown, "executor requires a backend client")
	}
	if deps.Counter == nil {
		deps.Counter = tokens.EstimateCounter{}
	}
	if deps.Compactor == nil {
		deps.Compactor = compact.NewSlidingWindow(deps.Counter, nil)
	}
	if deps.Pipeline == nil {
		deps.Pipeline = pipeline.New(nil)
	}
	if deps.Recorder == nil {
		deps.Recorder = metrics.Nop()
	}
	if deps.Logger == nil {
		deps.Logger = logx.NewLogger("agent")
	}
	return &Executor{deps: deps, opts: opts.withDefaults()}, nil
}

// Run executes a conversation to completion.
func (e *Executor) Run(ctx context.Context, input string) (*Result, error) {
	runID := uuid.NewString()
	mgr := contextmgr.New(e.deps.Counter)
	if e.opts.SystemPrompt != "" {
		mgr.SetSystemPrompt(e.opts.SystemPrompt)
	}
	mgr.AppendUser(input)

	// Turns are persisted however the run ends.
	defer e.persist(runID, mgr)

	result := &Result{RunID: runID}

	for iteration := 1; iteration <= e.opts.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, llmerrors.Wrap(llmerrors.ErrorTypeCancelled, err, "run cancelled")
		}
		result.Iterations = iteration

		resp, rc, err := e.step(ctx, mgr, iteration)
		if err != nil {
			return nil, err
		}

		mgr.AppendAssistant(resp.Content, resp.ToolCalls)
		if resp.Usage != nil {
			result.Usage.PromptTokens += resp.Usage.PromptTokens
			result.Usage.CompletionTokens += resp.Usage.CompletionTokens
			result.Usage.TotalTokens += resp.Usage.TotalTokens
		}

		if len(resp.ToolCalls) == 0 {
			result.Content = resp.Content
			result.Messages = mgr.Messages()
			e.deps.Logger.Info("run %s finished after %d iteration(s)", runID, iteration)
			return result, nil
		}

		toolResults, err := e.dispatchTools(ctx, rc, resp.ToolCalls)
		if err != nil {
			return nil, err
		}
		for i := range toolResults {
			mgr.AppendToolResult(toolResults[i])
		}
		result.ToolResults = append(result.ToolResults, toolResults...)
	}

	return nil, llmerrors.Newf(llmerrors.ErrorTypeMaxIterations,
		"no final answer after %d iterations", e.opts.MaxIterations)
}

// step performs one iteration's compaction, pipeline passes, and backend
// call, returning the (possibly stage-mutated) response.
func (e *Executor) step(ctx context.Context, mgr *contextmgr.Manager, iteration int) (llm.CompletionResponse, *pipeline.RequestContext, error) {
	if err := e.compactHistory(ctx, mgr); err != nil {
		return llm.CompletionResponse{}, nil, err
	}

	req := llm.CompletionRequest{
		Messages:    mgr.CompletionMessages(),
		MaxTokens:   e.opts.MaxTokens,
		Temperature: e.opts.Temperature,
	}
	if e.deps.Registry != nil {
		req.Tools = e.deps.Registry.Definitions()
	}

	rc := pipeline.NewRequestContext(&req, iteration)

	if e.deps.Interceptors != nil {
		if err := e.deps.Interceptors.Run(ctx, rc); err != nil {
			return llm.CompletionResponse{}, nil, err
		}
	}
	if !rc.Answered {
		if err := e.deps.Pipeline.BeforeRequest(ctx, rc); err != nil {
			return llm.CompletionResponse{}, nil, err
		}
	}

	if !rc.Answered {
		resp, err := e.invokeBackend(ctx, rc, req)
		if err != nil {
			return llm.CompletionResponse{}, nil, err
		}
		rc.Response = &resp
	}

	if err := e.deps.Pipeline.AfterResponse(ctx, rc); err != nil {
		return llm.CompletionResponse{}, nil, err
	}
	return *rc.Response, rc, nil
}

// invokeBackend calls the backend, feeding failures through the error
// hooks. A stage may request one extra attempt per iteration by setting
// RetryRequested; the flag is honored at most once.
func (e *Executor) invokeBackend(ctx context.Context, rc *pipeline.RequestContext, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	resp, err := e.deps.Client.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}

	e.deps.Pipeline.OnError(ctx, rc, err)
	if !rc.RetryRequested || ctx.Err() != nil {
		return llm.CompletionResponse{}, err
	}

	rc.RetryRequested = false
	resp, retryErr := e.deps.Client.Complete(ctx, req)
	if retryErr == nil {
		return resp, nil
	}
	e.deps.Pipeline.OnError(ctx, rc, retryErr)
	return llm.CompletionResponse{}, retryErr
}

func (e *Executor) compactHistory(ctx context.Context, mgr *contextmgr.Manager) error {
	result, err := e.deps.Compactor.Compact(ctx, mgr.Messages(), e.opts.Compaction)
	if err != nil {
		return err
	}
	if result.WasCompacted {
		mgr.Replace(result.Messages)
		e.deps.Recorder.ObserveCompaction(e.deps.Compactor.Name(), result.TokensBefore, result.TokensAfter)
		e.deps.Logger.Debug("compacted history %d -> %d tokens (%s)",
			result.TokensBefore, result.TokensAfter, e.deps.Compactor.Name())
	}
	return nil
}

// persist hands the run's turns to the sink. Fire-and-forget; the run
// never waits on storage.
func (e *Executor) persist(runID string, mgr *contextmgr.Manager) {
	if e.deps.Sink == nil {
		return
	}

	messages := mgr.Messages()
	turns := make([]runstore.Turn, 0, len(messages))
	for i := range messages {
		m := &messages[i]
		turn := runstore.Turn{
			RunID:     runID,
			Seq:       i,
			MessageID: m.ID,
			Role:      string(m.Role),
			Content:   m.Content,
			CreatedAt: m.Timestamp,
		}
		if len(m.ToolResults) > 0 {
			turn.ToolCallID = m.ToolResults[0].ToolCallID
			turn.IsError = m.ToolResults[0].IsError
		}
		turns = append(turns, turn)
	}
	e.deps.Sink.Enqueue(turns)
}
