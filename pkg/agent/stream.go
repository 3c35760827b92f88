package agent

import (
	"context"

	"github.com/google/uuid"

	"agentcore/pkg/contextmgr"
	"agentcore/pkg/llm"
	"agentcore/pkg/llmerrors"
	"agentcore/pkg/pipeline"
)

// EventType tags a streamed run event.
type EventType string

const (
	// EventContent is a partial content fragment.
	EventContent EventType = "content"
	// EventToolCall announces a tool the backend asked for.
	EventToolCall EventType = "tool_call"
	// EventToolResult reports one executed tool's outcome.
	EventToolResult EventType = "tool_result"
	// EventDone is the terminal completion marker.
	EventDone EventType = "done"
	// EventInterrupted is the terminal marker for a cancelled run; Content
	// carries whatever had streamed before the interruption.
	EventInterrupted EventType = "interrupted"
)

// Event is one element of a streamed run. Exactly one terminal event
// (done or interrupted) ends the sequence.
type Event struct {
	Err        error
	ToolCall   *llm.ToolCall
	ToolResult *llm.ToolResult
	Result     *Result
	Content    string
	Type       EventType
}

// Stream executes a conversation, emitting events as they happen. The
// returned channel is lazy, finite, and non-restartable; it closes after
// the terminal event. Event order is strict FIFO within the run.
func (e *Executor) Stream(ctx context.Context, input string) (<-chan Event, error) {
	if ctx.Err() != nil {
		return nil, llmerrors.Wrap(llmerrors.ErrorTypeCancelled, ctx.Err(), "run cancelled")
	}

	events := make(chan Event, 16)
	go e.streamRun(ctx, input, events)
	return events, nil
}

func (e *Executor) streamRun(ctx context.Context, input string, events chan<- Event) {
	defer close(events)

	runID := uuid.NewString()
	mgr := contextmgr.New(e.deps.Counter)
	if e.opts.SystemPrompt != "" {
		mgr.SetSystemPrompt(e.opts.SystemPrompt)
	}
	mgr.AppendUser(input)
	defer e.persist(runID, mgr)

	result := &Result{RunID: runID}

	for iteration := 1; iteration <= e.opts.MaxIterations; iteration++ {
		if ctx.Err() != nil {
			e.emit(ctx, events, Event{Type: EventInterrupted,
				Err: llmerrors.Wrap(llmerrors.ErrorTypeCancelled, ctx.Err(), "run cancelled")})
			return
		}
		result.Iterations = iteration

		resp, rc, interrupted, err := e.streamStep(ctx, mgr, iteration, events)
		if interrupted {
			return
		}
		if err != nil {
			e.emit(ctx, events, Event{Type: EventDone, Err: err})
			return
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
			e.emit(ctx, events, Event{Type: EventDone, Result: result})
			return
		}

		toolResults, err := e.dispatchTools(ctx, rc, resp.ToolCalls)
		if err != nil {
			e.emit(ctx, events, Event{Type: EventDone, Err: err})
			return
		}
		for i := range toolResults {
			mgr.AppendToolResult(toolResults[i])
			result.ToolResults = append(result.ToolResults, toolResults[i])
			e.emit(ctx, events, Event{Type: EventToolResult, ToolResult: &toolResults[i]})
		}
	}

	e.emit(ctx, events, Event{Type: EventDone, Err: llmerrors.Newf(llmerrors.ErrorTypeMaxIterations,
		"no final answer after %d iterations", e.opts.MaxIterations)})
}

// streamStep is the streaming analogue of step: one compaction, pipeline
// pass, and backend stream drain, emitting fragments as they arrive.
func (e *Executor) streamStep(ctx context.Context, mgr *contextmgr.Manager, iteration int, events chan<- Event) (llm.CompletionResponse, *pipeline.RequestContext, bool, error) {
	if err := e.compactHistory(ctx, mgr); err != nil {
		return llm.CompletionResponse{}, nil, false, err
	}

	req := llm.CompletionRequest{
		Messages:    mgr.CompletionMessages(),
		MaxTokens:   e.opts.MaxTokens,
		Temperature: e.opts.Temperature,
		Stream:      true,
	}
	if e.deps.Registry != nil {
		req.Tools = e.deps.Registry.Definitions()
	}

	rc := pipeline.NewRequestContext(&req, iteration)

	if e.deps.Interceptors != nil {
		if err := e.deps.Interceptors.Run(ctx, rc); err != nil {
			return llm.CompletionResponse{}, nil, false, err
		}
	}
	if !rc.Answered {
		if err := e.deps.Pipeline.BeforeRequest(ctx, rc); err != nil {
			return llm.CompletionResponse{}, nil, false, err
		}
	}

	if rc.Answered {
		if rc.Response.Content != "" {
			e.emit(ctx, events, Event{Type: EventContent, Content: rc.Response.Content})
		}
	} else {
		resp, interrupted, err := e.drainStream(ctx, rc, req, events)
		if interrupted || err != nil {
			return llm.CompletionResponse{}, nil, interrupted, err
		}
		rc.Response = &resp
	}

	if err := e.deps.Pipeline.AfterResponse(ctx, rc); err != nil {
		return llm.CompletionResponse{}, nil, false, err
	}
	return *rc.Response, rc, false, nil
}

// drainStream consumes one backend stream, emitting content fragments and
// tool-call announcements, and assembles the full response. Cancellation
// mid-stream preserves the streamed prefix as an interrupted fragment.
// Failures run the error hooks but rc.RetryRequested is not honored here:
// fragments already emitted to the consumer cannot be replayed.
func (e *Executor) drainStream(ctx context.Context, rc *pipeline.RequestContext, req llm.CompletionRequest, events chan<- Event) (llm.CompletionResponse, bool, error) {
	chunks, err := e.deps.Client.Stream(ctx, req)
	if err != nil {
		e.deps.Pipeline.OnError(ctx, rc, err)
		return llm.CompletionResponse{}, false, err
	}

	var resp llm.CompletionResponse
	var content []byte
	for chunk := range chunks {
		if chunk.Err != nil {
			e.deps.Pipeline.OnError(ctx, rc, chunk.Err)
			return llm.CompletionResponse{}, false, chunk.Err
		}
		if chunk.Content != "" {
			content = append(content, chunk.Content...)
			e.emit(ctx, events, Event{Type: EventContent, Content: chunk.Content})
		}
		if chunk.ToolCall != nil {
			resp.ToolCalls = append(resp.ToolCalls, *chunk.ToolCall)
			e.emit(ctx, events, Event{Type: EventToolCall, ToolCall: chunk.ToolCall})
		}
		if chunk.Done {
			resp.FinishReason = chunk.FinishReason
		}

		if ctx.Err() != nil {
			e.emit(ctx, events, Event{Type: EventInterrupted, Content: string(content),
				Err: llmerrors.Wrap(llmerrors.ErrorTypeCancelled, ctx.Err(), "run cancelled mid-stream")})
			return llm.CompletionResponse{}, true, nil
		}
	}

	resp.Content = string(content)
	if resp.FinishReason == "" {
		if len(resp.ToolCalls) > 0 {
			resp.FinishReason = llm.FinishToolCalls
		} else {
			resp.FinishReason = llm.FinishStop
		}
	}
	return resp, false, nil
}

// emit delivers an event in order, blocking on a slow consumer. Under
// cancellation the send becomes best effort so teardown never wedges on an
// abandoned channel.
func (e *Executor) emit(ctx context.Context, events chan<- Event, ev Event) {
	select {
	case events <- ev:
	case <-ctx.Done():
		select {
		case events <- ev:
		default:
			e.deps.Logger.Warn("dropping %s event for cancelled run", ev.Type)
		}
	}
}
