package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"agentcore/pkg/llm"
	"agentcore/pkg/llmerrors"
	"agentcore/pkg/pipeline"
	"agentcore/pkg/tools"
)

// dispatchTools executes a response's tool calls and returns their results
// in call order. Tool failures become error-bearing results and never
// abort the run; only hook errors and cancellation propagate.
func (e *Executor) dispatchTools(ctx context.Context, rc *pipeline.RequestContext, calls []llm.ToolCall) ([]llm.ToolResult, error) {
	results := make([]llm.ToolResult, len(calls))

	if e.opts.ParallelTools && len(calls) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		for i := range calls {
			g.Go(func() error {
				results[i] = e.executeTool(gctx, calls[i])
				return nil
			})
		}
		// Workers never return errors; Wait only observes ctx teardown.
		_ = g.Wait()
	} else {
		for i := range calls {
			if err := ctx.Err(); err != nil {
				return nil, llmerrors.Wrap(llmerrors.ErrorTypeCancelled, err, "run cancelled during tool dispatch")
			}
			results[i] = e.executeTool(ctx, calls[i])
		}
	}

	for i := range calls {
		if err := e.deps.Pipeline.OnToolCall(ctx, rc, &calls[i]); err != nil {
			return nil, err
		}
		if err := e.deps.Pipeline.OnToolResult(ctx, rc, &results[i]); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// executeTool runs one tool call under the tool timeout. Every failure
// mode settles into a typed, error-bearing result.
func (e *Executor) executeTool(ctx context.Context, call llm.ToolCall) llm.ToolResult {
	var (
		tool tools.Tool
		ok   bool
	)
	if e.deps.Registry != nil {
		tool, ok = e.deps.Registry.Get(call.Name)
	}
	if !ok {
		err := llmerrors.Newf(llmerrors.ErrorTypeToolNotFound, "tool %q is not registered", call.Name)
		e.deps.Logger.Warn("tool call %s: %v", call.ID, err)
		return llm.ToolResult{ToolCallID: call.ID, Content: err.Error(), IsError: true}
	}

	toolCtx, cancel := context.WithTimeout(ctx, e.opts.ToolTimeout)
	defer cancel()

	out, err := tool.Exec(toolCtx, call.Arguments)
	if err != nil {
		wrapped := llmerrors.Wrapf(llmerrors.ErrorTypeToolExecution, err, "tool %q failed", call.Name)
		e.deps.Logger.Warn("tool call %s: %v", call.ID, wrapped)
		return llm.ToolResult{ToolCallID: call.ID, Content: wrapped.Error(), IsError: true}
	}

	content, err := encodeToolOutput(out)
	if err != nil {
		wrapped := llmerrors.Wrapf(llmerrors.ErrorTypeToolExecution, err, "tool %q returned unencodable output", call.Name)
		return llm.ToolResult{ToolCallID: call.ID, Content: wrapped.Error(), IsError: true}
	}
	return llm.ToolResult{ToolCallID: call.ID, Content: content}
}

// encodeToolOutput renders a tool's return value for the backend. Strings
// pass through; everything else is JSON.
func encodeToolOutput(out any) (string, error) {
	switch v := out.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("marshal tool output: %w", err)
		}
		return string(data), nil
	}
}
