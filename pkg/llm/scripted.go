package llm

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedClient is a controllable Client for tests and examples. Each call
// consumes the next scripted step: either an error or a response. It is
// safe for concurrent use so resilience wrappers can be exercised.
type ScriptedClient struct {
	mu    sync.Mutex
	steps []scriptStep
	next  int
	calls int
	model string
}

type scriptStep struct {
	resp CompletionResponse
	err  error
}

// NewScriptedClient creates a client that replays the given responses in
// order.
func NewScriptedClient(responses ...CompletionResponse) *ScriptedClient {
	c := &ScriptedClient{model: "scripted"}
	for _, r := range responses {
		c.steps = append(c.steps, scriptStep{resp: r})
	}
	return c
}

// ScriptError appends a failing step to the script.
func (c *ScriptedClient) ScriptError(err error) *ScriptedClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = append(c.steps, scriptStep{err: err})
	return c
}

// ScriptResponse appends a successful step to the script.
func (c *ScriptedClient) ScriptResponse(resp CompletionResponse) *ScriptedClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = append(c.steps, scriptStep{resp: resp})
	return c
}

// Calls reports how many times the client has been invoked.
func (c *ScriptedClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *ScriptedClient) step() (CompletionResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	if c.next >= len(c.steps) {
		return CompletionResponse{}, fmt.Errorf("scripted client: no more responses (call %d)", c.calls)
	}
	s := c.steps[c.next]
	c.next++
	return s.resp, s.err
}

// Complete returns the next scripted response or error.
func (c *ScriptedClient) Complete(ctx context.Context, _ CompletionRequest) (CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return CompletionResponse{}, err
	}
	return c.step()
}

// Stream replays the next scripted response as chunks: one per tool call,
// one content delta, then the terminal chunk.
func (c *ScriptedClient) Stream(ctx context.Context, _ CompletionRequest) (<-chan StreamChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := c.step()
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)
		for i := range resp.ToolCalls {
			tc := resp.ToolCalls[i]
			select {
			case ch <- StreamChunk{ToolCall: &tc}:
			case <-ctx.Done():
				return
			}
		}
		if resp.Content != "" {
			select {
			case ch <- StreamChunk{Content: resp.Content}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case ch <- StreamChunk{Done: true, FinishReason: resp.FinishReason}:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

// ModelName identifies the scripted model.
func (c *ScriptedClient) ModelName() string {
	return c.model
}
