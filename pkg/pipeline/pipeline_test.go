package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentcore/pkg/llm"
)

// recordingStage appends phase markers to a shared trace.
type recordingStage struct {
	name      string
	trace     *[]string
	beforeErr error
	afterErr  error
	retry     bool
}

func (s *recordingStage) Name() string { return s.name }

func (s *recordingStage) BeforeRequest(_ context.Context, _ *RequestContext) error {
	*s.trace = append(*s.trace, "before:"+s.name)
	return s.beforeErr
}

func (s *recordingStage) AfterResponse(_ context.Context, _ *RequestContext) error {
	*s.trace = append(*s.trace, "after:"+s.name)
	return s.afterErr
}

func (s *recordingStage) OnError(_ context.Context, rc *RequestContext, _ error) {
	*s.trace = append(*s.trace, "error:"+s.name)
	if s.retry {
		rc.RetryRequested = true
	}
}

func (s *recordingStage) OnToolCall(_ context.Context, _ *RequestContext, call *llm.ToolCall) error {
	*s.trace = append(*s.trace, "toolcall:"+s.name+":"+call.Name)
	return nil
}

func (s *recordingStage) OnToolResult(_ context.Context, _ *RequestContext, _ *llm.ToolResult) error {
	*s.trace = append(*s.trace, "toolresult:"+s.name)
	return nil
}

// answeringStage resolves the request without a backend call.
type answeringStage struct{ content string }

func (s *answeringStage) Name() string { return "answering" }

func (s *answeringStage) BeforeRequest(_ context.Context, rc *RequestContext) error {
	rc.Response = &llm.CompletionResponse{Content: s.content, FinishReason: llm.FinishStop}
	rc.Answered = true
	return nil
}

func newRC(iteration int) *RequestContext {
	req := llm.NewRequest([]llm.CompletionMessage{llm.UserMessage("hi")})
	return NewRequestContext(&req, iteration)
}

func TestBeforeRequestRunsInRegistrationOrder(t *testing.T) {
	var trace []string
	p := New(nil,
		&recordingStage{name: "a", trace: &trace},
		&recordingStage{name: "b", trace: &trace},
		&recordingStage{name: "c", trace: &trace},
	)

	require.NoError(t, p.BeforeRequest(context.Background(), newRC(1)))
	assert.Equal(t, []string{"before:a", "before:b", "before:c"}, trace)
}

func TestAfterResponseRunsInReverseOrder(t *testing.T) {
	var trace []string
	p := New(nil,
		&recordingStage{name: "a", trace: &trace},
		&recordingStage{name: "b", trace: &trace},
		&recordingStage{name: "c", trace: &trace},
	)

	require.NoError(t, p.AfterResponse(context.Background(), newRC(1)))
	assert.Equal(t, []string{"after:c", "after:b", "after:a"}, trace)
}

func TestAnsweredContextSkipsLaterStages(t *testing.T) {
	var trace []string
	p := New(nil,
		&recordingStage{name: "a", trace: &trace},
		&answeringStage{content: "cached"},
		&recordingStage{name: "b", trace: &trace},
	)

	rc := newRC(1)
	require.NoError(t, p.BeforeRequest(context.Background(), rc))

	assert.True(t, rc.Answered)
	assert.Equal(t, "cached", rc.Response.Content)
	assert.Equal(t, []string{"before:a"}, trace, "stages after the answering one must not run")
}

func TestFailingStageAbortsPhase(t *testing.T) {
	var trace []string
	boom := errors.New("boom")
	p := New(nil,
		&recordingStage{name: "a", trace: &trace},
		&recordingStage{name: "b", trace: &trace, beforeErr: boom},
		&recordingStage{name: "c", trace: &trace},
	)

	err := p.BeforeRequest(context.Background(), newRC(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "stage b")
	assert.Equal(t, []string{"before:a", "before:b"}, trace)
}

func TestOnErrorRunsEveryHook(t *testing.T) {
	var trace []string
	p := New(nil,
		&recordingStage{name: "a", trace: &trace},
		&recordingStage{name: "b", trace: &trace, retry: true},
		&recordingStage{name: "c", trace: &trace},
	)

	rc := newRC(1)
	p.OnError(context.Background(), rc, errors.New("backend down"))

	assert.Equal(t, []string{"error:a", "error:b", "error:c"}, trace)
	assert.True(t, rc.RetryRequested)
}

func TestToolHooks(t *testing.T) {
	var trace []string
	p := New(nil, &recordingStage{name: "a", trace: &trace})

	rc := newRC(1)
	call := &llm.ToolCall{ID: "c1", Name: "add"}
	require.NoError(t, p.OnToolCall(context.Background(), rc, call))
	require.NoError(t, p.OnToolResult(context.Background(), rc, &llm.ToolResult{ToolCallID: "c1"}))

	assert.Equal(t, []string{"toolcall:a:add", "toolresult:a"}, trace)
}

func TestStageWithoutHookIsSkipped(t *testing.T) {
	p := New(nil, &answeringStage{content: "x"})
	// answeringStage has no response/error/tool hooks; the phases no-op.
	require.NoError(t, p.AfterResponse(context.Background(), newRC(1)))
	p.OnError(context.Background(), newRC(1), errors.New("x"))
	require.NoError(t, p.OnToolCall(context.Background(), newRC(1), &llm.ToolCall{}))
}

func TestInterceptorChainProceeds(t *testing.T) {
	chain := NewInterceptorChain(
		NewInterceptor("pass", func(_ context.Context, _ *RequestContext) InterceptorResult {
			return Proceed()
		}),
	)

	rc := newRC(1)
	require.NoError(t, chain.Run(context.Background(), rc))
	assert.False(t, rc.Answered)
}

func TestInterceptorSubstitutesResponse(t *testing.T) {
	var secondRan bool
	chain := NewInterceptorChain(
		NewInterceptor("filter", func(_ context.Context, _ *RequestContext) InterceptorResult {
			return Substitute("request declined")
		}),
		NewInterceptor("never", func(_ context.Context, _ *RequestContext) InterceptorResult {
			secondRan = true
			return Proceed()
		}),
	)

	rc := newRC(1)
	require.NoError(t, chain.Run(context.Background(), rc))

	assert.True(t, rc.Answered)
	assert.Equal(t, "request declined", rc.Response.Content)
	assert.False(t, secondRan, "chain must stop at the substituting interceptor")
}

func TestInterceptorRejectsWithError(t *testing.T) {
	boom := errors.New("prompt injection detected")
	chain := NewInterceptorChain(
		NewInterceptor("screen", func(_ context.Context, _ *RequestContext) InterceptorResult {
			return Reject(boom)
		}),
	)

	err := chain.Run(context.Background(), newRC(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "screen")
}

func TestCacheStageAnswersSecondCall(t *testing.T) {
	keyFn := func(req llm.CompletionRequest) string {
		if len(req.Messages) == 0 {
			return ""
		}
		return req.Messages[len(req.Messages)-1].Content
	}
	cache := NewCacheStage(keyFn)
	p := New(nil, cache)

	// First pass: miss, then store the backend's answer.
	rc := newRC(1)
	require.NoError(t, p.BeforeRequest(context.Background(), rc))
	require.False(t, rc.Answered)
	rc.Response = &llm.CompletionResponse{Content: "four", FinishReason: llm.FinishStop}
	require.NoError(t, p.AfterResponse(context.Background(), rc))
	assert.Equal(t, 1, cache.Len())

	// Second identical pass: hit.
	rc2 := newRC(1)
	require.NoError(t, p.BeforeRequest(context.Background(), rc2))
	assert.True(t, rc2.Answered)
	assert.Equal(t, "four", rc2.Response.Content)
	assert.Equal(t, true, rc2.Meta["cache_hit"])
}

func TestCacheStageSkipsToolCallResponses(t *testing.T) {
	cache := NewCacheStage(func(req llm.CompletionRequest) string { return "k" })
	p := New(nil, cache)

	rc := newRC(1)
	rc.Response = &llm.CompletionResponse{
		ToolCalls:    []llm.ToolCall{{ID: "c1", Name: "add"}},
		FinishReason: llm.FinishToolCalls,
	}
	require.NoError(t, p.AfterResponse(context.Background(), rc))
	assert.Equal(t, 0, cache.Len())
}
