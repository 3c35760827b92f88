package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// taggingMiddleware appends its tag to the request's first message on the
// way in and to the response content on the way out.
func taggingMiddleware(tag string) Middleware {
	return func(next Client) Client {
		return WrapClient(
			func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				msgs := append([]CompletionMessage(nil), req.Messages...)
				if len(msgs) > 0 {
					msgs[0].Content += ">" + tag
				}
				req.Messages = msgs
				resp, err := next.Complete(ctx, req)
				resp.Content += "<" + tag
				return resp, err
			},
			func(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
				return next.Stream(ctx, req)
			},
			func() string { return next.ModelName() },
		)
	}
}

func TestChainOrdering(t *testing.T) {
	var seen string
	base := WrapClient(
		func(_ context.Context, req CompletionRequest) (CompletionResponse, error) {
			seen = req.Messages[0].Content
			return CompletionResponse{Content: "base"}, nil
		},
		func(_ context.Context, _ CompletionRequest) (<-chan StreamChunk, error) {
			return nil, nil
		},
		func() string { return "base-model" },
	)

	client := Chain(base, taggingMiddleware("outer"), taggingMiddleware("inner"))
	resp, err := client.Complete(context.Background(), NewRequest([]CompletionMessage{UserMessage("req")}))
	require.NoError(t, err)

	// Request passes outer first, response unwinds inner first.
	assert.Equal(t, "req>outer>inner", seen)
	assert.Equal(t, "base<inner<outer", resp.Content)
	assert.Equal(t, "base-model", client.ModelName())
}

func TestChainEmptyIsBase(t *testing.T) {
	base := NewScriptedClient(CompletionResponse{Content: "hi", FinishReason: FinishStop})
	client := Chain(base)

	resp, err := client.Complete(context.Background(), NewRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Content)
}

func TestScriptedClientStream(t *testing.T) {
	client := NewScriptedClient(CompletionResponse{
		Content:      "The sum is 5.",
		ToolCalls:    []ToolCall{{ID: "tc-1", Name: "add"}},
		FinishReason: FinishStop,
	})

	ch, err := client.Stream(context.Background(), NewRequest(nil))
	require.NoError(t, err)

	var chunks []StreamChunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	require.Len(t, chunks, 3)
	assert.Equal(t, "add", chunks[0].ToolCall.Name)
	assert.Equal(t, "The sum is 5.", chunks[1].Content)
	assert.True(t, chunks[2].Done)
}

func TestScriptedClientExhausted(t *testing.T) {
	client := NewScriptedClient()
	_, err := client.Complete(context.Background(), NewRequest(nil))
	assert.Error(t, err)
	assert.Equal(t, 1, client.Calls())
}
