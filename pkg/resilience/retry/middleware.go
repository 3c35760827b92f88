package retry

import (
	"context"

	"agentcore/pkg/llm"
)

// Middleware wraps a client with the retry policy. Stream establishment is
// retried the same way as Complete; chunk-level failures after the stream
// is open are not, since partial output has already been delivered.
func Middleware(policy *Policy) llm.Middleware {
	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				var resp llm.CompletionResponse
				err := policy.Execute(ctx, func(ctx context.Context) error {
					var callErr error
					resp, callErr = next.Complete(ctx, req)
					return callErr
				})
				return resp, err
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				var ch <-chan llm.StreamChunk
				err := policy.Execute(ctx, func(ctx context.Context) error {
					var callErr error
					ch, callErr = next.Stream(ctx, req)
					return callErr
				})
				return ch, err
			},
			func() string { return next.ModelName() },
		)
	}
}
