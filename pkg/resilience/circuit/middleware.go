package circuit

import (
	"context"

	"agentcore/pkg/llm"
)

// Middleware wraps a client with breaker admission. Rejected calls never
// reach the underlying client; admitted calls record their outcome.
func Middleware(breaker *Breaker) llm.Middleware {
	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				if err := breaker.Allow(); err != nil {
					return llm.CompletionResponse{}, err
				}
				resp, err := next.Complete(ctx, req)
				breaker.Record(err == nil)
				return resp, err
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				if err := breaker.Allow(); err != nil {
					return nil, err
				}
				// Stream establishment is the admitted outcome; chunk
				// errors are between the consumer and the backend.
				ch, err := next.Stream(ctx, req)
				breaker.Record(err == nil)
				return ch, err
			},
			func() string { return next.ModelName() },
		)
	}
}
