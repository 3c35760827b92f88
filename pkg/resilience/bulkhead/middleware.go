package bulkhead

import (
	"context"

	"agentcore/pkg/llm"
)

// Middleware wraps a client with bulkhead admission. The slot is held for
// the duration of the wrapped call, which places retry backoff sleeps
// inside the slot the caller already owns.
func Middleware(b *Bulkhead) llm.Middleware {
	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				release, err := b.Acquire(ctx)
				if err != nil {
					return llm.CompletionResponse{}, err
				}
				defer release()
				return next.Complete(ctx, req)
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				release, err := b.Acquire(ctx)
				if err != nil {
					return nil, err
				}
				// The slot covers stream establishment only; holding it
				// until the consumer drains the channel would starve
				// other runs on slow readers.
				defer release()
				return next.Stream(ctx, req)
			},
			func() string { return next.ModelName() },
		)
	}
}
