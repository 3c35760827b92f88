package dedup

import (
	"context"

	"agentcore/pkg/llm"
)

// Middleware coalesces concurrent Complete calls with identical keys into
// one backend invocation. Stream passes through untouched: a stream's
// channel cannot be fanned out to multiple consumers without buffering the
// whole response.
func Middleware(d *Deduplicator, keyFn KeyFunc) llm.Middleware {
	if keyFn == nil {
		keyFn = DefaultKey
	}
	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				return d.Do(ctx, keyFn(req), func(ctx context.Context) (llm.CompletionResponse, error) {
					return next.Complete(ctx, req)
				})
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				return next.Stream(ctx, req)
			},
			func() string { return next.ModelName() },
		)
	}
}
