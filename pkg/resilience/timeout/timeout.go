// Package timeout applies a per-request deadline around backend calls.
package timeout

import (
	"context"
	"time"

	"agentcore/pkg/llm"
	"agentcore/pkg/llmerrors"
)

// Middleware wraps each request in a timeout context. A deadline hit
// surfaces as a typed timeout error so the retry classifier can act on it.
// For streams the deadline covers the whole stream lifetime; the derived
// context is released once the source channel closes.
func Middleware(duration time.Duration) llm.Middleware {
	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()

				resp, err := next.Complete(timeoutCtx, req)
				if err != nil && timeoutCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
					return llm.CompletionResponse{}, llmerrors.Wrapf(
						llmerrors.ErrorTypeTimeout, err, "request exceeded %s", duration)
				}
				return resp, err
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)

				chunks, err := next.Stream(timeoutCtx, req)
				if err != nil {
					cancel()
					if timeoutCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
						return nil, llmerrors.Wrapf(
							llmerrors.ErrorTypeTimeout, err, "stream establishment exceeded %s", duration)
					}
					return nil, err
				}

				out := make(chan llm.StreamChunk)
				go func() {
					defer cancel()
					defer close(out)
					for chunk := range chunks {
						select {
						case out <- chunk:
						case <-timeoutCtx.Done():
							// Best effort: a consumer that has abandoned the
							// channel never receives the terminal chunk, and
							// this goroutine must not block on it.
							select {
							case out <- llm.StreamChunk{
								Err:  llmerrors.Wrapf(llmerrors.ErrorTypeTimeout, timeoutCtx.Err(), "stream exceeded %s", duration),
								Done: true,
							}:
							default:
							}
							return
						}
					}
				}()
				return out, nil
			},
			func() string { return next.ModelName() },
		)
	}
}
