package metrics

import (
	"context"
	"time"

	"agentcore/pkg/llm"
	"agentcore/pkg/llmerrors"
	"agentcore/pkg/logx"
	"agentcore/pkg/tokens"
)

// Middleware records latency, token usage, and status for every backend
// call. A panicking recorder is contained so telemetry can never fail a
// request.
func Middleware(recorder Recorder, counter tokens.Counter, logger *logx.Logger) llm.Middleware {
	if recorder == nil {
		recorder = Nop()
	}
	if counter == nil {
		counter = tokens.EstimateCounter{}
	}

	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				prompt, completion := usage(counter, req, resp, err)
				record(logger, func() {
					recorder.ObserveRequest(next.ModelName(), statusOf(err), errorLabel(err), prompt, completion, duration)
					countRejection(recorder, next.ModelName(), err)
				})

				if logger != nil {
					logger.Debug("backend call: model=%s tokens=%d+%d status=%s duration=%dms",
						next.ModelName(), prompt, completion, statusOf(err), duration.Milliseconds())
				}
				return resp, err
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				start := time.Now()
				ch, err := next.Stream(ctx, req)

				// Streams record establishment only; counting completion
				// tokens would mean consuming the channel.
				record(logger, func() {
					recorder.ObserveRequest(next.ModelName(), statusOf(err), errorLabel(err), 0, 0, time.Since(start))
					countRejection(recorder, next.ModelName(), err)
				})
				return ch, err
			},
			func() string { return next.ModelName() },
		)
	}
}

// countRejection counts admission fast-fails separately from ordinary
// request failures so rejection rates are visible on their own.
func countRejection(recorder Recorder, model string, err error) {
	switch llmerrors.TypeOf(err) {
	case llmerrors.ErrorTypeCircuitOpen, llmerrors.ErrorTypeBulkheadRejected, llmerrors.ErrorTypeRateLimited:
		recorder.IncRejection(model, llmerrors.TypeOf(err).String())
	}
}

// record runs fn, swallowing recorder panics.
func record(logger *logx.Logger, fn func()) {
	defer func() {
		if r := recover(); r != nil && logger != nil {
			logger.Warn("metrics recorder panicked: %v", r)
		}
	}()
	fn()
}

func usage(counter tokens.Counter, req llm.CompletionRequest, resp llm.CompletionResponse, err error) (prompt, completion int) {
	if err != nil {
		return 0, 0
	}
	if resp.Usage != nil {
		return resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	}
	for i := range req.Messages {
		prompt += counter.Count(req.Messages[i].Content)
	}
	completion = counter.Count(resp.Content)
	return prompt, completion
}

func statusOf(err error) string {
	if err != nil {
		return statusError
	}
	return statusSuccess
}

func errorLabel(err error) string {
	if err == nil {
		return ""
	}
	return llmerrors.TypeOf(err).String()
}
