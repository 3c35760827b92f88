package llm

import "context"

// Middleware wraps a Client with additional behavior. Middlewares compose
// via Chain into the resilience stack around every backend invocation.
type Middleware func(next Client) Client

// clientFunc adapts plain functions to the Client interface so middleware
// implementations stay anonymous.
type clientFunc struct {
	complete  func(context.Context, CompletionRequest) (CompletionResponse, error)
	stream    func(context.Context, CompletionRequest) (<-chan StreamChunk, error)
	modelName func() string
}

func (f clientFunc) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	return f.complete(ctx, req)
}

func (f clientFunc) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	return f.stream(ctx, req)
}

func (f clientFunc) ModelName() string {
	return f.modelName()
}

// WrapClient builds a Client from the provided function implementations.
func WrapClient(
	complete func(context.Context, CompletionRequest) (CompletionResponse, error),
	stream func(context.Context, CompletionRequest) (<-chan StreamChunk, error),
	modelName func() string,
) Client {
	return clientFunc{
		complete:  complete,
		stream:    stream,
		modelName: modelName,
	}
}

// Chain composes middlewares around a base client. The first middleware in
// the slice becomes the outermost wrapper:
//
//	Chain(client, mw1, mw2, mw3)  =>  mw1 -> mw2 -> mw3 -> client
//
// The resilience core composes as Chain(backend, dedup, bulkhead, circuit,
// retry): coalesced callers share one breaker/retry outcome, and retry
// backoff sleeps happen inside the bulkhead slot they already own rather
// than holding a duplicate's. agent.BuildClient adds the telemetry,
// rate-limit, and timeout stages around that core.
func Chain(base Client, middlewares ...Middleware) Client {
	client := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		client = middlewares[i](client)
	}
	return client
}
