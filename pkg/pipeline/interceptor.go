package pipeline

import (
	"context"
	"fmt"

	"agentcore/pkg/llm"
)

// InterceptorResult is one interceptor's verdict on a request.
type InterceptorResult struct {
	// Response substitutes the backend's answer when the chain stops here.
	Response string
	// Err aborts the invocation with an error when the chain stops here.
	Err error
	// Continue lets the next interceptor (and ultimately the backend) run.
	Continue bool
}

// Proceed lets the chain continue to the next interceptor.
func Proceed() InterceptorResult {
	return InterceptorResult{Continue: true}
}

// Substitute stops the chain and answers the request with content,
// bypassing the backend.
func Substitute(content string) InterceptorResult {
	return InterceptorResult{Response: content}
}

// Reject stops the chain and fails the invocation.
func Reject(err error) InterceptorResult {
	return InterceptorResult{Err: err}
}

// Interceptor screens a request before the backend sees it. Unlike
// pipeline stages, an interceptor can hard-stop the entire invocation,
// which is what content filtering and prompt-injection screening need.
type Interceptor interface {
	Name() string
	Intercept(ctx context.Context, rc *RequestContext) InterceptorResult
}

// InterceptorFunc adapts a function to the Interceptor interface.
type InterceptorFunc struct {
	name string
	fn   func(ctx context.Context, rc *RequestContext) InterceptorResult
}

// NewInterceptor wraps fn as a named interceptor.
func NewInterceptor(name string, fn func(ctx context.Context, rc *RequestContext) InterceptorResult) InterceptorFunc {
	return InterceptorFunc{name: name, fn: fn}
}

func (f InterceptorFunc) Name() string { return f.name }

func (f InterceptorFunc) Intercept(ctx context.Context, rc *RequestContext) InterceptorResult {
	return f.fn(ctx, rc)
}

// InterceptorChain runs interceptors in order until one stops the chain.
type InterceptorChain struct {
	interceptors []Interceptor
}

// NewInterceptorChain creates a chain over the given interceptors.
func NewInterceptorChain(interceptors ...Interceptor) *InterceptorChain {
	return &InterceptorChain{interceptors: interceptors}
}

// Run evaluates the chain. A substituted response is written into
// rc.Response with rc.Answered set; a rejection returns the interceptor's
// error. When every interceptor continues, Run returns nil and the caller
// proceeds to the backend.
func (c *InterceptorChain) Run(ctx context.Context, rc *RequestContext) error {
	for _, ic := range c.interceptors {
		result := ic.Intercept(ctx, rc)
		if result.Continue {
			continue
		}
		if result.Err != nil {
			return fmt.Errorf("interceptor %s rejected request: %w", ic.Name(), result.Err)
		}
		rc.Response = &llm.CompletionResponse{
			Content:      result.Response,
			FinishReason: llm.FinishStop,
		}
		rc.Answered = true
		return nil
	}
	return nil
}
