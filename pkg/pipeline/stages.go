package pipeline

import (
	"context"
	"sync"

	"agentcore/pkg/llm"
	"agentcore/pkg/logx"
)

// LoggingStage records each invocation's lifecycle through the injected
// logger. Registered first so its after-response hook unwraps last, it
// brackets everything the other stages do.
type LoggingStage struct {
	logger *logx.Logger
}

// NewLoggingStage creates a logging stage. A nil logger gets a default.
func NewLoggingStage(logger *logx.Logger) *LoggingStage {
	if logger == nil {
		logger = logx.NewLogger("pipeline")
	}
	return &LoggingStage{logger: logger}
}

func (s *LoggingStage) Name() string { return "logging" }

func (s *LoggingStage) BeforeRequest(_ context.Context, rc *RequestContext) error {
	s.logger.Debug("iteration %d: sending %d messages, %d tools",
		rc.Iteration, len(rc.Request.Messages), len(rc.Request.Tools))
	return nil
}

func (s *LoggingStage) AfterResponse(_ context.Context, rc *RequestContext) error {
	if rc.Response != nil {
		s.logger.Debug("iteration %d: finish=%s tool_calls=%d",
			rc.Iteration, rc.Response.FinishReason, len(rc.Response.ToolCalls))
	}
	return nil
}

func (s *LoggingStage) OnError(_ context.Context, rc *RequestContext, callErr error) {
	s.logger.Warn("iteration %d: backend call failed: %v", rc.Iteration, callErr)
}

// CacheStage answers repeated identical requests from an in-memory cache,
// skipping the backend entirely. One instance may be shared across runs.
type CacheStage struct {
	mu    sync.Mutex
	cache map[string]llm.CompletionResponse
	keyFn func(req llm.CompletionRequest) string
}

// NewCacheStage creates a cache stage keyed by keyFn.
func NewCacheStage(keyFn func(req llm.CompletionRequest) string) *CacheStage {
	return &CacheStage{
		cache: make(map[string]llm.CompletionResponse),
		keyFn: keyFn,
	}
}

func (s *CacheStage) Name() string { return "cache" }

// BeforeRequest answers from cache on a hit and marks the hit in Meta.
func (s *CacheStage) BeforeRequest(_ context.Context, rc *RequestContext) error {
	key := s.keyFn(*rc.Request)

	s.mu.Lock()
	resp, ok := s.cache[key]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	rc.Response = &resp
	rc.Answered = true
	rc.Meta["cache_hit"] = true
	return nil
}

// AfterResponse stores completed answers. Tool-call responses are not
// cacheable; their follow-up turns carry fresh tool results.
func (s *CacheStage) AfterResponse(_ context.Context, rc *RequestContext) error {
	if rc.Answered || rc.Response == nil || len(rc.Response.ToolCalls) > 0 {
		return nil
	}

	s.mu.Lock()
	s.cache[s.keyFn(*rc.Request)] = *rc.Response
	s.mu.Unlock()
	return nil
}

// Len returns the number of cached responses.
func (s *CacheStage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cache)
}
