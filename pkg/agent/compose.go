package agent

import (
	"time"

	"agentcore/pkg/compact"
	"agentcore/pkg/config"
	"agentcore/pkg/llm"
	"agentcore/pkg/logx"
	"agentcore/pkg/metrics"
	"agentcore/pkg/resilience/bulkhead"
	"agentcore/pkg/resilience/circuit"
	"agentcore/pkg/resilience/dedup"
	"agentcore/pkg/resilience/ratelimit"
	"agentcore/pkg/resilience/retry"
	"agentcore/pkg/resilience/timeout"
	"agentcore/pkg/tokens"
)

// BuildClient wraps a raw backend in the full resilience and telemetry
// stack. Outermost to innermost: metrics observes everything including
// fast-fail rejections; dedup coalesces before any slot is claimed; the
// rate limiter and bulkhead admit; the breaker gates; retry re-attempts
// inside the slot the caller owns; the per-attempt timeout sits against
// the backend. The wrapped primitives are shared by every run using the
// returned client.
func BuildClient(backend llm.Client, cfg config.Config, recorder metrics.Recorder, counter tokens.Counter, logger *logx.Logger) llm.Client {
	res := cfg.Resilience
	model := backend.ModelName()

	breaker := circuit.New(circuit.Config{
		FailureThreshold: res.Circuit.FailureThreshold,
		SuccessThreshold: res.Circuit.SuccessThreshold,
		ResetTimeout:     res.Circuit.ResetTimeout.Std(),
	})
	policy := retry.NewPolicy(retry.Config{
		MaxRetries:   res.Retry.MaxRetries,
		InitialDelay: res.Retry.InitialDelay.Std(),
		MaxDelay:     res.Retry.MaxDelay.Std(),
		Multiplier:   res.Retry.Multiplier,
		JitterFactor: res.Retry.JitterFactor,
	}, nil)
	if recorder != nil {
		policy = policy.WithObserver(func(_ int, _ time.Duration, _ error) {
			recorder.IncRetry(model)
		})
	}
	gate := bulkhead.New(bulkhead.Config{
		MaxConcurrent: res.Bulkhead.MaxConcurrent,
		MaxQueue:      res.Bulkhead.MaxQueue,
		QueueWait:     res.Bulkhead.QueueWait.Std(),
	})
	if recorder != nil {
		gate = gate.WithObserver(func(wait time.Duration) {
			recorder.ObserveQueueWait(model, wait)
		})
	}
	coalescer := dedup.New(res.DedupTTL.Std())
	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: res.RateLimit.RequestsPerSecond,
		Burst:             res.RateLimit.Burst,
	})

	return llm.Chain(backend,
		metrics.Middleware(recorder, counter, logger),
		dedup.Middleware(coalescer, nil),
		ratelimit.Middleware(limiter),
		bulkhead.Middleware(gate),
		circuit.Middleware(breaker),
		retry.Middleware(policy),
		timeout.Middleware(cfg.Agent.RequestTimeout.Std()),
	)
}

// BuildCompactor selects the configured compaction strategy. The strategy
// name has already passed config validation.
func BuildCompactor(cfg config.CompactionConfig, counter tokens.Counter, summarizer compact.Summarizer) compact.Compactor {
	switch cfg.Strategy {
	case "semantic_compression":
		return compact.NewSemanticCompression(counter, summarizer)
	case "hierarchical":
		return compact.NewHierarchical(counter, summarizer)
	case "importance_based":
		return compact.NewImportanceBased(counter, nil)
	default:
		return compact.NewSlidingWindow(counter, summarizer)
	}
}

// OptionsFromConfig maps the loaded configuration onto executor options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		SystemPrompt:  cfg.Agent.SystemPrompt,
		MaxIterations: cfg.Agent.MaxIterations,
		MaxTokens:     cfg.Agent.MaxTokens,
		Temperature:   cfg.Agent.Temperature,
		ToolTimeout:   cfg.Agent.ToolTimeout.Std(),
		ParallelTools: cfg.Agent.ParallelTools,
		Compaction: compact.Options{
			MaxTokens:                   cfg.Compaction.MaxTokens,
			ReserveTokens:               cfg.Compaction.ReserveTokens,
			MinMessagesBeforeCompaction: cfg.Compaction.MinMessagesBeforeCompaction,
			PreserveRecentCount:         cfg.Compaction.PreserveRecentCount,
		},
	}
}
