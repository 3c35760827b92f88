// agentdemo runs one conversation through the full execution stack with a
// scripted backend and a calculator tool, so the loop, pipeline, resilience
// chain, and persistence can be exercised without a live model.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"agentcore/pkg/agent"
	"agentcore/pkg/config"
	"agentcore/pkg/llm"
	"agentcore/pkg/logx"
	"agentcore/pkg/metrics"
	"agentcore/pkg/pipeline"
	"agentcore/pkg/runstore"
	"agentcore/pkg/tokens"
	"agentcore/pkg/tools"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config (defaults used when empty)")
		prompt     = flag.String("prompt", "What is 2 + 3?", "User prompt for the run")
		stream     = flag.Bool("stream", false, "Stream events instead of waiting for the result")
	)
	flag.Parse()

	if err := run(*configPath, *prompt, *stream); err != nil {
		fmt.Fprintf(os.Stderr, "agentdemo: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, prompt string, stream bool) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	logger := logx.NewLogger("agentdemo")
	logger.SetDebug(cfg.Logging.Debug)

	var counter tokens.Counter = tokens.EstimateCounter{}
	if tk, err := tokens.NewCounter(cfg.Agent.Model); err == nil {
		counter = tk
	} else {
		logger.Warn("no tokenizer for model %q, using length estimate: %v", cfg.Agent.Model, err)
	}

	registry, err := tools.NewRegistry(calculatorTool())
	if err != nil {
		return err
	}

	backend := scriptedBackend()
	recorder := metrics.NewPrometheusRecorder()
	client := agent.BuildClient(backend, cfg, recorder, counter, logger)

	deps := agent.Deps{
		Client:    client,
		Registry:  registry,
		Pipeline:  pipeline.New(logger, pipeline.NewLoggingStage(logger)),
		Compactor: agent.BuildCompactor(cfg.Compaction, counter, nil),
		Counter:   counter,
		Recorder:  recorder,
		Logger:    logger,
	}

	if cfg.Persistence.Enabled {
		store, err := runstore.Open(cfg.Persistence.DBPath)
		if err != nil {
			return err
		}
		worker := runstore.NewWorker(store, logger)
		defer func() {
			worker.Close()
			if err := store.Close(); err != nil {
				logger.Warn("closing run store: %v", err)
			}
		}()
		deps.Sink = worker
	}

	executor, err := agent.New(deps, agent.OptionsFromConfig(cfg))
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if stream {
		return runStreaming(ctx, executor, prompt)
	}

	result, err := executor.Run(ctx, prompt)
	if err != nil {
		return err
	}
	fmt.Printf("run %s finished in %d iteration(s)\n", result.RunID, result.Iterations)
	for _, tr := range result.ToolResults {
		fmt.Printf("  tool %s -> %s\n", tr.ToolCallID, tr.Content)
	}
	fmt.Println(result.Content)
	return nil
}

func runStreaming(ctx context.Context, executor *agent.Executor, prompt string) error {
	events, err := executor.Stream(ctx, prompt)
	if err != nil {
		return err
	}
	for ev := range events {
		switch ev.Type {
		case agent.EventContent:
			fmt.Print(ev.Content)
		case agent.EventToolCall:
			fmt.Printf("[tool call: %s]\n", ev.ToolCall.Name)
		case agent.EventToolResult:
			fmt.Printf("[tool result: %s]\n", ev.ToolResult.Content)
		case agent.EventDone:
			fmt.Println()
			if ev.Err != nil {
				return ev.Err
			}
		case agent.EventInterrupted:
			fmt.Println()
			return ev.Err
		}
	}
	return nil
}

// scriptedBackend replays a two-turn exchange: ask for the calculator, then
// answer using its result.
func scriptedBackend() llm.Client {
	return llm.NewScriptedClient(
		llm.CompletionResponse{
			ToolCalls: []llm.ToolCall{{
				ID:        "call-1",
				Name:      "add",
				Arguments: map[string]any{"a": 2.0, "b": 3.0},
			}},
			FinishReason: llm.FinishToolCalls,
			Usage:        &llm.Usage{PromptTokens: 24, CompletionTokens: 12, TotalTokens: 36},
		},
		llm.CompletionResponse{
			Content:      "The sum is 5.",
			FinishReason: llm.FinishStop,
			Usage:        &llm.Usage{PromptTokens: 40, CompletionTokens: 6, TotalTokens: 46},
		},
	)
}

func calculatorTool() tools.Tool {
	return tools.NewFunctionTool(
		"add",
		"Adds two numbers and returns the sum.",
		tools.InputSchema{
			Type: "object",
			Properties: map[string]tools.Property{
				"a": {Type: "number", Description: "First addend"},
				"b": {Type: "number", Description: "Second addend"},
			},
			Required: []string{"a", "b"},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			a, _ := args["a"].(float64)
			b, _ := args["b"].(float64)
			return map[string]any{"result": a + b}, nil
		},
	)
}
