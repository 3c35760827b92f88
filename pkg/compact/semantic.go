package compact

import (
	"context"
	"fmt"

	"agentcore/pkg/contextmgr"
	"agentcore/pkg/tokens"
)

// SemanticCompression replaces the older segment of the history with one
// generated condensation sized to half the available budget. Below the
// minimum-message floor it falls back to plain truncation, since there is
// too little material to condense meaningfully.
type SemanticCompression struct {
	counter    tokens.Counter
	summarizer Summarizer
}

// NewSemanticCompression creates the strategy. The summarizer is required;
// it produces the condensation text.
func NewSemanticCompression(counter tokens.Counter, summarizer Summarizer) *SemanticCompression {
	if counter == nil {
		counter = tokens.EstimateCounter{}
	}
	return &SemanticCompression{counter: counter, summarizer: summarizer}
}

func (s *SemanticCompression) Name() string { return "semantic_compression" }

// Compact implements Compactor.
func (s *SemanticCompression) Compact(ctx context.Context, messages []contextmgr.Message, opts Options) (Result, error) {
	opts = opts.withDefaults()

	before := totalTokens(s.counter, messages)
	if before <= opts.budget() {
		return noopResult(s.counter, messages), nil
	}

	if len(messages) < opts.MinMessagesBeforeCompaction {
		return s.truncate(messages, opts, before), nil
	}
	if s.summarizer == nil {
		return Result{}, fmt.Errorf("semantic compression requires a summarizer")
	}

	system, rest := splitSystem(messages)
	available := opts.budget()
	if system != nil {
		available -= contextmgr.MessageTokens(s.counter, system)
	}

	older, recent := splitRecent(rest, opts.PreserveRecentCount)
	if len(older) == 0 {
		return s.truncate(messages, opts, before), nil
	}

	condensation, err := s.summarizer.Summarize(ctx, older, available/2)
	if err != nil {
		return Result{}, fmt.Errorf("condense older segment: %w", err)
	}

	out := make([]contextmgr.Message, 0, len(recent)+2)
	if system != nil {
		out = append(out, *system)
	}
	if condensation != "" {
		out = append(out, summaryMessage(condensation, "semantic_compression"))
	}
	out = append(out, recent...)

	return Result{
		Messages:     out,
		WasCompacted: true,
		TokensBefore: before,
		TokensAfter:  totalTokens(s.counter, out),
	}, nil
}

// truncate keeps the newest messages that fit the budget, preserving a
// leading system message.
func (s *SemanticCompression) truncate(messages []contextmgr.Message, opts Options, before int) Result {
	system, rest := splitSystem(messages)
	budget := opts.budget()
	if system != nil {
		budget -= contextmgr.MessageTokens(s.counter, system)
	}

	kept := make([]contextmgr.Message, 0, len(rest))
	for i := len(rest) - 1; i >= 0; i-- {
		cost := contextmgr.MessageTokens(s.counter, &rest[i])
		if cost > budget {
			break
		}
		kept = append([]contextmgr.Message{rest[i]}, kept...)
		budget -= cost
	}

	out := make([]contextmgr.Message, 0, len(kept)+1)
	if system != nil {
		out = append(out, *system)
	}
	out = append(out, kept...)

	return Result{
		Messages:     out,
		WasCompacted: true,
		TokensBefore: before,
		TokensAfter:  totalTokens(s.counter, out),
	}
}
