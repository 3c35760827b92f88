package compact

import (
	"context"
	"fmt"

	"agentcore/pkg/contextmgr"
	"agentcore/pkg/tokens"
)

// SlidingWindow keeps the most recent messages verbatim and back-fills
// older messages, newest first, while they fit the remaining budget.
// With a summarizer configured, dropped messages are replaced by one
// synthesized summary message.
type SlidingWindow struct {
	counter    tokens.Counter
	summarizer Summarizer
}

// NewSlidingWindow creates the strategy. summarizer may be nil, in which
// case dropped messages are discarded without a summary.
func NewSlidingWindow(counter tokens.Counter, summarizer Summarizer) *SlidingWindow {
	if counter == nil {
		counter = tokens.EstimateCounter{}
	}
	return &SlidingWindow{counter: counter, summarizer: summarizer}
}

func (s *SlidingWindow) Name() string { return "sliding_window" }

// Compact implements Compactor.
func (s *SlidingWindow) Compact(ctx context.Context, messages []contextmgr.Message, opts Options) (Result, error) {
	opts = opts.withDefaults()

	before := totalTokens(s.counter, messages)
	if before <= opts.budget() || len(messages) < opts.MinMessagesBeforeCompaction {
		return noopResult(s.counter, messages), nil
	}

	system, rest := splitSystem(messages)
	budget := opts.budget()
	if system != nil {
		budget -= contextmgr.MessageTokens(s.counter, system)
	}

	older, recent := splitRecent(rest, opts.PreserveRecentCount)
	budget -= totalTokens(s.counter, recent)

	// Back-fill older messages newest to oldest while they fit.
	kept := make([]contextmgr.Message, 0, len(older))
	dropped := make([]contextmgr.Message, 0, len(older))
	for i := len(older) - 1; i >= 0; i-- {
		cost := contextmgr.MessageTokens(s.counter, &older[i])
		if cost <= budget {
			kept = append([]contextmgr.Message{older[i]}, kept...)
			budget -= cost
		} else {
			dropped = append([]contextmgr.Message{older[i]}, dropped...)
		}
	}

	out := make([]contextmgr.Message, 0, len(messages))
	if system != nil {
		out = append(out, *system)
	}
	if len(dropped) > 0 && s.summarizer != nil && budget > 0 {
		summary, err := s.summarizer.Summarize(ctx, dropped, budget)
		if err != nil {
			return Result{}, fmt.Errorf("summarize dropped messages: %w", err)
		}
		if summary != "" {
			out = append(out, summaryMessage(summary, "sliding_window"))
		}
	}
	out = append(out, kept...)
	out = append(out, recent...)

	return Result{
		Messages:     out,
		WasCompacted: true,
		TokensBefore: before,
		TokensAfter:  totalTokens(s.counter, out),
	}, nil
}
