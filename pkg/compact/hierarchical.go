package compact

import (
	"context"
	"fmt"

	"agentcore/pkg/contextmgr"
	"agentcore/pkg/tokens"
)

// Tier shares of the available budget.
const (
	recentTierShare   = 0.60
	midTermTierShare  = 0.25
	longTermTierShare = 0.15
)

// Hierarchical splits the budget into three tiers: a verbatim recent
// window (60%), a regenerated mid-term summary (25%), and a long-term
// summary (15%). Unlike the other strategies this one is stateful: the
// long-term summary persists on the instance across calls and is
// progressively merged with content aging out of the mid-term tier. One
// instance therefore belongs to one conversation.
type Hierarchical struct {
	counter    tokens.Counter
	summarizer Summarizer
	longTerm   string
}

// NewHierarchical creates the strategy with an empty long-term summary.
func NewHierarchical(counter tokens.Counter, summarizer Summarizer) *Hierarchical {
	if counter == nil {
		counter = tokens.EstimateCounter{}
	}
	return &Hierarchical{counter: counter, summarizer: summarizer}
}

func (h *Hierarchical) Name() string { return "hierarchical" }

// LongTermSummary exposes the persisted long-term tier, mainly for
// inspection and persistence.
func (h *Hierarchical) LongTermSummary() string { return h.longTerm }

// Compact implements Compactor.
func (h *Hierarchical) Compact(ctx context.Context, messages []contextmgr.Message, opts Options) (Result, error) {
	opts = opts.withDefaults()

	before := totalTokens(h.counter, messages)
	if before <= opts.budget() || len(messages) < opts.MinMessagesBeforeCompaction {
		return noopResult(h.counter, messages), nil
	}
	if h.summarizer == nil {
		return Result{}, fmt.Errorf("hierarchical compaction requires a summarizer")
	}

	system, rest := splitSystem(messages)
	available := opts.budget()
	if system != nil {
		available -= contextmgr.MessageTokens(h.counter, system)
	}

	recentBudget := int(float64(available) * recentTierShare)
	midBudget := int(float64(available) * midTermTierShare)
	longBudget := int(float64(available) * longTermTierShare)

	// Recent tier: newest messages that fit 60% of the budget, at least
	// the preserve-recent window.
	cut := len(rest)
	used := 0
	for cut > 0 {
		cost := contextmgr.MessageTokens(h.counter, &rest[cut-1])
		if used+cost > recentBudget && len(rest)-cut >= opts.PreserveRecentCount {
			break
		}
		used += cost
		cut--
	}
	recent := rest[cut:]
	older := rest[:cut]

	// Mid-term tier: the newer half of the older segment, condensed.
	// The remainder ages into the long-term tier.
	midStart := len(older) / 2
	aging, midTerm := older[:midStart], older[midStart:]

	var midSummary string
	if len(midTerm) > 0 {
		var err error
		midSummary, err = h.summarizer.Summarize(ctx, midTerm, midBudget)
		if err != nil {
			return Result{}, fmt.Errorf("mid-term summary: %w", err)
		}
	}

	// Long-term tier: merge the persisted summary with aging content.
	if len(aging) > 0 || h.longTerm != "" {
		merge := make([]contextmgr.Message, 0, len(aging)+1)
		if h.longTerm != "" {
			merge = append(merge, summaryMessage(h.longTerm, "long_term"))
		}
		merge = append(merge, aging...)

		longSummary, err := h.summarizer.Summarize(ctx, merge, longBudget)
		if err != nil {
			return Result{}, fmt.Errorf("long-term summary: %w", err)
		}
		h.longTerm = longSummary
	}

	out := make([]contextmgr.Message, 0, len(recent)+3)
	if system != nil {
		out = append(out, *system)
	}
	if h.longTerm != "" {
		out = append(out, summaryMessage(h.longTerm, "long_term"))
	}
	if midSummary != "" {
		out = append(out, summaryMessage(midSummary, "mid_term"))
	}
	out = append(out, recent...)

	return Result{
		Messages:     out,
		WasCompacted: true,
		TokensBefore: before,
		TokensAfter:  totalTokens(h.counter, out),
	}, nil
}
