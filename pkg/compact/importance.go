package compact

import (
	"context"
	"sort"
	"strings"

	"agentcore/pkg/contextmgr"
	"agentcore/pkg/tokens"
)

// Scorer rates an older message's retention value. Higher keeps longer.
type Scorer func(msg *contextmgr.Message) float64

// importanceKeywords mark content worth keeping through compaction.
var importanceKeywords = []string{
	"important", "remember", "must", "always", "never",
	"error", "warning", "critical", "decision",
}

// DefaultScorer rates questions, substantial content, keyword hits, and
// tool linkage.
func DefaultScorer(msg *contextmgr.Message) float64 {
	score := 1.0

	if strings.Contains(msg.Content, "?") {
		score += 2.0
	}
	if len(msg.Content) > 200 {
		score += 1.0
	}

	lower := strings.ToLower(msg.Content)
	for _, kw := range importanceKeywords {
		if strings.Contains(lower, kw) {
			score += 1.5
			break
		}
	}

	if len(msg.ToolCalls) > 0 || len(msg.ToolResults) > 0 {
		score += 1.0
	}

	return score
}

// ImportanceBased keeps the recent window verbatim and greedily admits
// older messages by descending score until the budget is exhausted, then
// re-sorts the admitted set into chronological order.
type ImportanceBased struct {
	counter tokens.Counter
	scorer  Scorer
}

// NewImportanceBased creates the strategy. A nil scorer uses DefaultScorer.
func NewImportanceBased(counter tokens.Counter, scorer Scorer) *ImportanceBased {
	if counter == nil {
		counter = tokens.EstimateCounter{}
	}
	if scorer == nil {
		scorer = DefaultScorer
	}
	return &ImportanceBased{counter: counter, scorer: scorer}
}

func (s *ImportanceBased) Name() string { return "importance_based" }

// Compact implements Compactor.
func (s *ImportanceBased) Compact(_ context.Context, messages []contextmgr.Message, opts Options) (Result, error) {
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

	type scored struct {
		index int
		score float64
	}
	ranked := make([]scored, len(older))
	for i := range older {
		ranked[i] = scored{index: i, score: s.scorer(&older[i])}
	}
	// Descending score; chronological order breaks ties so equal-score
	// inputs compact deterministically.
	sort.SliceStable(ranked, func(a, b int) bool {
		if ranked[a].score != ranked[b].score {
			return ranked[a].score > ranked[b].score
		}
		return ranked[a].index > ranked[b].index
	})

	admitted := make([]int, 0, len(older))
	for _, r := range ranked {
		cost := contextmgr.MessageTokens(s.counter, &older[r.index])
		if cost > budget {
			continue
		}
		admitted = append(admitted, r.index)
		budget -= cost
	}
	sort.Ints(admitted)

	out := make([]contextmgr.Message, 0, len(admitted)+len(recent)+1)
	if system != nil {
		out = append(out, *system)
	}
	for _, idx := range admitted {
		out = append(out, older[idx])
	}
	out = append(out, recent...)

	return Result{
		Messages:     out,
		WasCompacted: true,
		TokensBefore: before,
		TokensAfter:  totalTokens(s.counter, out),
	}, nil
}
