package compact

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentcore/pkg/contextmgr"
	"agentcore/pkg/llm"
	"agentcore/pkg/tokens"
)

// pad builds deterministic content of exactly n bytes.
func pad(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	return s + strings.Repeat("x", n-len(s))
}

func msg(role llm.Role, content string) contextmgr.Message {
	return contextmgr.NewMessage(role, content)
}

// recordingSummarizer captures what it was asked to condense.
type recordingSummarizer struct {
	calls      int
	lastInput  []contextmgr.Message
	lastBudget int
	output     string
}

func (r *recordingSummarizer) Summarize(_ context.Context, messages []contextmgr.Message, maxTokens int) (string, error) {
	r.calls++
	r.lastInput = messages
	r.lastBudget = maxTokens
	if r.output != "" {
		return r.output, nil
	}
	return fmt.Sprintf("S(%d)", len(messages)), nil
}

func contents(messages []contextmgr.Message) []string {
	out := make([]string, len(messages))
	for i := range messages {
		out[i] = messages[i].Content
	}
	return out
}

func TestSlidingWindowNoopUnderBudget(t *testing.T) {
	s := NewSlidingWindow(tokens.EstimateCounter{}, nil)
	history := []contextmgr.Message{
		msg(llm.RoleSystem, pad("sys", 20)),
		msg(llm.RoleUser, pad("q", 40)),
	}

	result, err := s.Compact(context.Background(), history, Options{MaxTokens: 1000})
	require.NoError(t, err)
	assert.False(t, result.WasCompacted)
	assert.Equal(t, result.TokensBefore, result.TokensAfter)
	assert.Equal(t, contents(history), contents(result.Messages))
}

func TestSlidingWindowFitsBudgetAndKeepsSystem(t *testing.T) {
	s := NewSlidingWindow(tokens.EstimateCounter{}, nil)

	history := []contextmgr.Message{msg(llm.RoleSystem, pad("sys", 20))}
	for i := 1; i <= 6; i++ {
		history = append(history, msg(llm.RoleUser, pad(fmt.Sprintf("m%d ", i), 40)))
	}

	opts := Options{MaxTokens: 50, ReserveTokens: 10, MinMessagesBeforeCompaction: 3, PreserveRecentCount: 2}
	result, err := s.Compact(context.Background(), history, opts)
	require.NoError(t, err)

	assert.True(t, result.WasCompacted)
	assert.LessOrEqual(t, result.TokensAfter, opts.MaxTokens-opts.ReserveTokens)
	assert.Less(t, result.TokensAfter, result.TokensBefore)

	require.NotEmpty(t, result.Messages)
	assert.Equal(t, llm.RoleSystem, result.Messages[0].Role, "system message must survive")

	got := contents(result.Messages)
	assert.Contains(t, got[len(got)-1], "m6")
	assert.Contains(t, got[len(got)-2], "m5", "recent window preserved verbatim")
}

func TestSlidingWindowBackfillsNewestOlderFirst(t *testing.T) {
	s := NewSlidingWindow(tokens.EstimateCounter{}, nil)

	history := []contextmgr.Message{msg(llm.RoleSystem, pad("sys", 20))}
	for i := 1; i <= 6; i++ {
		history = append(history, msg(llm.RoleUser, pad(fmt.Sprintf("m%d ", i), 40)))
	}

	// Budget after system (6) and recent two (22) leaves 12: exactly one
	// older message (11) fits, and it must be the newest older one.
	opts := Options{MaxTokens: 50, ReserveTokens: 10, MinMessagesBeforeCompaction: 3, PreserveRecentCount: 2}
	result, err := s.Compact(context.Background(), history, opts)
	require.NoError(t, err)

	got := contents(result.Messages)
	require.Len(t, got, 4)
	assert.Contains(t, got[1], "m4")
	assert.Contains(t, got[2], "m5")
	assert.Contains(t, got[3], "m6")
}

func TestSlidingWindowSummarizesDropped(t *testing.T) {
	sum := &recordingSummarizer{output: "gist"}
	s := NewSlidingWindow(tokens.EstimateCounter{}, sum)

	history := []contextmgr.Message{msg(llm.RoleSystem, pad("sys", 20))}
	for i := 1; i <= 6; i++ {
		history = append(history, msg(llm.RoleUser, pad(fmt.Sprintf("m%d ", i), 40)))
	}

	opts := Options{MaxTokens: 50, ReserveTokens: 10, MinMessagesBeforeCompaction: 3, PreserveRecentCount: 2}
	result, err := s.Compact(context.Background(), history, opts)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.calls)
	assert.Len(t, sum.lastInput, 3, "m1..m3 were dropped")

	require.GreaterOrEqual(t, len(result.Messages), 2)
	summary := result.Messages[1]
	assert.Equal(t, "gist", summary.Content)
	assert.Equal(t, "sliding_window", summary.Metadata["compaction"])
}

func TestSlidingWindowDeterministic(t *testing.T) {
	s := NewSlidingWindow(tokens.EstimateCounter{}, nil)

	history := []contextmgr.Message{msg(llm.RoleSystem, pad("sys", 20))}
	for i := 1; i <= 8; i++ {
		history = append(history, msg(llm.RoleUser, pad(fmt.Sprintf("m%d ", i), 40)))
	}
	opts := Options{MaxTokens: 60, ReserveTokens: 10, MinMessagesBeforeCompaction: 3, PreserveRecentCount: 2}

	first, err := s.Compact(context.Background(), history, opts)
	require.NoError(t, err)
	second, err := s.Compact(context.Background(), history, opts)
	require.NoError(t, err)

	assert.Equal(t, contents(first.Messages), contents(second.Messages))
	assert.Equal(t, first.TokensAfter, second.TokensAfter)
}

func TestSemanticCompressionTruncatesBelowFloor(t *testing.T) {
	sum := &recordingSummarizer{}
	s := NewSemanticCompression(tokens.EstimateCounter{}, sum)

	history := []contextmgr.Message{
		msg(llm.RoleSystem, pad("sys", 20)),
		msg(llm.RoleUser, pad("m1 ", 40)),
		msg(llm.RoleUser, pad("m2 ", 40)),
		msg(llm.RoleUser, pad("m3 ", 40)),
	}

	opts := Options{MaxTokens: 30, ReserveTokens: 0, MinMessagesBeforeCompaction: 6, PreserveRecentCount: 2}
	result, err := s.Compact(context.Background(), history, opts)
	require.NoError(t, err)

	assert.True(t, result.WasCompacted)
	assert.Equal(t, 0, sum.calls, "below the floor no condensation happens")
	assert.Equal(t, llm.RoleSystem, result.Messages[0].Role)
	assert.LessOrEqual(t, result.TokensAfter, 30)

	got := contents(result.Messages)
	assert.Contains(t, got[len(got)-1], "m3", "truncation keeps the newest")
}

func TestSemanticCompressionCondensesOlderSegment(t *testing.T) {
	sum := &recordingSummarizer{output: "condensed history"}
	s := NewSemanticCompression(tokens.EstimateCounter{}, sum)

	history := []contextmgr.Message{msg(llm.RoleSystem, pad("sys", 20))}
	for i := 1; i <= 8; i++ {
		history = append(history, msg(llm.RoleUser, pad(fmt.Sprintf("m%d ", i), 40)))
	}

	opts := Options{MaxTokens: 60, ReserveTokens: 0, MinMessagesBeforeCompaction: 6, PreserveRecentCount: 2}
	result, err := s.Compact(context.Background(), history, opts)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.calls)
	assert.Len(t, sum.lastInput, 6, "the older segment is condensed")
	// Available is budget minus system (60-6=54); condensation target is half.
	assert.Equal(t, 27, sum.lastBudget)

	got := contents(result.Messages)
	require.Len(t, got, 4)
	assert.Equal(t, "condensed history", got[1])
	assert.Equal(t, "semantic_compression", result.Messages[1].Metadata["compaction"])
	assert.Contains(t, got[2], "m7")
	assert.Contains(t, got[3], "m8")
}

func TestHierarchicalTiersAndStatefulLongTerm(t *testing.T) {
	sum := &recordingSummarizer{}
	h := NewHierarchical(tokens.EstimateCounter{}, sum)
	require.Empty(t, h.LongTermSummary())

	history := []contextmgr.Message{msg(llm.RoleSystem, pad("sys", 20))}
	for i := 1; i <= 10; i++ {
		history = append(history, msg(llm.RoleUser, pad(fmt.Sprintf("m%d ", i), 40)))
	}

	opts := Options{MaxTokens: 60, ReserveTokens: 0, MinMessagesBeforeCompaction: 6, PreserveRecentCount: 2}
	result, err := h.Compact(context.Background(), history, opts)
	require.NoError(t, err)

	assert.True(t, result.WasCompacted)
	assert.NotEmpty(t, h.LongTermSummary(), "long-term tier persists on the instance")

	kinds := make(map[string]bool)
	for i := range result.Messages {
		if k, ok := result.Messages[i].Metadata["compaction"]; ok {
			kinds[k] = true
		}
	}
	assert.True(t, kinds["long_term"])
	assert.True(t, kinds["mid_term"])

	// A second pass merges the persisted summary with newly aged content.
	firstLongTerm := h.LongTermSummary()
	_, err = h.Compact(context.Background(), history, opts)
	require.NoError(t, err)
	assert.NotEmpty(t, h.LongTermSummary())
	_ = firstLongTerm
}

func TestHierarchicalNoopKeepsLongTermEmpty(t *testing.T) {
	h := NewHierarchical(tokens.EstimateCounter{}, &recordingSummarizer{})

	history := []contextmgr.Message{msg(llm.RoleUser, "short")}
	result, err := h.Compact(context.Background(), history, Options{MaxTokens: 1000})
	require.NoError(t, err)

	assert.False(t, result.WasCompacted)
	assert.Empty(t, h.LongTermSummary())
}

func TestImportanceBasedKeepsHighScoreMessages(t *testing.T) {
	s := NewImportanceBased(tokens.EstimateCounter{}, nil)

	history := []contextmgr.Message{
		msg(llm.RoleSystem, pad("sys.", 4)),
		msg(llm.RoleUser, pad("plain filler ", 40)),
		msg(llm.RoleUser, pad("important fact ", 40)),
		msg(llm.RoleUser, pad("what was decided? ", 40)),
		msg(llm.RoleUser, pad("recent a ", 40)),
		msg(llm.RoleUser, pad("recent b ", 40)),
	}

	// Budget admits the recent pair plus exactly two older messages; the
	// question and keyword messages outscore the filler.
	opts := Options{MaxTokens: 47, ReserveTokens: 0, MinMessagesBeforeCompaction: 3, PreserveRecentCount: 2}
	result, err := s.Compact(context.Background(), history, opts)
	require.NoError(t, err)

	got := contents(result.Messages)
	require.Len(t, got, 5)
	assert.Contains(t, got[0], "sys")
	assert.Contains(t, got[1], "important fact", "admitted set re-sorts chronologically")
	assert.Contains(t, got[2], "what was decided?")
	assert.Contains(t, got[3], "recent a")
	assert.Contains(t, got[4], "recent b")
}

func TestImportanceBasedCustomScorer(t *testing.T) {
	// Score by message index marker so the oldest wins.
	scorer := func(m *contextmgr.Message) float64 {
		if strings.HasPrefix(m.Content, "keep") {
			return 10
		}
		return 0
	}
	s := NewImportanceBased(tokens.EstimateCounter{}, scorer)

	history := []contextmgr.Message{
		msg(llm.RoleUser, pad("keep me ", 40)),
		msg(llm.RoleUser, pad("drop a ", 40)),
		msg(llm.RoleUser, pad("drop b ", 40)),
		msg(llm.RoleUser, pad("recent a ", 40)),
		msg(llm.RoleUser, pad("recent b ", 40)),
	}

	opts := Options{MaxTokens: 33, ReserveTokens: 0, MinMessagesBeforeCompaction: 3, PreserveRecentCount: 2}
	result, err := s.Compact(context.Background(), history, opts)
	require.NoError(t, err)

	got := contents(result.Messages)
	require.Len(t, got, 3)
	assert.Contains(t, got[0], "keep me")
	assert.Contains(t, got[1], "recent a")
	assert.Contains(t, got[2], "recent b")
}

func TestDefaultScorerSignals(t *testing.T) {
	plain := msg(llm.RoleUser, "nothing special here")
	question := msg(llm.RoleUser, "what is the answer?")
	keyword := msg(llm.RoleUser, "this is important")
	long := msg(llm.RoleUser, strings.Repeat("a", 250))
	tool := msg(llm.RoleAssistant, "")
	tool.ToolCalls = []llm.ToolCall{{ID: "c1", Name: "add"}}

	base := DefaultScorer(&plain)
	assert.Greater(t, DefaultScorer(&question), base)
	assert.Greater(t, DefaultScorer(&keyword), base)
	assert.Greater(t, DefaultScorer(&long), base)
	assert.Greater(t, DefaultScorer(&tool), base)
}
