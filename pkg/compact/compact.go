// Package compact reduces conversation history to fit a token budget while
// preserving continuation context. Four interchangeable strategies cover
// different retention trade-offs; all are deterministic given identical
// inputs and summarizer outputs.
package compact

import (
	"context"

	"agentcore/pkg/contextmgr"
	"agentcore/pkg/llm"
	"agentcore/pkg/tokens"
)

// Options bound a compaction pass.
type Options struct {
	// MaxTokens is the hard budget for the compacted history.
	MaxTokens int
	// ReserveTokens is held back from MaxTokens for the upcoming response.
	ReserveTokens int
	// MinMessagesBeforeCompaction disables compaction for short histories.
	MinMessagesBeforeCompaction int
	// PreserveRecentCount is how many trailing messages stay verbatim.
	// The system message does not count toward recency.
	PreserveRecentCount int
}

// DefaultOptions provides reasonable compaction defaults.
func DefaultOptions() Options {
	return Options{
		MaxTokens:                   8000,
		ReserveTokens:               1000,
		MinMessagesBeforeCompaction: 6,
		PreserveRecentCount:         4,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxTokens <= 0 {
		o.MaxTokens = d.MaxTokens
	}
	if o.ReserveTokens < 0 {
		o.ReserveTokens = 0
	}
	if o.MinMessagesBeforeCompaction <= 0 {
		o.MinMessagesBeforeCompaction = d.MinMessagesBeforeCompaction
	}
	if o.PreserveRecentCount <= 0 {
		o.PreserveRecentCount = d.PreserveRecentCount
	}
	return o
}

// budget is the token allowance left for history after the reserve.
func (o Options) budget() int {
	b := o.MaxTokens - o.ReserveTokens
	if b < 0 {
		return 0
	}
	return b
}

// Result reports a compaction pass.
type Result struct {
	// Messages is the compacted history, chronological, system first.
	Messages []contextmgr.Message
	// WasCompacted is false when the input already fit the budget.
	WasCompacted bool
	// TokensBefore and TokensAfter bracket the pass.
	TokensBefore int
	TokensAfter  int
}

// Compactor reduces a history to fit the options' budget.
type Compactor interface {
	Name() string
	Compact(ctx context.Context, messages []contextmgr.Message, opts Options) (Result, error)
}

// Summarizer condenses dropped messages into replacement text. It is a
// black-box collaborator, typically backed by the same LLM the run uses.
type Summarizer interface {
	Summarize(ctx context.Context, messages []contextmgr.Message, maxTokens int) (string, error)
}

// SummarizerFunc adapts a function to the Summarizer interface.
type SummarizerFunc func(ctx context.Context, messages []contextmgr.Message, maxTokens int) (string, error)

// Summarize implements Summarizer.
func (f SummarizerFunc) Summarize(ctx context.Context, messages []contextmgr.Message, maxTokens int) (string, error) {
	return f(ctx, messages, maxTokens)
}

// splitSystem separates a leading system message from the rest. The system
// message is always preserved and never counts toward recency.
func splitSystem(messages []contextmgr.Message) (*contextmgr.Message, []contextmgr.Message) {
	if len(messages) > 0 && messages[0].Role == llm.RoleSystem {
		sys := messages[0]
		return &sys, messages[1:]
	}
	return nil, messages
}

// splitRecent separates the trailing recent window from the older segment.
func splitRecent(messages []contextmgr.Message, recentCount int) (older, recent []contextmgr.Message) {
	if recentCount >= len(messages) {
		return nil, messages
	}
	cut := len(messages) - recentCount
	return messages[:cut], messages[cut:]
}

func totalTokens(counter tokens.Counter, messages []contextmgr.Message) int {
	total := 0
	for i := range messages {
		total += contextmgr.MessageTokens(counter, &messages[i])
	}
	return total
}

// summaryMessage wraps generated condensation text as an assistant message
// flagged in metadata so downstream consumers can tell it from real turns.
func summaryMessage(content, kind string) contextmgr.Message {
	msg := contextmgr.NewMessage(llm.RoleAssistant, content)
	msg.Metadata = map[string]string{"compaction": kind}
	return msg
}

// noopResult reports an unchanged history.
func noopResult(counter tokens.Counter, messages []contextmgr.Message) Result {
	t := totalTokens(counter, messages)
	return Result{
		Messages:     messages,
		WasCompacted: false,
		TokensBefore: t,
		TokensAfter:  t,
	}
}
