// Package contextmgr manages a run's conversation history and its token
// accounting. The manager is owned by one run; it is not safe for
// concurrent use.
package contextmgr

import (
	"time"

	"github.com/google/uuid"

	"agentcore/pkg/llm"
	"agentcore/pkg/tokens"
)

// Message is one entry in the conversation history.
type Message struct {
	Timestamp   time.Time
	Metadata    map[string]string
	ID          string
	Role        llm.Role
	Content     string
	ToolCalls   []llm.ToolCall
	ToolResults []llm.ToolResult
}

// NewMessage creates a history entry with a fresh ID and timestamp.
func NewMessage(role llm.Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// Manager holds the append-only message history for one run. A leading
// system message, when present, stays first for the run's lifetime.
type Manager struct {
	counter  tokens.Counter
	messages []Message
}

// New creates a manager. A nil counter falls back to byte-length estimation.
func New(counter tokens.Counter) *Manager {
	if counter == nil {
		counter = tokens.EstimateCounter{}
	}
	return &Manager{
		counter:  counter,
		messages: make([]Message, 0, 16),
	}
}

// SetSystemPrompt installs or replaces the leading system message.
func (m *Manager) SetSystemPrompt(content string) {
	msg := NewMessage(llm.RoleSystem, content)
	if len(m.messages) > 0 && m.messages[0].Role == llm.RoleSystem {
		m.messages[0] = msg
		return
	}
	m.messages = append([]Message{msg}, m.messages...)
}

// Append adds a message to the end of the history.
func (m *Manager) Append(msg Message) {
	m.messages = append(m.messages, msg)
}

// AppendUser adds a user message.
func (m *Manager) AppendUser(content string) {
	m.Append(NewMessage(llm.RoleUser, content))
}

// AppendAssistant adds an assistant message, carrying any tool calls the
// backend requested.
func (m *Manager) AppendAssistant(content string, toolCalls []llm.ToolCall) {
	msg := NewMessage(llm.RoleAssistant, content)
	msg.ToolCalls = toolCalls
	m.Append(msg)
}

// AppendToolResult adds a tool-role message carrying one tool's outcome,
// tagged with the originating tool call.
func (m *Manager) AppendToolResult(result llm.ToolResult) {
	msg := NewMessage(llm.RoleTool, result.Content)
	msg.ToolResults = []llm.ToolResult{result}
	m.Append(msg)
}

// Messages returns a copy of the history.
func (m *Manager) Messages() []Message {
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Replace swaps the history wholesale, used after compaction.
func (m *Manager) Replace(messages []Message) {
	m.messages = make([]Message, len(messages))
	copy(m.messages, messages)
}

// Len returns the number of messages.
func (m *Manager) Len() int {
	return len(m.messages)
}

// TokenCount returns the token total across the history.
func (m *Manager) TokenCount() int {
	total := 0
	for i := range m.messages {
		total += MessageTokens(m.counter, &m.messages[i])
	}
	return total
}

// MessageTokens counts one message's tokens, including tool payloads.
func MessageTokens(counter tokens.Counter, msg *Message) int {
	count := counter.Count(string(msg.Role)) + counter.Count(msg.Content)
	for i := range msg.ToolCalls {
		count += counter.Count(msg.ToolCalls[i].Name)
	}
	for i := range msg.ToolResults {
		count += counter.Count(msg.ToolResults[i].Content)
	}
	return count
}

// CompletionMessages converts the history into wire messages for a request.
func (m *Manager) CompletionMessages() []llm.CompletionMessage {
	out := make([]llm.CompletionMessage, 0, len(m.messages))
	for i := range m.messages {
		msg := &m.messages[i]
		out = append(out, llm.CompletionMessage{
			Role:        msg.Role,
			Content:     msg.Content,
			ToolCalls:   msg.ToolCalls,
			ToolResults: msg.ToolResults,
		})
	}
	return out
}
