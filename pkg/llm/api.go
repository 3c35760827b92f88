// Package llm defines the backend contract consumed by the agent execution
// loop: completion request/response types, the Client interface, and the
// middleware chain that resilience and observability stages hang off.
package llm

import (
	"context"

	"agentcore/pkg/tools"
)

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleSystem is the leading instruction message.
	RoleSystem Role = "system"
	// RoleUser is a message from the caller.
	RoleUser Role = "user"
	// RoleAssistant is a message generated by the backend.
	RoleAssistant Role = "assistant"
	// RoleTool is a tool-result message fed back to the backend.
	RoleTool Role = "tool"
)

const (
	// DefaultMaxTokens bounds a completion when the caller does not say.
	DefaultMaxTokens = 4096
	// DefaultTemperature allows some exploration while staying focused.
	DefaultTemperature = 0.3
)

// ToolCall is a structured capability request emitted by the backend.
type ToolCall struct {
	Arguments map[string]any `json:"arguments"`
	ID        string         `json:"id"`
	Name      string         `json:"name"`
}

// ToolResult carries a tool's outcome back to the backend, tagged with the
// originating call. A failed tool sets IsError; the run never aborts on it.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// CompletionMessage is one message in a completion request.
type CompletionMessage struct {
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
}

// CompletionRequest is a request to generate a completion.
type CompletionRequest struct {
	Messages    []CompletionMessage
	Tools       []tools.ToolDefinition
	MaxTokens   int
	Temperature float32
	Stream      bool
}

// Usage reports token consumption for one backend call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// FinishReason explains why the backend stopped generating.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
	FinishError         FinishReason = "error"
)

// CompletionResponse is a backend's answer to a CompletionRequest.
type CompletionResponse struct {
	ID           string       `json:"id"`
	Content      string       `json:"content"`
	ToolCalls    []ToolCall   `json:"tool_calls,omitempty"`
	Usage        *Usage       `json:"usage,omitempty"`
	FinishReason FinishReason `json:"finish_reason"`
}

// StreamChunk is one fragment of a streamed completion. Content deltas and
// tool-call fragments arrive in order; the terminal chunk carries the
// finish reason with Done set.
type StreamChunk struct {
	Err          error
	ToolCall     *ToolCall
	Content      string
	FinishReason FinishReason
	Done         bool
}

// Client is the pluggable text-generation backend. Adapters translating to
// a specific vendor's wire format live outside this module; only this
// contract is consumed.
type Client interface {
	// Complete generates a completion synchronously.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// Stream generates a completion as a lazy, finite sequence of chunks.
	// The returned channel is closed after the terminal chunk.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)

	// ModelName identifies the backing model for logs and metrics.
	ModelName() string
}

// NewRequest creates a completion request with defaults resolved.
func NewRequest(messages []CompletionMessage) CompletionRequest {
	return CompletionRequest{
		Messages:    messages,
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
	}
}

// SystemMessage creates a system-role completion message.
func SystemMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleSystem, Content: content}
}

// UserMessage creates a user-role completion message.
func UserMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleUser, Content: content}
}
