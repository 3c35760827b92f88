package contextmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentcore/pkg/llm"
	"agentcore/pkg/tokens"
)

func TestSystemPromptStaysFirst(t *testing.T) {
	m := New(nil)
	m.AppendUser("hello")
	m.SetSystemPrompt("you are helpful")
	m.AppendUser("again")

	msgs := m.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Equal(t, "you are helpful", msgs[0].Content)
	assert.Equal(t, "hello", msgs[1].Content)
	assert.Equal(t, "again", msgs[2].Content)
}

func TestSetSystemPromptReplacesExisting(t *testing.T) {
	m := New(nil)
	m.SetSystemPrompt("first")
	m.SetSystemPrompt("second")

	msgs := m.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "second", msgs[0].Content)
}

func TestAppendOrderPreserved(t *testing.T) {
	m := New(nil)
	m.AppendUser("q")
	m.AppendAssistant("", []llm.ToolCall{{ID: "c1", Name: "add"}})
	m.AppendToolResult(llm.ToolResult{ToolCallID: "c1", Content: `{"result":5}`})
	m.AppendAssistant("the sum is 5", nil)

	msgs := m.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, llm.RoleUser, msgs[0].Role)
	assert.Equal(t, llm.RoleAssistant, msgs[1].Role)
	require.Len(t, msgs[1].ToolCalls, 1)
	assert.Equal(t, llm.RoleTool, msgs[2].Role)
	require.Len(t, msgs[2].ToolResults, 1)
	assert.Equal(t, "c1", msgs[2].ToolResults[0].ToolCallID)
	assert.Equal(t, "the sum is 5", msgs[3].Content)
}

func TestMessagesReturnsCopy(t *testing.T) {
	m := New(nil)
	m.AppendUser("original")

	msgs := m.Messages()
	msgs[0].Content = "mutated"

	assert.Equal(t, "original", m.Messages()[0].Content)
}

func TestMessageIDsUnique(t *testing.T) {
	m := New(nil)
	m.AppendUser("a")
	m.AppendUser("b")

	msgs := m.Messages()
	assert.NotEmpty(t, msgs[0].ID)
	assert.NotEqual(t, msgs[0].ID, msgs[1].ID)
}

func TestTokenCountGrowsWithContent(t *testing.T) {
	m := New(tokens.EstimateCounter{})
	before := m.TokenCount()
	assert.Equal(t, 0, before)

	m.AppendUser("some words that take up space")
	assert.Greater(t, m.TokenCount(), before)
}

func TestTokenCountIncludesToolPayloads(t *testing.T) {
	counter := tokens.EstimateCounter{}

	bare := New(counter)
	bare.AppendAssistant("", nil)

	withCall := New(counter)
	withCall.AppendAssistant("", []llm.ToolCall{{ID: "c1", Name: "a_rather_long_tool_name"}})

	assert.Greater(t, withCall.TokenCount(), bare.TokenCount())
}

func TestReplaceSwapsHistory(t *testing.T) {
	m := New(nil)
	m.AppendUser("a")
	m.AppendUser("b")

	m.Replace([]Message{NewMessage(llm.RoleSystem, "sys")})
	require.Equal(t, 1, m.Len())
	assert.Equal(t, llm.RoleSystem, m.Messages()[0].Role)
}

func TestCompletionMessagesConversion(t *testing.T) {
	m := New(nil)
	m.SetSystemPrompt("sys")
	m.AppendUser("q")
	m.AppendAssistant("", []llm.ToolCall{{ID: "c1", Name: "add", Arguments: map[string]any{"a": 2.0}}})
	m.AppendToolResult(llm.ToolResult{ToolCallID: "c1", Content: `{"result":5}`})

	wire := m.CompletionMessages()
	require.Len(t, wire, 4)
	assert.Equal(t, llm.RoleSystem, wire[0].Role)
	assert.Equal(t, "add", wire[2].ToolCalls[0].Name)
	assert.Equal(t, "c1", wire[3].ToolResults[0].ToolCallID)
}
