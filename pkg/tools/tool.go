// Package tools defines the tool contract consumed by the agent execution
// loop and a registry for looking tools up by name.
package tools

import "context"

// Property describes a single parameter in a tool's input schema.
type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
	Items       *Property `json:"items,omitempty"`
}

// InputSchema is a declarative JSON-schema-style parameter description.
// Argument validation against the schema happens outside the core; tools
// receive arguments already validated.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// ToolDefinition is the backend-facing description of a tool.
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
}

// Tool is a capability the backend may request by name. Exec receives
// pre-validated arguments and a context carrying the per-call timeout.
type Tool interface {
	Name() string
	Definition() ToolDefinition
	Exec(ctx context.Context, args map[string]any) (any, error)
}

// FunctionTool adapts a plain function to the Tool interface.
type FunctionTool struct {
	name        string
	description string
	schema      InputSchema
	fn          func(ctx context.Context, args map[string]any) (any, error)
}

// NewFunctionTool creates a tool backed by fn.
func NewFunctionTool(name, description string, schema InputSchema, fn func(ctx context.Context, args map[string]any) (any, error)) *FunctionTool {
	return &FunctionTool{
		name:        name,
		description: description,
		schema:      schema,
		fn:          fn,
	}
}

// Name returns the tool name the backend requests it by.
func (t *FunctionTool) Name() string { return t.name }

// Definition returns the backend-facing tool description.
func (t *FunctionTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        t.name,
		Description: t.description,
		InputSchema: t.schema,
	}
}

// Exec invokes the wrapped function.
func (t *FunctionTool) Exec(ctx context.Context, args map[string]any) (any, error) {
	return t.fn(ctx, args)
}
