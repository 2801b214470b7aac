package conduit

import (
	"context"
	"encoding/json"
)

// ToolRegistry holds a set of registered tools and dispatches execution by
// name. The main agent and each sub-agent hold distinct registries (a
// sub-agent's registry omits delegate_task, per the no-nested-delegation
// rule).
type ToolRegistry struct {
	tools []Tool
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{}
}

// Add registers a tool. A tool may expose more than one ToolDefinition.
func (r *ToolRegistry) Add(t Tool) {
	r.tools = append(r.tools, t)
}

// AllDefinitions returns tool definitions from every registered tool, in
// registration order.
func (r *ToolRegistry) AllDefinitions() []ToolDefinition {
	var defs []ToolDefinition
	for _, t := range r.tools {
		defs = append(defs, t.Definitions()...)
	}
	return defs
}

// Execute dispatches a tool call by name. An unknown name is reported as an
// error ToolResult together with ErrUnknownTool; the loop folds that result
// back to the model, since it's the model's mistake to report back, not a
// loop-level failure.
func (r *ToolRegistry) Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error) {
	for _, t := range r.tools {
		for _, d := range t.Definitions() {
			if d.Name == name {
				return t.Execute(ctx, name, args)
			}
		}
	}
	return ToolResult{Text: "unknown tool: " + name, IsError: true}, ErrUnknownTool
}
