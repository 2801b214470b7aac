package conduit

import (
	"context"
	"encoding/json"

	"github.com/nevindra/conduit/tools/file"
	"github.com/nevindra/conduit/tools/http"
	"github.com/nevindra/conduit/tools/remember"
	"github.com/nevindra/conduit/tools/shell"
)

// delegateTaskTool contributes only the delegate_task ToolDefinition to the
// main registry so the gateway can surface its schema to the model. The
// loop never calls Execute on it: delegate_task calls are intercepted in
// AgentLoop.Run and routed to the Spawner directly.
type delegateTaskTool struct{}

func (delegateTaskTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{
		Name:        "delegate_task",
		Description: "Delegate a substantial, self-contained task to a sub-agent. The sub-agent starts with no conversation history, works independently using the same tools (except delegate_task itself), and returns a summary of what it did.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"task":{"type":"string","description":"A complete, self-contained description of the task to delegate"}},"required":["task"]}`),
	}}
}

func (delegateTaskTool) Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error) {
	return ToolResult{Text: "Error: delegate_task must be handled by the agent loop, not the registry", IsError: true}, ErrUnknownTool
}

// BuildToolRegistries constructs the two tool registries the runtime needs:
// one for the main agent loop (every tool, including delegate_task) and one
// for sub-agent loops (every tool except delegate_task, per the
// no-nested-delegation rule). workspacePath roots the file and shell tools;
// mem backs the remember tool.
func BuildToolRegistries(workspacePath string, mem *MemoryStore) (main, subAgent *ToolRegistry) {
	fileTool := file.New(workspacePath)
	searchTool := file.NewSearchTool(workspacePath)
	shellTool := shell.New(workspacePath)
	httpTool := http.New()
	rememberTool := remember.New(mem)

	subAgent = NewToolRegistry()
	subAgent.Add(fileTool)
	subAgent.Add(searchTool)
	subAgent.Add(shellTool)
	subAgent.Add(httpTool)
	subAgent.Add(rememberTool)

	main = NewToolRegistry()
	main.Add(fileTool)
	main.Add(searchTool)
	main.Add(shellTool)
	main.Add(httpTool)
	main.Add(rememberTool)
	main.Add(delegateTaskTool{})

	return main, subAgent
}
