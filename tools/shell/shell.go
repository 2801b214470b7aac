// Package shell implements the bash tool from spec §4.5's standard
// coding-agent tool set: shell commands run against a fixed workspace root
// with a 30s timeout (§5).
package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	conduit "github.com/nevindra/conduit"
)

// defaultTimeout is the fixed shell-call timeout per §5 ("shell: 30s").
const defaultTimeout = 30 * time.Second

// maxResultChars truncates output per §4.5 ("~50k characters").
const maxResultChars = 50_000

// Tool executes shell commands in a sandboxed workspace.
type Tool struct {
	workspacePath string
}

// New creates a Tool. Commands run in workspacePath.
func New(workspacePath string) *Tool {
	return &Tool{workspacePath: workspacePath}
}

func (t *Tool) Definitions() []conduit.ToolDefinition {
	return []conduit.ToolDefinition{{
		Name:        "bash",
		Description: "Execute a shell command in the workspace directory. Returns stdout + stderr, truncated if large.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"command":{"type":"string","description":"Shell command to execute"}},"required":["command"]}`),
	}}
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (conduit.ToolResult, error) {
	var params struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return conduit.ToolResult{Text: "Error: invalid args: " + err.Error(), IsError: true}, nil
	}
	if params.Command == "" {
		return conduit.ToolResult{Text: "Error: command is required", IsError: true}, nil
	}

	lower := strings.ToLower(params.Command)
	for _, blocked := range []string{"rm -rf /", "sudo ", "mkfs", "> /dev/", "dd if="} {
		if strings.Contains(lower, blocked) {
			return conduit.ToolResult{Text: "Error: command blocked for safety: " + blocked, IsError: true}, nil
		}
	}

	cmdCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "sh", "-c", params.Command)
	cmd.Dir = t.workspacePath

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	var output string
	if stdout.Len() > 0 {
		output = stdout.String()
	}
	if stderr.Len() > 0 {
		if output != "" {
			output += "\n--- stderr ---\n"
		}
		output += stderr.String()
	}
	if len(output) > maxResultChars {
		output = output[:maxResultChars] + "\n... (truncated)"
	}

	if err != nil {
		if cmdCtx.Err() == context.DeadlineExceeded {
			return conduit.ToolResult{Text: fmt.Sprintf("Error: command timed out after %s\n%s", defaultTimeout, output), IsError: true}, nil
		}
		if output == "" {
			output = err.Error()
		}
		return conduit.ToolResult{Text: "Error: " + output, IsError: true}, nil
	}

	if output == "" {
		output = "(no output)"
	}
	return conduit.ToolResult{Text: output}, nil
}
