// Package file implements the workspace-scoped read/write/ls/edit tools
// from spec §4.5's standard coding-agent tool set.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	conduit "github.com/nevindra/conduit"
)

// maxResultChars truncates tool output per §4.5 ("results truncated at
// ~50k characters").
const maxResultChars = 50_000

// Tool provides read/write/ls/edit operations sandboxed to a workspace
// root. No operation may resolve a path outside workspacePath.
type Tool struct {
	workspacePath string
}

// New creates a Tool restricted to workspacePath. workspacePath should
// already be an absolute, cleaned directory.
func New(workspacePath string) *Tool {
	return &Tool{workspacePath: workspacePath}
}

func (t *Tool) Definitions() []conduit.ToolDefinition {
	return []conduit.ToolDefinition{
		{
			Name:        "read",
			Description: "Read a file from the workspace. Returns the file content, truncated if large.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"File path relative to workspace"}},"required":["path"]}`),
		},
		{
			Name:        "write",
			Description: "Write content to a file in the workspace, creating parent directories and overwriting any existing content.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"},"content":{"type":"string"}},"required":["path","content"]}`),
		},
		{
			Name:        "edit",
			Description: "Replace an exact substring within an existing file. Fails if old_string is not found exactly once.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"},"old_string":{"type":"string"},"new_string":{"type":"string"}},"required":["path","old_string","new_string"]}`),
		},
		{
			Name:        "ls",
			Description: "List files and directories in a workspace directory. One entry per line, type-prefixed.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"Directory path relative to workspace (empty or '.' for root)"}}}`),
		},
	}
}

func (t *Tool) Execute(ctx context.Context, name string, args json.RawMessage) (conduit.ToolResult, error) {
	var params struct {
		Path      string `json:"path"`
		Content   string `json:"content"`
		OldString string `json:"old_string"`
		NewString string `json:"new_string"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return conduit.ToolResult{Text: "Error: invalid args: " + err.Error(), IsError: true}, nil
	}

	path := params.Path
	if path == "" {
		path = "."
	}
	resolved, err := resolveWorkspacePath(t.workspacePath, path)
	if err != nil {
		return conduit.ToolResult{Text: "Error: " + err.Error(), IsError: true}, nil
	}

	switch name {
	case "read":
		return readFile(resolved)
	case "write":
		return writeFile(resolved, params.Content)
	case "edit":
		return editFile(resolved, params.OldString, params.NewString)
	case "ls":
		return listDir(resolved)
	default:
		return conduit.ToolResult{Text: "Error: unknown file tool: " + name, IsError: true}, nil
	}
}

// resolveWorkspacePath joins root and path, rejecting absolute paths and
// any resolution that escapes root.
func resolveWorkspacePath(root, path string) (string, error) {
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("absolute paths not allowed: %s", path)
	}
	resolved := filepath.Clean(filepath.Join(root, path))
	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %s", path)
	}
	return resolved, nil
}

func truncate(s string) string {
	if len(s) <= maxResultChars {
		return s
	}
	return s[:maxResultChars] + fmt.Sprintf("\n... [truncated, %d total chars]", len(s))
}

func readFile(path string) (conduit.ToolResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return conduit.ToolResult{Text: "Error: " + err.Error(), IsError: true}, nil
	}
	return conduit.ToolResult{Text: truncate(string(data))}, nil
}

func writeFile(path, content string) (conduit.ToolResult, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return conduit.ToolResult{Text: "Error: " + err.Error(), IsError: true}, nil
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return conduit.ToolResult{Text: "Error: " + err.Error(), IsError: true}, nil
	}
	return conduit.ToolResult{Text: fmt.Sprintf("Wrote %d bytes to %s", len(content), filepath.Base(path))}, nil
}

func editFile(path, oldString, newString string) (conduit.ToolResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return conduit.ToolResult{Text: "Error: " + err.Error(), IsError: true}, nil
	}
	content := string(data)
	count := strings.Count(content, oldString)
	if count == 0 {
		return conduit.ToolResult{Text: "Error: old_string not found in " + filepath.Base(path), IsError: true}, nil
	}
	if count > 1 {
		return conduit.ToolResult{Text: fmt.Sprintf("Error: old_string matches %d times, expected exactly 1", count), IsError: true}, nil
	}
	updated := strings.Replace(content, oldString, newString, 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return conduit.ToolResult{Text: "Error: " + err.Error(), IsError: true}, nil
	}
	return conduit.ToolResult{Text: "Edited " + filepath.Base(path)}, nil
}

func listDir(path string) (conduit.ToolResult, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return conduit.ToolResult{Text: "Error: " + err.Error(), IsError: true}, nil
	}
	var b strings.Builder
	for _, e := range entries {
		kind := "file"
		if e.IsDir() {
			kind = "dir"
		}
		fmt.Fprintf(&b, "%s\t%s\n", kind, e.Name())
	}
	return conduit.ToolResult{Text: truncate(b.String())}, nil
}
