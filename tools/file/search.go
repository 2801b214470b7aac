package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	conduit "github.com/nevindra/conduit"
)

// SearchTool provides workspace-scoped grep (content regex) and find
// (filename glob) search, grounded in the same directory-walking idiom as
// Tool's ls — the teacher has no direct equivalent (its tools/search hits
// an external API), so these are built fresh per §12's supplement.
type SearchTool struct {
	workspacePath string
}

// NewSearchTool creates a SearchTool restricted to workspacePath.
func NewSearchTool(workspacePath string) *SearchTool {
	return &SearchTool{workspacePath: workspacePath}
}

func (t *SearchTool) Definitions() []conduit.ToolDefinition {
	return []conduit.ToolDefinition{
		{
			Name:        "grep",
			Description: "Search file contents under the workspace for a regular expression. Returns matching lines as path:lineNumber:text.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"pattern":{"type":"string"},"path":{"type":"string","description":"Directory to search, relative to workspace (default '.')"}},"required":["pattern"]}`),
		},
		{
			Name:        "find",
			Description: "Find files under the workspace whose name matches a glob pattern (e.g. '*.go').",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"glob":{"type":"string"},"path":{"type":"string","description":"Directory to search, relative to workspace (default '.')"}},"required":["glob"]}`),
		},
	}
}

func (t *SearchTool) Execute(ctx context.Context, name string, args json.RawMessage) (conduit.ToolResult, error) {
	var params struct {
		Pattern string `json:"pattern"`
		Glob    string `json:"glob"`
		Path    string `json:"path"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return conduit.ToolResult{Text: "Error: invalid args: " + err.Error(), IsError: true}, nil
	}

	searchPath := params.Path
	if searchPath == "" {
		searchPath = "."
	}
	root, err := resolveWorkspacePath(t.workspacePath, searchPath)
	if err != nil {
		return conduit.ToolResult{Text: "Error: " + err.Error(), IsError: true}, nil
	}

	switch name {
	case "grep":
		return t.grep(root, params.Pattern)
	case "find":
		return t.find(root, params.Glob)
	default:
		return conduit.ToolResult{Text: "Error: unknown search tool: " + name, IsError: true}, nil
	}
}

func (t *SearchTool) grep(root, pattern string) (conduit.ToolResult, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return conduit.ToolResult{Text: "Error: invalid pattern: " + err.Error(), IsError: true}, nil
	}

	var b strings.Builder
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(t.workspacePath, path)
		data, readErr := readFileForSearch(path)
		if readErr != nil {
			return nil
		}
		for i, line := range strings.Split(data, "\n") {
			if re.MatchString(line) {
				fmt.Fprintf(&b, "%s:%d:%s\n", rel, i+1, line)
			}
		}
		return nil
	})
	if walkErr != nil {
		return conduit.ToolResult{Text: "Error: " + walkErr.Error(), IsError: true}, nil
	}
	if b.Len() == 0 {
		return conduit.ToolResult{Text: "No matches"}, nil
	}
	return conduit.ToolResult{Text: truncate(b.String())}, nil
}

func (t *SearchTool) find(root, glob string) (conduit.ToolResult, error) {
	if glob == "" {
		glob = "*"
	}
	var b strings.Builder
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		ok, matchErr := filepath.Match(glob, d.Name())
		if matchErr != nil {
			return matchErr
		}
		if ok {
			rel, _ := filepath.Rel(t.workspacePath, path)
			fmt.Fprintln(&b, rel)
		}
		return nil
	})
	if walkErr != nil {
		return conduit.ToolResult{Text: "Error: " + walkErr.Error(), IsError: true}, nil
	}
	if b.Len() == 0 {
		return conduit.ToolResult{Text: "No matches"}, nil
	}
	return conduit.ToolResult{Text: truncate(b.String())}, nil
}

// readFileForSearch reads a file's content for grep scanning. Binary files
// simply decode to content that matches no reasonable regex in practice; no
// separate binary-detection pass is attempted.
func readFileForSearch(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
