// Package remember implements the remember tool from spec §4.5: it appends
// a note to today's daily log via the memory store.
package remember

import (
	"context"
	"encoding/json"
	"time"

	conduit "github.com/nevindra/conduit"
)

// Tool appends notes to the memory store's daily log.
type Tool struct {
	mem *conduit.MemoryStore
}

// New creates a Tool backed by mem.
func New(mem *conduit.MemoryStore) *Tool {
	return &Tool{mem: mem}
}

func (t *Tool) Definitions() []conduit.ToolDefinition {
	return []conduit.ToolDefinition{{
		Name:        "remember",
		Description: "Save a note to today's memory log. Use when the user explicitly asks to remember or save something for later.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"note":{"type":"string","description":"The note to save"}},"required":["note"]}`),
	}}
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (conduit.ToolResult, error) {
	var params struct {
		Note string `json:"note"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return conduit.ToolResult{Text: "Error: invalid args: " + err.Error(), IsError: true}, nil
	}
	if params.Note == "" {
		return conduit.ToolResult{Text: "Error: note is required", IsError: true}, nil
	}

	if err := t.mem.AppendToday(time.Now().UTC(), params.Note); err != nil {
		return conduit.ToolResult{Text: "Error: " + err.Error(), IsError: true}, nil
	}
	return conduit.ToolResult{Text: "Noted."}, nil
}
