package remember

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	conduit "github.com/nevindra/conduit"
)

func TestRememberAppendsToTodayLog(t *testing.T) {
	mem := conduit.NewMemoryStore(t.TempDir())
	tool := New(mem)

	args, _ := json.Marshal(map[string]string{"note": "the capital of Indonesia is Jakarta"})
	result, err := tool.Execute(context.Background(), "remember", args)
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Text)
	}

	log, err := mem.ReadDayLog(time.Now().UTC().Format("2006-01-02"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(log, "the capital of Indonesia is Jakarta") {
		t.Errorf("expected note in today's log, got: %q", log)
	}
}

func TestRememberRequiresNote(t *testing.T) {
	mem := conduit.NewMemoryStore(t.TempDir())
	tool := New(mem)

	args, _ := json.Marshal(map[string]string{"note": ""})
	result, _ := tool.Execute(context.Background(), "remember", args)
	if !result.IsError {
		t.Error("expected error for empty note")
	}
}

func TestRememberDefinitions(t *testing.T) {
	tool := New(conduit.NewMemoryStore(t.TempDir()))
	defs := tool.Definitions()
	if len(defs) != 1 || defs[0].Name != "remember" {
		t.Fatalf("expected single remember definition, got %+v", defs)
	}
}
