package shell

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
)

func TestShellExecEcho(t *testing.T) {
	dir := t.TempDir()
	tool := New(dir)
	args, _ := json.Marshal(map[string]any{"command": "echo hello"})
	result, err := tool.Execute(context.Background(), "bash", args)
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Text)
	}
	if result.Text != "hello\n" {
		t.Errorf("expected 'hello\\n', got %q", result.Text)
	}
}

func TestShellExecWorkingDir(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(dir+"/test.txt", []byte("content"), 0644)
	tool := New(dir)
	args, _ := json.Marshal(map[string]any{"command": "ls test.txt"})
	result, _ := tool.Execute(context.Background(), "bash", args)
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Text)
	}
	if result.Text != "test.txt\n" {
		t.Errorf("expected test.txt, got %q", result.Text)
	}
}

func TestShellExecBlocked(t *testing.T) {
	tool := New(t.TempDir())
	args, _ := json.Marshal(map[string]any{"command": "sudo reboot"})
	result, _ := tool.Execute(context.Background(), "bash", args)
	if !result.IsError {
		t.Error("expected blocked error")
	}
}

func TestShellExecStderr(t *testing.T) {
	tool := New(t.TempDir())
	args, _ := json.Marshal(map[string]any{"command": "echo out && echo err >&2"})
	result, err := tool.Execute(context.Background(), "bash", args)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(result.Text, "out") {
		t.Error("missing stdout content")
	}
	if !strings.Contains(result.Text, "err") {
		t.Error("missing stderr content")
	}
	if !strings.Contains(result.Text, "stderr") {
		t.Error("missing stderr separator")
	}
}

func TestShellExecExitCode(t *testing.T) {
	tool := New(t.TempDir())
	args, _ := json.Marshal(map[string]any{"command": "exit 1"})
	result, _ := tool.Execute(context.Background(), "bash", args)
	if !result.IsError {
		t.Error("expected exit error")
	}
}

func TestShellExecEmptyCommand(t *testing.T) {
	tool := New(t.TempDir())
	args, _ := json.Marshal(map[string]any{"command": ""})
	result, _ := tool.Execute(context.Background(), "bash", args)
	if !result.IsError {
		t.Error("expected error for empty command")
	}
	if !strings.Contains(result.Text, "required") {
		t.Errorf("error should mention required, got %q", result.Text)
	}
}

func TestShellExecDefinitions(t *testing.T) {
	tool := New(t.TempDir())
	defs := tool.Definitions()
	if len(defs) != 1 {
		t.Fatalf("expected 1 definition, got %d", len(defs))
	}
	if defs[0].Name != "bash" {
		t.Errorf("expected 'bash', got %q", defs[0].Name)
	}
}

func TestShellExecNoOutput(t *testing.T) {
	tool := New(t.TempDir())
	args, _ := json.Marshal(map[string]any{"command": "true"})
	result, err := tool.Execute(context.Background(), "bash", args)
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Text)
	}
	if result.Text != "(no output)" {
		t.Errorf("expected '(no output)', got %q", result.Text)
	}
}

func TestShellExecBlockedVariants(t *testing.T) {
	tool := New(t.TempDir())
	blocked := []string{
		"rm -rf /",
		"SUDO reboot",
		"mkfs.ext4 /dev/sda",
		"echo test > /dev/null && dd if=/dev/zero of=/tmp/x",
	}
	for _, cmd := range blocked {
		args, _ := json.Marshal(map[string]any{"command": cmd})
		result, _ := tool.Execute(context.Background(), "bash", args)
		if !result.IsError {
			t.Errorf("expected %q to be blocked", cmd)
		}
	}
}
