package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSearchGrepFindsMatch(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.go"), []byte("package main\n\nfunc Foo() {}\n"), 0644)
	tool := NewSearchTool(dir)
	args, _ := json.Marshal(map[string]string{"pattern": "func Foo"})
	result, _ := tool.Execute(context.Background(), "grep", args)
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Text)
	}
	if !strings.Contains(result.Text, "a.go:3:func Foo() {}") {
		t.Errorf("expected match line, got: %q", result.Text)
	}
}

func TestSearchGrepNoMatch(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.go"), []byte("package main\n"), 0644)
	tool := NewSearchTool(dir)
	args, _ := json.Marshal(map[string]string{"pattern": "nonexistent_token"})
	result, _ := tool.Execute(context.Background(), "grep", args)
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Text)
	}
	if result.Text != "No matches" {
		t.Errorf("expected 'No matches', got %q", result.Text)
	}
}

func TestSearchGrepInvalidPattern(t *testing.T) {
	tool := NewSearchTool(t.TempDir())
	args, _ := json.Marshal(map[string]string{"pattern": "("})
	result, _ := tool.Execute(context.Background(), "grep", args)
	if !result.IsError {
		t.Error("expected error for invalid regex")
	}
}

func TestSearchFindMatchesGlob(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "one.go"), []byte("x"), 0644)
	os.WriteFile(filepath.Join(dir, "two.md"), []byte("x"), 0644)
	tool := NewSearchTool(dir)
	args, _ := json.Marshal(map[string]string{"glob": "*.go"})
	result, _ := tool.Execute(context.Background(), "find", args)
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Text)
	}
	if !strings.Contains(result.Text, "one.go") || strings.Contains(result.Text, "two.md") {
		t.Errorf("unexpected listing: %q", result.Text)
	}
}

func TestSearchFindDefaultGlob(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "only.txt"), []byte("x"), 0644)
	tool := NewSearchTool(dir)
	args, _ := json.Marshal(map[string]string{})
	result, _ := tool.Execute(context.Background(), "find", args)
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Text)
	}
	if !strings.Contains(result.Text, "only.txt") {
		t.Errorf("expected only.txt, got %q", result.Text)
	}
}
