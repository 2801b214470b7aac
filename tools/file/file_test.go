package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileWrite(t *testing.T) {
	dir := t.TempDir()
	tool := New(dir)
	args, _ := json.Marshal(map[string]string{"path": "test.txt", "content": "hello"})
	result, _ := tool.Execute(context.Background(), "write", args)
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Text)
	}

	data, _ := os.ReadFile(filepath.Join(dir, "test.txt"))
	if string(data) != "hello" {
		t.Errorf("wrong content: %s", data)
	}
}

func TestFileRead(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "test.txt"), []byte("content here"), 0644)
	tool := New(dir)
	args, _ := json.Marshal(map[string]string{"path": "test.txt"})
	result, _ := tool.Execute(context.Background(), "read", args)
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Text)
	}
	if result.Text != "content here" {
		t.Errorf("wrong content: %q", result.Text)
	}
}

func TestFileWriteSubdir(t *testing.T) {
	dir := t.TempDir()
	tool := New(dir)
	args, _ := json.Marshal(map[string]string{"path": "sub/dir/file.txt", "content": "nested"})
	result, _ := tool.Execute(context.Background(), "write", args)
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Text)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "sub/dir/file.txt"))
	if string(data) != "nested" {
		t.Errorf("wrong content: %s", data)
	}
}

func TestFilePathTraversal(t *testing.T) {
	tool := New(t.TempDir())
	args, _ := json.Marshal(map[string]string{"path": "../etc/passwd"})
	result, _ := tool.Execute(context.Background(), "read", args)
	if !result.IsError {
		t.Error("expected path traversal error")
	}
}

func TestFileAbsolutePath(t *testing.T) {
	tool := New(t.TempDir())
	args, _ := json.Marshal(map[string]string{"path": "/etc/passwd"})
	result, _ := tool.Execute(context.Background(), "read", args)
	if !result.IsError {
		t.Error("expected absolute path error")
	}
}

func TestFileReadTruncation(t *testing.T) {
	dir := t.TempDir()
	bigContent := make([]byte, maxResultChars+10_000)
	for i := range bigContent {
		bigContent[i] = 'A'
	}
	os.WriteFile(filepath.Join(dir, "big.txt"), bigContent, 0644)
	tool := New(dir)
	args, _ := json.Marshal(map[string]string{"path": "big.txt"})
	result, _ := tool.Execute(context.Background(), "read", args)
	if len(result.Text) > maxResultChars+100 {
		t.Errorf("content not truncated: %d chars", len(result.Text))
	}
}

func TestFileReadNonexistent(t *testing.T) {
	tool := New(t.TempDir())
	args, _ := json.Marshal(map[string]string{"path": "does_not_exist.txt"})
	result, _ := tool.Execute(context.Background(), "read", args)
	if !result.IsError {
		t.Error("expected error for nonexistent file")
	}
}

func TestFileWriteOverwrite(t *testing.T) {
	dir := t.TempDir()
	tool := New(dir)

	args, _ := json.Marshal(map[string]string{"path": "ow.txt", "content": "first"})
	tool.Execute(context.Background(), "write", args)

	args, _ = json.Marshal(map[string]string{"path": "ow.txt", "content": "second"})
	result, _ := tool.Execute(context.Background(), "write", args)
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Text)
	}

	data, _ := os.ReadFile(filepath.Join(dir, "ow.txt"))
	if string(data) != "second" {
		t.Errorf("expected 'second', got %q", string(data))
	}
}

func TestFileEditSingleMatch(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "edit.txt"), []byte("hello world"), 0644)
	tool := New(dir)
	args, _ := json.Marshal(map[string]string{"path": "edit.txt", "old_string": "world", "new_string": "there"})
	result, _ := tool.Execute(context.Background(), "edit", args)
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Text)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "edit.txt"))
	if string(data) != "hello there" {
		t.Errorf("wrong content: %s", data)
	}
}

func TestFileEditNotFound(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "edit.txt"), []byte("hello world"), 0644)
	tool := New(dir)
	args, _ := json.Marshal(map[string]string{"path": "edit.txt", "old_string": "nope", "new_string": "x"})
	result, _ := tool.Execute(context.Background(), "edit", args)
	if !result.IsError {
		t.Error("expected error when old_string absent")
	}
}

func TestFileEditAmbiguous(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "edit.txt"), []byte("aa aa"), 0644)
	tool := New(dir)
	args, _ := json.Marshal(map[string]string{"path": "edit.txt", "old_string": "aa", "new_string": "b"})
	result, _ := tool.Execute(context.Background(), "edit", args)
	if !result.IsError {
		t.Error("expected error when old_string matches more than once")
	}
}

func TestFileList(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0644)
	os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b"), 0644)
	os.Mkdir(filepath.Join(dir, "subdir"), 0755)

	tool := New(dir)
	args, _ := json.Marshal(map[string]string{"path": "."})
	result, _ := tool.Execute(context.Background(), "ls", args)
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Text)
	}
	if !strings.Contains(result.Text, "file\ta.txt") {
		t.Errorf("expected a.txt in listing, got: %s", result.Text)
	}
	if !strings.Contains(result.Text, "dir\tsubdir") {
		t.Errorf("expected subdir in listing, got: %s", result.Text)
	}
}

func TestFileListNonexistent(t *testing.T) {
	tool := New(t.TempDir())
	args, _ := json.Marshal(map[string]string{"path": "nope"})
	result, _ := tool.Execute(context.Background(), "ls", args)
	if !result.IsError {
		t.Error("expected error for nonexistent directory")
	}
}

func TestFileListDefaultPath(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "root.txt"), []byte("r"), 0644)
	tool := New(dir)
	args, _ := json.Marshal(map[string]string{})
	result, _ := tool.Execute(context.Background(), "ls", args)
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Text)
	}
	if !strings.Contains(result.Text, "root.txt") {
		t.Errorf("expected root.txt in listing, got: %s", result.Text)
	}
}

func TestFileDefinitions(t *testing.T) {
	tool := New(t.TempDir())
	defs := tool.Definitions()
	if len(defs) != 4 {
		t.Fatalf("expected 4 definitions, got %d", len(defs))
	}

	names := map[string]bool{}
	for _, d := range defs {
		names[d.Name] = true
	}
	for _, want := range []string{"read", "write", "edit", "ls"} {
		if !names[want] {
			t.Errorf("missing %s definition", want)
		}
	}
}
