package conduit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// SessionStore is the append-only conversation log, one JSONL file per
// session key under workspaceRoot/sessions/.
type SessionStore struct {
	root   string
	logger *slog.Logger
}

// NewSessionStore creates a store rooted at workspaceRoot. The sessions/
// subdirectory is created lazily on first Append.
func NewSessionStore(workspaceRoot string, logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = nopLogger
	}
	return &SessionStore{root: filepath.Join(workspaceRoot, "sessions"), logger: logger}
}

func (s *SessionStore) path(key SessionKey) string {
	return filepath.Join(s.root, string(key)+".jsonl")
}

// Append adds one record to the session's log. Creates the sessions
// directory if absent. No ordering guarantee across concurrent appends to
// the same key beyond file-append atomicity; callers serialize per key via
// the singleton controller.
func (s *SessionStore) Append(ctx context.Context, key SessionKey, msg SessionMessage) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("session: mkdir: %w", err)
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = NowUnix()
	}
	line, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}
	f, err := os.OpenFile(s.path(key), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("session: open: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("session: write: %w", err)
	}
	return nil
}

// Load reads the session's records and returns the last maxMessages in
// insertion order. A missing file returns an empty slice, not an error.
// Malformed lines are skipped with a warning rather than aborting the load.
func (s *SessionStore) Load(key SessionKey, maxMessages int) ([]SessionMessage, error) {
	f, err := os.Open(s.path(key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: open: %w", err)
	}
	defer f.Close()

	var all []SessionMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg SessionMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			s.logger.Warn("session: skipping malformed line", "key", key, "line", lineNo, "error", err)
			continue
		}
		all = append(all, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("session: scan: %w", err)
	}

	if maxMessages > 0 && len(all) > maxMessages {
		all = all[len(all)-maxMessages:]
	}
	return all, nil
}

// Rewrite atomically replaces the session's contents with messages, in
// order. Used only by the compactor. Writes to a temp path and renames.
func (s *SessionStore) Rewrite(key SessionKey, messages []SessionMessage) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("session: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(s.root, ".rewrite-*")
	if err != nil {
		return fmt.Errorf("session: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	w := bufio.NewWriter(tmp)
	for _, msg := range messages {
		line, err := json.Marshal(msg)
		if err != nil {
			tmp.Close()
			return fmt.Errorf("session: marshal: %w", err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			tmp.Close()
			return fmt.Errorf("session: write: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("session: flush: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("session: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path(key)); err != nil {
		return fmt.Errorf("session: rename: %w", err)
	}
	return nil
}
