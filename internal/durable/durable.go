// Package durable implements the minimal durable-execution substrate the
// agent loop depends on: a write-ahead log of named substep outputs keyed by
// (runId, stepName), auto-indexed on name collision, backed by SQLite.
//
// A real deployment could bind the same Recorder interface to a managed
// workflow engine; this package is the "implement a minimal one" fallback
// the runtime ships with.
package durable

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Store persists substep outputs so a retried run can replay them instead of
// re-executing. One Store backs every run in the process.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a structured logger for store operations.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open opens (creating if absent) a SQLite-backed durable store at path.
// Use ":memory:" for an ephemeral store (tests, single-process runs with no
// crash-recovery requirement).
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("durable: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // serialize writers, matching SQLite's single-writer model
	s := &Store{db: db, logger: slog.New(slog.DiscardHandler)}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Init creates the substep table if absent. Must be called once before use.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS substeps (
		run_id TEXT NOT NULL,
		step_name TEXT NOT NULL,
		output TEXT,
		failed INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (run_id, step_name)
	)`)
	if err != nil {
		return fmt.Errorf("durable: init: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// record is one replayed substep outcome.
type record struct {
	output json.RawMessage
	failed bool
	errMsg string
	found  bool
}

func (s *Store) lookup(ctx context.Context, runID, stepName string) (record, error) {
	var out sql.NullString
	var failed int
	var errMsg sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT output, failed, error FROM substeps WHERE run_id = ? AND step_name = ?`,
		runID, stepName).Scan(&out, &failed, &errMsg)
	if err == sql.ErrNoRows {
		return record{}, nil
	}
	if err != nil {
		return record{}, err
	}
	return record{
		output: json.RawMessage(out.String),
		failed: failed != 0,
		errMsg: errMsg.String,
		found:  true,
	}, nil
}

func (s *Store) save(ctx context.Context, runID, stepName string, output json.RawMessage, stepErr error) error {
	failed := 0
	errMsg := ""
	if stepErr != nil {
		failed = 1
		errMsg = stepErr.Error()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO substeps (run_id, step_name, output, failed, error, created_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, step_name) DO UPDATE SET output = excluded.output, failed = excluded.failed, error = excluded.error`,
		runID, stepName, string(output), failed, errMsg, time.Now().UTC().Unix())
	return err
}

// Recorder scopes substep replay to a single run, auto-indexing repeated
// step names ("think" -> "think:0", "think:1", ...) so a name can recur
// across loop iterations without colliding.
type Recorder struct {
	store *Store
	runID string
	mu    sync.Mutex
	seq   map[string]int
}

// NewRecorder creates a Recorder bound to runID. runID must be stable across
// retries of the same logical run (e.g. the session key plus a fixed epoch).
func (s *Store) NewRecorder(runID string) *Recorder {
	return &Recorder{store: s, runID: runID, seq: make(map[string]int)}
}

// next returns the auto-indexed name for the next occurrence of baseName
// within this recorder's lifetime.
func (r *Recorder) next(baseName string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.seq[baseName]
	r.seq[baseName] = idx + 1
	return fmt.Sprintf("%s:%d", baseName, idx)
}

// Step executes fn as a named durable substep. If a prior attempt of this
// run already recorded an outcome for this step's auto-indexed name, fn is
// skipped and the recorded outcome is replayed verbatim (including a
// recorded failure, which is returned as an error again so the caller's
// normal error handling runs — the substrate only skips re-execution, not
// error propagation).
func Step[T any](ctx context.Context, r *Recorder, baseName string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	name := r.next(baseName)

	rec, err := r.store.lookup(ctx, r.runID, name)
	if err != nil {
		return zero, fmt.Errorf("durable: lookup %s/%s: %w", r.runID, name, err)
	}
	if rec.found {
		if rec.failed {
			return zero, fmt.Errorf("%s", rec.errMsg)
		}
		var out T
		if len(rec.output) > 0 {
			if err := json.Unmarshal(rec.output, &out); err != nil {
				return zero, fmt.Errorf("durable: decode replayed %s/%s: %w", r.runID, name, err)
			}
		}
		return out, nil
	}

	out, fnErr := fn(ctx)
	var payload json.RawMessage
	if fnErr == nil {
		payload, err = json.Marshal(out)
		if err != nil {
			return zero, fmt.Errorf("durable: encode %s/%s: %w", r.runID, name, err)
		}
	}
	if err := r.store.save(ctx, r.runID, name, payload, fnErr); err != nil {
		r.store.logger.Warn("durable: failed to persist substep", "run", r.runID, "step", name, "error", err)
	}
	return out, fnErr
}
