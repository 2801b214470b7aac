package conduit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nevindra/conduit/internal/durable"
)

func newTestHeartbeat(t *testing.T, reply string) (*Heartbeat, *MemoryStore) {
	t.Helper()
	dir := t.TempDir()

	store, err := durable.Open(dir + "/durable.db")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	mem := NewMemoryStore(dir)
	gateway := NewGateway(stubProvider{reply: reply}, "stub-model")
	return NewHeartbeat(gateway, mem, store, 30), mem
}

func TestHeartbeatFirstRunWithNoMarkerIsDue(t *testing.T) {
	h, _ := newTestHeartbeat(t, "curated summary")
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	check, err := h.check(now)
	if err != nil {
		t.Fatal(err)
	}
	if !check.ShouldDistill {
		t.Error("expected a curated memory with no last_heartbeat marker to be distillation-due")
	}
}

func TestHeartbeatSkipsDistillationWhenNotDue(t *testing.T) {
	h, mem := newTestHeartbeat(t, "curated summary")
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	if err := mem.WriteCurated(WithLastHeartbeat("existing memory", now.Add(-time.Hour))); err != nil {
		t.Fatal(err)
	}

	check, err := h.check(now)
	if err != nil {
		t.Fatal(err)
	}
	if check.ShouldDistill {
		t.Error("expected a recent last_heartbeat with a small daily log not to be due")
	}
}

func TestHeartbeatDueAfterMaxHoursBetween(t *testing.T) {
	h, mem := newTestHeartbeat(t, "curated summary")
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	if err := mem.WriteCurated(WithLastHeartbeat("existing memory", now.Add(-9*time.Hour))); err != nil {
		t.Fatal(err)
	}

	check, err := h.check(now)
	if err != nil {
		t.Fatal(err)
	}
	if !check.ShouldDistill {
		t.Error("expected distillation to be due once maxHoursBetween has elapsed")
	}
}

func TestHeartbeatRunWritesCuratedAndPrunesLogs(t *testing.T) {
	h, mem := newTestHeartbeat(t, "distilled memory content")
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	if err := mem.AppendToday(now, "something happened today"); err != nil {
		t.Fatal(err)
	}

	if err := h.Run(context.Background(), now); err != nil {
		t.Fatal(err)
	}

	curated, err := mem.ReadCurated()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(curated, "distilled memory content") {
		t.Errorf("expected curated memory to contain the distilled summary, got %q", curated)
	}
	if _, ok := ParseLastHeartbeat(curated); !ok {
		t.Error("expected a last_heartbeat marker to be written after a run")
	}
}

func TestHeartbeatRunIsNoOpWhenNoLogsExist(t *testing.T) {
	h, mem := newTestHeartbeat(t, "should not be used")
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	// No marker -> check reports due, but loadRecentLogs is empty, so Run
	// must return before ever calling the gateway.
	if err := h.Run(context.Background(), now); err != nil {
		t.Fatal(err)
	}

	curated, err := mem.ReadCurated()
	if err != nil {
		t.Fatal(err)
	}
	if curated != "" {
		t.Errorf("expected no curated memory to be written with no logs to distill, got %q", curated)
	}
}
