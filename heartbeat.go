package conduit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nevindra/conduit/internal/durable"
)

// logSizeThreshold is the default LOG_SIZE_THRESHOLD (§4.12): today's daily
// log must exceed this many bytes to trigger distillation on size alone.
const logSizeThreshold = 4096

// maxHoursBetween is the default MAX_HOURS_BETWEEN (§4.12): distillation
// also triggers once this long has passed since the last heartbeat,
// regardless of log size.
const maxHoursBetween = 8 * time.Hour

// distillLookbackDays bounds how many days of daily logs feed one
// distillation pass (§4.12: "last 7 days of non-empty logs").
const distillLookbackDays = 7

// summarizationPromptTemplate is the fixed instruction given to the
// gateway during distillation. No tools are offered (§4.12: "tools=[]").
const summarizationPromptTemplate = `You maintain a curated long-term memory file for an assistant.

Current curated memory:
%s

Recent daily logs to fold in:
%s

Rewrite the curated memory: merge durable facts, preferences, and
decisions from the logs into it. Keep it concise markdown. Drop anything
no longer relevant or superseded by a later entry. Do not include a
last_heartbeat line — that is added separately. Reply with only the
updated curated memory content.`

// Heartbeat implements §4.12: an adaptive cron that distills recent daily
// logs into curated memory without invoking the LLM gateway unless the
// adaptive check decides distillation is due.
type Heartbeat struct {
	gateway       *Gateway
	mem           *MemoryStore
	durableStore  *durable.Store
	retentionDays int
	logger        *slog.Logger
}

// HeartbeatOption configures a Heartbeat.
type HeartbeatOption func(*Heartbeat)

// HeartbeatLogger sets the structured logger.
func HeartbeatLogger(l *slog.Logger) HeartbeatOption { return func(h *Heartbeat) { h.logger = l } }

// NewHeartbeat assembles a Heartbeat. retentionDays is DAYS_TO_KEEP
// (default 30, from Config.Heartbeat.RetentionDays).
func NewHeartbeat(gateway *Gateway, mem *MemoryStore, durableStore *durable.Store, retentionDays int, opts ...HeartbeatOption) *Heartbeat {
	h := &Heartbeat{gateway: gateway, mem: mem, durableStore: durableStore, retentionDays: retentionDays, logger: nopLogger}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Start registers cronExpr with the cron trigger and runs Run on every
// tick. Returns a stop func that cancels the ticker goroutine.
func (h *Heartbeat) Start(ctx context.Context, cronExpr string) (stop func(), err error) {
	return durable.CronTrigger(cronExpr, func(now time.Time) {
		if err := h.Run(ctx, now); err != nil {
			h.logger.Error("heartbeat: run failed", "error", err)
		}
	})
}

// heartbeatCheck is the durable-substep payload for the adaptive check
// phase.
type heartbeatCheck struct {
	ShouldDistill bool
	Curated       string
}

// Run executes one heartbeat tick as a durable run: check, (if due) load,
// distill, write, prune — each its own substep (§4.12). No LLM call is made
// unless the check phase decides distillation is due.
func (h *Heartbeat) Run(ctx context.Context, now time.Time) error {
	now = now.UTC()
	runID := "heartbeat-" + now.Format("2006-01-02T15:04")
	rec := h.durableStore.NewRecorder(runID)

	check, err := durable.Step(ctx, rec, "check", func(ctx context.Context) (heartbeatCheck, error) {
		return h.check(now)
	})
	if err != nil {
		return err
	}
	if !check.ShouldDistill {
		return nil
	}

	logs, err := durable.Step(ctx, rec, "load", func(ctx context.Context) (string, error) {
		return h.loadRecentLogs(now)
	})
	if err != nil {
		return err
	}
	if strings.TrimSpace(logs) == "" {
		return nil
	}

	summary, err := durable.Step(ctx, rec, "llm", func(ctx context.Context) (string, error) {
		prompt := fmt.Sprintf(summarizationPromptTemplate, check.Curated, logs)
		msg, err := h.gateway.Complete(ctx, "", []RuntimeMessage{NewUserMessage(prompt)}, nil)
		if err != nil {
			return "", err
		}
		return msg.Text(), nil
	})
	if err != nil {
		return err
	}

	if _, err := durable.Step(ctx, rec, "write", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, h.mem.WriteCurated(WithLastHeartbeat(summary, now))
	}); err != nil {
		return err
	}

	_, err = durable.Step(ctx, rec, "prune", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, h.mem.DeleteDayLogsOlderThan(now, h.retentionDays)
	})
	return err
}

// check performs the no-LLM-call adaptive check: read curated memory,
// parse last_heartbeat, read today's log, and decide whether distillation
// is due. A curated memory with no parseable last_heartbeat marker (the
// very first heartbeat) is treated as due, since there is no prior run to
// measure staleness against.
func (h *Heartbeat) check(now time.Time) (heartbeatCheck, error) {
	curated, err := h.mem.ReadCurated()
	if err != nil {
		return heartbeatCheck{}, err
	}
	today, err := h.mem.ReadDayLog(now.Format("2006-01-02"))
	if err != nil {
		return heartbeatCheck{}, err
	}

	lastHeartbeat, hasMarker := ParseLastHeartbeat(curated)
	due := len(today) > logSizeThreshold || !hasMarker || now.Sub(lastHeartbeat) > maxHoursBetween

	return heartbeatCheck{ShouldDistill: due, Curated: curated}, nil
}

// loadRecentLogs concatenates the last distillLookbackDays of non-empty
// daily logs, most recent last, oldest first, each under a date heading.
func (h *Heartbeat) loadRecentLogs(now time.Time) (string, error) {
	var b strings.Builder
	for i := distillLookbackDays - 1; i >= 0; i-- {
		day := now.AddDate(0, 0, -i).Format("2006-01-02")
		content, err := h.mem.ReadDayLog(day)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		fmt.Fprintf(&b, "## %s\n%s\n\n", day, content)
	}
	return b.String(), nil
}
