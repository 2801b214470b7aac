package conduit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// behaviorGuidelines are the fixed closing instructions appended to every
// system prompt: tool usage discipline, and the rule that ends a turn.
const behaviorGuidelines = `## Guidelines

- Use tools when you need information or need to take an action; don't guess.
- Call delegate_task for substantial, self-contained sub-tasks you can hand off entirely.
- Your text reply ends the turn. Do not ask "should I continue?" — either call a tool or give your final answer.
- Keep replies concise and direct.`

// ContextAssembler builds the system prompt and conversation history for a
// run from the workspace's memory artifacts and session store.
type ContextAssembler struct {
	agentName string
	mem       *MemoryStore
	sessions  *SessionStore
	guard     *InjectionGuard
	logger    *slog.Logger
}

// NewContextAssembler creates an assembler for agentName, reading memory
// from mem and conversation history from sessions. guard may be nil to
// disable injection scanning.
func NewContextAssembler(agentName string, mem *MemoryStore, sessions *SessionStore, guard *InjectionGuard) *ContextAssembler {
	return &ContextAssembler{agentName: agentName, mem: mem, sessions: sessions, guard: guard, logger: nopLogger}
}

// ScanIncoming runs the injection guard, if configured, against the live
// inbound message text before it's folded into the run's message list —
// the pre-assembly scrub that BuildConversationHistory otherwise only
// applies to already-persisted turns. A flagged scan is logged, never
// blocking: Scan's own contract is detect-and-pass-through.
func (a *ContextAssembler) ScanIncoming(key SessionKey, text string) {
	if a.guard == nil {
		return
	}
	if layer := a.guard.Scan(text); layer != 0 {
		a.logger.Warn("context: incoming message flagged by injection guard", "session", key, "layer", layer)
	}
}

// BuildSystemPrompt concatenates identity, optional user info, the memory
// block, and the fixed behavioral guidelines. Absent optional files are
// skipped without error.
func (a *ContextAssembler) BuildSystemPrompt(now time.Time) (string, error) {
	var sections []string

	soul, err := a.mem.ReadSoul()
	if err != nil {
		return "", err
	}
	if soul != "" {
		sections = append(sections, soul)
	} else {
		sections = append(sections, fmt.Sprintf("You are %s, a helpful assistant.", a.agentName))
	}

	user, err := a.mem.ReadUser()
	if err != nil {
		return "", err
	}
	if user != "" {
		sections = append(sections, "## About the User\n\n"+user)
	}

	memBlock, err := a.buildMemoryBlock(now)
	if err != nil {
		return "", err
	}
	if memBlock != "" {
		sections = append(sections, memBlock)
	}

	sections = append(sections, behaviorGuidelines)
	return strings.Join(sections, "\n\n"), nil
}

// buildMemoryBlock assembles curated memory plus yesterday's and today's
// daily logs, in that order, skipping any that are absent.
func (a *ContextAssembler) buildMemoryBlock(now time.Time) (string, error) {
	var parts []string

	curated, err := a.mem.ReadCurated()
	if err != nil {
		return "", err
	}
	if curated != "" {
		parts = append(parts, "## Long-Term Memory\n\n"+curated)
	}

	yesterday := now.UTC().AddDate(0, 0, -1).Format("2006-01-02")
	if log, err := a.mem.ReadDayLog(yesterday); err != nil {
		return "", err
	} else if log != "" {
		parts = append(parts, "## Yesterday's Log ("+yesterday+")\n\n"+log)
	}

	today := now.UTC().Format("2006-01-02")
	if log, err := a.mem.ReadDayLog(today); err != nil {
		return "", err
	} else if log != "" {
		parts = append(parts, "## Today's Log ("+today+")\n\n"+log)
	}

	return strings.Join(parts, "\n\n"), nil
}

// BuildConversationHistory loads the session and returns only entries with
// role user or assistant. Tool results are never replayed from persistence
// — they exist only within the live run.
func (a *ContextAssembler) BuildConversationHistory(key SessionKey, maxMessages int) ([]RuntimeMessage, error) {
	records, err := a.sessions.Load(key, maxMessages)
	if err != nil {
		return nil, err
	}
	out := make([]RuntimeMessage, 0, len(records))
	for _, r := range records {
		switch r.Role {
		case RoleUser:
			if a.guard != nil {
				if layer := a.guard.Scan(r.Content); layer != 0 {
					a.logger.Warn("context: persisted history flagged by injection guard", "session", key, "layer", layer)
				}
			}
			out = append(out, NewUserMessage(r.Content))
		case RoleAssistant:
			out = append(out, AssistantMessageV{Content: []ContentBlock{TextBlock{Text: r.Content}}, StopReason: StopReasonStop})
		}
	}
	return out, nil
}

// PersistTurn appends the user message and the assistant's final text reply
// to the session. Intermediate tool calls/results are never persisted (§3:
// sub-agent and tool-result messages exist only for the run's duration).
func (a *ContextAssembler) PersistTurn(ctx context.Context, key SessionKey, userText, assistantText string) error {
	now := time.Now().UTC()
	if err := a.sessions.Append(ctx, key, SessionMessage{Role: RoleUser, Content: userText, Timestamp: now.Unix()}); err != nil {
		return err
	}
	return a.sessions.Append(ctx, key, SessionMessage{Role: RoleAssistant, Content: assistantText, Timestamp: now.Unix()})
}
