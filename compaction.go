package conduit

import (
	"context"
	"fmt"
	"strings"
)

// Compactor tracks total conversation size and, once over budget,
// summarizes the older portion of a run's message history into a
// structured checkpoint, keeping the most recent portion verbatim.
type Compactor struct {
	gateway          *Gateway
	sessions         *SessionStore
	maxTokens        int
	threshold        float64
	keepRecentTokens int
}

// CompactorOption configures a Compactor.
type CompactorOption func(*Compactor)

// CompactorMaxTokens overrides the default 150_000 token budget.
func CompactorMaxTokens(n int) CompactorOption { return func(c *Compactor) { c.maxTokens = n } }

// CompactorThreshold overrides the default 0.8 trigger fraction.
func CompactorThreshold(f float64) CompactorOption { return func(c *Compactor) { c.threshold = f } }

// CompactorKeepRecentTokens overrides the default 20_000 token tail budget.
func CompactorKeepRecentTokens(n int) CompactorOption {
	return func(c *Compactor) { c.keepRecentTokens = n }
}

// NewCompactor creates a Compactor backed by gateway for summarization calls
// and sessions for the atomic rewrite step.
func NewCompactor(gateway *Gateway, sessions *SessionStore, opts ...CompactorOption) *Compactor {
	c := &Compactor{
		gateway:          gateway,
		sessions:         sessions,
		maxTokens:        150_000,
		threshold:        0.8,
		keepRecentTokens: 20_000,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// totalTokens sums the estimated token count of each message's text.
func totalTokens(messages []RuntimeMessage) int {
	var sum int
	for _, m := range messages {
		sum += EstimateTokens(messageText(m))
	}
	return sum
}

func messageText(m RuntimeMessage) string {
	switch v := m.(type) {
	case UserMessageV:
		return v.Text
	case AssistantMessageV:
		return v.Text()
	case ToolResultMessageV:
		return v.Text()
	default:
		return ""
	}
}

// ShouldCompact reports whether messages exceed maxTokens * threshold.
func (c *Compactor) ShouldCompact(messages []RuntimeMessage) bool {
	return float64(totalTokens(messages)) > float64(c.maxTokens)*c.threshold
}

const compactionSystemPrompt = `You are summarizing a conversation transcript into a structured checkpoint so the conversation can continue with full context. Be factual and concise; omit nothing load-bearing for continuing the task.`

const compactionTemplate = `Summarize the conversation transcript below into exactly this markdown template:

## Goal
## Constraints
## Progress
### Done
### In Progress
### Blocked
## Key Decisions
## Next Steps
## Critical Context

Transcript:
%s`

// Compact summarizes the older portion of messages, keeping a verbatim tail
// sized by keepRecentTokens. Returns the compacted slice and atomically
// rewrites the persisted session to match. If the cut would leave at most
// one message to summarize, messages is returned unchanged.
func (c *Compactor) Compact(ctx context.Context, messages []RuntimeMessage, sessionKey SessionKey) ([]RuntimeMessage, error) {
	cut := len(messages)
	var tailTokens int
	for cut > 0 {
		t := EstimateTokens(messageText(messages[cut-1]))
		if tailTokens+t > c.keepRecentTokens {
			break
		}
		tailTokens += t
		cut--
	}

	if cut <= 1 {
		return messages, nil
	}

	older := messages[:cut]
	tail := messages[cut:]

	var transcript strings.Builder
	for _, m := range older {
		switch v := m.(type) {
		case UserMessageV:
			fmt.Fprintf(&transcript, "user: %s\n", v.Text)
		case AssistantMessageV:
			fmt.Fprintf(&transcript, "assistant: %s\n", v.Text())
		case ToolResultMessageV:
			fmt.Fprintf(&transcript, "tool(%s): %s\n", v.ToolName, v.Text())
		}
	}

	resp, err := c.gateway.Complete(ctx, compactionSystemPrompt,
		[]RuntimeMessage{NewUserMessage(fmt.Sprintf(compactionTemplate, transcript.String()))}, nil)
	if err != nil {
		return nil, fmt.Errorf("compaction: summarize: %w", err)
	}

	summaryMsg := NewUserMessage("The conversation history before this point was compacted into the following summary: <summary>" + resp.Text() + "</summary>")

	compacted := make([]RuntimeMessage, 0, 1+len(tail))
	compacted = append(compacted, summaryMsg)
	compacted = append(compacted, tail...)

	if err := c.rewriteSession(sessionKey, compacted); err != nil {
		return nil, err
	}
	return compacted, nil
}

// rewriteSession persists the compacted form, keeping only user/assistant
// turns (tool results are never persisted, per §3).
func (c *Compactor) rewriteSession(sessionKey SessionKey, messages []RuntimeMessage) error {
	records := make([]SessionMessage, 0, len(messages))
	for _, m := range messages {
		switch v := m.(type) {
		case UserMessageV:
			records = append(records, SessionMessage{Role: RoleUser, Content: v.Text})
		case AssistantMessageV:
			records = append(records, SessionMessage{Role: RoleAssistant, Content: v.Text()})
		}
	}
	return c.sessions.Rewrite(sessionKey, records)
}
