package conduit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nevindra/conduit/internal/durable"
)

// defaultMaxIterations bounds the number of think/act/observe cycles in one
// run (§4.8).
const defaultMaxIterations = 20

// Spawner invokes the agent loop as an isolated child run (§4.9). Set by
// the runtime wiring; subagent.go provides the concrete implementation.
type Spawner func(ctx context.Context, task string, subSessionKey SessionKey) (RunResult, error)

// AgentLoop drives the bounded think/act/observe cycle described in §4.8.
type AgentLoop struct {
	gateway       *Gateway
	tools         *ToolRegistry
	assembler     *ContextAssembler
	compactor     *Compactor
	pruner        *Pruner
	durableStore  *durable.Store
	spawn         Spawner
	isSubAgent    bool
	maxIterations int
	historyLimit  int
	logger        *slog.Logger
	tracer        Tracer
}

// LoopOption configures an AgentLoop.
type LoopOption func(*AgentLoop)

// LoopMaxIterations overrides the default of 20.
func LoopMaxIterations(n int) LoopOption { return func(l *AgentLoop) { l.maxIterations = n } }

// LoopHistoryLimit overrides the default of 10 persisted messages loaded
// into a fresh run's history.
func LoopHistoryLimit(n int) LoopOption { return func(l *AgentLoop) { l.historyLimit = n } }

// LoopLogger sets the structured logger.
func LoopLogger(l *slog.Logger) LoopOption { return func(a *AgentLoop) { a.logger = l } }

// LoopTracer sets the span tracer. Span creation is skipped entirely when
// unset (nil check), per Tracer's own doc contract.
func LoopTracer(t Tracer) LoopOption { return func(l *AgentLoop) { l.tracer = t } }

// LoopAsSubAgent marks this loop as running in sub-agent mode: delegate_task
// is never routed to a spawner (recursive spawning is forbidden), even if
// the tool registry happens to include it.
func LoopAsSubAgent() LoopOption { return func(l *AgentLoop) { l.isSubAgent = true } }

// NewAgentLoop assembles an AgentLoop from its collaborators. spawn may be
// nil for a sub-agent loop (delegate_task is never dispatched there).
func NewAgentLoop(gateway *Gateway, tools *ToolRegistry, assembler *ContextAssembler, compactor *Compactor, pruner *Pruner, durableStore *durable.Store, spawn Spawner, opts ...LoopOption) *AgentLoop {
	l := &AgentLoop{
		gateway:       gateway,
		tools:         tools,
		assembler:     assembler,
		compactor:     compactor,
		pruner:        pruner,
		durableStore:  durableStore,
		spawn:         spawn,
		maxIterations: defaultMaxIterations,
		historyLimit:  10,
		logger:        nopLogger,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// thinkOutcome is the durable-substep payload for one Complete call: a
// JSON-friendly projection of AssistantMessageV (which itself isn't
// directly marshalable, since ContentBlock is an interface).
type thinkOutcome struct {
	Text       string     `json:"text"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	StopReason StopReason `json:"stop_reason"`
	ErrorText  string     `json:"error_text,omitempty"`
	Usage      Usage      `json:"usage"`
}

func toThinkOutcome(msg AssistantMessageV) thinkOutcome {
	return thinkOutcome{
		Text:       msg.Text(),
		ToolCalls:  msg.ToolCalls(),
		StopReason: msg.StopReason,
		ErrorText:  msg.ErrorText,
		Usage:      msg.Usage,
	}
}

func (o thinkOutcome) toAssistantMessage() AssistantMessageV {
	var blocks []ContentBlock
	if o.Text != "" {
		blocks = append(blocks, TextBlock{Text: o.Text})
	}
	for _, tc := range o.ToolCalls {
		blocks = append(blocks, ToolCallBlock{ToolCall: tc})
	}
	return AssistantMessageV{Content: blocks, Usage: o.Usage, StopReason: o.StopReason, ErrorText: o.ErrorText}
}

// Run executes one durable agent run. runID scopes substep replay: it must
// be stable across retries of the same logical attempt (the caller is
// responsible for choosing one, typically derived from sessionKey plus the
// triggering message's identity).
func (l *AgentLoop) Run(ctx context.Context, runID string, sessionKey SessionKey, incomingText string) (RunResult, error) {
	rec := l.durableStore.NewRecorder(runID)

	systemPrompt, err := durable.Step(ctx, rec, "systemPrompt", func(ctx context.Context) (string, error) {
		return l.assembler.BuildSystemPrompt(time.Now())
	})
	if err != nil {
		return RunResult{}, err
	}

	history, err := durable.Step(ctx, rec, "history", func(ctx context.Context) (RuntimeMessages, error) {
		msgs, err := l.assembler.BuildConversationHistory(sessionKey, l.historyLimit)
		return RuntimeMessages(msgs), err
	})
	if err != nil {
		return RunResult{}, err
	}

	if l.compactor.ShouldCompact(history) {
		history, err = durable.Step(ctx, rec, "compact", func(ctx context.Context) (RuntimeMessages, error) {
			msgs, err := l.compactor.Compact(ctx, history, sessionKey)
			return RuntimeMessages(msgs), err
		})
		if err != nil {
			return RunResult{}, err
		}
	}

	l.assembler.ScanIncoming(sessionKey, incomingText)
	messages := append(append([]RuntimeMessage{}, history...), NewUserMessage(incomingText))
	tools := l.tools.AllDefinitions()

	var (
		iterations         int
		totalToolCalls     int
		finalResponse      string
		done               bool
		hasCompactedThisRun bool
	)

	for !done && iterations < l.maxIterations {
		iterations++

		if iterations > defaultKeepLastAssistantTurns {
			l.pruner.Prune(messages)
		}
		if remaining := l.maxIterations - iterations; remaining <= 3 {
			messages = append(messages, NewUserMessage(fmt.Sprintf("[SYSTEM: iteration %d/%d — respond NOW]", iterations, l.maxIterations)))
		} else if remaining <= 10 {
			messages = append(messages, NewUserMessage("[SYSTEM: wrap up soon]"))
		}

		snapshot := messages
		thinkCtx, thinkSpan := l.startSpan(ctx, "agent.think", IntAttr("iteration", iterations))
		reply, err := durable.Step(thinkCtx, rec, "think", func(ctx context.Context) (thinkOutcome, error) {
			msg, err := l.gateway.Complete(ctx, systemPrompt, snapshot, tools)
			if err != nil {
				return thinkOutcome{}, err
			}
			return toThinkOutcome(msg), nil
		})
		if err != nil {
			thinkSpan.Error(err)
			thinkSpan.End()
			return RunResult{}, err
		}
		thinkSpan.End()

		if reply.StopReason == StopReasonError {
			providerErr := fmt.Errorf("%s", reply.ErrorText)
			if isContextOverflow(providerErr) {
				if !hasCompactedThisRun {
					messages = emergencySummarize(messages)
					hasCompactedThisRun = true
					iterations--
					continue
				}
				return RunResult{}, &ErrOverflow{Underlying: providerErr}
			}
			return RunResult{}, &ErrLLM{Provider: l.gateway.provider.Name(), Message: reply.ErrorText}
		}

		assistantMsg := reply.toAssistantMessage()
		toolCalls := assistantMsg.ToolCalls()

		if len(toolCalls) == 0 && assistantMsg.Text() != "" {
			finalResponse = assistantMsg.Text()
			done = true
			break
		}

		messages = append(messages, assistantMsg)

		for _, tc := range toolCalls {
			var resultText string
			var isError bool

			if tc.Name == "delegate_task" && !l.isSubAgent {
				task := extractTaskArg(tc.Args)
				subSessionKey := SessionKey(fmt.Sprintf("sub-%s-%s", sessionKey, NewID()))
				delegateCtx, delegateSpan := l.startSpan(ctx, "agent.delegate", StringAttr("sub_session", string(subSessionKey)))
				runResult, err := durable.Step(delegateCtx, rec, "delegate", func(ctx context.Context) (RunResult, error) {
					if l.spawn == nil {
						return RunResult{}, fmt.Errorf("loop: delegate_task called but no spawner configured")
					}
					return l.spawn(ctx, task, subSessionKey)
				})
				if err != nil {
					delegateSpan.Error(err)
					resultText = "Error: " + err.Error()
					isError = true
				} else {
					resultText = runResult.Response
				}
				delegateSpan.End()
			} else {
				toolCtx, toolSpan := l.startSpan(ctx, "agent.tool", StringAttr("tool", tc.Name))
				toolResult, err := durable.Step(toolCtx, rec, "tool", func(ctx context.Context) (ToolResult, error) {
					res, execErr := l.tools.Execute(ctx, tc.Name, tc.Args)
					if execErr != nil && execErr != ErrUnknownTool {
						return ToolResult{}, execErr
					}
					return res, nil
				})
				if err != nil {
					toolSpan.Error(err)
					resultText = "Error: " + err.Error()
					isError = true
				} else {
					resultText = toolResult.Text
					isError = toolResult.IsError
				}
				toolSpan.End()
			}

			messages = append(messages, NewToolResultMessage(tc.ID, tc.Name, resultText, isError))
			totalToolCalls++
		}
	}

	if !done {
		finalResponse = fmt.Sprintf("(Reached max iterations: %d)", l.maxIterations)
	}

	if err := l.assembler.PersistTurn(ctx, sessionKey, incomingText, finalResponse); err != nil {
		l.logger.Warn("loop: failed to persist turn", "session", sessionKey, "error", err)
	}

	return RunResult{Response: finalResponse, Iterations: iterations, ToolCalls: totalToolCalls, Model: l.gateway.model}, nil
}

// startSpan starts a span via l.tracer, or returns ctx unchanged with a
// no-op span when no tracer is configured (tracer.go's documented nil
// check is satisfied here once, rather than at every call site).
func (l *AgentLoop) startSpan(ctx context.Context, name string, attrs ...SpanAttr) (context.Context, Span) {
	if l.tracer == nil {
		return ctx, noopSpan{}
	}
	return l.tracer.Start(ctx, name, attrs...)
}

// noopSpan discards every call; used when no Tracer is configured.
type noopSpan struct{}

func (noopSpan) SetAttr(...SpanAttr)      {}
func (noopSpan) Event(string, ...SpanAttr) {}
func (noopSpan) Error(error)               {}
func (noopSpan) End()                      {}

// extractTaskArg pulls the "task" string field out of a delegate_task call's
// raw JSON arguments. Returns "" if absent or malformed.
func extractTaskArg(args json.RawMessage) string {
	var v struct {
		Task string `json:"task"`
	}
	if err := json.Unmarshal(args, &v); err != nil {
		return ""
	}
	return v.Task
}

// emergencyTruncateChars is the coarse per-message truncation applied
// during overflow recovery. The source's policy; flagged but not changed
// per the open question on this behavior.
const emergencyTruncateChars = 200

// emergencySummarize performs the overflow-recovery path: keep the last
// min(6, len) messages verbatim, coarsely truncate every older message to
// emergencyTruncateChars, and fold them into one synthetic user message.
func emergencySummarize(messages []RuntimeMessage) []RuntimeMessage {
	keep := 6
	if keep > len(messages) {
		keep = len(messages)
	}
	cut := len(messages) - keep
	if cut <= 0 {
		return messages
	}

	var b strings.Builder
	for _, m := range messages[:cut] {
		text := messageText(m)
		if len(text) > emergencyTruncateChars {
			text = text[:emergencyTruncateChars]
		}
		b.WriteString(text)
		b.WriteString("\n---\n")
	}

	out := make([]RuntimeMessage, 0, 1+keep)
	out = append(out, NewUserMessage("[Context overflow — earlier turns truncated]\n"+b.String()))
	out = append(out, messages[cut:]...)
	return out
}
