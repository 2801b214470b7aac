package conduit

import (
	"context"
	"encoding/json"
	"fmt"
)

// --- Session data model (persisted) ---

// SessionKey identifies a logical conversation. Two SessionMessages share a
// SessionKey iff they belong to the same conversation. Conventionally
// "{channel}-{chatId}" or "{channel}-{chatId}-{threadId}".
type SessionKey string

// Role distinguishes the speaker of a persisted SessionMessage.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "toolResult"
)

// SessionMessage is one persisted record in a session's append-only log.
type SessionMessage struct {
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Timestamp int64          `json:"timestamp"` // unix seconds, UTC
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// --- Runtime message model (in-memory, sum type over content blocks) ---
//
// Design note: the runtime conversation is modeled as a sum type with
// structural content blocks rather than an inheritance hierarchy or a single
// flat struct. Pruning walks only the ToolResultMessage arm; token
// estimation, compaction and the context assembler walk all three.

// RuntimeMessage is the sum type consumed by the LLM gateway and the agent
// loop. The unexported marker method closes the set to the three variants
// defined in this file.
type RuntimeMessage interface {
	runtimeMessage()
}

// UserMessageV is plain user-authored text.
type UserMessageV struct {
	Text string
}

func (UserMessageV) runtimeMessage() {}

// NewUserMessage constructs a UserMessageV.
func NewUserMessage(text string) RuntimeMessage { return UserMessageV{Text: text} }

// ContentBlock is a structural element of an AssistantMessageV's content.
// Closed sum type: TextBlock | ToolCallBlock.
type ContentBlock interface {
	contentBlock()
}

// TextBlock is a span of assistant-authored text.
type TextBlock struct {
	Text string
}

func (TextBlock) contentBlock() {}

// ToolCallBlock is one tool invocation the model requested.
type ToolCallBlock struct {
	ToolCall ToolCall
}

func (ToolCallBlock) contentBlock() {}

// StopReason classifies why the model stopped generating.
type StopReason string

const (
	StopReasonStop      StopReason = "stop"
	StopReasonToolCall  StopReason = "toolCall"
	StopReasonMaxTokens StopReason = "maxTokens"
	StopReasonError     StopReason = "error"
)

// AssistantMessageV is the model's reply: an ordered sequence of text and
// tool-call blocks, plus usage and a stop reason.
type AssistantMessageV struct {
	Content    []ContentBlock
	Usage      Usage
	StopReason StopReason
	// ErrorText carries the provider's error text when StopReason is
	// StopReasonError; empty otherwise.
	ErrorText string
}

func (AssistantMessageV) runtimeMessage() {}

// Text concatenates all TextBlocks in Content, in order.
func (m AssistantMessageV) Text() string {
	var out string
	for _, b := range m.Content {
		if t, ok := b.(TextBlock); ok {
			out += t.Text
		}
	}
	return out
}

// ToolCalls extracts all ToolCallBlocks in Content, in order.
func (m AssistantMessageV) ToolCalls() []ToolCall {
	var out []ToolCall
	for _, b := range m.Content {
		if tc, ok := b.(ToolCallBlock); ok {
			out = append(out, tc.ToolCall)
		}
	}
	return out
}

// ToolResultMessageV is the observation fed back to the model after executing
// one tool call (or a sub-agent delegation, which is folded into the same
// shape). Content is a sequence of TextBlocks, per spec §3, though in
// practice tool results are single-block; the slice shape keeps the model
// symmetric with AssistantMessageV for shared pruning/serialization code.
type ToolResultMessageV struct {
	ToolCallID string
	ToolName   string
	Content    []TextBlock
	IsError    bool
}

func (ToolResultMessageV) runtimeMessage() {}

// Text concatenates all text blocks in the result.
func (m ToolResultMessageV) Text() string {
	var out string
	for _, b := range m.Content {
		out += b.Text
	}
	return out
}

// NewToolResultMessage builds a ToolResultMessageV from a single text body.
func NewToolResultMessage(callID, toolName, text string, isError bool) RuntimeMessage {
	return ToolResultMessageV{
		ToolCallID: callID,
		ToolName:   toolName,
		Content:    []TextBlock{{Text: text}},
		IsError:    isError,
	}
}

// runtimeMessageWire is the JSON-serializable projection of one
// RuntimeMessage, keyed by a Kind discriminator. RuntimeMessage's own
// variants aren't directly unmarshalable — AssistantMessageV.Content is a
// []ContentBlock, itself an interface — so round-tripping through the
// durable substep store needs a concrete stand-in, the same role
// thinkOutcome plays for a single AssistantMessageV.
type runtimeMessageWire struct {
	Kind       string     `json:"kind"`
	Text       string     `json:"text,omitempty"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	StopReason StopReason `json:"stopReason,omitempty"`
	ErrorText  string     `json:"errorText,omitempty"`
	Usage      Usage      `json:"usage,omitempty"`
	ToolCallID string     `json:"toolCallId,omitempty"`
	ToolName   string     `json:"toolName,omitempty"`
	IsError    bool       `json:"isError,omitempty"`
}

const (
	runtimeMessageKindUser       = "user"
	runtimeMessageKindAssistant  = "assistant"
	runtimeMessageKindToolResult = "toolResult"
)

func toRuntimeMessageWire(m RuntimeMessage) runtimeMessageWire {
	switch v := m.(type) {
	case UserMessageV:
		return runtimeMessageWire{Kind: runtimeMessageKindUser, Text: v.Text}
	case AssistantMessageV:
		to := toThinkOutcome(v)
		return runtimeMessageWire{
			Kind: runtimeMessageKindAssistant, Text: to.Text, ToolCalls: to.ToolCalls,
			StopReason: to.StopReason, ErrorText: to.ErrorText, Usage: to.Usage,
		}
	case ToolResultMessageV:
		return runtimeMessageWire{
			Kind: runtimeMessageKindToolResult, Text: v.Text(), ToolCallID: v.ToolCallID,
			ToolName: v.ToolName, IsError: v.IsError,
		}
	default:
		panic(fmt.Sprintf("types: unknown RuntimeMessage variant %T", m))
	}
}

func (w runtimeMessageWire) toRuntimeMessage() RuntimeMessage {
	switch w.Kind {
	case runtimeMessageKindAssistant:
		return thinkOutcome{Text: w.Text, ToolCalls: w.ToolCalls, StopReason: w.StopReason, ErrorText: w.ErrorText, Usage: w.Usage}.toAssistantMessage()
	case runtimeMessageKindToolResult:
		return NewToolResultMessage(w.ToolCallID, w.ToolName, w.Text, w.IsError)
	default:
		return UserMessageV{Text: w.Text}
	}
}

// RuntimeMessages is a marshalable slice of RuntimeMessage. Durable substeps
// that replay a []RuntimeMessage (history, compaction) use this type rather
// than the bare slice so json.Marshal/Unmarshal has a concrete shape to
// round-trip through, instead of failing on RuntimeMessage's interface arm.
type RuntimeMessages []RuntimeMessage

func (ms RuntimeMessages) MarshalJSON() ([]byte, error) {
	wire := make([]runtimeMessageWire, len(ms))
	for i, m := range ms {
		wire[i] = toRuntimeMessageWire(m)
	}
	return json.Marshal(wire)
}

func (ms *RuntimeMessages) UnmarshalJSON(data []byte) error {
	var wire []runtimeMessageWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	out := make(RuntimeMessages, len(wire))
	for i, w := range wire {
		out[i] = w.toRuntimeMessage()
	}
	*ms = out
	return nil
}

// --- Tool model ---

// Tool is a callable capability exposed to the model.
type Tool interface {
	Definitions() []ToolDefinition
	Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error)
}

// ToolDefinition is the structural description of one tool surfaced to the
// LLM gateway for dialect translation.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

// ToolCall is one invocation the model requested.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"arguments"`
}

// ToolResult is what a tool execution (or sub-agent spawn) returns to the
// loop, to be folded into a ToolResultMessageV.
type ToolResult struct {
	Text    string `json:"text"`
	IsError bool   `json:"is_error"`
}

// --- LLM gateway protocol ---

// Usage carries token accounting for one Complete call.
type Usage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd,omitempty"`
}

// ResponseSchema requests structured JSON output from the provider.
type ResponseSchema struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
}

// --- Channel / event model ---

// Destination says where a reply should be sent.
type Destination struct {
	ChatID    string
	MessageID string
	ThreadID  string
}

// ChannelMeta is an opaque per-channel payload threaded from the normalizer
// through to the channel handler. The core never inspects its contents.
type ChannelMeta struct {
	Channel string
	Raw     json.RawMessage
}

// Sender identifies who sent an inbound message.
type Sender struct {
	ID       string
	Name     string
	Username string
}

// MessageReceivedEvent is the canonical normalized inbound event.
type MessageReceivedEvent struct {
	Message     string
	SessionKey  SessionKey
	Channel     string
	Sender      Sender
	Destination Destination
	ChannelMeta ChannelMeta
	// MessageID is the originating platform message ID, used for the
	// self-cancellation guard in the singleton controller (§9 Open Question)
	// and as the second half of the dispatcher's sessionKey-messageID run ID.
	MessageID string
}

// ReplyReadyEvent is emitted once a run produces a final response.
type ReplyReadyEvent struct {
	Response    string
	Channel     string
	Destination Destination
	ChannelMeta ChannelMeta
}

// RunResult is the outcome of one agent loop run.
type RunResult struct {
	Response  string
	Iterations int
	ToolCalls  int
	Model      string
}
