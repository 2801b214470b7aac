package conduit

import "context"

// ProviderMessage is the flat, provider-dialect-neutral wire shape the low
// level Provider works with. The Gateway translates the sum-type
// RuntimeMessage model to and from this shape; providers never see
// RuntimeMessage directly, keeping dialect adapters (provider/openaicompat)
// decoupled from the loop's content-block model.
type ProviderMessage struct {
	Role       string // "system", "user", "assistant", "tool"
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ChatRequest is what the Gateway sends to a Provider.
type ChatRequest struct {
	Messages       []ProviderMessage
	Tools          []ToolDefinition
	ResponseSchema *ResponseSchema
}

// ChatResponse is what a Provider returns for one Complete call.
type ChatResponse struct {
	Content    string
	ToolCalls  []ToolCall
	Usage      Usage
	StopReason StopReason
	// ErrorText is set when StopReason is StopReasonError.
	ErrorText string
}

// Provider abstracts one LLM backend's wire dialect. Implementations
// translate ChatRequest to their native request format and back; they do
// not retry or rate-limit (those are Gateway decorators, §4.4).
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	Name() string
}
