package conduit

import (
	"context"
	"time"
)

// Gateway is the LLM Gateway of §4.4: a single Complete operation that
// hides provider dialect behind the RuntimeMessage sum type. The loop is
// provider-agnostic; all dialect translation happens here.
type Gateway struct {
	provider Provider
	model    string
	timeout  time.Duration // per-call timeout; LLM calls get 60s per spec §5
}

// NewGateway builds a Gateway around a (possibly retry/rate-limit
// decorated) Provider.
func NewGateway(provider Provider, model string) *Gateway {
	return &Gateway{provider: provider, model: model, timeout: 60 * time.Second}
}

// Complete sends systemPrompt + messages + tools to the provider and
// returns the model's reply as an AssistantMessageV. Per spec §4.4:
// provider-level failures surface as a StopReasonError with a
// human-readable message (not returned as a Go error); network/5xx errors
// are returned as a Go error so the surrounding durable substep retries.
func (g *Gateway) Complete(ctx context.Context, systemPrompt string, messages []RuntimeMessage, tools []ToolDefinition) (AssistantMessageV, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req := ChatRequest{
		Messages: toProviderMessages(systemPrompt, messages),
		Tools:    tools,
	}
	resp, err := g.provider.Chat(ctx, req)
	if err != nil {
		// Network/5xx failures bubble as Go errors: the durable substep retries.
		return AssistantMessageV{}, err
	}
	return fromChatResponse(resp), nil
}

// toProviderMessages flattens the sum-type runtime message list (plus the
// system prompt) into the Provider's flat wire shape.
func toProviderMessages(systemPrompt string, messages []RuntimeMessage) []ProviderMessage {
	out := make([]ProviderMessage, 0, len(messages)+1)
	if systemPrompt != "" {
		out = append(out, ProviderMessage{Role: "system", Content: systemPrompt})
	}
	for _, m := range messages {
		switch v := m.(type) {
		case UserMessageV:
			out = append(out, ProviderMessage{Role: "user", Content: v.Text})
		case AssistantMessageV:
			out = append(out, ProviderMessage{
				Role:      "assistant",
				Content:   v.Text(),
				ToolCalls: v.ToolCalls(),
			})
		case ToolResultMessageV:
			out = append(out, ProviderMessage{
				Role:       "tool",
				Content:    v.Text(),
				ToolCallID: v.ToolCallID,
			})
		}
	}
	return out
}

// fromChatResponse converts a provider's flat response into the sum-type
// AssistantMessageV, classifying the stop reason.
func fromChatResponse(resp ChatResponse) AssistantMessageV {
	if resp.StopReason == StopReasonError {
		return AssistantMessageV{StopReason: StopReasonError, ErrorText: resp.ErrorText, Usage: resp.Usage}
	}
	var blocks []ContentBlock
	if resp.Content != "" {
		blocks = append(blocks, TextBlock{Text: resp.Content})
	}
	for _, tc := range resp.ToolCalls {
		blocks = append(blocks, ToolCallBlock{ToolCall: tc})
	}
	stop := StopReasonStop
	if len(resp.ToolCalls) > 0 {
		stop = StopReasonToolCall
	}
	if resp.StopReason != "" {
		stop = resp.StopReason
	}
	return AssistantMessageV{Content: blocks, Usage: resp.Usage, StopReason: stop}
}

// EstimateTokens implements the compactor's token-estimation rule (§4.6):
// ceil(byteLength(serialize(content)) / 4).
func EstimateTokens(content string) int {
	n := len(content)
	return (n + 3) / 4
}
