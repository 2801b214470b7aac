package openaicompat

import (
	"encoding/json"

	conduit "github.com/nevindra/conduit"
)

// ParseResponse converts an OpenAI-format ChatResponse to a conduit
// ChatResponse. It extracts content, tool calls, and usage from choices[0],
// and classifies finish_reason "length" as StopReasonMaxTokens.
func ParseResponse(resp ChatResponse) (conduit.ChatResponse, error) {
	var out conduit.ChatResponse
	out.StopReason = conduit.StopReasonStop

	if len(resp.Choices) == 0 {
		return out, nil
	}

	choice := resp.Choices[0]
	if choice.Message != nil {
		out.Content = choice.Message.Content
		out.ToolCalls = ParseToolCalls(choice.Message.ToolCalls)
	}
	if len(out.ToolCalls) > 0 {
		out.StopReason = conduit.StopReasonToolCall
	} else if choice.FinishReason == "length" {
		out.StopReason = conduit.StopReasonMaxTokens
	}

	if resp.Usage != nil {
		out.Usage = conduit.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}

	return out, nil
}

// ParseToolCalls converts OpenAI tool call requests to conduit ToolCalls.
// OpenAI returns function.arguments as a JSON string; we carry it through
// as json.RawMessage, defaulting to "{}" if it isn't valid JSON.
func ParseToolCalls(tcs []ToolCallRequest) []conduit.ToolCall {
	if len(tcs) == 0 {
		return nil
	}

	out := make([]conduit.ToolCall, 0, len(tcs))
	for _, tc := range tcs {
		args := json.RawMessage(tc.Function.Arguments)
		if !json.Valid(args) {
			args = json.RawMessage(`{}`)
		}
		out = append(out, conduit.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}
	return out
}
