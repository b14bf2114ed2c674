package translate

import (
	crand "crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

// NewMessageID returns an Anthropic-style message ID: "msg_" + 24 hex chars.
func NewMessageID() string {
	b := make([]byte, 12)
	crand.Read(b)
	return "msg_" + hex.EncodeToString(b)
}

// NewToolUseID returns a tool use ID: "toolu_" + 24 hex chars.
func NewToolUseID() string {
	b := make([]byte, 12)
	crand.Read(b)
	return "toolu_" + hex.EncodeToString(b)
}

// StopReason maps an OpenAI finish_reason to an Anthropic stop_reason. The
// second return is false when the value was outside the known set and the
// end_turn fallback was applied.
func StopReason(reason *string) (string, bool) {
	if reason == nil || *reason == "" {
		return "end_turn", true
	}
	switch *reason {
	case "stop":
		return "end_turn", true
	case "length":
		return "max_tokens", true
	case "tool_calls":
		return "tool_use", true
	case "content_filter":
		// Closest Anthropic analogue of an upstream content cut-off.
		return "stop_sequence", true
	default:
		return "end_turn", false
	}
}

func mapStopReason(reason *string, diag Diagnostics) string {
	mapped, known := StopReason(reason)
	if !known {
		diag.Report(UnknownStopReason, fmt.Sprintf("finish_reason %q mapped to end_turn", *reason))
	}
	return mapped
}

// BuildMessageResponse translates a non-streaming OpenAI completion into an
// Anthropic Messages response. Only the first choice is considered.
func BuildMessageResponse(resp *ChatResponse, model string, diag Diagnostics) (*MessagesResponse, error) {
	if diag == nil {
		diag = NopDiagnostics{}
	}
	if len(resp.Choices) == 0 {
		return nil, &Error{Kind: MalformedPayload, Message: "completion has no choices"}
	}

	choice := resp.Choices[0]
	msg := choice.Message

	var content []ContentBlock

	if s, ok := msg.Content.(string); ok && s != "" {
		content = append(content, TextBlock{Text: s})
	}

	for _, tc := range msg.ToolCalls {
		id := tc.ID
		if id == "" {
			id = NewToolUseID()
		}

		// Arguments must round-trip as an object; anything unparseable
		// degrades to an empty input rather than corrupting the response.
		var input json.RawMessage
		if err := sonic.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
			input = json.RawMessage(`{}`)
		}

		content = append(content, ToolUseBlock{
			ID:    id,
			Name:  tc.Function.Name,
			Input: input,
		})
	}

	stop := mapStopReason(choice.FinishReason, diag)

	var usage Usage
	if resp.Usage != nil {
		usage = NormalizeUsage(resp.Usage)
	}

	return &MessagesResponse{
		ID:         NewMessageID(),
		Type:       "message",
		Role:       "assistant",
		Model:      model,
		Content:    content,
		StopReason: &stop,
		Usage:      usage,
	}, nil
}
