package translate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
)

// BuildChatRequest translates an Anthropic /v1/messages request into an
// OpenAI /v1/chat/completions request. Orphaned tool_results are reported
// through diag and forwarded anyway; only structural problems fail.
func BuildChatRequest(req *MessagesRequest, diag Diagnostics) (*ChatRequest, error) {
	if diag == nil {
		diag = NopDiagnostics{}
	}

	out := &ChatRequest{Model: req.Model}

	if len(req.System) > 0 {
		sys, err := systemMessage(req.System)
		if err != nil {
			return nil, fmt.Errorf("system prompt: %w", err)
		}
		if sys != nil {
			out.Messages = append(out.Messages, *sys)
		}
	}

	corr, err := CorrelateToolCalls(req.Messages)
	if err != nil {
		return nil, err
	}
	for _, id := range corr.Orphans {
		diag.Report(OrphanedToolResult, fmt.Sprintf("tool_result %q matches no tool_use", id))
	}

	for i, msg := range req.Messages {
		translated, err := chatMessages(msg)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		out.Messages = append(out.Messages, translated...)
	}

	for _, t := range req.Tools {
		if t.Type != "" && t.Type != "custom" {
			continue
		}
		out.Tools = append(out.Tools, ChatTool{
			Type: "function",
			Function: ChatFunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}

	if len(req.ToolChoice) > 0 {
		tc, err := chatToolChoice(req.ToolChoice)
		if err != nil {
			return nil, fmt.Errorf("tool_choice: %w", err)
		}
		out.ToolChoice = tc
	}

	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		out.MaxTokens = &mt
	}
	if len(req.StopSequences) > 0 {
		out.Stop = req.StopSequences
	}
	out.Temperature = req.Temperature
	out.TopP = req.TopP
	// top_k has no chat completions equivalent.

	if req.Stream {
		out.Stream = true
		out.StreamOptions = &StreamOptions{IncludeUsage: true}
	}

	if req.Thinking != nil && req.Thinking.Type == "enabled" {
		out.ReasoningEffort = "high"
		// Thinking tokens count against completion output, so the combined
		// budget goes into max_completion_tokens.
		if req.Thinking.BudgetTokens > 0 {
			budget := req.Thinking.BudgetTokens
			if out.MaxTokens != nil {
				budget += *out.MaxTokens
			}
			out.MaxCompletionTokens = &budget
			out.MaxTokens = nil
		}
	}

	if req.Metadata != nil && req.Metadata.UserID != "" {
		out.User = req.Metadata.UserID
	}

	return out, nil
}

// systemMessage parses the system field, which is a plain string or an array
// of text parts joined with blank lines.
func systemMessage(raw json.RawMessage) (*ChatMessage, error) {
	var s string
	if err := sonic.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return nil, nil
		}
		return &ChatMessage{Role: "system", Content: s}, nil
	}

	var parts []SystemPart
	if err := sonic.Unmarshal(raw, &parts); err != nil {
		return nil, &Error{Kind: MalformedPayload, Message: "system is neither a string nor an array of text parts", Err: err}
	}

	var texts []string
	for _, p := range parts {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	if len(texts) == 0 {
		return nil, nil
	}
	return &ChatMessage{Role: "system", Content: strings.Join(texts, "\n\n")}, nil
}

// chatMessages converts one Anthropic message into one or more OpenAI
// messages. Tool results expand into separate role "tool" messages that must
// precede the surrounding user content.
func chatMessages(msg Message) ([]ChatMessage, error) {
	switch msg.Role {
	case "user":
		return userMessages(msg)
	case "assistant":
		return assistantMessages(msg)
	default:
		return nil, &Error{Kind: MalformedPayload, Message: fmt.Sprintf("unsupported message role %q", msg.Role)}
	}
}

func userMessages(msg Message) ([]ChatMessage, error) {
	if s, ok := msg.Text(); ok {
		return []ChatMessage{{Role: "user", Content: s}}, nil
	}

	blocks, err := msg.Blocks()
	if err != nil {
		return nil, err
	}

	var toolMsgs []ChatMessage
	var parts []ChatContentPart

	for _, b := range blocks {
		switch blk := b.(type) {
		case TextBlock:
			parts = append(parts, ChatContentPart{Type: "text", Text: blk.Text})
		case ImageBlock:
			part, err := imagePart(blk)
			if err != nil {
				return nil, err
			}
			parts = append(parts, part)
		case ToolResultBlock:
			tm, err := toolMessage(blk)
			if err != nil {
				return nil, err
			}
			toolMsgs = append(toolMsgs, tm)
		default:
			return nil, &Error{Kind: MalformedPayload, Message: fmt.Sprintf("%s block not allowed in user message", b.blockType())}
		}
	}

	// Tool messages must answer the assistant's tool_calls directly, so they
	// go before any remaining user content.
	result := toolMsgs
	if len(parts) > 0 {
		result = append(result, ChatMessage{Role: "user", Content: parts})
	}
	return result, nil
}

func imagePart(b ImageBlock) (ChatContentPart, error) {
	var url string
	switch b.Source.Type {
	case "base64":
		url = fmt.Sprintf("data:%s;base64,%s", b.Source.MediaType, b.Source.Data)
	case "url":
		url = b.Source.URL
	default:
		return ChatContentPart{}, &Error{Kind: MalformedPayload, Message: fmt.Sprintf("unsupported image source type %q", b.Source.Type)}
	}
	return ChatContentPart{Type: "image_url", ImageURL: &ChatImageURL{URL: url}}, nil
}

func toolMessage(b ToolResultBlock) (ChatMessage, error) {
	content, err := toolResultText(b.Content)
	if err != nil {
		return ChatMessage{}, err
	}
	return ChatMessage{
		Role:       "tool",
		ToolCallID: b.ToolUseID,
		Content:    content,
	}, nil
}

// toolResultText flattens tool_result content (string or nested blocks) into
// the plain string OpenAI tool messages expect.
func toolResultText(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}

	var s string
	if err := sonic.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	blocks, err := DecodeBlocks(raw)
	if err != nil {
		return "", &Error{Kind: MalformedPayload, Message: "tool_result content is neither string nor blocks", Err: err}
	}

	var texts []string
	for _, b := range blocks {
		if tb, ok := b.(TextBlock); ok {
			texts = append(texts, tb.Text)
		}
	}
	return strings.Join(texts, ""), nil
}

func assistantMessages(msg Message) ([]ChatMessage, error) {
	if s, ok := msg.Text(); ok {
		return []ChatMessage{{Role: "assistant", Content: s}}, nil
	}

	blocks, err := msg.Blocks()
	if err != nil {
		return nil, err
	}

	out := ChatMessage{Role: "assistant"}

	var texts []string
	for _, b := range blocks {
		switch blk := b.(type) {
		case TextBlock:
			texts = append(texts, blk.Text)
		case ToolUseBlock:
			args, err := compactToolInput(blk.Input)
			if err != nil {
				return nil, &Error{Kind: MalformedPayload, Message: fmt.Sprintf("tool_use %q input", blk.ID), Err: err}
			}
			out.ToolCalls = append(out.ToolCalls, ChatToolCall{
				ID:   blk.ID,
				Type: "function",
				Function: ChatFunctionCall{
					Name:      blk.Name,
					Arguments: args,
				},
			})
		case ThinkingBlock:
			// No chat completions equivalent on replay.
		default:
			return nil, &Error{Kind: MalformedPayload, Message: fmt.Sprintf("%s block not allowed in assistant message", b.blockType())}
		}
	}

	if len(texts) > 0 {
		out.Content = strings.Join(texts, "")
	}
	return []ChatMessage{out}, nil
}

// compactToolInput reserializes tool_use input to a compact JSON string.
// Missing input becomes "{}".
func compactToolInput(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "{}", nil
	}
	var v any
	if err := sonic.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	b, err := sonic.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// chatToolChoice maps Anthropic tool_choice (string or object) to the OpenAI
// form: auto stays auto, any becomes required, tool forces a function.
func chatToolChoice(raw json.RawMessage) (any, error) {
	var s string
	if err := sonic.Unmarshal(raw, &s); err == nil {
		switch s {
		case "any":
			return "required", nil
		default:
			return s, nil
		}
	}

	var spec ToolChoiceSpec
	if err := sonic.Unmarshal(raw, &spec); err != nil {
		return nil, &Error{Kind: MalformedPayload, Message: "tool_choice is neither string nor object", Err: err}
	}

	switch spec.Type {
	case "any":
		return "required", nil
	case "tool":
		return ChatToolChoice{
			Type:     "function",
			Function: ChatToolChoiceName{Name: spec.Name},
		}, nil
	default:
		return spec.Type, nil
	}
}
