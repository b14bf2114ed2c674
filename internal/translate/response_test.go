package translate

import (
	"strings"
	"testing"
)

func TestStopReason(t *testing.T) {
	tests := []struct {
		in        *string
		want      string
		wantKnown bool
	}{
		{nil, "end_turn", true},
		{ptr(""), "end_turn", true},
		{ptr("stop"), "end_turn", true},
		{ptr("length"), "max_tokens", true},
		{ptr("tool_calls"), "tool_use", true},
		{ptr("content_filter"), "stop_sequence", true},
		{ptr("flagged_by_upstream"), "end_turn", false},
	}
	for _, tt := range tests {
		got, known := StopReason(tt.in)
		if got != tt.want || known != tt.wantKnown {
			name := "<nil>"
			if tt.in != nil {
				name = *tt.in
			}
			t.Errorf("StopReason(%s) = %q, %v; want %q, %v", name, got, known, tt.want, tt.wantKnown)
		}
	}
}

func TestBuildMessageResponse(t *testing.T) {
	tests := []struct {
		name    string
		input   ChatResponse
		check   func(t *testing.T, out *MessagesResponse, diag *recordingDiag)
		wantErr bool
	}{
		{
			name: "text completion",
			input: ChatResponse{
				Choices: []ChatChoice{{
					Message:      ChatMessage{Role: "assistant", Content: "Hello!"},
					FinishReason: ptr("stop"),
				}},
				Usage: &ChatUsage{PromptTokens: 10, CompletionTokens: 5},
			},
			check: func(t *testing.T, out *MessagesResponse, diag *recordingDiag) {
				if out.Type != "message" || out.Role != "assistant" {
					t.Errorf("envelope = %+v", out)
				}
				if !strings.HasPrefix(out.ID, "msg_") || len(out.ID) != 28 {
					t.Errorf("id = %q", out.ID)
				}
				if len(out.Content) != 1 || out.Content[0].(TextBlock).Text != "Hello!" {
					t.Errorf("content = %+v", out.Content)
				}
				if *out.StopReason != "end_turn" {
					t.Errorf("stop_reason = %q", *out.StopReason)
				}
				if out.Usage.InputTokens != 10 || out.Usage.OutputTokens != 5 {
					t.Errorf("usage = %+v", out.Usage)
				}
			},
		},
		{
			name: "tool calls become tool_use blocks",
			input: ChatResponse{
				Choices: []ChatChoice{{
					Message: ChatMessage{
						Role:    "assistant",
						Content: "Let me check.",
						ToolCalls: []ChatToolCall{{
							ID:   "call_abc",
							Type: "function",
							Function: ChatFunctionCall{
								Name:      "get_weather",
								Arguments: `{"city":"Oslo"}`,
							},
						}},
					},
					FinishReason: ptr("tool_calls"),
				}},
			},
			check: func(t *testing.T, out *MessagesResponse, diag *recordingDiag) {
				if len(out.Content) != 2 {
					t.Fatalf("content = %+v", out.Content)
				}
				tu := out.Content[1].(ToolUseBlock)
				if tu.ID != "call_abc" || tu.Name != "get_weather" {
					t.Errorf("tool_use = %+v", tu)
				}
				if string(tu.Input) != `{"city":"Oslo"}` {
					t.Errorf("input = %s", tu.Input)
				}
				if *out.StopReason != "tool_use" {
					t.Errorf("stop_reason = %q", *out.StopReason)
				}
			},
		},
		{
			name: "missing tool call id gets generated",
			input: ChatResponse{
				Choices: []ChatChoice{{
					Message: ChatMessage{
						Role: "assistant",
						ToolCalls: []ChatToolCall{{
							Function: ChatFunctionCall{Name: "f", Arguments: "{}"},
						}},
					},
					FinishReason: ptr("tool_calls"),
				}},
			},
			check: func(t *testing.T, out *MessagesResponse, diag *recordingDiag) {
				tu := out.Content[0].(ToolUseBlock)
				if !strings.HasPrefix(tu.ID, "toolu_") {
					t.Errorf("id = %q", tu.ID)
				}
			},
		},
		{
			name: "unparseable arguments degrade to empty input",
			input: ChatResponse{
				Choices: []ChatChoice{{
					Message: ChatMessage{
						Role: "assistant",
						ToolCalls: []ChatToolCall{{
							ID:       "call_x",
							Function: ChatFunctionCall{Name: "f", Arguments: `{"broken`},
						}},
					},
					FinishReason: ptr("tool_calls"),
				}},
			},
			check: func(t *testing.T, out *MessagesResponse, diag *recordingDiag) {
				tu := out.Content[0].(ToolUseBlock)
				if string(tu.Input) != "{}" {
					t.Errorf("input = %s", tu.Input)
				}
			},
		},
		{
			name: "unknown finish reason reported and mapped to end_turn",
			input: ChatResponse{
				Choices: []ChatChoice{{
					Message:      ChatMessage{Role: "assistant", Content: "x"},
					FinishReason: ptr("mystery"),
				}},
			},
			check: func(t *testing.T, out *MessagesResponse, diag *recordingDiag) {
				if *out.StopReason != "end_turn" {
					t.Errorf("stop_reason = %q", *out.StopReason)
				}
				kinds := diag.kinds()
				if len(kinds) != 1 || kinds[0] != UnknownStopReason {
					t.Errorf("diagnostics = %v", kinds)
				}
			},
		},
		{
			name: "cached tokens split out of input",
			input: ChatResponse{
				Choices: []ChatChoice{{
					Message:      ChatMessage{Role: "assistant", Content: "x"},
					FinishReason: ptr("stop"),
				}},
				Usage: &ChatUsage{
					PromptTokens:        100,
					CompletionTokens:    7,
					PromptTokensDetails: &ChatTokenDetails{CachedTokens: 60},
				},
			},
			check: func(t *testing.T, out *MessagesResponse, diag *recordingDiag) {
				if out.Usage.InputTokens != 40 || out.Usage.CacheReadInputTokens != 60 {
					t.Errorf("usage = %+v", out.Usage)
				}
			},
		},
		{
			name:    "no choices fails",
			input:   ChatResponse{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diag := &recordingDiag{}
			out, err := BuildMessageResponse(&tt.input, "claude-proxy-model", diag)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out.Model != "claude-proxy-model" {
				t.Errorf("model = %q", out.Model)
			}
			tt.check(t, out, diag)
		})
	}
}

func TestNormalizeUsageClamps(t *testing.T) {
	u := NormalizeUsage(&ChatUsage{
		PromptTokens:        5,
		CompletionTokens:    -2,
		PromptTokensDetails: &ChatTokenDetails{CachedTokens: 50},
	})
	if u.InputTokens != 0 || u.CacheReadInputTokens != 5 || u.OutputTokens != 0 {
		t.Errorf("usage = %+v", u)
	}
}
