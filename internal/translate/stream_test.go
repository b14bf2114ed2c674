package translate

import (
	"strings"
	"testing"
)

func textChunk(text string) *ChatStreamChunk {
	return &ChatStreamChunk{Choices: []ChatStreamChoice{{Delta: ChatStreamDelta{Content: ptr(text)}}}}
}

func finishChunk(reason string) *ChatStreamChunk {
	return &ChatStreamChunk{Choices: []ChatStreamChoice{{FinishReason: ptr(reason)}}}
}

func usageChunk(prompt, completion int) *ChatStreamChunk {
	return &ChatStreamChunk{Usage: &ChatUsage{PromptTokens: prompt, CompletionTokens: completion}}
}

func toolChunk(index int, id, name, args string) *ChatStreamChunk {
	tc := ChatStreamToolCall{Index: index, ID: id}
	if name != "" || args != "" {
		tc.Function = &ChatStreamFunction{Name: name, Arguments: args}
	}
	return &ChatStreamChunk{Choices: []ChatStreamChoice{{Delta: ChatStreamDelta{ToolCalls: []ChatStreamToolCall{tc}}}}}
}

// run feeds the chunks through a fresh translator and returns all events
// including the Finish tail.
func run(t *testing.T, diag Diagnostics, chunks ...*ChatStreamChunk) []Event {
	t.Helper()
	st := NewStreamTranslator("test-model", diag)
	var events []Event
	for _, c := range chunks {
		events = append(events, st.Next(c)...)
	}
	tail, err := st.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	return append(events, tail...)
}

func eventNames(events []Event) []string {
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.Name
	}
	return names
}

func assertNames(t *testing.T, events []Event, want ...string) {
	t.Helper()
	got := eventNames(events)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestStreamTextOnly(t *testing.T) {
	events := run(t, nil,
		textChunk("Hel"),
		textChunk("lo"),
		finishChunk("stop"),
		usageChunk(12, 3),
	)

	assertNames(t, events,
		"message_start", "ping",
		"content_block_start", "content_block_delta", "content_block_delta",
		"content_block_stop", "message_delta", "message_stop",
	)

	start := events[0].Data.(MessageStartEvent)
	if start.Message.Role != "assistant" || start.Message.Model != "test-model" {
		t.Errorf("message_start = %+v", start.Message)
	}
	if !strings.HasPrefix(start.Message.ID, "msg_") {
		t.Errorf("id = %q", start.Message.ID)
	}

	d1 := events[3].Data.(ContentBlockDeltaEvent)
	d2 := events[4].Data.(ContentBlockDeltaEvent)
	if d1.Delta.Text != "Hel" || d2.Delta.Text != "lo" {
		t.Errorf("deltas = %q %q", d1.Delta.Text, d2.Delta.Text)
	}
	if d1.Index != 0 || d2.Index != 0 {
		t.Errorf("indices = %d %d", d1.Index, d2.Index)
	}

	md := events[6].Data.(MessageDeltaEvent)
	if *md.Delta.StopReason != "end_turn" {
		t.Errorf("stop_reason = %q", *md.Delta.StopReason)
	}
	if md.Usage.InputTokens != 12 || md.Usage.OutputTokens != 3 {
		t.Errorf("usage = %+v", md.Usage)
	}
}

func TestStreamToolCallFragments(t *testing.T) {
	events := run(t, nil,
		textChunk("Checking."),
		toolChunk(0, "call_1", "get_weather", ""),
		toolChunk(0, "", "", `{"ci`),
		toolChunk(0, "", "", `ty":"Oslo"}`),
		finishChunk("tool_calls"),
	)

	assertNames(t, events,
		"message_start", "ping",
		"content_block_start", "content_block_delta",
		"content_block_stop",
		"content_block_start", "content_block_delta", "content_block_delta",
		"content_block_stop", "message_delta", "message_stop",
	)

	open := events[5].Data.(ContentBlockStartEvent)
	if open.Index != 1 {
		t.Errorf("tool block index = %d", open.Index)
	}
	tu := open.ContentBlock.(ToolUseBlock)
	if tu.ID != "call_1" || tu.Name != "get_weather" || string(tu.Input) != "{}" {
		t.Errorf("tool_use = %+v", tu)
	}

	// Argument fragments pass through exactly as received.
	f1 := events[6].Data.(ContentBlockDeltaEvent)
	f2 := events[7].Data.(ContentBlockDeltaEvent)
	if f1.Delta.Type != "input_json_delta" || f1.Delta.PartialJSON != `{"ci` {
		t.Errorf("fragment 1 = %+v", f1.Delta)
	}
	if f2.Delta.PartialJSON != `ty":"Oslo"}` {
		t.Errorf("fragment 2 = %+v", f2.Delta)
	}

	md := events[9].Data.(MessageDeltaEvent)
	if *md.Delta.StopReason != "tool_use" {
		t.Errorf("stop_reason = %q", *md.Delta.StopReason)
	}
}

func TestStreamParallelToolCalls(t *testing.T) {
	events := run(t, nil,
		toolChunk(0, "call_a", "f1", ""),
		toolChunk(0, "", "", `{"a":1}`),
		toolChunk(1, "call_b", "f2", ""),
		toolChunk(1, "", "", `{"b":2}`),
		finishChunk("tool_calls"),
	)

	var starts []ContentBlockStartEvent
	var stops []int
	for _, e := range events {
		switch d := e.Data.(type) {
		case ContentBlockStartEvent:
			starts = append(starts, d)
		case ContentBlockStopEvent:
			stops = append(stops, d.Index)
		}
	}
	if len(starts) != 2 || starts[0].Index != 0 || starts[1].Index != 1 {
		t.Fatalf("starts = %+v", starts)
	}
	if len(stops) != 2 || stops[0] != 0 || stops[1] != 1 {
		t.Fatalf("stops = %v", stops)
	}
}

func TestStreamThinkingDeltas(t *testing.T) {
	events := run(t, nil,
		&ChatStreamChunk{Choices: []ChatStreamChoice{{Delta: ChatStreamDelta{ReasoningContent: ptr("mull")}}}},
		textChunk("answer"),
		finishChunk("stop"),
	)

	assertNames(t, events,
		"message_start", "ping",
		"content_block_start", "content_block_delta",
		"content_block_stop",
		"content_block_start", "content_block_delta",
		"content_block_stop", "message_delta", "message_stop",
	)

	think := events[2].Data.(ContentBlockStartEvent)
	if _, ok := think.ContentBlock.(ThinkingBlock); !ok {
		t.Errorf("first block = %T", think.ContentBlock)
	}
	d := events[3].Data.(ContentBlockDeltaEvent)
	if d.Delta.Type != "thinking_delta" || d.Delta.Thinking != "mull" {
		t.Errorf("delta = %+v", d.Delta)
	}
}

func TestStreamUnopenedToolIndexViolation(t *testing.T) {
	diag := &recordingDiag{}
	st := NewStreamTranslator("m", diag)

	st.Next(textChunk("x"))
	events := st.Next(toolChunk(3, "", "", `{"sneaky":true}`))

	for _, e := range events {
		if e.Name == "content_block_start" || e.Name == "content_block_delta" {
			t.Errorf("unexpected %s for unopened tool index", e.Name)
		}
	}
	kinds := diag.kinds()
	if len(kinds) != 1 || kinds[0] != StreamProtocolViolation {
		t.Errorf("diagnostics = %v", kinds)
	}
}

func TestStreamChunkAfterCompletion(t *testing.T) {
	diag := &recordingDiag{}
	st := NewStreamTranslator("m", diag)

	st.Next(textChunk("done"))
	st.Next(finishChunk("stop"))
	if _, err := st.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if !st.Finished() {
		t.Fatal("translator not finished")
	}

	if events := st.Next(textChunk("late")); events != nil {
		t.Errorf("got events after completion: %v", eventNames(events))
	}
	kinds := diag.kinds()
	if len(kinds) != 1 || kinds[0] != StreamProtocolViolation {
		t.Errorf("diagnostics = %v", kinds)
	}
}

func TestStreamDeltaAfterFinishReason(t *testing.T) {
	diag := &recordingDiag{}
	st := NewStreamTranslator("m", diag)

	st.Next(textChunk("a"))
	st.Next(finishChunk("stop"))
	events := st.Next(textChunk("b"))

	for _, e := range events {
		if e.Name == "content_block_delta" {
			t.Error("content emitted after finish_reason")
		}
	}
	kinds := diag.kinds()
	if len(kinds) != 1 || kinds[0] != StreamProtocolViolation {
		t.Errorf("diagnostics = %v", kinds)
	}
}

func TestStreamUsageOnlyChunkAccepted(t *testing.T) {
	diag := &recordingDiag{}
	st := NewStreamTranslator("m", diag)

	st.Next(textChunk("a"))
	st.Next(finishChunk("stop"))
	st.Next(usageChunk(50, 9))

	if len(diag.kinds()) != 0 {
		t.Errorf("diagnostics = %v", diag.kinds())
	}
	u := st.Usage()
	if u.InputTokens != 50 || u.OutputTokens != 9 {
		t.Errorf("usage = %+v", u)
	}
}

func TestStreamFinishWithoutChunks(t *testing.T) {
	st := NewStreamTranslator("m", nil)
	_, err := st.Finish()
	if err == nil {
		t.Fatal("expected error")
	}
	if kind, ok := KindOf(err); !ok || kind != PrematureStreamTermination {
		t.Errorf("kind = %v, want PrematureStreamTermination", kind)
	}
}

func TestStreamUnknownFinishReason(t *testing.T) {
	diag := &recordingDiag{}
	events := run(t, diag,
		textChunk("x"),
		finishChunk("weird_reason"),
	)

	var md *MessageDeltaEvent
	for _, e := range events {
		if d, ok := e.Data.(MessageDeltaEvent); ok {
			md = &d
		}
	}
	if md == nil || *md.Delta.StopReason != "end_turn" {
		t.Fatalf("message_delta = %+v", md)
	}
	kinds := diag.kinds()
	if len(kinds) != 1 || kinds[0] != UnknownStopReason {
		t.Errorf("diagnostics = %v", kinds)
	}
	st := NewStreamTranslator("m", nil)
	st.Next(finishChunk("weird_reason"))
	if st.RawFinishReason() != "weird_reason" {
		t.Errorf("raw = %q", st.RawFinishReason())
	}
}

func TestStreamIndicesOnlyIncrease(t *testing.T) {
	events := run(t, nil,
		textChunk("a"),
		toolChunk(0, "c1", "f", ""),
		textChunk("b"), // text resumes in a NEW block, index 2
		finishChunk("stop"),
	)

	var indices []int
	for _, e := range events {
		if d, ok := e.Data.(ContentBlockStartEvent); ok {
			indices = append(indices, d.Index)
		}
	}
	if len(indices) != 3 || indices[0] != 0 || indices[1] != 1 || indices[2] != 2 {
		t.Fatalf("start indices = %v", indices)
	}
}

func TestEventEncodeSSE(t *testing.T) {
	b, err := ping().Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := "event: ping\ndata: {\"type\":\"ping\"}\n\n"
	if string(b) != want {
		t.Errorf("got %q, want %q", b, want)
	}
}
