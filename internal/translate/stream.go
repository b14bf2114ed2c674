package translate

import (
	"encoding/json"
	"fmt"
)

// StreamTranslator converts one OpenAI stream into the Anthropic event
// sequence. The caller decodes chunks in arrival order and feeds each one to
// Next, writing the returned events before reading the next chunk; after the
// upstream signals completion it calls Finish. The translator never buffers
// content across chunks: text and tool argument fragments pass through as
// the deltas they arrived as.
//
// Not safe for concurrent use; one instance serves one stream.
type StreamTranslator struct {
	model string
	diag  Diagnostics

	messageID    string
	started      bool
	done         bool
	finishReason *string
	usage        *ChatUsage

	// blockIndex is the index of the open content block, -1 when none.
	// Indices only ever increase; a closed block is never reopened.
	blockIndex int
	blockKind  string // "" | "text" | "thinking" | "tool_use"

	// calls maps each OpenAI tool call index to the Anthropic block opened
	// for it. A fragment for an index with no entry here is a protocol
	// violation: tool calls must announce themselves with an ID first.
	calls map[int]*streamCall
}

type streamCall struct {
	blockIndex int
	id         string
	name       string
}

// NewStreamTranslator returns a translator for a single stream. model is
// echoed in message_start; diag receives non-fatal protocol anomalies.
func NewStreamTranslator(model string, diag Diagnostics) *StreamTranslator {
	if diag == nil {
		diag = NopDiagnostics{}
	}
	return &StreamTranslator{
		model:      model,
		diag:       diag,
		messageID:  NewMessageID(),
		blockIndex: -1,
		calls:      make(map[int]*streamCall),
	}
}

// Started reports whether message_start has been emitted.
func (t *StreamTranslator) Started() bool { return t.started }

// Finished reports whether message_stop has been emitted.
func (t *StreamTranslator) Finished() bool { return t.done }

// Usage returns the token accounting captured from the stream so far.
func (t *StreamTranslator) Usage() Usage { return NormalizeUsage(t.usage) }

// RawFinishReason returns the upstream finish_reason as received, or "".
func (t *StreamTranslator) RawFinishReason() string {
	if t.finishReason == nil {
		return ""
	}
	return *t.finishReason
}

// Next translates a single upstream chunk into the Anthropic events it
// implies, in emission order. Malformed or out-of-order fragments are
// reported through diagnostics and dropped; Next itself never fails.
func (t *StreamTranslator) Next(chunk *ChatStreamChunk) []Event {
	if t.done {
		t.diag.Report(StreamProtocolViolation, "chunk received after stream completion")
		return nil
	}

	var events []Event

	if !t.started {
		t.started = true
		events = append(events, messageStart(t.messageID, t.model), ping())
	}

	if chunk.Usage != nil {
		t.usage = chunk.Usage
	}
	if len(chunk.Choices) == 0 {
		// Usage-only chunk, valid after finish_reason.
		return events
	}

	choice := chunk.Choices[0]

	hasDelta := choice.Delta.Content != nil || choice.Delta.ReasoningContent != nil || len(choice.Delta.ToolCalls) > 0
	if t.finishReason != nil && hasDelta {
		t.diag.Report(StreamProtocolViolation, "content delta after finish_reason")
		return events
	}

	if rc := choice.Delta.ReasoningContent; rc != nil && *rc != "" {
		events = t.appendThinkingDelta(events, *rc)
	}

	if c := choice.Delta.Content; c != nil && *c != "" {
		events = t.appendTextDelta(events, *c)
	}

	for _, tc := range choice.Delta.ToolCalls {
		events = t.appendToolCallDelta(events, tc)
	}

	if choice.FinishReason != nil {
		t.finishReason = choice.FinishReason
	}

	return events
}

// Finish closes any open block and emits message_delta and message_stop.
// Call it only after the upstream completed cleanly; a stream that dies
// mid-flight must be surfaced as an error, not silently completed.
func (t *StreamTranslator) Finish() ([]Event, error) {
	if t.done {
		return nil, nil
	}
	if !t.started {
		return nil, &Error{Kind: PrematureStreamTermination, Message: "upstream stream ended before any chunk"}
	}

	events := t.closeBlock(nil)

	stop := mapStopReason(t.finishReason, t.diag)
	usage := t.Usage()
	events = append(events,
		messageDelta(stop, DeltaUsage{
			InputTokens:  usage.InputTokens,
			OutputTokens: usage.OutputTokens,
		}),
		messageStop(),
	)

	t.done = true
	return events, nil
}

func (t *StreamTranslator) appendTextDelta(events []Event, text string) []Event {
	if t.blockKind != "text" {
		events = t.closeBlock(events)
		t.blockIndex++
		t.blockKind = "text"
		events = append(events, blockStart(t.blockIndex, TextBlock{}))
	}
	return append(events, blockDelta(t.blockIndex, Delta{Type: "text_delta", Text: text}))
}

func (t *StreamTranslator) appendThinkingDelta(events []Event, text string) []Event {
	if t.blockKind != "thinking" {
		events = t.closeBlock(events)
		t.blockIndex++
		t.blockKind = "thinking"
		events = append(events, blockStart(t.blockIndex, ThinkingBlock{}))
	}
	return append(events, blockDelta(t.blockIndex, Delta{Type: "thinking_delta", Thinking: text}))
}

func (t *StreamTranslator) appendToolCallDelta(events []Event, tc ChatStreamToolCall) []Event {
	if tc.ID != "" {
		events = t.closeBlock(events)
		t.blockIndex++
		t.blockKind = "tool_use"

		call := &streamCall{blockIndex: t.blockIndex, id: tc.ID}
		if tc.Function != nil {
			call.name = tc.Function.Name
		}
		t.calls[tc.Index] = call

		events = append(events, blockStart(t.blockIndex, ToolUseBlock{
			ID:    call.id,
			Name:  call.name,
			Input: json.RawMessage(`{}`),
		}))
	}

	if tc.Function == nil || tc.Function.Arguments == "" {
		return events
	}

	call, ok := t.calls[tc.Index]
	if !ok {
		// Arguments for a call that never announced itself. Opening a block
		// with an invented ID would break tool_result pairing downstream.
		t.diag.Report(StreamProtocolViolation, fmt.Sprintf("tool call arguments for unopened index %d", tc.Index))
		return events
	}

	return append(events, blockDelta(call.blockIndex, Delta{
		Type:        "input_json_delta",
		PartialJSON: tc.Function.Arguments,
	}))
}

func (t *StreamTranslator) closeBlock(events []Event) []Event {
	if t.blockIndex >= 0 && t.blockKind != "" {
		events = append(events, blockStop(t.blockIndex))
		t.blockKind = ""
	}
	return events
}
