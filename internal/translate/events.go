package translate

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// Event is one Anthropic SSE event produced by the stream translator, in
// emission order. Name is the SSE event name, Data the JSON payload.
type Event struct {
	Name string
	Data any
}

// Encode serializes the event in SSE wire format, trailing blank line
// included.
func (e Event) Encode() ([]byte, error) {
	payload, err := sonic.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("encoding %s event: %w", e.Name, err)
	}
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", e.Name, payload), nil
}

func messageStart(id, model string) Event {
	return Event{Name: "message_start", Data: MessageStartEvent{
		Type: "message_start",
		Message: MessagesResponse{
			ID:      id,
			Type:    "message",
			Role:    "assistant",
			Model:   model,
			Content: []ContentBlock{},
		},
	}}
}

func ping() Event {
	return Event{Name: "ping", Data: PingEvent{Type: "ping"}}
}

func blockStart(index int, block ContentBlock) Event {
	return Event{Name: "content_block_start", Data: ContentBlockStartEvent{
		Type:         "content_block_start",
		Index:        index,
		ContentBlock: block,
	}}
}

func blockDelta(index int, delta Delta) Event {
	return Event{Name: "content_block_delta", Data: ContentBlockDeltaEvent{
		Type:  "content_block_delta",
		Index: index,
		Delta: delta,
	}}
}

func blockStop(index int) Event {
	return Event{Name: "content_block_stop", Data: ContentBlockStopEvent{
		Type:  "content_block_stop",
		Index: index,
	}}
}

func messageDelta(stopReason string, usage DeltaUsage) Event {
	return Event{Name: "message_delta", Data: MessageDeltaEvent{
		Type:  "message_delta",
		Delta: StopInfo{StopReason: &stopReason},
		Usage: &usage,
	}}
}

func messageStop() Event {
	return Event{Name: "message_stop", Data: MessageStopEvent{Type: "message_stop"}}
}
