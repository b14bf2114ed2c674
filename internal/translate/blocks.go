package translate

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

// ContentBlock is one block of Anthropic message content. It is a closed set
// of variants discriminated on the wire by the "type" field; DecodeBlocks is
// the only way to produce one from JSON.
type ContentBlock interface {
	blockType() string
}

// TextBlock carries plain text.
type TextBlock struct {
	Text string `json:"text"`
}

// ImageBlock references an image by base64 payload or URL.
type ImageBlock struct {
	Source ImageSource `json:"source"`
}

// ImageSource describes where the image bytes come from.
type ImageSource struct {
	Type      string `json:"type"` // "base64" | "url"
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// ToolUseBlock is an assistant request to invoke a tool.
type ToolUseBlock struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResultBlock is a user-supplied result for an earlier tool_use.
// Content is a string or an array of nested blocks on the wire.
type ToolResultBlock struct {
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// ThinkingBlock carries extended reasoning text from the assistant.
type ThinkingBlock struct {
	Thinking  string `json:"thinking"`
	Signature string `json:"signature,omitempty"`
}

func (TextBlock) blockType() string       { return "text" }
func (ImageBlock) blockType() string      { return "image" }
func (ToolUseBlock) blockType() string    { return "tool_use" }
func (ToolResultBlock) blockType() string { return "tool_result" }
func (ThinkingBlock) blockType() string   { return "thinking" }

func marshalTagged(typ string, v any) ([]byte, error) {
	inner, err := sonic.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(inner) == 2 { // "{}"
		return []byte(fmt.Sprintf(`{"type":%q}`, typ)), nil
	}
	out := make([]byte, 0, len(inner)+16)
	out = append(out, fmt.Sprintf(`{"type":%q,`, typ)...)
	out = append(out, inner[1:]...)
	return out, nil
}

func (b TextBlock) MarshalJSON() ([]byte, error) {
	type raw TextBlock
	return marshalTagged("text", raw(b))
}

func (b ImageBlock) MarshalJSON() ([]byte, error) {
	type raw ImageBlock
	return marshalTagged("image", raw(b))
}

func (b ToolUseBlock) MarshalJSON() ([]byte, error) {
	type raw ToolUseBlock
	if len(b.Input) == 0 {
		b.Input = json.RawMessage(`{}`)
	}
	return marshalTagged("tool_use", raw(b))
}

func (b ToolResultBlock) MarshalJSON() ([]byte, error) {
	type raw ToolResultBlock
	return marshalTagged("tool_result", raw(b))
}

func (b ThinkingBlock) MarshalJSON() ([]byte, error) {
	type raw ThinkingBlock
	return marshalTagged("thinking", raw(b))
}

// DecodeBlocks parses a JSON array of content blocks into their concrete
// variants. Unknown block types are an error: silently dropping content
// would corrupt the conversation.
func DecodeBlocks(raw json.RawMessage) ([]ContentBlock, error) {
	var items []json.RawMessage
	if err := sonic.Unmarshal(raw, &items); err != nil {
		return nil, &Error{Kind: MalformedPayload, Message: "content is not an array of blocks", Err: err}
	}

	blocks := make([]ContentBlock, 0, len(items))
	for i, item := range items {
		b, err := decodeBlock(item)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

func decodeBlock(item json.RawMessage) (ContentBlock, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := sonic.Unmarshal(item, &probe); err != nil {
		return nil, &Error{Kind: MalformedPayload, Message: "content block is not an object", Err: err}
	}

	var (
		block ContentBlock
		err   error
	)
	switch probe.Type {
	case "text":
		var b TextBlock
		err = sonic.Unmarshal(item, &b)
		block = b
	case "image":
		var b ImageBlock
		err = sonic.Unmarshal(item, &b)
		block = b
	case "tool_use":
		var b ToolUseBlock
		err = sonic.Unmarshal(item, &b)
		block = b
	case "tool_result":
		var b ToolResultBlock
		err = sonic.Unmarshal(item, &b)
		block = b
	case "thinking":
		var b ThinkingBlock
		err = sonic.Unmarshal(item, &b)
		block = b
	default:
		return nil, &Error{Kind: MalformedPayload, Message: fmt.Sprintf("unknown content block type %q", probe.Type)}
	}
	if err != nil {
		return nil, &Error{Kind: MalformedPayload, Message: fmt.Sprintf("decoding %s block", probe.Type), Err: err}
	}
	return block, nil
}
