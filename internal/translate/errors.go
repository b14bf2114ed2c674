package translate

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// Kind classifies a translation failure or anomaly.
type Kind string

const (
	// MalformedPayload means an input could not be parsed into the expected
	// wire shape. Always fatal for the request it occurs in.
	MalformedPayload Kind = "malformed_payload"

	// OrphanedToolResult marks a tool_result whose tool_use_id matches no
	// prior tool_use. Non-fatal: the result is still forwarded.
	OrphanedToolResult Kind = "orphaned_tool_result"

	// UnknownStopReason marks a finish_reason outside the known mapping.
	// Non-fatal: the response falls back to end_turn.
	UnknownStopReason Kind = "unknown_stop_reason"

	// StreamProtocolViolation marks an upstream chunk that breaks stream
	// ordering rules. Non-fatal: the offending chunk is dropped.
	StreamProtocolViolation Kind = "stream_protocol_violation"

	// PrematureStreamTermination means the upstream stream ended before
	// signalling completion. Fatal for the stream.
	PrematureStreamTermination Kind = "premature_stream_termination"
)

// Error is a classified translation error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err if it is a translation Error.
func KindOf(err error) (Kind, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return "", false
}

// Diagnostics receives non-fatal translation conditions. Implementations must
// not block; the translators call Report inline on the request path.
type Diagnostics interface {
	Report(kind Kind, detail string)
}

// NopDiagnostics discards all reports.
type NopDiagnostics struct{}

func (NopDiagnostics) Report(Kind, string) {}

// AnthropicErrorBody is the Anthropic wire shape for errors.
type AnthropicErrorBody struct {
	Type  string             `json:"type"`
	Error AnthropicErrorInfo `json:"error"`
}

// AnthropicErrorInfo is the inner error object.
type AnthropicErrorInfo struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ChatErrorBody is the OpenAI wire shape for errors.
type ChatErrorBody struct {
	Error ChatErrorInfo `json:"error"`
}

// ChatErrorInfo is the inner OpenAI error object.
type ChatErrorInfo struct {
	Message string  `json:"message"`
	Type    string  `json:"type"`
	Param   *string `json:"param"`
	Code    *string `json:"code"`
}

// TranslateUpstreamError converts an OpenAI error body and status into the
// Anthropic error shape and the status the proxy should return. Upstream 5xx
// becomes 502: the failure is the backend's, not ours.
func TranslateUpstreamError(status int, body []byte) ([]byte, int) {
	msg := string(body)
	var parsed ChatErrorBody
	if err := sonic.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		msg = parsed.Error.Message
	}
	return EncodeAnthropicError(anthropicErrorType(status), msg), proxyStatus(status)
}

// EncodeAnthropicError builds a serialized Anthropic error body.
func EncodeAnthropicError(errType, message string) []byte {
	out, _ := sonic.Marshal(AnthropicErrorBody{
		Type: "error",
		Error: AnthropicErrorInfo{
			Type:    errType,
			Message: message,
		},
	})
	return out
}

func anthropicErrorType(status int) string {
	switch status {
	case 400:
		return "invalid_request_error"
	case 401:
		return "authentication_error"
	case 403:
		return "permission_error"
	case 404:
		return "not_found_error"
	case 413:
		return "request_too_large"
	case 429:
		return "rate_limit_error"
	case 529:
		return "overloaded_error"
	default:
		return "api_error"
	}
}

func proxyStatus(upstream int) int {
	if upstream >= 500 {
		return 502
	}
	return upstream
}
