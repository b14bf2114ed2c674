package proxy

import (
	"bufio"
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"time"

	json "github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/sertdev/msgproxy/internal/auth"
	"github.com/sertdev/msgproxy/internal/store"
	"github.com/sertdev/msgproxy/internal/translate"
)

// HandleMessages proxies Anthropic /v1/messages requests: the request is
// translated to an OpenAI chat completion, sent upstream, and the response
// translated back, buffered or streamed to match the client's stream flag.
func (h *Handler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := readBody(r)
	if err != nil {
		writeAnthropicError(w, http.StatusBadRequest, "invalid_request_error", "Failed to read request body")
		return
	}
	defer r.Body.Close()

	var req translate.MessagesRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeAnthropicError(w, http.StatusBadRequest, "invalid_request_error", "Invalid JSON in request body")
		return
	}
	if req.Model == "" {
		writeAnthropicError(w, http.StatusBadRequest, "invalid_request_error", "model: field required")
		return
	}
	if len(req.Messages) == 0 {
		writeAnthropicError(w, http.StatusBadRequest, "invalid_request_error", "messages: at least one message is required")
		return
	}
	if req.MaxTokens < 1 {
		writeAnthropicError(w, http.StatusBadRequest, "invalid_request_error", "max_tokens: must be at least 1")
		return
	}

	upstreamModel := h.cfg.ResolveModel(req.Model)

	tr := &store.Trace{
		StartedAt:     start,
		Method:        r.Method,
		Path:          r.URL.Path,
		ClientModel:   req.Model,
		UpstreamModel: upstreamModel,
		Streamed:      req.Stream,
	}
	if id := auth.KeyIDFromContext(r.Context()); id != uuid.Nil {
		tr.APIKeyID = &id
	}

	diag := &requestDiagnostics{metrics: h.metrics}

	chatReq, err := translate.BuildChatRequest(&req, diag)
	if err != nil {
		tr.StatusCode = http.StatusBadRequest
		tr.LatencyMS = int(time.Since(start).Milliseconds())
		tr.Anomalies = diag.count
		tr.ErrorMessage = err.Error()
		h.record(tr)
		writeAnthropicError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}
	chatReq.Model = upstreamModel

	chatBody, err := json.Marshal(chatReq)
	if err != nil {
		writeAnthropicError(w, http.StatusInternalServerError, "api_error", "Failed to encode translated request")
		return
	}

	if h.metrics != nil {
		h.metrics.TranslationOverheadUS.Observe(float64(time.Since(start).Microseconds()))
	}

	upstreamResp, err := h.upstream.Do(r.Context(), http.MethodPost, "/v1/chat/completions", bytes.NewReader(chatBody))
	if err != nil {
		tr.StatusCode = http.StatusBadGateway
		tr.LatencyMS = int(time.Since(start).Milliseconds())
		tr.Anomalies = diag.count
		tr.ErrorMessage = "upstream connection error: " + err.Error()
		h.record(tr)
		writeAnthropicError(w, http.StatusBadGateway, "api_error", "Failed to connect to upstream")
		return
	}
	defer upstreamResp.Body.Close()

	if upstreamResp.StatusCode >= 400 {
		upstreamBody, _ := io.ReadAll(upstreamResp.Body)
		errBody, status := translate.TranslateUpstreamError(upstreamResp.StatusCode, upstreamBody)

		tr.StatusCode = status
		tr.LatencyMS = int(time.Since(start).Milliseconds())
		tr.Anomalies = diag.count
		tr.ErrorMessage = string(upstreamBody)
		h.record(tr)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write(errBody)
		return
	}

	if req.Stream {
		h.streamMessages(w, r, upstreamResp, &req, diag, tr, start)
		return
	}
	h.bufferMessages(w, upstreamResp, &req, diag, tr, start)
}

// bufferMessages reads the full upstream completion and writes the translated
// Anthropic response.
func (h *Handler) bufferMessages(w http.ResponseWriter, upstreamResp *http.Response, req *translate.MessagesRequest, diag *requestDiagnostics, tr *store.Trace, start time.Time) {
	upstreamBody, err := io.ReadAll(upstreamResp.Body)
	if err != nil {
		tr.StatusCode = http.StatusBadGateway
		tr.LatencyMS = int(time.Since(start).Milliseconds())
		tr.Anomalies = diag.count
		tr.ErrorMessage = "read upstream response: " + err.Error()
		h.record(tr)
		writeAnthropicError(w, http.StatusBadGateway, "api_error", "Failed to read upstream response")
		return
	}

	var chatResp translate.ChatResponse
	if err := json.Unmarshal(upstreamBody, &chatResp); err != nil {
		tr.StatusCode = http.StatusBadGateway
		tr.LatencyMS = int(time.Since(start).Milliseconds())
		tr.Anomalies = diag.count
		tr.ErrorMessage = "parse upstream response: " + err.Error()
		h.record(tr)
		writeAnthropicError(w, http.StatusBadGateway, "api_error", "Failed to parse upstream response")
		return
	}

	// The response echoes the model name the client asked for, not the
	// upstream name it resolved to.
	resp, err := translate.BuildMessageResponse(&chatResp, req.Model, diag)
	if err != nil {
		tr.StatusCode = http.StatusBadGateway
		tr.LatencyMS = int(time.Since(start).Milliseconds())
		tr.Anomalies = diag.count
		tr.ErrorMessage = err.Error()
		h.record(tr)
		writeAnthropicError(w, http.StatusBadGateway, "api_error", "Failed to translate upstream response")
		return
	}

	if h.metrics != nil && resp.StopReason != nil {
		h.metrics.StopReasonsTotal.WithLabelValues(*resp.StopReason).Inc()
	}

	tr.StatusCode = http.StatusOK
	tr.LatencyMS = int(time.Since(start).Milliseconds())
	tr.InputTokens = resp.Usage.InputTokens
	tr.OutputTokens = resp.Usage.OutputTokens
	tr.CacheReadTokens = resp.Usage.CacheReadInputTokens
	if resp.StopReason != nil {
		tr.StopReason = *resp.StopReason
	}
	if fr := chatResp.Choices[0].FinishReason; fr != nil {
		tr.RawFinishReason = *fr
	}
	tr.Anomalies = diag.count
	h.record(tr)

	out, err := json.Marshal(resp)
	if err != nil {
		writeAnthropicError(w, http.StatusInternalServerError, "api_error", "Failed to encode response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

var (
	ssePrefix  = []byte("data: ")
	sseDone    = []byte("[DONE]")
	sseComment = []byte(":")
)

// streamMessages reads the upstream SSE stream and writes the translated
// Anthropic event stream. Events emit as chunks arrive; nothing is buffered
// across chunks.
func (h *Handler) streamMessages(w http.ResponseWriter, r *http.Request, upstreamResp *http.Response, req *translate.MessagesRequest, diag *requestDiagnostics, tr *store.Trace, start time.Time) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeAnthropicError(w, http.StatusInternalServerError, "api_error", "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if h.metrics != nil {
		h.metrics.ActiveStreams.Inc()
		defer h.metrics.ActiveStreams.Dec()
	}

	// Unblock the scanner when the client disconnects.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-r.Context().Done():
			upstreamResp.Body.Close()
		case <-done:
		}
	}()

	st := translate.NewStreamTranslator(req.Model, diag)

	scanner := bufio.NewScanner(upstreamResp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	sawDone := false
	writeFailed := false
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 || bytes.HasPrefix(line, sseComment) {
			continue
		}
		if !bytes.HasPrefix(line, ssePrefix) {
			continue
		}
		data := bytes.TrimSpace(line[len(ssePrefix):])
		if bytes.Equal(data, sseDone) {
			sawDone = true
			break
		}

		var chunk translate.ChatStreamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			diag.Report(translate.StreamProtocolViolation, "undecodable stream chunk: "+err.Error())
			continue
		}

		if err := h.writeEvents(w, flusher, st.Next(&chunk)); err != nil {
			slog.Warn("stream write error", "error", err)
			writeFailed = true
			break
		}
	}

	tr.StatusCode = http.StatusOK
	tr.RawFinishReason = st.RawFinishReason()

	if err := scanner.Err(); err != nil || (!sawDone && !writeFailed) {
		// The upstream died mid-flight. The client sees a truncated event
		// stream; message_delta and message_stop are never synthesized.
		if err != nil {
			tr.ErrorMessage = "upstream stream error: " + err.Error()
		} else if !writeFailed {
			tr.ErrorMessage = "upstream stream ended without [DONE]"
		}
		slog.Warn("stream terminated prematurely", "model", req.Model, "error", tr.ErrorMessage)
		h.finishStreamTrace(tr, st, diag, start)
		return
	}
	if writeFailed {
		tr.ErrorMessage = "client disconnected"
		h.finishStreamTrace(tr, st, diag, start)
		return
	}

	final, err := st.Finish()
	if err != nil {
		tr.ErrorMessage = err.Error()
		slog.Warn("stream terminated prematurely", "model", req.Model, "error", err)
		h.finishStreamTrace(tr, st, diag, start)
		return
	}
	if err := h.writeEvents(w, flusher, final); err != nil {
		slog.Warn("stream write error", "error", err)
	}

	stop, _ := translate.StopReason(ptrOrNil(st.RawFinishReason()))
	tr.StopReason = stop
	if h.metrics != nil {
		h.metrics.StopReasonsTotal.WithLabelValues(stop).Inc()
	}
	h.finishStreamTrace(tr, st, diag, start)
}

func (h *Handler) finishStreamTrace(tr *store.Trace, st *translate.StreamTranslator, diag *requestDiagnostics, start time.Time) {
	usage := st.Usage()
	tr.InputTokens = usage.InputTokens
	tr.OutputTokens = usage.OutputTokens
	tr.CacheReadTokens = usage.CacheReadInputTokens
	tr.Anomalies = diag.count
	tr.LatencyMS = int(time.Since(start).Milliseconds())
	h.record(tr)
}

func (h *Handler) writeEvents(w io.Writer, flusher http.Flusher, events []translate.Event) error {
	for _, ev := range events {
		b, err := ev.Encode()
		if err != nil {
			return err
		}
		if _, err := w.Write(b); err != nil {
			return err
		}
		if h.metrics != nil {
			h.metrics.StreamEventsTotal.WithLabelValues(ev.Name).Inc()
		}
	}
	if len(events) > 0 {
		flusher.Flush()
	}
	return nil
}

func ptrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
