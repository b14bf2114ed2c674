package proxy

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sertdev/msgproxy/internal/config"
	"github.com/sertdev/msgproxy/internal/metrics"
	"github.com/sertdev/msgproxy/internal/store"
	"github.com/sertdev/msgproxy/internal/trace"
	"github.com/sertdev/msgproxy/internal/translate"
)

// Handler contains the shared dependencies for the proxy endpoints.
type Handler struct {
	upstream *UpstreamClient
	cfg      *config.Config
	recorder *trace.Recorder
	metrics  *metrics.Metrics
	models   *modelListCache
}

// NewHandler creates a Handler wired up to an upstream, config, trace
// recorder and metrics. recorder and metrics may be nil.
func NewHandler(upstream *UpstreamClient, cfg *config.Config, recorder *trace.Recorder, m *metrics.Metrics) *Handler {
	return &Handler{
		upstream: upstream,
		cfg:      cfg,
		recorder: recorder,
		metrics:  m,
		models:   newModelListCache(time.Duration(cfg.ModelCacheTTLSeconds) * time.Second),
	}
}

func (h *Handler) record(tr *store.Trace) {
	if h.recorder != nil {
		h.recorder.Record(tr)
	}
}

// requestDiagnostics counts non-fatal translation conditions for one request,
// logging each and feeding the anomaly counter. Not safe for concurrent use;
// one instance serves one request.
type requestDiagnostics struct {
	metrics *metrics.Metrics
	count   int
}

func (d *requestDiagnostics) Report(kind translate.Kind, detail string) {
	d.count++
	slog.Warn("translation anomaly", "kind", string(kind), "detail", detail)
	if d.metrics != nil {
		d.metrics.AnomaliesTotal.WithLabelValues(string(kind)).Inc()
	}
}

var _ translate.Diagnostics = (*requestDiagnostics)(nil)

func writeAnthropicError(w http.ResponseWriter, statusCode int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(translate.EncodeAnthropicError(errType, message))
}

// readBody reads the request body, pre-allocating when Content-Length is known.
func readBody(r *http.Request) ([]byte, error) {
	if r.ContentLength > 0 {
		buf := bytes.NewBuffer(make([]byte, 0, r.ContentLength))
		_, err := io.Copy(buf, r.Body)
		return buf.Bytes(), err
	}
	return io.ReadAll(r.Body)
}
