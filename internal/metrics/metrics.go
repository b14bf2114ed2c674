package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the proxy.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// TranslationOverheadUS measures time spent converting payloads between
	// the two wire formats, excluding upstream latency.
	TranslationOverheadUS prometheus.Histogram

	ActiveStreams      prometheus.Gauge
	StreamEventsTotal  *prometheus.CounterVec
	AnomaliesTotal     *prometheus.CounterVec
	StopReasonsTotal   *prometheus.CounterVec
	DroppedTracesTotal prometheus.Counter
	RateLimitedTotal   prometheus.Counter
}

// New creates and registers a Metrics instance on a dedicated registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "msgproxy_requests_total",
			Help: "Total number of proxied requests.",
		}, []string{"method", "path", "status_code"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "msgproxy_request_duration_seconds",
			Help:    "Duration of proxied requests in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),

		TranslationOverheadUS: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "msgproxy_translation_overhead_microseconds",
			Help:    "Time spent translating between wire formats in microseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),

		ActiveStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "msgproxy_active_streams",
			Help: "Number of currently active streaming connections.",
		}),

		StreamEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "msgproxy_stream_events_total",
			Help: "Total number of SSE events emitted to clients.",
		}, []string{"event"}),

		AnomaliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "msgproxy_translation_anomalies_total",
			Help: "Non-fatal translation conditions by kind.",
		}, []string{"kind"}),

		StopReasonsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "msgproxy_stop_reasons_total",
			Help: "Stop reasons returned to clients.",
		}, []string{"stop_reason"}),

		DroppedTracesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "msgproxy_dropped_traces_total",
			Help: "Request traces dropped because the buffer was full.",
		}),

		RateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "msgproxy_rate_limited_total",
			Help: "Total number of rate-limited requests.",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.TranslationOverheadUS,
		m.ActiveStreams,
		m.StreamEventsTotal,
		m.AnomaliesTotal,
		m.StopReasonsTotal,
		m.DroppedTracesTotal,
		m.RateLimitedTotal,
	)

	return m
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint
// backed by the dedicated registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
