package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return metric.GetCounter().GetValue()
}

func TestMiddlewareRecordsMetrics(t *testing.T) {
	m := New()

	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest("POST", "/v1/messages", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	c := m.RequestsTotal.WithLabelValues("POST", "/v1/messages", "200")
	if got := counterValue(t, c.(prometheus.Metric)); got != 1 {
		t.Fatalf("expected counter=1, got %v", got)
	}
}

func TestMiddlewareRecordsErrorStatus(t *testing.T) {
	m := New()

	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	req := httptest.NewRequest("POST", "/v1/messages", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	c := m.RequestsTotal.WithLabelValues("POST", "/v1/messages", "502")
	if got := counterValue(t, c.(prometheus.Metric)); got != 1 {
		t.Fatalf("expected counter=1, got %v", got)
	}
}

func TestMiddlewareImplicitOK(t *testing.T) {
	m := New()

	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("body without explicit WriteHeader"))
	}))

	req := httptest.NewRequest("GET", "/v1/models", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	c := m.RequestsTotal.WithLabelValues("GET", "/v1/models", "200")
	if got := counterValue(t, c.(prometheus.Metric)); got != 1 {
		t.Fatalf("expected counter=1, got %v", got)
	}
}

func TestAnomalyCounters(t *testing.T) {
	m := New()
	m.AnomaliesTotal.WithLabelValues("orphaned_tool_result").Inc()
	m.AnomaliesTotal.WithLabelValues("orphaned_tool_result").Inc()
	m.StopReasonsTotal.WithLabelValues("end_turn").Inc()

	c := m.AnomaliesTotal.WithLabelValues("orphaned_tool_result")
	if got := counterValue(t, c.(prometheus.Metric)); got != 2 {
		t.Fatalf("anomalies = %v", got)
	}
}

func TestMetricsHandlerServes(t *testing.T) {
	m := New()
	m.RequestsTotal.WithLabelValues("POST", "/v1/messages", "200").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("metrics endpoint status = %d", rec.Code)
	}
}
