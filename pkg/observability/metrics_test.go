package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsRegistered(t *testing.T) {
	// Vectors only appear in Gather output after their first observation.
	InvocationsTotal.WithLabelValues("search", "inline", "success").Inc()
	InvocationDuration.WithLabelValues("search", "inline").Observe(0.1)
	OracleRequestsTotal.WithLabelValues("decide", "success").Inc()
	OracleLatency.WithLabelValues("decide").Observe(0.2)
	ChainsTotal.WithLabelValues("DONE", "complete").Inc()
	RequestsTotal.WithLabelValues("GET", RouteProbe, "2xx").Inc()
	RequestDuration.WithLabelValues("GET", RouteProbe).Observe(0.01)
	RateLimitRejectedTotal.WithLabelValues("default").Inc()

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("unexpected gather error: %v", err)
	}

	expected := map[string]bool{
		"relay_http_requests_total":           false,
		"relay_http_request_duration_seconds": false,
		"relay_streaming_connections_active":  false,
		"relay_invocations_total":             false,
		"relay_invocation_duration_seconds":   false,
		"relay_tasks_inflight":                false,
		"relay_oracle_requests_total":         false,
		"relay_oracle_latency_seconds":        false,
		"relay_chains_total":                  false,
		"relay_chain_depth":                   false,
		"relay_ratelimit_rejected_total":      false,
	}
	for _, mf := range families {
		if _, ok := expected[mf.GetName()]; ok {
			expected[mf.GetName()] = true
		}
	}
	for name, found := range expected {
		if !found {
			t.Errorf("metric %q not found in default registry", name)
		}
	}
}

func TestRouteLabel(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/v1/capabilities", RouteCapabilities},
		{"/v1/capabilities/web_search", RouteCapabilities},
		{"/v1/capabilities/web_search/invoke", RouteInvoke},
		{"/v1/tasks", RouteTasks},
		{"/v1/tasks/3f2a", RouteTasks},
		{"/v1/chat", RouteChat},
		{"/v1/chat/session-1", RouteChat},
		{"/healthz", RouteProbe},
		{"/readyz", RouteProbe},
		{"/metrics", RouteOther},
		{"/v1/capabilitiesx", RouteOther},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := RouteLabel(tt.path); got != tt.want {
				t.Errorf("RouteLabel(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestMiddlewareRecordsStatusClass(t *testing.T) {
	tests := []struct {
		status int
		class  string
	}{
		{http.StatusOK, "2xx"},
		{http.StatusAccepted, "2xx"},
		{http.StatusNotFound, "4xx"},
		{http.StatusInternalServerError, "5xx"},
	}
	for _, tt := range tests {
		t.Run(tt.class, func(t *testing.T) {
			before := counterValue(t, RequestsTotal, "POST", RouteInvoke, tt.class)
			durBefore := histogramCount(t, RequestDuration, "POST", RouteInvoke)

			handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.WriteHeader(http.StatusTeapot)
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/v1/capabilities/search/invoke", nil))

			if got := counterValue(t, RequestsTotal, "POST", RouteInvoke, tt.class) - before; got != 1 {
				t.Errorf("requests delta = %f, want 1", got)
			}
			if got := histogramCount(t, RequestDuration, "POST", RouteInvoke) - durBefore; got != 1 {
				t.Errorf("duration samples delta = %d, want 1", got)
			}
		})
	}
}

func TestMiddlewareImplicitStatus(t *testing.T) {
	before := counterValue(t, RequestsTotal, "GET", RouteTasks, "2xx")
	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/v1/tasks/abc", nil))
	if got := counterValue(t, RequestsTotal, "GET", RouteTasks, "2xx") - before; got != 1 {
		t.Errorf("requests delta = %f, want 1", got)
	}
}

func TestMiddlewareStreamingGauge(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		delta       float64
	}{
		{"event stream", "text/event-stream", 1},
		{"json", "application/json", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			baseline := gaugeValue(t, StreamingConnections)

			during := make(chan float64, 1)
			handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(http.StatusOK)
				during <- gaugeValue(t, StreamingConnections)
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/v1/chat?stream=true", nil))

			if got := <-during; got != baseline+tt.delta {
				t.Errorf("gauge during request = %f, want %f", got, baseline+tt.delta)
			}
			if after := gaugeValue(t, StreamingConnections); after != baseline {
				t.Errorf("gauge after request = %f, want %f", after, baseline)
			}
		})
	}
}

func TestRecordingWriterFlush(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &recordingWriter{ResponseWriter: rec, status: http.StatusOK}
	rw.Flush()
	if !rec.Flushed {
		t.Error("expected underlying writer to be flushed")
	}
}

func TestInitTracingDisabled(t *testing.T) {
	tp, err := InitTracing(context.Background(), TracingConfig{})
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	ctx, span := StartSpan(context.Background(), "test.span", AttrCapability.String("search"))
	defer span.End()
	if ctx == nil {
		t.Fatal("nil context from StartSpan")
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestInitTracingUnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "carrier-pigeon"})
	if err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}

func counterValue(t *testing.T, cv *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	c, err := cv.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("getting counter metric: %v", err)
	}
	if err := c.(prometheus.Metric).Write(m); err != nil {
		t.Fatalf("writing counter metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func histogramCount(t *testing.T, hv *prometheus.HistogramVec, labels ...string) uint64 {
	t.Helper()
	m := &dto.Metric{}
	obs, err := hv.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("getting histogram metric: %v", err)
	}
	if err := obs.(prometheus.Metric).Write(m); err != nil {
		t.Fatalf("writing histogram metric: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("writing gauge metric: %v", err)
	}
	return m.GetGauge().GetValue()
}
