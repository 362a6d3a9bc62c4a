// Package observability provides Prometheus metrics, HTTP metrics
// middleware and OpenTelemetry tracing for the relay service.
package observability

import "github.com/prometheus/client_golang/prometheus"

// InvocationBuckets spans quick lookups through long background renders,
// from 10ms to 10 minutes.
var InvocationBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600}

// OracleBuckets suits LLM round trips, from 100ms to 120s.
var OracleBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts HTTP requests by method, route and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: OracleBuckets,
		},
		[]string{"method", "route"},
	)

	// StreamingConnections tracks active SSE planner streams.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// InvocationsTotal counts capability invocations by routing mode
	// (inline, async) and outcome (success, error, timeout, panic, invalid).
	InvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_invocations_total",
			Help: "Capability invocations",
		},
		[]string{"capability", "mode", "status"},
	)

	// InvocationDuration records handler execution time.
	InvocationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_invocation_duration_seconds",
			Help:    "Capability execution duration",
			Buckets: InvocationBuckets,
		},
		[]string{"capability", "mode"},
	)

	// TasksInflight tracks background tasks that have not reached a
	// terminal state.
	TasksInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_tasks_inflight",
			Help: "Background tasks in flight",
		},
	)

	// OracleRequestsTotal counts oracle calls by operation and outcome.
	OracleRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_oracle_requests_total",
			Help: "Oracle requests",
		},
		[]string{"operation", "status"},
	)

	// OracleLatency records oracle round-trip time.
	OracleLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_oracle_latency_seconds",
			Help:    "Oracle latency",
			Buckets: OracleBuckets,
		},
		[]string{"operation"},
	)

	// ChainsTotal counts planner runs by terminal state and reason.
	ChainsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_chains_total",
			Help: "Planner chains by terminal state",
		},
		[]string{"state", "reason"},
	)

	// ChainDepth records the number of invocations per chain.
	ChainDepth = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_chain_depth",
			Help:    "Capability invocations per chain",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 10, 15, 20},
		},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		InvocationsTotal,
		InvocationDuration,
		TasksInflight,
		OracleRequestsTotal,
		OracleLatency,
		ChainsTotal,
		ChainDepth,
		RateLimitRejectedTotal,
	)
}
