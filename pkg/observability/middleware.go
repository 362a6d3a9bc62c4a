package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Route labels keep metric cardinality bounded: capability names and task
// IDs never reach a label value.
const (
	RouteCapabilities = "capabilities"
	RouteInvoke       = "invoke"
	RouteTasks        = "tasks"
	RouteChat         = "chat"
	RouteProbe        = "probe"
	RouteOther        = "other"
)

// RouteLabel maps a request path onto one of the fixed route labels.
func RouteLabel(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/capabilities/") && strings.HasSuffix(path, "/invoke"):
		return RouteInvoke
	case path == "/v1/capabilities" || strings.HasPrefix(path, "/v1/capabilities/"):
		return RouteCapabilities
	case path == "/v1/tasks" || strings.HasPrefix(path, "/v1/tasks/"):
		return RouteTasks
	case path == "/v1/chat" || strings.HasPrefix(path, "/v1/chat/"):
		return RouteChat
	case path == "/healthz" || path == "/readyz":
		return RouteProbe
	default:
		return RouteOther
	}
}

// MetricsMiddleware records relay_http_requests_total and
// relay_http_request_duration_seconds per route. A response that starts
// as text/event-stream counts toward relay_streaming_connections_active
// until the handler returns.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		route := RouteLabel(r.URL.Path)

		rw := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			if rw.streaming {
				StreamingConnections.Dec()
			}
		}()
		next.ServeHTTP(rw, r)

		RequestsTotal.WithLabelValues(r.Method, route, statusClass(rw.status)).Inc()
		RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}

// recordingWriter remembers the first status written and whether the
// response was opened as an event stream.
type recordingWriter struct {
	http.ResponseWriter
	status    int
	started   bool
	streaming bool
}

func (w *recordingWriter) begin(status int) {
	if w.started {
		return
	}
	w.started = true
	w.status = status
	if strings.HasPrefix(w.Header().Get("Content-Type"), "text/event-stream") {
		w.streaming = true
		StreamingConnections.Inc()
	}
}

func (w *recordingWriter) WriteHeader(status int) {
	w.begin(status)
	w.ResponseWriter.WriteHeader(status)
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.begin(http.StatusOK)
	return w.ResponseWriter.Write(b)
}

func (w *recordingWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *recordingWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
