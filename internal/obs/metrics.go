package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	linkAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "link_attempts_total",
			Help: "Authentication attempts by outcome (success, partial, rejected, error).",
		},
		[]string{"outcome"},
	)

	roleQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "role_queue_depth",
			Help: "Jobs currently waiting in a role reconciliation queue.",
		},
		[]string{"queue"},
	)

	roleQueueRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "role_queue_retries_total",
			Help: "Jobs re-enqueued after a handler failure.",
		},
		[]string{"queue"},
	)

	roleQueueDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "role_queue_dropped_total",
			Help: "Jobs dropped after exhausting retries.",
		},
		[]string{"queue"},
	)

	roleChangesAppliedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "role_changes_applied_total",
			Help: "Role changes applied on the chat platform.",
		},
		[]string{"action"},
	)
)

// Init registers all collectors in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
		linkAttemptsTotal,
		roleQueueDepth,
		roleQueueRetriesTotal,
		roleQueueDroppedTotal,
		roleChangesAppliedTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveLinkAttempt counts one authentication attempt outcome.
func ObserveLinkAttempt(outcome string) {
	linkAttemptsTotal.WithLabelValues(outcome).Inc()
}

// SetQueueDepth publishes the current queue length.
func SetQueueDepth(queue string, depth int) {
	roleQueueDepth.WithLabelValues(queue).Set(float64(depth))
}

// IncQueueRetry counts one re-enqueue.
func IncQueueRetry(queue string) {
	roleQueueRetriesTotal.WithLabelValues(queue).Inc()
}

// IncQueueDropped counts one terminally dropped job.
func IncQueueDropped(queue string) {
	roleQueueDroppedTotal.WithLabelValues(queue).Inc()
}

// IncRoleChange counts one applied role change ("add" or "remove").
func IncRoleChange(action string) {
	roleChangesAppliedTotal.WithLabelValues(action).Inc()
}

// Instrument wraps a handler with RPS/latency/in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses per-entity path segments so metric label cardinality
// stays bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 3 && parts[0] == "v1" && parts[1] == "link" && parts[2] != "" {
		parts[2] = ":member"
		return "/" + strings.Join(parts, "/")
	}
	return path
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
