// Package metrics provides Prometheus instrumentation for statewatch.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ChecksTotal counts dirty-state check passes by group.
	ChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "statewatch",
			Name:      "checks_total",
			Help:      "Total dirty-state check passes by monitor group.",
		},
		[]string{"group"},
	)

	// DirtyFindingsTotal counts un-asserted state changes by group.
	DirtyFindingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "statewatch",
			Name:      "dirty_findings_total",
			Help:      "Total un-asserted state changes detected by monitor group.",
		},
		[]string{"group"},
	)

	// FetchErrorsTotal counts hard fetch failures during check passes.
	FetchErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "statewatch",
			Name:      "fetch_errors_total",
			Help:      "Total value-accessor failures during check passes.",
		},
	)

	// CheckDuration observes the latency of a full aggregator check.
	CheckDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "statewatch",
			Name:      "check_duration_seconds",
			Help:      "Duration of a full aggregator dirty-state check in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// MonitorsTracked tracks the number of monitors owned by the most
	// recently constructed aggregator.
	MonitorsTracked = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "statewatch",
			Name:      "monitors_tracked",
			Help:      "Number of monitors owned by the current aggregator.",
		},
	)

	// ActiveWebSocketClients tracks connected drift-stream clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "statewatch",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// HTTPRequestsTotal counts daemon HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "statewatch",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes daemon request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "statewatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(
		ChecksTotal,
		DirtyFindingsTotal,
		FetchErrorsTotal,
		CheckDuration,
		MonitorsTracked,
		ActiveWebSocketClients,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
