package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// unmatchedRoute labels requests no route matched, keeping label
// cardinality bounded.
const unmatchedRoute = "unmatched"

// serverMetrics holds the Prometheus collectors owned by the HTTP server.
type serverMetrics struct {
	// httpRequestsTotal counts requests by method, route pattern and status.
	httpRequestsTotal *prometheus.CounterVec
	// httpDurationSeconds records request latency by method and route.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers the server metrics against reg.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)
	return &serverMetrics{
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docpack",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled, by method, route and status code.",
		}, []string{"method", "route", "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docpack",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "HTTP request latency. Pack creation includes the synchronous ingest.",
			Buckets:   []float64{.005, .025, .1, .5, 1, 5, 15, 30, 60, 120},
		}, []string{"method", "route"}),
	}
}

// instrument records every request against the route pattern the mux
// matched. next must be the mux itself so r.Pattern is populated on return.
func (m *serverMetrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rw, r)

		route := r.Pattern
		if route == "" {
			route = unmatchedRoute
		}
		m.httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
		m.httpDurationSeconds.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
