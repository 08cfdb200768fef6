package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "policy_assistant"

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests served, by method, route pattern and status code",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_requests_total",
		Help:      "Calls to the AI service, by operation and outcome",
	}, []string{"operation", "outcome"})

	sessionTouchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_touches_total",
		Help:      "Session mutations, by result (applied, session_missing, error)",
	}, []string{"result"})

	uploadsSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "uploads_swept_total",
		Help:      "Orphaned upload files removed by the sweeper",
	})
)

// ObserveHTTP records one served request
func ObserveHTTP(method, route string, status int, seconds float64) {
	httpRequestsTotal.WithLabelValues(method, route, statusLabel(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(seconds)
}

// ObserveUpstream records one AI service call
func ObserveUpstream(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	upstreamRequestsTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveTouch records the result of a session mutation
func ObserveTouch(result string) {
	sessionTouchesTotal.WithLabelValues(result).Inc()
}

// AddSwept records files removed by the upload sweeper
func AddSwept(n int) {
	uploadsSweptTotal.Add(float64(n))
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
