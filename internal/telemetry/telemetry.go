// Package telemetry unifies Prometheus metrics and OpenTelemetry tracing for the service.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Provider call outcomes recorded by ObserveProviderCall.
const (
	OutcomeOK             = "ok"
	OutcomeHTTPError      = "http_error"
	OutcomeTransportError = "transport_error"
	OutcomeDecodeError    = "decode_error"
)

// --- CUSTOM METRIC DEFINITIONS ---

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)

	providerCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buddy_provider_calls_total",
			Help: "Total number of places provider calls, labeled by stage and outcome.",
		},
		[]string{"stage", "outcome"},
	)

	providerCallDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "buddy_provider_call_duration_seconds",
			Help:    "Histogram of places provider call latencies, labeled by stage.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"stage"},
	)

	pipelineStageResults = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "buddy_pipeline_stage_results",
			Help:    "Number of records produced by each search pipeline stage.",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 40, 60},
		},
		[]string{"stage"},
	)

	restroomsSavedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "buddy_restrooms_saved_total",
			Help: "Total number of new restrooms persisted from searches.",
		},
	)

	searchesRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buddy_searches_rejected_total",
			Help: "Total number of searches rejected before or during the pipeline, labeled by reason.",
		},
		[]string{"reason"},
	)
)

// --- HTTP HANDLER & MIDDLEWARE ---

// Handler returns the standard Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			routePattern = rctx.RoutePattern()
		}

		ObserveHTTPRequest(r.Method, routePattern, ww.statusCode, time.Since(start))
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}

// --- HELPER FUNCTIONS ---

// ObserveHTTPRequest records metrics for an HTTP request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveProviderCall records the outcome and latency of one places provider call.
func ObserveProviderCall(stage, outcome string, duration time.Duration) {
	providerCallsTotal.WithLabelValues(stage, outcome).Inc()
	providerCallDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveStageResults records how many records a pipeline stage produced.
func ObserveStageResults(stage string, n int) {
	pipelineStageResults.WithLabelValues(stage).Observe(float64(n))
}

// IncRestroomsSaved counts newly persisted restrooms.
func IncRestroomsSaved(n int) {
	if n > 0 {
		restroomsSavedTotal.Add(float64(n))
	}
}

// ObserveSearchRejected counts a rejected search.
func ObserveSearchRejected(reason string) {
	searchesRejectedTotal.WithLabelValues(reason).Inc()
}
