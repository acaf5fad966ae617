// Package telemetry owns the process-wide Prometheus collectors and the HTTP
// middleware that feeds them.
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

// Invocation outcomes recorded by ObserveInvocation.
const (
	OutcomeComplete     = "complete"
	OutcomeSuccess      = "success"
	OutcomeUnauthorized = "unauthorized"
	OutcomeBadRequest   = "bad_request"
	OutcomeError        = "error"
)

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
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120, 300},
		},
		[]string{"method", "route"},
	)

	crawlInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawl_invocations_total",
			Help: "Crawl invocations, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	crawlTargetsProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crawl_targets_processed_total",
			Help: "Targets handed to the catalog builder.",
		},
	)

	crawlBudgetOverrunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crawl_budget_overruns_total",
			Help: "Chunks whose execution exceeded the configured time budget.",
		},
	)

	crawlerRateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crawler_rate_limit_delays_seconds",
			Help:    "Histogram of rate limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
	)

	crawlerFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_fetches_total",
			Help: "Catalog page fetches, labeled by status class.",
		},
		[]string{"status"},
	)
)

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

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}

// ObserveHTTPRequest records metrics for an HTTP request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveInvocation counts one finished crawl invocation.
func ObserveInvocation(outcome string) {
	crawlInvocationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveTargetsProcessed adds n to the processed-targets counter.
func ObserveTargetsProcessed(n int) {
	if n > 0 {
		crawlTargetsProcessedTotal.Add(float64(n))
	}
}

// ObserveBudgetOverrun records a chunk that ran past its time budget.
func ObserveBudgetOverrun() {
	crawlBudgetOverrunsTotal.Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	crawlerRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveFetch records a catalog fetch by HTTP status class ("2xx", "error", ...).
func ObserveFetch(statusCode int) {
	crawlerFetchesTotal.WithLabelValues(StatusClass(statusCode)).Inc()
}

// StatusClass maps an HTTP status to its class label; zero means transport error.
func StatusClass(code int) string {
	if code < 100 || code > 599 {
		return "error"
	}
	return strconv.Itoa(code/100) + "xx"
}
