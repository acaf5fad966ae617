package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	router := chi.NewRouter()
	router.Use(Middleware)
	router.Get("/api/things/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "418"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/things/7", nil))

	require.Equal(t, http.StatusTeapot, rec.Code)
	require.Equal(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "418")))
	require.Positive(t, testutil.CollectAndCount(httpRequestDurationSeconds, "http_request_duration_seconds"))
}

func TestMiddlewareWithoutRouter(t *testing.T) {
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "200"))
	h := Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "200")))
}

func TestCrawlCounters(t *testing.T) {
	inv := testutil.ToFloat64(crawlInvocationsTotal.WithLabelValues(OutcomeSuccess))
	processed := testutil.ToFloat64(crawlTargetsProcessedTotal)
	overruns := testutil.ToFloat64(crawlBudgetOverrunsTotal)

	ObserveInvocation(OutcomeSuccess)
	ObserveTargetsProcessed(5)
	ObserveTargetsProcessed(0)
	ObserveBudgetOverrun()

	require.Equal(t, inv+1, testutil.ToFloat64(crawlInvocationsTotal.WithLabelValues(OutcomeSuccess)))
	require.Equal(t, processed+5, testutil.ToFloat64(crawlTargetsProcessedTotal))
	require.Equal(t, overruns+1, testutil.ToFloat64(crawlBudgetOverrunsTotal))
}

func TestStatusClass(t *testing.T) {
	t.Parallel()

	require.Equal(t, "2xx", StatusClass(200))
	require.Equal(t, "5xx", StatusClass(503))
	require.Equal(t, "error", StatusClass(0))
}

func TestHandlerExposesMetrics(t *testing.T) {
	ObserveInvocation(OutcomeComplete)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "crawl_invocations_total"))
}
