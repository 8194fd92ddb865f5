package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/pumphouse-rainfall-service/internal/observability"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/traffic"
)

func TestCorrelationIDMiddleware_GeneratesAndPropagates(t *testing.T) {
	var seenID string
	var seenLogger bool
	h := CorrelationIDMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID, _ = r.Context().Value("correlation_id").(string)
		_, seenLogger = r.Context().Value("logger").(*zap.Logger)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.NotEmpty(t, seenID)
	assert.Equal(t, seenID, w.Header().Get("X-Correlation-ID"))
	assert.True(t, seenLogger)

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Correlation-ID", "client-provided-id")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "client-provided-id", seenID)
	assert.Equal(t, "client-provided-id", w.Header().Get("X-Correlation-ID"))
}

func TestMetricsMiddleware_RecordsRouteTemplate(t *testing.T) {
	before := testutil.ToFloat64(observability.HTTPRequestsTotal.WithLabelValues("GET", "/rainfall/{name}", "4xx"))

	h := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/rainfall/Pompa%20Ancol", nil))

	after := testutil.ToFloat64(observability.HTTPRequestsTotal.WithLabelValues("GET", "/rainfall/{name}", "4xx"))
	assert.Equal(t, before+1, after)
}

func TestGetRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/metrics", "/metrics"},
		{"/locations", "/locations"},
		{"/rainfall/Ancol", "/rainfall/{name}"},
		{"/rainfall/Pompa Pluit", "/rainfall/{name}"},
		{"/rainfall", "other"},
		{"/radar/latest", "/radar/latest"},
		{"/radar/today/summary", "/radar/today/summary"},
		{"/radar/today/pump-houses/Ancol", "/radar/today/pump-houses/{name}"},
		{"/radar/stations/JAK", "/radar/stations/{station}"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/", nil)
		req.URL.Path = tt.path
		assert.Equal(t, tt.want, getRoute(req), tt.path)
	}
}

func TestTimeoutMiddleware_CancelsContextAfterTimeout(t *testing.T) {
	var ctxErr error
	h := TimeoutMiddleware(10 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		ctxErr = r.Context().Err()
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/rainfall/Ancol", nil))
	assert.ErrorIs(t, ctxErr, context.DeadlineExceeded)
}

func TestRateLimitMiddleware_Returns429WhenExceeded(t *testing.T) {
	resetState(t)
	deniedBefore := testutil.ToFloat64(observability.RateLimitDeniedTotal)
	limiter := rate.NewLimiter(rate.Limit(0.001), 1)
	h := RateLimitMiddleware(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/rainfall/Ancol", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/rainfall/Ancol", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMITED", errorCode(t, w))
	assert.Equal(t, 1, traffic.DenialCount(time.Minute))
	assert.Equal(t, deniedBefore+1, testutil.ToFloat64(observability.RateLimitDeniedTotal))
}

func TestRateLimitMiddleware_NilLimiterPassesThrough(t *testing.T) {
	h := RateLimitMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("GET", "/rainfall/Ancol", nil))
		assert.Equal(t, http.StatusTeapot, w.Code)
	}
}

func TestRouter_RateLimitOnlyOnRainfall(t *testing.T) {
	resetState(t)
	mem := seededStore()
	h := NewHandler(newRainfallService(mem, mem), mem, nil, zap.NewNop(), nil, 1, 100)
	router := NewRouter(h, zap.NewNop(), RouterConfig{
		Limiter:        rate.NewLimiter(rate.Limit(0.001), 1),
		RequestTimeout: time.Second,
	})

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/rainfall/Ancol", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "rateLimitDeniedTotal")
}
