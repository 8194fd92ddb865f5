package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInFlightTracker_CountAndWait(t *testing.T) {
	tracker := &InFlightTracker{}
	assert.Equal(t, int64(0), tracker.Count())

	tracker.Increment()
	tracker.Increment()
	assert.Equal(t, int64(2), tracker.Count())

	tracker.Decrement()
	tracker.Decrement()
	assert.Equal(t, int64(0), tracker.Count())
}

func TestInFlightTracker_WaitForZero(t *testing.T) {
	tracker := &InFlightTracker{}
	tracker.Increment()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- tracker.WaitForZero(ctx, 5*time.Millisecond) }()

	time.Sleep(10 * time.Millisecond)
	tracker.Decrement()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("WaitForZero did not return after count reached zero")
	}
}

func TestInFlightTracker_WaitForZero_ContextCanceled(t *testing.T) {
	tracker := &InFlightTracker{}
	tracker.Increment()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := tracker.WaitForZero(ctx, 5*time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMetricsMiddleware_TracksInFlight(t *testing.T) {
	seen := make(chan int64, 1)
	h := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- InFlightCount()
		w.WriteHeader(http.StatusNoContent)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.GreaterOrEqual(t, <-seen, int64(1))
	assert.Equal(t, int64(0), InFlightCount())
	require.NoError(t, WaitForInFlight(context.Background(), time.Millisecond))
}
