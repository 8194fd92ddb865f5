package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kjstillabower/pumphouse-rainfall-service/internal/observability"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/source"
)

// GuardConfig holds per-lookup timeout and circuit breaker settings shared by
// both stores.
type GuardConfig struct {
	LookupTimeout    time.Duration
	FailureThreshold uint32
	HalfOpenRequests uint32
	OpenTimeout      time.Duration
}

// Guard wraps the observation and forecast stores with a per-lookup timeout,
// one circuit breaker per store, and lookup metrics.
type Guard struct {
	observations ObservationStore
	forecasts    ForecastStore
	timeout      time.Duration
	obsBreaker   *gobreaker.CircuitBreaker
	fcBreaker    *gobreaker.CircuitBreaker
}

// NewGuard returns a Guard over the given stores. Zero config values fall back
// to a 3s lookup timeout, 5 consecutive failures to trip, 1 half-open trial request, and 30s open.
func NewGuard(observations ObservationStore, forecasts ForecastStore, cfg GuardConfig) *Guard {
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 3 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = 1
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	return &Guard{
		observations: observations,
		forecasts:    forecasts,
		timeout:      cfg.LookupTimeout,
		obsBreaker:   newBreaker(NameObservation, cfg),
		fcBreaker:    newBreaker(NameForecast, cfg),
	}
}

func newBreaker(name string, cfg GuardConfig) *gobreaker.CircuitBreaker {
	observability.SetStoreBreakerState(name, int(gobreaker.StateClosed))
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, _, to gobreaker.State) {
			observability.SetStoreBreakerState(name, int(to))
		},
		// A caller going away says nothing about store health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

// DayBuckets implements ObservationStore.
func (g *Guard) DayBuckets(ctx context.Context, location string, dayKeys []string) ([]source.DayBucket, error) {
	return guarded(ctx, g, g.obsBreaker, NameObservation, func(ctx context.Context) ([]source.DayBucket, error) {
		return g.observations.DayBuckets(ctx, location, dayKeys)
	})
}

// Locations implements ObservationStore.
func (g *Guard) Locations(ctx context.Context) ([]string, error) {
	return guarded(ctx, g, g.obsBreaker, NameObservation, g.observations.Locations)
}

// LatestForecast implements ForecastStore.
func (g *Guard) LatestForecast(ctx context.Context, location string) (*source.ForecastRun, error) {
	return guarded(ctx, g, g.fcBreaker, NameForecast, func(ctx context.Context) (*source.ForecastRun, error) {
		return g.forecasts.LatestForecast(ctx, location)
	})
}

// RadarRecords implements RadarStore. Radar scans share the observation breaker.
func (g *Guard) RadarRecords(ctx context.Context, q RadarQuery) ([]source.RadarRecord, error) {
	return guarded(ctx, g, g.obsBreaker, NameObservation, func(ctx context.Context) ([]source.RadarRecord, error) {
		return g.observations.RadarRecords(ctx, q)
	})
}

// LatestRadarRecord implements RadarStore.
func (g *Guard) LatestRadarRecord(ctx context.Context) (*source.RadarRecord, error) {
	return guarded(ctx, g, g.obsBreaker, NameObservation, g.observations.LatestRadarRecord)
}

// LatestNowcast implements ForecastStore. Nowcasts share the forecast breaker.
func (g *Guard) LatestNowcast(ctx context.Context, location string) (*source.Nowcast, error) {
	return guarded(ctx, g, g.fcBreaker, NameForecast, func(ctx context.Context) (*source.Nowcast, error) {
		return g.forecasts.LatestNowcast(ctx, location)
	})
}

// BreakerStates returns the current breaker state per store, for health reporting.
func (g *Guard) BreakerStates() map[string]string {
	return map[string]string{
		NameObservation: g.obsBreaker.State().String(),
		NameForecast:    g.fcBreaker.State().String(),
	}
}

func guarded[T any](ctx context.Context, g *Guard, cb *gobreaker.CircuitBreaker, name string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	start := time.Now()
	lookupCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	result, err := cb.Execute(func() (interface{}, error) {
		v, err := fn(lookupCtx)
		if err != nil && lookupCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %s after %s: %w", ErrLookupTimeout, name, g.timeout, err)
		}
		return v, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %s: %v", ErrBreakerOpen, name, err)
	}

	status := "success"
	if err != nil {
		status = "error"
		observability.StoreErrorsTotal.WithLabelValues(name, string(CategorizeError(err))).Inc()
	}
	observability.RecordStoreLookup(name, status, time.Since(start))
	if err != nil {
		return zero, err
	}
	v, _ := result.(T)
	return v, nil
}
