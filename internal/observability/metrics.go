package observability

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/pumphouse-rainfall-service/internal/traffic"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases, SLO breaches.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Store lookups by store (observation, forecast) and status. Watch for: error vs success ratio.
	StoreLookupsTotal *prometheus.CounterVec

	// Store lookup latency. Watch for: p95 approaching the lookup timeout.
	StoreLookupDuration *prometheus.HistogramVec

	// Store errors by category (timeout, network, breaker_open, ...).
	StoreErrorsTotal *prometheus.CounterVec

	// Breaker state per store: 0 closed, 1 half-open, 2 open.
	StoreBreakerState *prometheus.GaugeVec

	// Total series lookups. Watch for: traffic volume, rate() for QPS.
	SeriesQueriesTotal prometheus.Counter

	// Per-location series lookups (allow-list; others go to "other").
	SeriesQueriesByLocationTotal *prometheus.CounterVec

	// Series lookup outcomes: ok, partial, not_found, invalid_range, store_error.
	SeriesOutcomesTotal *prometheus.CounterVec

	// Responses served from one store because the other failed, labelled by the failed store.
	PartialResponsesTotal *prometheus.CounterVec

	// Stored entries dropped during normalization because they could not be read.
	SkippedRecordsTotal *prometheus.CounterVec

	// Location catalog cache hits. Misses fall through to the observation store.
	LocationCatalogHitsTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	// trackedLocations is built from config; used to resolve location for metrics.
	trackedLocationsMu sync.RWMutex
	trackedLocations   map[string]struct{}

	rateLimitGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	StoreLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storeLookupsTotal",
			Help: "Total number of observation and forecast store lookups",
		},
		[]string{"store", "status"},
	)
	StoreLookupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storeLookupDurationSeconds",
			Help:    "Store lookup latency in seconds (per lookup)",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2, 3, 5},
		},
		[]string{"store"},
	)
	StoreErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storeErrorsTotal",
			Help: "Store lookup errors by category",
		},
		[]string{"store", "category"},
	)
	StoreBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storeBreakerState",
			Help: "Circuit breaker state per store (0 closed, 1 half-open, 2 open)",
		},
		[]string{"store"},
	)
	SeriesQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "seriesQueriesTotal",
			Help: "Total number of rainfall series lookups",
		},
	)
	SeriesQueriesByLocationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seriesQueriesByLocationTotal",
			Help: "Rainfall series lookups by location (allow-list; others use location=other)",
		},
		[]string{"location"},
	)
	SeriesOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seriesOutcomesTotal",
			Help: "Rainfall series lookup outcomes",
		},
		[]string{"outcome"},
	)
	PartialResponsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partialResponsesTotal",
			Help: "Series served without one source, by the failed source",
		},
		[]string{"source"},
	)
	SkippedRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skippedRecordsTotal",
			Help: "Stored entries skipped during normalization, by source",
		},
		[]string{"source"},
	)
	LocationCatalogHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locationCatalogHitsTotal",
			Help: "Location catalog cache hits",
		},
		[]string{"cacheType"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		StoreLookupsTotal, StoreLookupDuration, StoreErrorsTotal, StoreBreakerState,
		SeriesQueriesTotal, SeriesQueriesByLocationTotal, SeriesOutcomesTotal,
		PartialResponsesTotal, SkippedRecordsTotal,
		LocationCatalogHitsTotal,
		RateLimitDeniedTotal,
	)
}

// RegisterRateLimitGauges registers load and rejects gauges for the rate-limited path.
// Call from main after config load with the overload window. Uses same window as lifecycle.
func RegisterRateLimitGauges(window time.Duration) {
	rateLimitGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRequestsInWindow",
					Help: "Requests hitting rate-limited path in sliding window; load/capacity planning",
				},
				func() float64 { return float64(traffic.RequestCount(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in sliding window; are we rejecting requests",
				},
				func() float64 { return float64(traffic.DenialCount(window)) },
			),
		)
	})
}

// RecordStoreLookup records one guarded store lookup.
func RecordStoreLookup(store, status string, d time.Duration) {
	StoreLookupsTotal.WithLabelValues(store, status).Inc()
	StoreLookupDuration.WithLabelValues(store).Observe(d.Seconds())
}

// SetStoreBreakerState records a breaker transition using gobreaker's state
// ordering (closed, half-open, open).
func SetStoreBreakerState(store string, state int) {
	StoreBreakerState.WithLabelValues(store).Set(float64(state))
}

// SetTrackedLocations sets the allow-list for location metrics. Non-tracked locations increment "other".
func SetTrackedLocations(locations []string) {
	trackedLocationsMu.Lock()
	defer trackedLocationsMu.Unlock()
	trackedLocations = make(map[string]struct{}, len(locations))
	for _, loc := range locations {
		trackedLocations[normalizeLocationForMetrics(loc)] = struct{}{}
	}
}

// RecordSeriesQuery records a series lookup for the given location.
func RecordSeriesQuery(location string) {
	SeriesQueriesTotal.Inc()
	SeriesQueriesByLocationTotal.WithLabelValues(locationLabel(location)).Inc()
}

func locationLabel(location string) string {
	loc := normalizeLocationForMetrics(location)
	trackedLocationsMu.RLock()
	_, ok := trackedLocations[loc] // nil map read is safe in Go
	trackedLocationsMu.RUnlock()
	if ok {
		return loc
	}
	return "other"
}

func normalizeLocationForMetrics(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return s
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
