// Package service wires range resolution, the two store lookups, stitching and
// summarizing into the single getSeries operation the HTTP layer calls.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/pumphouse-rainfall-service/internal/models"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/observability"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/source"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/stitch"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/store"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/summary"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/timewindow"
)

// ErrNotFound is returned when neither source has points for the location in the range.
var ErrNotFound = errors.New("no rainfall data")

// FetchError reports a store failure that prevented an answer. Source is
// "observation", "forecast", or both joined with "+".
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Outcome labels for seriesOutcomesTotal.
const (
	OutcomeOK           = "ok"
	OutcomePartial      = "partial"
	OutcomeNotFound     = "not_found"
	OutcomeInvalidRange = "invalid_range"
	OutcomeStoreError   = "store_error"
)

// Window is the raw result of the two store lookups, already normalized to points.
type Window struct {
	Observed    []source.Point
	Forecast    []source.Point
	ObservedErr error
	ForecastErr error
	// Skipped counts unreadable stored entries per source.
	Skipped map[string]int
}

// Series is a stitched, summarized answer for one location and range.
type Series struct {
	Range           timewindow.Range
	Result          stitch.Result
	Summary         models.IntensitySummary
	Partial         bool
	DegradedSources []string
}

// Options configure location fallback for the stitcher.
type Options struct {
	DefaultLocation *models.LatLng
	BoxRadius       float64
}

// RainfallService answers series lookups. It holds no per-request state.
type RainfallService struct {
	observations store.ObservationStore
	forecasts    store.ForecastStore
	resolver     *timewindow.Resolver
	opts         Options
}

// NewRainfallService creates a RainfallService over the given stores. Wrap the
// stores in a store.Guard to get per-lookup timeouts and circuit breaking.
func NewRainfallService(observations store.ObservationStore, forecasts store.ForecastStore, resolver *timewindow.Resolver, opts Options) *RainfallService {
	return &RainfallService{
		observations: observations,
		forecasts:    forecasts,
		resolver:     resolver,
		opts:         opts,
	}
}

// loggerFromContext extracts a zap.Logger from request context if present.
// Returns a no-op logger otherwise.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return zap.NewNop()
}

// Resolve resolves q against the service clock.
func (s *RainfallService) Resolve(q timewindow.Query) (timewindow.Range, error) {
	return s.resolver.Resolve(q)
}

// GetSeries resolves q, fetches both sources concurrently, and stitches them.
// Errors: timewindow.ErrInvalidRange before any store access, ErrNotFound when
// nothing survives, *FetchError when a store failure leaves no answer. When one
// store fails but the other yields points the result is marked Partial.
func (s *RainfallService) GetSeries(ctx context.Context, location string, q timewindow.Query) (Series, error) {
	location = strings.TrimSpace(location)
	logger := loggerFromContext(ctx).With(zap.String("location", location))
	observability.RecordSeriesQuery(location)

	rng, err := s.resolver.Resolve(q)
	if err != nil {
		observability.SeriesOutcomesTotal.WithLabelValues(OutcomeInvalidRange).Inc()
		return Series{}, err
	}
	return s.series(ctx, logger, location, rng)
}

// GetSeriesForRange is GetSeries for an already-resolved range.
func (s *RainfallService) GetSeriesForRange(ctx context.Context, location string, rng timewindow.Range) (Series, error) {
	location = strings.TrimSpace(location)
	logger := loggerFromContext(ctx).With(zap.String("location", location))
	observability.RecordSeriesQuery(location)
	return s.series(ctx, logger, location, rng)
}

func (s *RainfallService) series(ctx context.Context, logger *zap.Logger, location string, rng timewindow.Range) (Series, error) {
	start := time.Now()
	w := s.FetchWindow(ctx, location, rng)

	var failed []string
	var errs []error
	if w.ObservedErr != nil {
		failed = append(failed, store.NameObservation)
		errs = append(errs, w.ObservedErr)
	}
	if w.ForecastErr != nil {
		failed = append(failed, store.NameForecast)
		errs = append(errs, w.ForecastErr)
	}
	if len(failed) == 2 {
		observability.SeriesOutcomesTotal.WithLabelValues(OutcomeStoreError).Inc()
		return Series{}, &FetchError{Source: strings.Join(failed, "+"), Err: errors.Join(errs...)}
	}

	res, ok := stitch.Stitch(w.Observed, w.Forecast, rng, stitch.Options{
		Name:            location,
		DefaultLocation: s.opts.DefaultLocation,
		BoxRadius:       s.opts.BoxRadius,
	})
	if !ok {
		if len(failed) == 1 {
			// The failed source might have had data; absence is not proven.
			observability.SeriesOutcomesTotal.WithLabelValues(OutcomeStoreError).Inc()
			return Series{}, &FetchError{Source: failed[0], Err: errs[0]}
		}
		observability.SeriesOutcomesTotal.WithLabelValues(OutcomeNotFound).Inc()
		logger.Debug("no rainfall data", zap.String("preset", string(rng.Preset)))
		return Series{}, fmt.Errorf("%w for %q", ErrNotFound, location)
	}

	out := Series{
		Range:   rng,
		Result:  res,
		Summary: summary.Summarize(res.Observed),
	}
	if len(failed) == 1 {
		out.Partial = true
		out.DegradedSources = failed
		observability.PartialResponsesTotal.WithLabelValues(failed[0]).Inc()
		observability.SeriesOutcomesTotal.WithLabelValues(OutcomePartial).Inc()
		logger.Warn("serving partial series", zap.String("failed_source", failed[0]), zap.Error(errs[0]))
	} else {
		observability.SeriesOutcomesTotal.WithLabelValues(OutcomeOK).Inc()
	}
	logger.Debug("series served",
		zap.String("preset", string(rng.Preset)),
		zap.Int("observed", len(res.Observed)),
		zap.Int("forecast", len(res.Forecast)),
		zap.Bool("partial", out.Partial),
		zap.Duration("duration", time.Since(start)))
	return out, nil
}

// FetchWindow runs the observation and forecast lookups concurrently and
// normalizes what each returns. The "now" window reads radar scans and the
// latest nowcast first and falls back to day buckets and the hourly forecast
// run when those yield nothing. Per-source errors are reported on the Window;
// it never fails as a whole.
func (s *RainfallService) FetchWindow(ctx context.Context, location string, rng timewindow.Range) Window {
	logger := loggerFromContext(ctx)
	w := Window{Skipped: make(map[string]int, 2)}
	var obsSkipped, fcSkipped int
	radarFirst := rng.Preset == timewindow.PresetNow

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if radarFirst {
			recs, err := s.observations.RadarRecords(ctx, store.RadarQuery{
				Start:    rng.Start,
				End:      rng.ObservedUntil(),
				Location: location,
			})
			if err != nil {
				w.ObservedErr = err
				return
			}
			logger.Debug("radar lookup", zap.Int("docs", len(recs)))
			w.Observed, obsSkipped, w.ObservedErr = source.Flatten(recs)
			if w.ObservedErr != nil || len(w.Observed) > 0 {
				return
			}
		}
		keys := source.DayKeys(rng.Start, rng.ObservedUntil())
		buckets, err := s.observations.DayBuckets(ctx, location, keys)
		if err != nil {
			w.ObservedErr = err
			return
		}
		logger.Debug("observation lookup",
			zap.String("collection", source.CollectionName(location)),
			zap.Int("day_keys", len(keys)),
			zap.Int("docs", len(buckets)))
		var n int
		w.Observed, n, w.ObservedErr = source.Flatten(buckets)
		obsSkipped += n
	}()
	go func() {
		defer wg.Done()
		if radarFirst {
			nowcast, err := s.forecasts.LatestNowcast(ctx, location)
			if err != nil {
				w.ForecastErr = err
				return
			}
			if nowcast != nil {
				w.Forecast, fcSkipped, w.ForecastErr = source.Flatten([]source.Nowcast{*nowcast})
				if w.ForecastErr != nil || len(w.Forecast) > 0 {
					return
				}
			}
		}
		run, err := s.forecasts.LatestForecast(ctx, location)
		if err != nil {
			w.ForecastErr = err
			return
		}
		if run == nil {
			logger.Debug("no forecast run", zap.String("collection", source.ForecastCollectionName(location)))
			return
		}
		var n int
		w.Forecast, n, w.ForecastErr = source.Flatten([]source.ForecastRun{*run})
		fcSkipped += n
	}()
	wg.Wait()

	w.Skipped[store.NameObservation] = obsSkipped
	w.Skipped[store.NameForecast] = fcSkipped
	for src, n := range w.Skipped {
		if n == 0 {
			continue
		}
		observability.SkippedRecordsTotal.WithLabelValues(src).Add(float64(n))
		logger.Warn("skipped unreadable stored entries", zap.String("source", src), zap.Int("count", n))
	}
	return w
}
