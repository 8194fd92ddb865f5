// Package store defines the read-only collaborators the rainfall core consumes
// and their MongoDB and in-memory implementations.
package store

import (
	"context"
	"time"

	"github.com/kjstillabower/pumphouse-rainfall-service/internal/source"
)

// Store labels used in metrics and errors.
const (
	NameObservation = "observation"
	NameForecast    = "forecast"
)

// Default collection names for the radar pipeline, held in the observation database.
const (
	DefaultRadarCollection   = "rainfall_records"
	DefaultNowcastCollection = "prediksi"
)

// RadarQuery scopes a radar record lookup. Start and End bound
// metadata.radarTime inclusively. Empty or zero fields do not filter.
type RadarQuery struct {
	Start time.Time
	End   time.Time
	// Location keeps records with a marker matching the name and drops the
	// other markers from each (see source.RadarRecord.ForLocation).
	Location string
	// Station is compared upper-cased against location.radarStation.
	Station string
	// MinMaxRainRate keeps records whose metadata.maxRainRate is at least this.
	MinMaxRainRate float64
	// ByMaxRainRate orders by metadata.maxRainRate instead of radarTime, both descending.
	ByMaxRainRate bool
}

// RadarStore reads radar scan records.
type RadarStore interface {
	RadarRecords(ctx context.Context, q RadarQuery) ([]source.RadarRecord, error)
	// LatestRadarRecord returns the newest scan, or nil with no error when there is none.
	LatestRadarRecord(ctx context.Context) (*source.RadarRecord, error)
}

// ObservationStore returns day buckets and radar scans for a location.
// Implementations scope day bucket lookups to the given day keys and to
// records whose stored name fuzzily matches location (see source.MatchesName).
type ObservationStore interface {
	RadarStore
	DayBuckets(ctx context.Context, location string, dayKeys []string) ([]source.DayBucket, error)
	Locations(ctx context.Context) ([]string, error)
}

// ForecastStore returns the most recently created forecast run and nowcast
// for a location, or nil with no error when there is none.
type ForecastStore interface {
	LatestForecast(ctx context.Context, location string) (*source.ForecastRun, error)
	// LatestNowcast returns the newest nowcast narrowed to entries matching location.
	LatestNowcast(ctx context.Context, location string) (*source.Nowcast, error)
}

// Pinger checks backend reachability for health reporting.
type Pinger interface {
	Ping(ctx context.Context) error
}
