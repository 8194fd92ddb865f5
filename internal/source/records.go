// Package source normalizes the stored record encodings into canonical UTC
// time points. Observation records are day buckets keyed by sub-day slot or
// radar scans carrying per-pump markers; forecast records are parallel arrays
// of wall-clock times or nowcast runs keyed by minutes after creation.
package source

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kjstillabower/pumphouse-rainfall-service/internal/models"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/timewindow"
)

// ErrMalformedRecord marks a stored record that cannot be interpreted at all.
var ErrMalformedRecord = errors.New("malformed record")

// Kind tags which encoding a Record uses.
type Kind string

const (
	KindDayKeyed     Kind = "observation"
	KindIndexedArray Kind = "forecast"
	KindMarker       Kind = "radar"
	KindOffsetKeyed  Kind = "nowcast"
)

// Record is a raw stored document that can be flattened into points.
type Record interface {
	Kind() Kind
	Points() (points []Point, skipped int, err error)
}

// Site carries the location metadata of the record a point came from.
type Site struct {
	Name     string
	Location *models.LatLng
	Bounds   *models.BoundingBox
}

// Point is a normalized sample plus a reference to its source record's site.
type Point struct {
	models.TimePoint
	Site *Site
}

// BoundsDoc is the stored coverage area, each corner as [lat, lng].
type BoundsDoc struct {
	SW []float64 `bson:"sw" json:"sw"`
	NE []float64 `bson:"ne" json:"ne"`
}

// HourEntry is one sub-day slot of an observation day bucket. Rain is read
// first; Precipitation stands in when a slot was written without it.
type HourEntry struct {
	Time          string   `bson:"time" json:"time"`
	Rain          *float64 `bson:"rain,omitempty" json:"rain,omitempty"`
	Precipitation *float64 `bson:"precipitation,omitempty" json:"precipitation,omitempty"`
}

// DayBucket is one local calendar day of observations for a pump house.
type DayBucket struct {
	Date     string               `bson:"date" json:"date"`
	Name     string               `bson:"name,omitempty" json:"name,omitempty"`
	Lat      *float64             `bson:"lat,omitempty" json:"lat,omitempty"`
	Lng      *float64             `bson:"lng,omitempty" json:"lng,omitempty"`
	Bounds   *BoundsDoc           `bson:"bounds,omitempty" json:"bounds,omitempty"`
	Timezone string               `bson:"timezone,omitempty" json:"timezone,omitempty"`
	Hourly   map[string]HourEntry `bson:"hourly" json:"hourly"`
}

// Kind implements Record.
func (b DayBucket) Kind() Kind { return KindDayKeyed }

// Points flattens every sub-day entry. Entries without a time are skipped
// silently, entries whose time cannot be parsed are skipped and counted.
func (b DayBucket) Points() ([]Point, int, error) {
	site := b.site()
	points := make([]Point, 0, len(b.Hourly))
	skipped := 0
	for _, entry := range b.Hourly {
		if strings.TrimSpace(entry.Time) == "" {
			continue
		}
		at, err := ParseStoredTime(entry.Time)
		if err != nil {
			skipped++
			continue
		}
		points = append(points, Point{
			TimePoint: models.TimePoint{Time: at, Value: entry.value()},
			Site:      site,
		})
	}
	SortPoints(points)
	return points, skipped, nil
}

func (e HourEntry) value() float64 {
	if e.Rain == nil {
		return valueOrZero(e.Precipitation)
	}
	return *e.Rain
}

func (b DayBucket) site() *Site {
	s := &Site{Name: b.Name, Bounds: boundingBox(b.Bounds)}
	if b.Lat != nil && b.Lng != nil {
		s.Location = &models.LatLng{Lat: *b.Lat, Lng: *b.Lng}
	}
	return s
}

func boundingBox(b *BoundsDoc) *models.BoundingBox {
	if b == nil || len(b.SW) != 2 || len(b.NE) != 2 {
		return nil
	}
	return &models.BoundingBox{
		SouthWest: models.LatLng{Lat: b.SW[0], Lng: b.SW[1]},
		NorthEast: models.LatLng{Lat: b.NE[0], Lng: b.NE[1]},
	}
}

// ForecastSeries holds the parallel hourly arrays of a forecast run: local
// wall-clock times and the rain forecast for each.
type ForecastSeries struct {
	Time []string  `bson:"time" json:"time"`
	Rain []float64 `bson:"rain" json:"rain"`
}

// ForecastRun is the latest forecast generation for a pump house.
type ForecastRun struct {
	PumpName  string         `bson:"pumpName" json:"pumpName"`
	PumpLat   *float64       `bson:"pumpLat,omitempty" json:"pumpLat,omitempty"`
	PumpLng   *float64       `bson:"pumpLng,omitempty" json:"pumpLng,omitempty"`
	FetchedAt time.Time      `bson:"fetchedAt" json:"fetchedAt"`
	Hourly    ForecastSeries `bson:"hourly" json:"hourly"`
}

// Kind implements Record.
func (f ForecastRun) Kind() Kind { return KindIndexedArray }

// Points pairs each rain value with the time string at the same index. A run
// with values but no times at all is malformed; an index whose time is missing
// or unparseable is skipped and counted.
func (f ForecastRun) Points() ([]Point, int, error) {
	site := &Site{Name: f.PumpName}
	if f.PumpLat != nil && f.PumpLng != nil && (*f.PumpLat != 0 || *f.PumpLng != 0) {
		site.Location = &models.LatLng{Lat: *f.PumpLat, Lng: *f.PumpLng}
	}
	if len(f.Hourly.Time) == 0 && len(f.Hourly.Rain) > 0 {
		return nil, 0, fmt.Errorf("%w: forecast %q has values but no times", ErrMalformedRecord, f.PumpName)
	}

	points := make([]Point, 0, len(f.Hourly.Rain))
	skipped := 0
	for i, value := range f.Hourly.Rain {
		if i >= len(f.Hourly.Time) || strings.TrimSpace(f.Hourly.Time[i]) == "" {
			skipped++
			continue
		}
		at, err := ParseStoredTime(f.Hourly.Time[i])
		if err != nil {
			skipped++
			continue
		}
		points = append(points, Point{
			TimePoint: models.TimePoint{Time: at, Value: value},
			Site:      site,
		})
	}
	SortPoints(points)
	return points, skipped, nil
}

var storedTimeLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
}

// ParseStoredTime converts a stored time string into a UTC instant. Strings
// with an explicit offset are honored; bare wall-clock strings are local time
// in the reference zone.
func ParseStoredTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range storedTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, timewindow.Zone); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized time %q", ErrMalformedRecord, s)
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
