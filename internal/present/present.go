// Package present renders a stitched series into the two response shapes the
// dashboards consume.
package present

import (
	"time"

	"github.com/kjstillabower/pumphouse-rainfall-service/internal/models"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/service"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/timewindow"
)

// Point is one sample on the wire. Time is RFC3339 in the reference zone.
type Point struct {
	Time  string  `json:"time"`
	Value float64 `json:"value"`
}

// Header is shared by both shapes. Bounds is [[sw_lat, sw_lng], [ne_lat, ne_lng]]
// and Location is [lat, lng].
type Header struct {
	LocationName    string        `json:"location_name"`
	Bounds          [2][2]float64 `json:"bounds"`
	Location        [2]float64    `json:"location"`
	Partial         bool          `json:"partial,omitempty"`
	DegradedSources []string      `json:"degraded_sources,omitempty"`
}

// Split is returned for day, week and month ranges.
type Split struct {
	Header
	Observed []Point                 `json:"observed"`
	Forecast []Point                 `json:"forecast"`
	Summary  models.IntensitySummary `json:"summary"`
}

// Merged is returned for the now window, where history and forecast read as one line.
type Merged struct {
	Header
	Series []Point `json:"series"`
}

// Input is everything the adapter needs from one answered request.
type Input struct {
	Observed        []models.TimePoint
	Forecast        []models.TimePoint
	Identity        models.LocationIdentity
	Bounds          models.BoundingBox
	Summary         models.IntensitySummary
	Preset          timewindow.Preset
	Partial         bool
	DegradedSources []string
}

// Build picks the shape from the preset: Merged for the now window, Split otherwise.
func Build(in Input) interface{} {
	h := Header{
		LocationName: in.Identity.Name,
		Bounds: [2][2]float64{
			{in.Bounds.SouthWest.Lat, in.Bounds.SouthWest.Lng},
			{in.Bounds.NorthEast.Lat, in.Bounds.NorthEast.Lng},
		},
		Location:        [2]float64{in.Identity.Location.Lat, in.Identity.Location.Lng},
		Partial:         in.Partial,
		DegradedSources: in.DegradedSources,
	}
	if in.Preset == timewindow.PresetNow {
		series := make([]Point, 0, len(in.Observed)+len(in.Forecast))
		series = appendPoints(series, in.Observed)
		series = appendPoints(series, in.Forecast)
		return Merged{Header: h, Series: series}
	}
	return Split{
		Header:   h,
		Observed: appendPoints(make([]Point, 0, len(in.Observed)), in.Observed),
		Forecast: appendPoints(make([]Point, 0, len(in.Forecast)), in.Forecast),
		Summary:  in.Summary,
	}
}

// FromSeries builds the response for a service answer.
func FromSeries(s service.Series) interface{} {
	return Build(Input{
		Observed:        s.Result.Observed,
		Forecast:        s.Result.Forecast,
		Identity:        s.Result.Identity,
		Bounds:          s.Result.Bounds,
		Summary:         s.Summary,
		Preset:          s.Range.Preset,
		Partial:         s.Partial,
		DegradedSources: s.DegradedSources,
	})
}

func appendPoints(dst []Point, src []models.TimePoint) []Point {
	for _, p := range src {
		dst = append(dst, Point{Time: FormatTime(p.Time), Value: p.Value})
	}
	return dst
}

// FormatTime renders t as RFC3339 in the reference zone, e.g. 2025-01-15T08:00:00+07:00.
func FormatTime(t time.Time) string {
	return timewindow.ToLocal(t).Format(time.RFC3339)
}
