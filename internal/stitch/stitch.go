// Package stitch merges observation and forecast points into one ascending,
// non-overlapping series split at a single history/forecast boundary.
package stitch

import (
	"time"

	"github.com/kjstillabower/pumphouse-rainfall-service/internal/models"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/source"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/timewindow"
)

// DefaultLocation is used when neither source carries coordinates (central Jakarta).
var DefaultLocation = models.LatLng{Lat: -6.1754, Lng: 106.8272}

// DefaultBoxRadius is the half-width, in degrees, of a synthesized bounding box.
const DefaultBoxRadius = 0.01

// Options configure location fallback.
type Options struct {
	// Name is the requested location name, used when no record carries one.
	Name            string
	DefaultLocation *models.LatLng
	BoxRadius       float64
}

// Result is a stitched series. Observed and Forecast are each ascending and
// every Forecast instant is after Boundary, which is at or after the last
// Observed instant.
type Result struct {
	Observed []models.TimePoint
	Forecast []models.TimePoint
	Boundary time.Time
	Identity models.LocationIdentity
	Bounds   models.BoundingBox
}

// Series returns observed points followed by forecast points.
func (r Result) Series() []models.TimePoint {
	out := make([]models.TimePoint, 0, len(r.Observed)+len(r.Forecast))
	out = append(out, r.Observed...)
	return append(out, r.Forecast...)
}

// Stitch filters and merges the two point sets against rng. ok is false when
// nothing survives filtering; callers must treat that as not found rather than
// an empty success.
func Stitch(observed, forecast []source.Point, rng timewindow.Range, opts Options) (res Result, ok bool) {
	obs := filter(observed, func(t time.Time) bool {
		return !t.Before(rng.Start) && !t.After(rng.ObservedUntil())
	})

	boundary := rng.Start
	switch {
	case rng.HasCutover():
		boundary = rng.Cutover
	case len(obs) > 0:
		boundary = obs[len(obs)-1].Time
	}

	fc := filter(forecast, func(t time.Time) bool {
		return t.After(boundary) && !t.After(rng.End)
	})

	if len(obs) == 0 && len(fc) == 0 {
		return Result{}, false
	}

	res = Result{
		Observed: timePoints(obs),
		Forecast: timePoints(fc),
		Boundary: boundary,
	}
	res.Identity, res.Bounds = resolveLocation(obs, fc, opts)
	return res, true
}

// filter keeps points whose instant passes keep, sorted ascending with
// duplicate instants collapsed to the first occurrence.
func filter(points []source.Point, keep func(time.Time) bool) []source.Point {
	out := make([]source.Point, 0, len(points))
	for _, p := range points {
		if keep(p.Time) {
			out = append(out, p)
		}
	}
	source.SortPoints(out)
	deduped := out[:0]
	for i, p := range out {
		if i > 0 && p.Time.Equal(deduped[len(deduped)-1].Time) {
			continue
		}
		deduped = append(deduped, p)
	}
	return deduped
}

func timePoints(points []source.Point) []models.TimePoint {
	out := make([]models.TimePoint, len(points))
	for i, p := range points {
		out[i] = p.TimePoint
	}
	return out
}

// resolveLocation prefers the most recent observation's record, then the
// earliest forecast's record, then the configured default.
func resolveLocation(obs, fc []source.Point, opts Options) (models.LocationIdentity, models.BoundingBox) {
	radius := opts.BoxRadius
	if radius <= 0 {
		radius = DefaultBoxRadius
	}
	fallback := DefaultLocation
	if opts.DefaultLocation != nil {
		fallback = *opts.DefaultLocation
	}

	var candidates []*source.Site
	if len(obs) > 0 {
		candidates = append(candidates, obs[len(obs)-1].Site)
	}
	if len(fc) > 0 {
		candidates = append(candidates, fc[0].Site)
	}

	name := opts.Name
	for _, site := range candidates {
		if site != nil && site.Name != "" {
			name = site.Name
			break
		}
	}

	for _, site := range candidates {
		if site == nil {
			continue
		}
		switch {
		case site.Location != nil && site.Bounds != nil:
			return models.LocationIdentity{Name: name, Location: *site.Location}, *site.Bounds
		case site.Location != nil:
			return models.LocationIdentity{Name: name, Location: *site.Location}, models.BoxAround(*site.Location, radius)
		case site.Bounds != nil:
			return models.LocationIdentity{Name: name, Location: center(*site.Bounds)}, *site.Bounds
		}
	}
	return models.LocationIdentity{Name: name, Location: fallback}, models.BoxAround(fallback, radius)
}

func center(b models.BoundingBox) models.LatLng {
	return models.LatLng{
		Lat: (b.SouthWest.Lat + b.NorthEast.Lat) / 2,
		Lng: (b.SouthWest.Lng + b.NorthEast.Lng) / 2,
	}
}
