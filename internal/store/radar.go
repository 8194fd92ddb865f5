package store

import (
	"sort"
	"strings"

	"github.com/kjstillabower/pumphouse-rainfall-service/internal/source"
)

// narrowRadar applies the in-process half of a RadarQuery to a record the
// backend already selected: marker narrowing by location. Records left with
// no markers for a location query are dropped.
func narrowRadar(rec source.RadarRecord, q RadarQuery) (source.RadarRecord, bool) {
	if strings.TrimSpace(q.Location) == "" {
		return rec, true
	}
	rec = rec.ForLocation(q.Location)
	return rec, len(rec.Markers) > 0
}

// matchesRadar evaluates the whole RadarQuery against rec, for backends
// without a query engine.
func matchesRadar(rec source.RadarRecord, q RadarQuery) bool {
	if !q.Start.IsZero() || !q.End.IsZero() {
		at, err := rec.ScannedAt()
		if err != nil {
			return false
		}
		if !q.Start.IsZero() && at.Before(q.Start) {
			return false
		}
		if !q.End.IsZero() && at.After(q.End) {
			return false
		}
	}
	if q.Station != "" && rec.Location.RadarStation != strings.ToUpper(q.Station) {
		return false
	}
	if q.MinMaxRainRate > 0 && rec.Metadata.MaxRainRate < q.MinMaxRainRate {
		return false
	}
	return true
}

func sortRadar(recs []source.RadarRecord, byMaxRainRate bool) {
	sort.SliceStable(recs, func(i, j int) bool {
		if byMaxRainRate {
			return recs[i].Metadata.MaxRainRate > recs[j].Metadata.MaxRainRate
		}
		return recs[i].Metadata.RadarTime > recs[j].Metadata.RadarTime
	})
}
