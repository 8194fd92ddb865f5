package source

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/pumphouse-rainfall-service/internal/models"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/timewindow"
)

// radarTimeLayout is the UTC millisecond layout radar scans are stamped with.
// Fixed width keeps string range filters in the store ordered like instants.
const radarTimeLayout = "2006-01-02T15:04:05.000Z"

// FormatRadarTime renders t the way metadata.radarTime is stored.
func FormatRadarTime(t time.Time) string {
	return t.UTC().Format(radarTimeLayout)
}

// RadarMarker is one pump house detected on a radar scan.
type RadarMarker struct {
	Lat       float64 `bson:"lat" json:"lat"`
	Lng       float64 `bson:"lng" json:"lng"`
	Name      string  `bson:"name" json:"name"`
	Time      string  `bson:"time" json:"time"`
	ID        string  `bson:"id" json:"id"`
	DBZ       float64 `bson:"dbz" json:"dbz"`
	RainRate  float64 `bson:"rainRate" json:"rainRate"`
	Intensity string  `bson:"intensity" json:"intensity"`
}

// RadarStation identifies the radar that produced a scan.
type RadarStation struct {
	Type          string    `bson:"type,omitempty" json:"type,omitempty"`
	RadarStation  string    `bson:"radarStation" json:"radarStation"`
	RadarImage    string    `bson:"radarImage,omitempty" json:"radarImage,omitempty"`
	RadarImageURL string    `bson:"radarImageUrl,omitempty" json:"radarImageUrl,omitempty"`
	Screenshot    string    `bson:"screenshot,omitempty" json:"screenshot,omitempty"`
	Coordinates   []float64 `bson:"coordinates,omitempty" json:"coordinates,omitempty"`
}

// RadarMetadata holds the per-scan aggregates written by the radar pipeline.
type RadarMetadata struct {
	RadarTime         string  `bson:"radarTime" json:"radarTime"`
	TotalDetected     int     `bson:"totalDetected" json:"totalDetected"`
	LocationsWithRain int     `bson:"locationsWithRain" json:"locationsWithRain"`
	MaxRainRate       float64 `bson:"maxRainRate" json:"maxRainRate"`
	AlertCount        int     `bson:"alertCount" json:"alertCount"`
	HasScreenshot     bool    `bson:"hasScreenshot" json:"hasScreenshot"`
	IsAutoDetected    bool    `bson:"isAutoDetected" json:"isAutoDetected"`
	IsAlert           bool    `bson:"isAlert" json:"isAlert"`
}

// RadarRecord is one radar scan: every pump house marker it detected plus the
// scan's coverage bounds.
type RadarRecord struct {
	Location  RadarStation  `bson:"location" json:"location"`
	Markers   []RadarMarker `bson:"markers" json:"markers"`
	Bounds    *BoundsDoc    `bson:"bounds,omitempty" json:"bounds,omitempty"`
	Notes     string        `bson:"notes,omitempty" json:"notes,omitempty"`
	Metadata  RadarMetadata `bson:"metadata" json:"metadata"`
	CreatedAt time.Time     `bson:"createdAt,omitempty" json:"createdAt,omitempty"`
}

// Kind implements Record.
func (r RadarRecord) Kind() Kind { return KindMarker }

// ScannedAt parses metadata.radarTime.
func (r RadarRecord) ScannedAt() (time.Time, error) {
	if strings.TrimSpace(r.Metadata.RadarTime) == "" {
		return time.Time{}, fmt.Errorf("%w: radar record has no radarTime", ErrMalformedRecord)
	}
	return ParseStoredTime(r.Metadata.RadarTime)
}

// ForLocation returns a copy holding only the markers whose name matches location.
func (r RadarRecord) ForLocation(location string) RadarRecord {
	out := r
	out.Markers = make([]RadarMarker, 0, len(r.Markers))
	for _, m := range r.Markers {
		if MatchesName(m.Name, location) {
			out.Markers = append(out.Markers, m)
		}
	}
	return out
}

// WithMinRainRate returns a copy holding only markers at or above minRate.
func (r RadarRecord) WithMinRainRate(minRate float64) RadarRecord {
	out := r
	out.Markers = make([]RadarMarker, 0, len(r.Markers))
	for _, m := range r.Markers {
		if m.RainRate >= minRate {
			out.Markers = append(out.Markers, m)
		}
	}
	return out
}

// Points emits one point per marker, valued at its rain rate. A marker's own
// time wins; a bare clock time is placed on the scan's local day, and a marker
// without a usable time falls back to the scan instant. Markers with neither
// are skipped and counted.
func (r RadarRecord) Points() ([]Point, int, error) {
	scanned, scanErr := r.ScannedAt()
	bounds := boundingBox(r.Bounds)
	points := make([]Point, 0, len(r.Markers))
	skipped := 0
	for _, m := range r.Markers {
		at, err := markerTime(m.Time, scanned, scanErr)
		if err != nil {
			skipped++
			continue
		}
		site := &Site{Name: m.Name, Bounds: bounds}
		if m.Lat != 0 || m.Lng != 0 {
			site.Location = &models.LatLng{Lat: m.Lat, Lng: m.Lng}
		}
		points = append(points, Point{
			TimePoint: models.TimePoint{Time: at, Value: m.RainRate},
			Site:      site,
		})
	}
	SortPoints(points)
	return points, skipped, nil
}

var clockLayouts = []string{"15:04", "15:04:05"}

func markerTime(s string, scanned time.Time, scanErr error) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s != "" {
		if t, err := ParseStoredTime(s); err == nil {
			return t, nil
		}
		if scanErr == nil {
			day := timewindow.LocalMidnight(scanned)
			for _, layout := range clockLayouts {
				if c, err := time.Parse(layout, s); err == nil {
					return day.Add(time.Duration(c.Hour())*time.Hour +
						time.Duration(c.Minute())*time.Minute +
						time.Duration(c.Second())*time.Second).UTC(), nil
				}
			}
		}
	}
	if scanErr != nil {
		return time.Time{}, scanErr
	}
	return scanned, nil
}

// NowcastEntry is one pump house in a nowcast horizon.
type NowcastEntry struct {
	Name       string  `bson:"name" json:"name"`
	Lat        float64 `bson:"lat" json:"lat"`
	Lng        float64 `bson:"lng" json:"lng"`
	RainRate   float64 `bson:"rain_rate" json:"rain_rate"`
	Intensity  string  `bson:"intensity" json:"intensity"`
	Confidence float64 `bson:"confidence" json:"confidence"`
	PixelX     int     `bson:"pixel_x" json:"pixel_x"`
	PixelY     int     `bson:"pixel_y" json:"pixel_y"`
	DBZ        float64 `bson:"dbz" json:"dbz"`
}

// Nowcast is one radar extrapolation run. Predictions is keyed by the horizon
// in minutes after the run was created ("10", "20", ...).
type Nowcast struct {
	Timestamp   string                    `bson:"timestamp" json:"timestamp"`
	TaskID      string                    `bson:"task_id" json:"task_id"`
	CreatedAt   time.Time                 `bson:"createdAt" json:"createdAt"`
	Predictions map[string][]NowcastEntry `bson:"predictions" json:"predictions"`
}

// Kind implements Record.
func (n Nowcast) Kind() Kind { return KindOffsetKeyed }

// Anchor is the instant horizons count from: createdAt, else the WIB timestamp string.
func (n Nowcast) Anchor() (time.Time, error) {
	if !n.CreatedAt.IsZero() {
		return n.CreatedAt.UTC(), nil
	}
	if strings.TrimSpace(n.Timestamp) == "" {
		return time.Time{}, fmt.Errorf("%w: nowcast %q has neither createdAt nor timestamp", ErrMalformedRecord, n.TaskID)
	}
	return ParseStoredTime(n.Timestamp)
}

// ForLocation returns a copy holding only entries whose name matches location.
// Horizons left empty are dropped.
func (n Nowcast) ForLocation(location string) Nowcast {
	out := n
	out.Predictions = make(map[string][]NowcastEntry, len(n.Predictions))
	for key, entries := range n.Predictions {
		var kept []NowcastEntry
		for _, e := range entries {
			if MatchesName(e.Name, location) {
				kept = append(kept, e)
			}
		}
		if len(kept) > 0 {
			out.Predictions[key] = kept
		}
	}
	return out
}

// Points anchors every entry at Anchor plus its horizon. Entries under a key
// that is not a whole number of minutes are skipped and counted. A run with
// entries but no anchor is malformed.
func (n Nowcast) Points() ([]Point, int, error) {
	total := 0
	for _, entries := range n.Predictions {
		total += len(entries)
	}
	if total == 0 {
		return nil, 0, nil
	}
	anchor, err := n.Anchor()
	if err != nil {
		return nil, 0, err
	}

	keys := make([]string, 0, len(n.Predictions))
	for k := range n.Predictions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	points := make([]Point, 0, total)
	skipped := 0
	for _, key := range keys {
		entries := n.Predictions[key]
		minutes, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			skipped += len(entries)
			continue
		}
		at := anchor.Add(time.Duration(minutes) * time.Minute)
		for _, e := range entries {
			site := &Site{Name: e.Name}
			if e.Lat != 0 || e.Lng != 0 {
				site.Location = &models.LatLng{Lat: e.Lat, Lng: e.Lng}
			}
			points = append(points, Point{
				TimePoint: models.TimePoint{Time: at, Value: e.RainRate},
				Site:      site,
			})
		}
	}
	SortPoints(points)
	return points, skipped, nil
}
