// Package radar answers the day-scoped questions about radar scans: the latest
// scan, which pump houses were seen today, today's totals, today's alerts and
// the scans of one radar station.
package radar

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kjstillabower/pumphouse-rainfall-service/internal/source"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/store"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/timewindow"
)

// DefaultAlertRainRate is the rain rate, in mm/h, at which a marker counts as an alert.
const DefaultAlertRainRate = 5.0

// ErrNoRecords is returned by Latest when no scan has been stored.
var ErrNoRecords = errors.New("no radar records")

// Summary aggregates today's scans.
type Summary struct {
	TotalRecords      int      `json:"totalRecords"`
	LocationsWithRain int      `json:"locationsWithRain"`
	MaxRainRate       float64  `json:"maxRainRate"`
	AlertCount        int      `json:"alertCount"`
	PumpHouses        []string `json:"pumpHouses"`
	TotalPumpHouses   int      `json:"totalPumpHouses"`
}

// Service reads radar scans for the current local day.
type Service struct {
	store store.RadarStore
	clock clockwork.Clock
}

// NewService returns a Service. A nil clock uses the real clock.
func NewService(s store.RadarStore, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{store: s, clock: clock}
}

// today is the current local day, midnight through 23:59:59.999.
func (s *Service) today() (time.Time, time.Time) {
	now := s.clock.Now()
	return timewindow.LocalMidnight(now).UTC(), timewindow.EndOfLocalDay(now).UTC()
}

// Latest returns the newest scan regardless of day.
func (s *Service) Latest(ctx context.Context) (*source.RadarRecord, error) {
	rec, err := s.store.LatestRadarRecord(ctx)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNoRecords
	}
	return rec, nil
}

// Today returns today's scans, newest first.
func (s *Service) Today(ctx context.Context) ([]source.RadarRecord, error) {
	start, end := s.today()
	return s.store.RadarRecords(ctx, store.RadarQuery{Start: start, End: end})
}

// OnDate returns the scans of one local calendar day, newest first.
func (s *Service) OnDate(ctx context.Context, day time.Time) ([]source.RadarRecord, error) {
	return s.store.RadarRecords(ctx, store.RadarQuery{
		Start: timewindow.LocalMidnight(day).UTC(),
		End:   timewindow.EndOfLocalDay(day).UTC(),
	})
}

// PumpHouseToday returns today's scans that saw name, each narrowed to the matching markers.
func (s *Service) PumpHouseToday(ctx context.Context, name string) ([]source.RadarRecord, error) {
	start, end := s.today()
	return s.store.RadarRecords(ctx, store.RadarQuery{Start: start, End: end, Location: name})
}

// PumpHousesToday lists the distinct marker names seen today, sorted.
func (s *Service) PumpHousesToday(ctx context.Context) ([]string, error) {
	recs, err := s.Today(ctx)
	if err != nil {
		return nil, err
	}
	return markerNames(recs), nil
}

// SummaryToday sums rain locations and alerts over today's scans and keeps the peak rain rate.
func (s *Service) SummaryToday(ctx context.Context) (Summary, error) {
	recs, err := s.Today(ctx)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{TotalRecords: len(recs), PumpHouses: markerNames(recs)}
	for _, r := range recs {
		sum.LocationsWithRain += r.Metadata.LocationsWithRain
		sum.AlertCount += r.Metadata.AlertCount
		if r.Metadata.MaxRainRate > sum.MaxRainRate {
			sum.MaxRainRate = r.Metadata.MaxRainRate
		}
	}
	sum.TotalPumpHouses = len(sum.PumpHouses)
	return sum, nil
}

// AlertsToday returns today's scans whose peak rain rate reached minRainRate,
// heaviest first, each keeping only markers at or above it. A non-positive
// minRainRate means DefaultAlertRainRate.
func (s *Service) AlertsToday(ctx context.Context, minRainRate float64) ([]source.RadarRecord, error) {
	if minRainRate <= 0 {
		minRainRate = DefaultAlertRainRate
	}
	start, end := s.today()
	recs, err := s.store.RadarRecords(ctx, store.RadarQuery{
		Start:          start,
		End:            end,
		MinMaxRainRate: minRainRate,
		ByMaxRainRate:  true,
	})
	if err != nil {
		return nil, err
	}
	out := make([]source.RadarRecord, len(recs))
	for i, r := range recs {
		out[i] = r.WithMinRainRate(minRainRate)
	}
	return out, nil
}

// StationToday returns today's scans from one radar station, newest first.
func (s *Service) StationToday(ctx context.Context, station string) ([]source.RadarRecord, error) {
	start, end := s.today()
	return s.store.RadarRecords(ctx, store.RadarQuery{
		Start:   start,
		End:     end,
		Station: strings.ToUpper(strings.TrimSpace(station)),
	})
}

func markerNames(recs []source.RadarRecord) []string {
	seen := make(map[string]struct{})
	for _, r := range recs {
		for _, m := range r.Markers {
			seen[m.Name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
