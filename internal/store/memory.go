package store

import (
	"context"
	"sort"
	"sync"

	"github.com/kjstillabower/pumphouse-rainfall-service/internal/source"
)

// Memory is an in-process ObservationStore and ForecastStore keyed by the same
// collection names the Mongo adapter uses. Used by tests and local runs.
type Memory struct {
	mu           sync.RWMutex
	observations map[string][]source.DayBucket
	forecasts    map[string][]source.ForecastRun
	radar        []source.RadarRecord
	nowcasts     []source.Nowcast
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		observations: make(map[string][]source.DayBucket),
		forecasts:    make(map[string][]source.ForecastRun),
	}
}

// AddRadarRecord stores a radar scan. Scans are shared by every location.
func (m *Memory) AddRadarRecord(r source.RadarRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.radar = append(m.radar, r)
}

// AddNowcast stores a nowcast run. Runs are shared by every location.
func (m *Memory) AddNowcast(n source.Nowcast) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nowcasts = append(m.nowcasts, n)
}

// AddDayBucket stores an observation day bucket under the location's collection.
func (m *Memory) AddDayBucket(location string, b source.DayBucket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll := source.CollectionName(location)
	m.observations[coll] = append(m.observations[coll], b)
}

// AddForecastRun stores a forecast run under the location's forecast collection.
func (m *Memory) AddForecastRun(location string, r source.ForecastRun) {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll := source.ForecastCollectionName(location)
	m.forecasts[coll] = append(m.forecasts[coll], r)
}

// DayBuckets implements ObservationStore.
func (m *Memory) DayBuckets(ctx context.Context, location string, dayKeys []string) ([]source.DayBucket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	keys := make(map[string]struct{}, len(dayKeys))
	for _, k := range dayKeys {
		keys[k] = struct{}{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []source.DayBucket
	for _, b := range m.observations[source.CollectionName(location)] {
		if _, ok := keys[b.Date]; !ok {
			continue
		}
		if !source.MatchesName(b.Name, location) {
			continue
		}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// LatestForecast implements ForecastStore.
func (m *Memory) LatestForecast(ctx context.Context, location string) (*source.ForecastRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	runs := m.forecasts[source.ForecastCollectionName(location)]
	if len(runs) == 0 {
		return nil, nil
	}
	latest := runs[0]
	for _, r := range runs[1:] {
		if r.FetchedAt.After(latest.FetchedAt) {
			latest = r
		}
	}
	return &latest, nil
}

// RadarRecords implements RadarStore.
func (m *Memory) RadarRecords(ctx context.Context, q RadarQuery) ([]source.RadarRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []source.RadarRecord
	for _, r := range m.radar {
		if !matchesRadar(r, q) {
			continue
		}
		if r, ok := narrowRadar(r, q); ok {
			out = append(out, r)
		}
	}
	sortRadar(out, q.ByMaxRainRate)
	return out, nil
}

// LatestRadarRecord implements RadarStore.
func (m *Memory) LatestRadarRecord(ctx context.Context) (*source.RadarRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.radar) == 0 {
		return nil, nil
	}
	latest := m.radar[0]
	for _, r := range m.radar[1:] {
		if r.Metadata.RadarTime > latest.Metadata.RadarTime {
			latest = r
		}
	}
	return &latest, nil
}

// LatestNowcast implements ForecastStore.
func (m *Memory) LatestNowcast(ctx context.Context, location string) (*source.Nowcast, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.nowcasts) == 0 {
		return nil, nil
	}
	latest := m.nowcasts[0]
	for _, n := range m.nowcasts[1:] {
		if n.CreatedAt.After(latest.CreatedAt) {
			latest = n
		}
	}
	narrowed := latest.ForLocation(location)
	return &narrowed, nil
}

// Locations implements ObservationStore, reporting each collection under the
// name on its latest named day bucket.
func (m *Memory) Locations(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.observations))
	for coll, buckets := range m.observations {
		name, latest := coll, ""
		for _, b := range buckets {
			if b.Name != "" && b.Date >= latest {
				name, latest = b.Name, b.Date
			}
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// Ping implements Pinger.
func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}
