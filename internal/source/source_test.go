package source

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Pompa Ancol", want: "pompaancol"},
		{in: "  POMPA-ANCOL (Utara) ", want: "pompaancolutara"},
		{in: "Pluit 2", want: "pluit2"},
		{in: "---", want: ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, NormalizeName(tc.in), "NormalizeName(%q)", tc.in)
	}
}

func TestMatchesName_AndPatternAgree(t *testing.T) {
	stored := []string{"Rumah Pompa Ancol", "POMPA-ANCOL", "Ancol Barat", "Pluit", "Sunter Utara (Kali)"}
	queries := []string{"ancol", "Pompa Ancol", "kali", "sunter-utara", "pluit", "grogol"}

	for _, q := range queries {
		re := regexp.MustCompile("(?i)" + NamePattern(q))
		for _, s := range stored {
			assert.Equal(t, MatchesName(s, q), re.MatchString(s), "query %q stored %q", q, s)
		}
	}
	assert.True(t, MatchesName("", "anything"))
}

func TestCollectionName(t *testing.T) {
	assert.Equal(t, "pompa_ancol", CollectionName("Pompa Ancol"))
	assert.Equal(t, "pompa_ancol_utara_", CollectionName("Pompa  Ancol (Utara)"))
	assert.Equal(t, "prediction_pompa_ancol", ForecastCollectionName("Pompa Ancol"))
}

func TestDayKeys_PadsAndUsesLocalDates(t *testing.T) {
	// 2025-01-14T17:00Z is local midnight of 2025-01-15.
	start := time.Date(2025, 1, 14, 17, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 15, 16, 59, 59, 0, time.UTC)
	assert.Equal(t, []string{"2025-01-14", "2025-01-15", "2025-01-16"}, DayKeys(start, end))

	// Crossing month and leap day.
	start = time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC)
	end = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, []string{"2024-02-27", "2024-02-28", "2024-02-29", "2024-03-01", "2024-03-02"}, DayKeys(start, end))
}

func TestParseStoredTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{in: "2025-01-15T08:00", want: time.Date(2025, 1, 15, 1, 0, 0, 0, time.UTC)},
		{in: "2025-01-15 08:00", want: time.Date(2025, 1, 15, 1, 0, 0, 0, time.UTC)},
		{in: "2025-01-15T00:30:00", want: time.Date(2025, 1, 14, 17, 30, 0, 0, time.UTC)},
		{in: "2025-01-15T08:00:00Z", want: time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)},
		{in: "2025-01-15T08:00:00+07:00", want: time.Date(2025, 1, 15, 1, 0, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		got, err := ParseStoredTime(tc.in)
		require.NoError(t, err, tc.in)
		assert.True(t, tc.want.Equal(got), "%s -> %s, want %s", tc.in, got, tc.want)
	}

	_, err := ParseStoredTime("yesterday")
	assert.True(t, errors.Is(err, ErrMalformedRecord))
}

func TestDayBucket_Points(t *testing.T) {
	b := DayBucket{
		Date:   "2025-01-15",
		Name:   "Pompa Ancol",
		Lat:    f64(-6.12),
		Lng:    f64(106.83),
		Bounds: &BoundsDoc{SW: []float64{-6.2, 106.7}, NE: []float64{-6.0, 106.9}},
		Hourly: map[string]HourEntry{
			"12": {Time: "2025-01-15T12:00", Rain: f64(12)},
			"08": {Time: "2025-01-15T08:00", Rain: f64(3)},
			"09": {Time: "2025-01-15T09:00"},
			"xx": {Time: "garbage", Rain: f64(1)},
			"yy": {},
		},
	}

	pts, skipped, err := b.Points()
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, pts, 3)
	assert.Equal(t, time.Date(2025, 1, 15, 1, 0, 0, 0, time.UTC), pts[0].Time)
	assert.Equal(t, 3.0, pts[0].Value)
	assert.Equal(t, 0.0, pts[1].Value, "missing rain reads as zero")
	assert.Equal(t, 12.0, pts[2].Value)

	require.NotNil(t, pts[0].Site.Location)
	assert.Equal(t, -6.12, pts[0].Site.Location.Lat)
	require.NotNil(t, pts[0].Site.Bounds)
	assert.Equal(t, 106.9, pts[0].Site.Bounds.NorthEast.Lng)
	assert.Equal(t, KindDayKeyed, b.Kind())
}

func TestDayBucket_PrecipitationStandsInForMissingRain(t *testing.T) {
	b := DayBucket{Hourly: map[string]HourEntry{
		"08": {Time: "2025-01-15T08:00", Precipitation: f64(1.5)},
		"09": {Time: "2025-01-15T09:00", Rain: f64(0), Precipitation: f64(4)},
		"10": {Time: "2025-01-15T10:00", Rain: f64(2), Precipitation: f64(9)},
	}}

	pts, _, err := b.Points()
	require.NoError(t, err)
	require.Len(t, pts, 3)
	assert.Equal(t, 1.5, pts[0].Value)
	assert.Equal(t, 0.0, pts[1].Value, "a stored zero rain is not missing")
	assert.Equal(t, 2.0, pts[2].Value)
}

func TestForecastRun_Points(t *testing.T) {
	anchor := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

	t.Run("time strings are local wall clock", func(t *testing.T) {
		run := ForecastRun{PumpLat: f64(-6.1), PumpLng: f64(106.8), Hourly: ForecastSeries{
			Time: []string{"2025-01-15T18:00", "2025-01-15T17:00"}, Rain: []float64{5, 1},
		}}
		pts, _, err := run.Points()
		require.NoError(t, err)
		require.Len(t, pts, 2)
		assert.Equal(t, anchor, pts[0].Time, "sorted ascending")
		assert.Equal(t, 1.0, pts[0].Value)
		require.NotNil(t, pts[0].Site.Location)
		assert.Equal(t, KindIndexedArray, run.Kind())
	})

	t.Run("unpaired and unreadable times are skipped", func(t *testing.T) {
		run := ForecastRun{FetchedAt: anchor, Hourly: ForecastSeries{
			Time: []string{"2025-01-15T18:00", "soon"}, Rain: []float64{1, 2, 3},
		}}
		pts, skipped, err := run.Points()
		require.NoError(t, err)
		assert.Equal(t, 2, skipped)
		require.Len(t, pts, 1)
	})

	t.Run("values without times are malformed", func(t *testing.T) {
		run := ForecastRun{FetchedAt: anchor, Hourly: ForecastSeries{Rain: []float64{1}}}
		_, _, err := run.Points()
		assert.True(t, errors.Is(err, ErrMalformedRecord))
	})

	t.Run("zero coordinates are treated as absent", func(t *testing.T) {
		run := ForecastRun{PumpLat: f64(0), PumpLng: f64(0), Hourly: ForecastSeries{
			Time: []string{"2025-01-15T18:00"}, Rain: []float64{1},
		}}
		pts, _, err := run.Points()
		require.NoError(t, err)
		assert.Nil(t, pts[0].Site.Location)
	})
}

func TestFlatten_MergesBucketsAscending(t *testing.T) {
	buckets := []DayBucket{
		{Date: "2025-01-16", Hourly: map[string]HourEntry{"00": {Time: "2025-01-16T00:00", Rain: f64(1)}}},
		{Date: "2025-01-15", Hourly: map[string]HourEntry{"23": {Time: "2025-01-15T23:00", Rain: f64(2)}}},
	}
	pts, skipped, err := Flatten(buckets)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, pts, 2)
	assert.Equal(t, 2.0, pts[0].Value)
	assert.Equal(t, 1.0, pts[1].Value)
}
