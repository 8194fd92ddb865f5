//go:build integration

package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/pumphouse-rainfall-service/internal/source"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/store"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/testhelpers"
)

func ptr(v float64) *float64 { return &v }

func TestMongo_ObservationAndForecastLookups(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	client := testhelpers.MongoClient(ctx, t)
	suffix := fmt.Sprintf("%d", time.Now().UnixNano())
	obsDB := "rain_obs_" + suffix
	fcDB := "rain_fc_" + suffix
	t.Cleanup(func() {
		_ = client.Database(obsDB).Drop(context.Background())
		_ = client.Database(fcDB).Drop(context.Background())
	})

	obsColl := client.Database(obsDB).Collection(source.CollectionName("Pompa Ancol"))
	_, err := obsColl.InsertMany(ctx, []interface{}{
		source.DayBucket{Date: "2025-01-14", Name: "Pompa Ancol", Hourly: map[string]source.HourEntry{
			"23": {Time: "2025-01-14T23:00", Rain: ptr(0.4)},
		}},
		source.DayBucket{Date: "2025-01-15", Name: "POMPA-ANCOL", Lat: ptr(-6.12), Lng: ptr(106.83)},
		source.DayBucket{Date: "2025-01-15", Name: "Pompa Pluit"},
		source.DayBucket{Date: "2025-01-16"},
		source.DayBucket{Date: "2025-02-01", Name: "Pompa Ancol"},
	})
	require.NoError(t, err)

	fcColl := client.Database(fcDB).Collection(source.ForecastCollectionName("Pompa Ancol"))
	base := time.Date(2025, 1, 15, 3, 0, 0, 0, time.UTC)
	_, err = fcColl.InsertMany(ctx, []interface{}{
		source.ForecastRun{PumpName: "old", FetchedAt: base.Add(-time.Hour)},
		source.ForecastRun{PumpName: "new", FetchedAt: base, Hourly: source.ForecastSeries{
			Time: []string{"2025-01-15T11:00"}, Rain: []float64{6.0},
		}},
	})
	require.NoError(t, err)

	m := store.NewMongo(client, obsDB, fcDB)
	require.NoError(t, m.Ping(ctx))

	buckets, err := m.DayBuckets(ctx, "pompa ancol", []string{"2025-01-14", "2025-01-15", "2025-01-16"})
	require.NoError(t, err)
	require.Len(t, buckets, 3)
	assert.Equal(t, "2025-01-14", buckets[0].Date)
	assert.InDelta(t, 0.4, *buckets[0].Hourly["23"].Rain, 1e-9)

	run, err := m.LatestForecast(ctx, "Pompa Ancol")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "new", run.PumpName)
	assert.Equal(t, []float64{6.0}, run.Hourly.Rain)

	missing, err := m.LatestForecast(ctx, "Unknown Pump")
	require.NoError(t, err)
	assert.Nil(t, missing)

	locs, err := m.Locations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Pompa Ancol"}, locs)
}

func TestMongo_RadarAndNowcastLookups(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	client := testhelpers.MongoClient(ctx, t)
	obsDB := fmt.Sprintf("rain_radar_%d", time.Now().UnixNano())
	t.Cleanup(func() { _ = client.Database(obsDB).Drop(context.Background()) })

	radar := client.Database(obsDB).Collection(store.DefaultRadarCollection)
	_, err := radar.InsertMany(ctx, []interface{}{
		source.RadarRecord{
			Location: source.RadarStation{RadarStation: "JAK"},
			Markers:  []source.RadarMarker{{Name: "Rumah Pompa Ancol", RainRate: 7}, {Name: "Pompa Pluit", RainRate: 1}},
			Metadata: source.RadarMetadata{RadarTime: "2025-01-15T03:00:00.000Z", MaxRainRate: 7},
		},
		source.RadarRecord{
			Location: source.RadarStation{RadarStation: "JAK"},
			Markers:  []source.RadarMarker{{Name: "Pompa Pluit", RainRate: 2}},
			Metadata: source.RadarMetadata{RadarTime: "2025-01-15T04:00:00.000Z", MaxRainRate: 2},
		},
		source.RadarRecord{
			Location: source.RadarStation{RadarStation: "JAK"},
			Markers:  []source.RadarMarker{{Name: "Pompa Ancol", RainRate: 4}},
			Metadata: source.RadarMetadata{RadarTime: "2025-01-13T03:00:00.000Z", MaxRainRate: 4},
		},
	})
	require.NoError(t, err)

	nowcasts := client.Database(obsDB).Collection(store.DefaultNowcastCollection)
	created := time.Date(2025, 1, 15, 3, 0, 0, 0, time.UTC)
	_, err = nowcasts.InsertMany(ctx, []interface{}{
		source.Nowcast{TaskID: "old", CreatedAt: created.Add(-10 * time.Minute)},
		source.Nowcast{TaskID: "new", CreatedAt: created, Predictions: map[string][]source.NowcastEntry{
			"10": {{Name: "Rumah Pompa Ancol", Lat: -6.12, Lng: 106.83, RainRate: 3}, {Name: "Pompa Pluit", RainRate: 5}},
		}},
	})
	require.NoError(t, err)

	m := store.NewMongo(client, obsDB, obsDB)

	recs, err := m.RadarRecords(ctx, store.RadarQuery{
		Start:    time.Date(2025, 1, 14, 17, 0, 0, 0, time.UTC),
		End:      time.Date(2025, 1, 15, 16, 59, 59, 999e6, time.UTC),
		Location: "pompa ancol",
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Len(t, recs[0].Markers, 1)
	assert.Equal(t, "Rumah Pompa Ancol", recs[0].Markers[0].Name)

	latest, err := m.LatestRadarRecord(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "2025-01-15T04:00:00.000Z", latest.Metadata.RadarTime)

	run, err := m.LatestNowcast(ctx, "Pompa Ancol")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "new", run.TaskID)
	require.Len(t, run.Predictions["10"], 1)

	locs, err := m.Locations(ctx)
	require.NoError(t, err)
	assert.Empty(t, locs, "shared radar collections are not locations")
}
