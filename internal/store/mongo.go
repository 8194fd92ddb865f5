package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/kjstillabower/pumphouse-rainfall-service/internal/source"
)

// MongoConfig holds connection settings for the two databases. Empty
// collection names fall back to DefaultRadarCollection and DefaultNowcastCollection.
type MongoConfig struct {
	URI               string
	ObservationDB     string
	ForecastDB        string
	RadarCollection   string
	NowcastCollection string
	ConnectTimeout    time.Duration
	SocketTimeout     time.Duration
}

// Mongo reads observation day buckets and forecast runs from MongoDB, one
// collection per location in each database. Radar scans and nowcast runs
// live in two shared collections of the observation database.
type Mongo struct {
	client        *mongo.Client
	observationDB *mongo.Database
	forecastDB    *mongo.Database
	radar         *mongo.Collection
	nowcasts      *mongo.Collection
}

// ConnectMongo opens a client and verifies it with a ping.
func ConnectMongo(ctx context.Context, cfg MongoConfig) (*Mongo, error) {
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.ConnectTimeout > 0 {
		opts.SetServerSelectionTimeout(cfg.ConnectTimeout).SetConnectTimeout(cfg.ConnectTimeout)
	}
	if cfg.SocketTimeout > 0 {
		opts.SetSocketTimeout(cfg.SocketTimeout)
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	m := NewMongo(client, cfg.ObservationDB, cfg.ForecastDB).WithCollections(cfg.RadarCollection, cfg.NowcastCollection)
	if err := m.Ping(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return m, nil
}

// NewMongo wraps an existing client using the default shared collection names.
func NewMongo(client *mongo.Client, observationDB, forecastDB string) *Mongo {
	obs := client.Database(observationDB)
	return &Mongo{
		client:        client,
		observationDB: obs,
		forecastDB:    client.Database(forecastDB),
		radar:         obs.Collection(DefaultRadarCollection),
		nowcasts:      obs.Collection(DefaultNowcastCollection),
	}
}

// WithCollections overrides the radar and nowcast collection names. Empty names keep the current one.
func (m *Mongo) WithCollections(radar, nowcast string) *Mongo {
	if radar != "" {
		m.radar = m.observationDB.Collection(radar)
	}
	if nowcast != "" {
		m.nowcasts = m.observationDB.Collection(nowcast)
	}
	return m
}

// DayBuckets implements ObservationStore. The name filter runs server-side as a
// regex built by source.NamePattern and again in process with source.MatchesName.
func (m *Mongo) DayBuckets(ctx context.Context, location string, dayKeys []string) ([]source.DayBucket, error) {
	if len(dayKeys) == 0 {
		return nil, nil
	}
	filter := bson.M{"date": bson.M{"$in": dayKeys}}
	if pattern := source.NamePattern(location); pattern != "" {
		filter["$or"] = bson.A{
			bson.M{"name": primitive.Regex{Pattern: pattern, Options: "i"}},
			bson.M{"name": bson.M{"$exists": false}},
			bson.M{"name": ""},
		}
	}
	coll := m.observationDB.Collection(source.CollectionName(location))
	cur, err := coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "date", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find day buckets in %s: %w", coll.Name(), err)
	}
	var docs []source.DayBucket
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode day buckets from %s: %w", coll.Name(), err)
	}
	out := docs[:0]
	for _, d := range docs {
		if source.MatchesName(d.Name, location) {
			out = append(out, d)
		}
	}
	return out, nil
}

// LatestForecast implements ForecastStore.
func (m *Mongo) LatestForecast(ctx context.Context, location string) (*source.ForecastRun, error) {
	coll := m.forecastDB.Collection(source.ForecastCollectionName(location))
	var run source.ForecastRun
	err := coll.FindOne(ctx, bson.M{}, options.FindOne().SetSort(bson.D{{Key: "fetchedAt", Value: -1}})).Decode(&run)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find latest forecast in %s: %w", coll.Name(), err)
	}
	return &run, nil
}

// RadarRecords implements RadarStore. The name filter runs server-side against
// markers.name and again in process, where non-matching markers are dropped.
func (m *Mongo) RadarRecords(ctx context.Context, q RadarQuery) ([]source.RadarRecord, error) {
	filter := bson.M{}
	if !q.Start.IsZero() || !q.End.IsZero() {
		span := bson.M{}
		if !q.Start.IsZero() {
			span["$gte"] = source.FormatRadarTime(q.Start)
		}
		if !q.End.IsZero() {
			span["$lte"] = source.FormatRadarTime(q.End)
		}
		filter["metadata.radarTime"] = span
	}
	if pattern := source.NamePattern(q.Location); pattern != "" {
		filter["markers.name"] = primitive.Regex{Pattern: pattern, Options: "i"}
	}
	if q.Station != "" {
		filter["location.radarStation"] = strings.ToUpper(q.Station)
	}
	if q.MinMaxRainRate > 0 {
		filter["metadata.maxRainRate"] = bson.M{"$gte": q.MinMaxRainRate}
	}
	sortKey := "metadata.radarTime"
	if q.ByMaxRainRate {
		sortKey = "metadata.maxRainRate"
	}

	cur, err := m.radar.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: sortKey, Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("find radar records in %s: %w", m.radar.Name(), err)
	}
	var docs []source.RadarRecord
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode radar records from %s: %w", m.radar.Name(), err)
	}
	out := docs[:0]
	for _, d := range docs {
		if d, ok := narrowRadar(d, q); ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// LatestRadarRecord implements RadarStore.
func (m *Mongo) LatestRadarRecord(ctx context.Context) (*source.RadarRecord, error) {
	var rec source.RadarRecord
	err := m.radar.FindOne(ctx, bson.M{}, options.FindOne().SetSort(bson.D{{Key: "metadata.radarTime", Value: -1}})).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find latest radar record in %s: %w", m.radar.Name(), err)
	}
	return &rec, nil
}

// LatestNowcast implements ForecastStore. Every run covers all pump houses, so
// the newest run is read whole and narrowed in process.
func (m *Mongo) LatestNowcast(ctx context.Context, location string) (*source.Nowcast, error) {
	var run source.Nowcast
	err := m.nowcasts.FindOne(ctx, bson.M{}, options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})).Decode(&run)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find latest nowcast in %s: %w", m.nowcasts.Name(), err)
	}
	narrowed := run.ForLocation(location)
	return &narrowed, nil
}

// Locations implements ObservationStore by listing observation collections.
// A collection is reported under the name stored on its most recent day
// bucket when one is present, otherwise under the collection name.
func (m *Mongo) Locations(ctx context.Context) ([]string, error) {
	colls, err := m.observationDB.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list observation collections: %w", err)
	}
	out := make([]string, 0, len(colls))
	for _, c := range colls {
		if strings.HasPrefix(c, "system.") || c == m.radar.Name() || c == m.nowcasts.Name() {
			continue
		}
		name, err := m.storedName(ctx, c)
		if err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Mongo) storedName(ctx context.Context, coll string) (string, error) {
	var doc struct {
		Name string `bson:"name"`
	}
	err := m.observationDB.Collection(coll).FindOne(ctx,
		bson.M{"name": bson.M{"$exists": true, "$ne": ""}},
		options.FindOne().SetSort(bson.D{{Key: "date", Value: -1}}).SetProjection(bson.M{"name": 1}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return coll, nil
	}
	if err != nil {
		return "", fmt.Errorf("read stored name from %s: %w", coll, err)
	}
	return doc.Name, nil
}

// Ping implements Pinger.
func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client. Call during shutdown.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
