package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/kjstillabower/pumphouse-rainfall-service/internal/observability"
)

// Cache backend names, also used as the cacheType metric label.
const (
	CacheBackendInMemory  = "in_memory"
	CacheBackendMemcached = "memcached"
)

const catalogKey = "rainfall:locations"

// CatalogCache stores the location catalog. Get returns (nil, false, nil) on a miss.
type CatalogCache interface {
	Get(ctx context.Context) ([]string, bool, error)
	Set(ctx context.Context, locations []string, ttl time.Duration) error
}

// InMemoryCatalogCache keeps the catalog in a process-local go-cache.
type InMemoryCatalogCache struct {
	c *gocache.Cache
}

// NewInMemoryCatalogCache returns a cache whose expired entries are swept every cleanup interval.
func NewInMemoryCatalogCache(cleanup time.Duration) *InMemoryCatalogCache {
	return &InMemoryCatalogCache{c: gocache.New(gocache.NoExpiration, cleanup)}
}

// Get implements CatalogCache.
func (c *InMemoryCatalogCache) Get(ctx context.Context) ([]string, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	v, ok := c.c.Get(catalogKey)
	if !ok {
		return nil, false, nil
	}
	locs, _ := v.([]string)
	return append([]string(nil), locs...), true, nil
}

// Set implements CatalogCache.
func (c *InMemoryCatalogCache) Set(ctx context.Context, locations []string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.c.Set(catalogKey, append([]string(nil), locations...), ttl)
	return nil
}

// MemcachedCatalogCache shares the catalog across instances through memcached.
type MemcachedCatalogCache struct {
	client *memcache.Client
}

// NewMemcachedCatalogCache creates a MemcachedCatalogCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero.
func NewMemcachedCatalogCache(addrs string, timeout time.Duration, maxIdleConns int) *MemcachedCatalogCache {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCatalogCache{client: client}
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// Get implements CatalogCache.
func (c *MemcachedCatalogCache) Get(ctx context.Context) ([]string, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	item, err := c.client.Get(catalogKey)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var locs []string
	if err := json.Unmarshal(item.Value, &locs); err != nil {
		return nil, false, err
	}
	return locs, true, nil
}

// Set implements CatalogCache.
func (c *MemcachedCatalogCache) Set(ctx context.Context, locations []string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(locations)
	if err != nil {
		return err
	}
	return c.client.Set(&memcache.Item{
		Key:        catalogKey,
		Value:      raw,
		Expiration: memcachedExpiration(ttl),
	})
}

// memcachedExpiration converts ttl to relative seconds. Memcached reads values
// above 30 days as absolute unix times, so those fall back to 1h.
func memcachedExpiration(ttl time.Duration) int32 {
	const maxRelativeExp = 30 * 24 * 60 * 60
	sec := int32(ttl.Seconds())
	if sec <= 0 || sec > maxRelativeExp {
		return 3600
	}
	return sec
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCatalogCache) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCatalogCache) Close() error {
	return c.client.Close()
}

// Catalog serves the location list from cache, falling back to the
// observation store on a miss or cache error.
type Catalog struct {
	store     ObservationStore
	cache     CatalogCache
	cacheType string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewCatalog returns a Catalog. cacheType labels hit metrics.
func NewCatalog(store ObservationStore, cache CatalogCache, cacheType string, ttl time.Duration, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{store: store, cache: cache, cacheType: cacheType, ttl: ttl, logger: logger}
}

// Locations returns the pump-house names known to the observation store.
func (c *Catalog) Locations(ctx context.Context) ([]string, error) {
	if c.cache != nil {
		locs, ok, err := c.cache.Get(ctx)
		if err != nil {
			c.logger.Warn("location catalog cache read failed", zap.String("cacheType", c.cacheType), zap.Error(err))
		} else if ok {
			observability.LocationCatalogHitsTotal.WithLabelValues(c.cacheType).Inc()
			return locs, nil
		}
	}
	return c.Refresh(ctx)
}

// Refresh reloads the catalog from the store and repopulates the cache.
// Called on a miss and once at startup.
func (c *Catalog) Refresh(ctx context.Context) ([]string, error) {
	locs, err := c.store.Locations(ctx)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		if err := c.cache.Set(ctx, locs, c.ttl); err != nil {
			c.logger.Warn("location catalog cache write failed", zap.String("cacheType", c.cacheType), zap.Error(err))
		}
	}
	c.logger.Debug("location catalog refreshed", zap.Int("locations", len(locs)))
	return locs, nil
}
