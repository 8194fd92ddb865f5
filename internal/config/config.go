package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from .env, YAML and env.
type Config struct {
	ServerPort string
	LogLevel   string

	MongoURI               string
	MongoObservationDB     string
	MongoForecastDB        string
	MongoRadarCollection   string
	MongoNowcastCollection string
	MongoConnectTimeout    time.Duration
	MongoLookupTimeout     time.Duration

	RequestTimeout time.Duration
	NameMinLen     int
	NameMaxLen     int

	ForwardBuffer time.Duration
	NowSpan       time.Duration

	CacheTTL     time.Duration
	CacheBackend string // "in_memory" or "memcached"

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RateLimitRPS            int
	RateLimitBurst          int
	BreakerFailureThreshold int
	BreakerHalfOpenRequests int
	BreakerOpenTimeout      time.Duration

	ShutdownTimeout time.Duration

	OverloadWindow       time.Duration
	OverloadThresholdPct int
	DegradedWindow       time.Duration
	DegradedErrorPct     int
	DegradedRetryInitial time.Duration
	DegradedRetryMax     time.Duration

	TrackedLocations []string
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Mongo struct {
		URI               string `yaml:"uri"`
		ObservationDB     string `yaml:"observation_db"`
		ForecastDB        string `yaml:"forecast_db"`
		RadarCollection   string `yaml:"radar_collection"`
		NowcastCollection string `yaml:"nowcast_collection"`
		ConnectTimeout    string `yaml:"connect_timeout"`
		LookupTimeout     string `yaml:"lookup_timeout"`
	} `yaml:"mongo"`

	Request struct {
		Timeout    string `yaml:"timeout"`
		NameMinLen int    `yaml:"name_min_len"`
		NameMaxLen int    `yaml:"name_max_len"`
	} `yaml:"request"`

	Window struct {
		ForwardBuffer string `yaml:"forward_buffer"`
		NowSpan       string `yaml:"now_span"`
	} `yaml:"window"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
		Breaker        struct {
			FailureThreshold int    `yaml:"failure_threshold"`
			HalfOpenRequests int    `yaml:"half_open_requests"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"breaker"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		OverloadWindow       string `yaml:"overload_window"`
		OverloadThresholdPct int    `yaml:"overload_threshold_pct"`
		DegradedWindow       string `yaml:"degraded_window"`
		DegradedErrorPct     int    `yaml:"degraded_error_pct"`
		DegradedRetryInitial string `yaml:"degraded_retry_initial"`
		DegradedRetryMax     string `yaml:"degraded_retry_max"`
	} `yaml:"lifecycle"`

	Metrics struct {
		TrackedLocations []string `yaml:"tracked_locations"`
	} `yaml:"metrics"`
}

// Load reads .env (optional), then config/{ENV_NAME}.yaml (default dev).
// MONGODB_URI, CACHE_BACKEND and MEMCACHED_ADDRS override the file. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	if err := godotenv.Load(filepath.Join(cwd, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}
	cfg.ServerPort = orDefault(fc.Server.Port, "8080")
	cfg.LogLevel = orDefault(fc.Log.Level, "info")

	cfg.MongoURI = firstNonEmpty(os.Getenv("MONGODB_URI"), fc.Mongo.URI, "mongodb://localhost:27017")
	cfg.MongoObservationDB = orDefault(fc.Mongo.ObservationDB, "db_curah_hujan")
	cfg.MongoForecastDB = orDefault(fc.Mongo.ForecastDB, "db-predict-ch")
	cfg.MongoRadarCollection = orDefault(fc.Mongo.RadarCollection, "rainfall_records")
	cfg.MongoNowcastCollection = orDefault(fc.Mongo.NowcastCollection, "prediksi")
	cfg.MongoConnectTimeout = parseDuration(fc.Mongo.ConnectTimeout, 10*time.Second)
	cfg.MongoLookupTimeout = parseDurationOrZero(fc.Mongo.LookupTimeout, 3*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 5*time.Second)
	cfg.NameMinLen = positiveOr(fc.Request.NameMinLen, 1)
	cfg.NameMaxLen = positiveOr(fc.Request.NameMaxLen, 100)

	cfg.ForwardBuffer = parseDuration(fc.Window.ForwardBuffer, 48*time.Hour)
	cfg.NowSpan = parseDuration(fc.Window.NowSpan, 3*time.Hour)

	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 5*time.Minute)
	cfg.CacheBackend = strings.ToLower(firstNonEmpty(os.Getenv("CACHE_BACKEND"), fc.Cache.Backend, "in_memory"))
	cfg.MemcachedAddrs = firstNonEmpty(os.Getenv("MEMCACHED_ADDRS"), fc.Cache.Memcached.Addrs, "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = positiveOr(fc.Cache.Memcached.MaxIdleConns, 2)

	cfg.RateLimitRPS = positiveOr(fc.Reliability.RateLimitRPS, 100)
	cfg.RateLimitBurst = positiveOr(fc.Reliability.RateLimitBurst, 250)
	cfg.BreakerFailureThreshold = positiveOr(fc.Reliability.Breaker.FailureThreshold, 5)
	cfg.BreakerHalfOpenRequests = positiveOr(fc.Reliability.Breaker.HalfOpenRequests, 1)
	cfg.BreakerOpenTimeout = parseDuration(fc.Reliability.Breaker.Timeout, 30*time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.OverloadWindow = parseDuration(fc.Lifecycle.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = positiveOr(fc.Lifecycle.OverloadThresholdPct, 80)
	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = positiveOr(fc.Lifecycle.DegradedErrorPct, 5)
	cfg.DegradedRetryInitial = parseDuration(fc.Lifecycle.DegradedRetryInitial, 1*time.Minute)
	cfg.DegradedRetryMax = parseDuration(fc.Lifecycle.DegradedRetryMax, 20*time.Minute)
	cfg.TrackedLocations = fc.Metrics.TrackedLocations

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func orDefault(s, def string) string {
	return firstNonEmpty(s, def)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func positiveOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
// Used for parsing duration fields from YAML config with safe fallback to defaults.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
// A stalled lookup must fail the request, so the request budget is raised
// above the lookup timeout when configured at or below it.
func validate(cfg *Config) error {
	if cfg.MongoLookupTimeout <= 0 {
		return fmt.Errorf("mongo.lookup_timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.MongoLookupTimeout {
		cfg.RequestTimeout = cfg.MongoLookupTimeout + time.Second
	}
	if cfg.NameMinLen > cfg.NameMaxLen {
		return fmt.Errorf("request.name_min_len (%d) exceeds name_max_len (%d)", cfg.NameMinLen, cfg.NameMaxLen)
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
		// valid
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	return nil
}
