package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/pumphouse-rainfall-service/internal/config"
	httphandler "github.com/kjstillabower/pumphouse-rainfall-service/internal/http"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/lifecycle"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/observability"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/radar"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/service"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/store"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/timewindow"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger("pumphouse-rainfall-service", cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.MongoConnectTimeout)
	mongoStore, err := store.ConnectMongo(connectCtx, store.MongoConfig{
		URI:               cfg.MongoURI,
		ObservationDB:     cfg.MongoObservationDB,
		ForecastDB:        cfg.MongoForecastDB,
		RadarCollection:   cfg.MongoRadarCollection,
		NowcastCollection: cfg.MongoNowcastCollection,
		ConnectTimeout:    cfg.MongoConnectTimeout,
		SocketTimeout:     cfg.RequestTimeout,
	})
	connectCancel()
	if err != nil {
		logger.Fatal("mongo connect", zap.Error(err))
	}
	logger.Info("mongo connected",
		zap.String("observation_db", cfg.MongoObservationDB),
		zap.String("forecast_db", cfg.MongoForecastDB))

	guard := store.NewGuard(mongoStore, mongoStore, store.GuardConfig{
		LookupTimeout:    cfg.MongoLookupTimeout,
		FailureThreshold: uint32(cfg.BreakerFailureThreshold),
		HalfOpenRequests: uint32(cfg.BreakerHalfOpenRequests),
		OpenTimeout:      cfg.BreakerOpenTimeout,
	})

	resolver := timewindow.NewResolver(clockwork.NewRealClock(), timewindow.Options{
		ForwardBuffer: cfg.ForwardBuffer,
		NowSpan:       cfg.NowSpan,
	})
	rainfallService := service.NewRainfallService(guard, guard, resolver, service.Options{})

	var catalogCache store.CatalogCache
	var memcached *store.MemcachedCatalogCache
	switch cfg.CacheBackend {
	case store.CacheBackendMemcached:
		memcached = store.NewMemcachedCatalogCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		catalogCache = memcached
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		catalogCache = store.NewInMemoryCatalogCache(cfg.CacheTTL)
		logger.Info("cache backend: in_memory")
	}
	catalog := store.NewCatalog(guard, catalogCache, cfg.CacheBackend, cfg.CacheTTL, logger)

	warmCtx, warmCancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	if locations, err := catalog.Refresh(warmCtx); err != nil {
		logger.Warn("location catalog warm failed", zap.Error(err))
	} else {
		logger.Info("location catalog warmed", zap.Int("locations", len(locations)))
	}
	warmCancel()

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	recovery := &lifecycle.Recovery{
		Ping:    mongoStore.Ping,
		Initial: cfg.DegradedRetryInitial,
		Max:     cfg.DegradedRetryMax,
		Logger:  logger,
		OnExhausted: func() {
			lifecycle.SetShuttingDown(true)
		},
	}
	recovery.Start(runCtx)

	healthConfig := &httphandler.HealthConfig{
		OverloadWindow:       cfg.OverloadWindow,
		OverloadThresholdPct: cfg.OverloadThresholdPct,
		RateLimitRPS:         cfg.RateLimitRPS,
		DegradedWindow:       cfg.DegradedWindow,
		DegradedErrorPct:     cfg.DegradedErrorPct,
		StorePing:            mongoStore.Ping,
		PingTimeout:          cfg.MongoLookupTimeout,
		BreakerStates:        guard.BreakerStates,
		Version:              version,
	}
	if memcached != nil {
		healthConfig.CachePing = memcached.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	radarService := radar.NewService(guard, clockwork.NewRealClock())
	handler := httphandler.NewHandler(rainfallService, catalog, healthConfig, logger, recovery, cfg.NameMinLen, cfg.NameMaxLen).
		WithRadar(radarService)

	observability.RegisterRateLimitGauges(cfg.OverloadWindow)
	if len(cfg.TrackedLocations) > 0 {
		observability.SetTrackedLocations(cfg.TrackedLocations)
	}

	srv := &http.Server{
		Addr: ":" + cfg.ServerPort,
		Handler: httphandler.NewRouter(handler, logger, httphandler.RouterConfig{
			Limiter:        limiter,
			RequestTimeout: cfg.RequestTimeout,
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	if err := httphandler.WaitForInFlight(shutdownCtx, 50*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	closers := []observability.Closer{mongoStore.Close}
	if memcached != nil {
		closers = append(closers, func(context.Context) error { return memcached.Close() })
	}
	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	if err := observability.FlushAndClose(closeCtx, logger, closers...); err != nil {
		logger.Error("shutdown flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
