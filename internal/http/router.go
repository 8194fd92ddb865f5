package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/pumphouse-rainfall-service/internal/observability"
)

// RouterConfig holds the per-route middleware settings.
type RouterConfig struct {
	Limiter        *rate.Limiter // nil disables rate limiting
	RequestTimeout time.Duration
}

// NewRouter mounts the handlers. Only /rainfall and /radar are rate limited and
// time-bounded; /radar is mounted only when the handler has a RadarService.
func NewRouter(h *Handler, logger *zap.Logger, cfg RouterConfig) http.Handler {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	router.HandleFunc("/locations", h.GetLocations).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())

	rainfallRouter := router.PathPrefix("/rainfall").Subrouter()
	rainfallRouter.Use(RateLimitMiddleware(cfg.Limiter))
	if cfg.RequestTimeout > 0 {
		rainfallRouter.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	rainfallRouter.HandleFunc("/{name}", h.GetRainfall).Methods("GET")

	if h.radar != nil {
		radarRouter := router.PathPrefix("/radar").Subrouter()
		radarRouter.Use(RateLimitMiddleware(cfg.Limiter))
		if cfg.RequestTimeout > 0 {
			radarRouter.Use(TimeoutMiddleware(cfg.RequestTimeout))
		}
		radarRouter.HandleFunc("/latest", h.GetLatestRadar).Methods("GET")
		radarRouter.HandleFunc("/records", h.GetRadarRecords).Methods("GET")
		radarRouter.HandleFunc("/today/pump-houses", h.GetRadarPumpHouses).Methods("GET")
		radarRouter.HandleFunc("/today/pump-houses/{name}", h.GetRadarPumpHouse).Methods("GET")
		radarRouter.HandleFunc("/today/summary", h.GetRadarSummary).Methods("GET")
		radarRouter.HandleFunc("/today/alerts", h.GetRadarAlerts).Methods("GET")
		radarRouter.HandleFunc("/stations/{station}", h.GetRadarStation).Methods("GET")
	}
	return router
}
