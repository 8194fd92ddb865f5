package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/pumphouse-rainfall-service/internal/lifecycle"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/present"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/service"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/timewindow"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/traffic"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/validation"
)

const serviceName = "pumphouse-rainfall-service"

// SeriesService answers a rainfall series for one pump house.
type SeriesService interface {
	GetSeries(ctx context.Context, location string, q timewindow.Query) (service.Series, error)
}

// LocationLister lists known pump-house names.
type LocationLister interface {
	Locations(ctx context.Context) ([]string, error)
}

// HealthConfig holds lifecycle thresholds and checks for the health handler.
type HealthConfig struct {
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int
	DegradedWindow       time.Duration
	DegradedErrorPct     int
	// StorePing checks store reachability. Nil skips the check.
	StorePing   func(ctx context.Context) error
	PingTimeout time.Duration
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
	// BreakerStates reports the current breaker state per store.
	BreakerStates func() map[string]string
	Version       string
	Clock         clockwork.Clock
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	rainfall         SeriesService
	catalog          LocationLister
	radar            RadarService
	healthConfig     *HealthConfig
	logger           *zap.Logger
	recovery         *lifecycle.Recovery
	nameMinLen       int
	nameMaxLen       int
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. recovery may be nil.
func NewHandler(
	rainfall SeriesService,
	catalog LocationLister,
	healthConfig *HealthConfig,
	logger *zap.Logger,
	recovery *lifecycle.Recovery,
	nameMinLen, nameMaxLen int,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		rainfall:     rainfall,
		catalog:      catalog,
		healthConfig: healthConfig,
		logger:       logger,
		recovery:     recovery,
		nameMinLen:   nameMinLen,
		nameMaxLen:   nameMaxLen,
	}
}

// GetRainfall handles GET /rainfall/{name}?date=YYYY-MM-DD or ?range=<token>.
func (h *Handler) GetRainfall(w http.ResponseWriter, r *http.Request) {
	name, err := validation.ValidatePumpName(mux.Vars(r)["name"], h.nameMinLen, h.nameMaxLen)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", err.Error())
		return
	}
	rq := validation.RangeQuery{
		Date:  r.URL.Query().Get("date"),
		Range: r.URL.Query().Get("range"),
	}
	if err := validation.ValidateRangeQuery(rq); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_RANGE", err.Error())
		return
	}

	series, err := h.rainfall.GetSeries(r.Context(), name, rq.Query())
	if err != nil {
		h.writeSeriesError(w, r, err)
		return
	}
	if series.Partial {
		traffic.Record(traffic.OutcomePartial)
	} else {
		traffic.RecordSuccess()
	}
	writeJSON(w, http.StatusOK, present.FromSeries(series))
}

// writeSeriesError maps service errors onto the error envelope and records the outcome.
func (h *Handler) writeSeriesError(w http.ResponseWriter, r *http.Request, err error) {
	var fetchErr *service.FetchError
	switch {
	case errors.Is(err, timewindow.ErrInvalidRange):
		writeError(w, r, http.StatusBadRequest, "INVALID_RANGE", err.Error())
	case errors.Is(err, service.ErrNotFound):
		traffic.RecordSuccess()
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "No rainfall data for this location and range")
	case errors.As(err, &fetchErr):
		traffic.RecordError()
		h.notifyIfDegraded()
		writeError(w, r, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Unable to read rainfall data")
		loggerFromRequest(r, h.logger).Debug("store error",
			zap.String("source", fetchErr.Source), zap.Error(fetchErr.Err))
	default:
		traffic.RecordError()
		h.notifyIfDegraded()
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "Unexpected error")
		loggerFromRequest(r, h.logger).Error("series lookup failed", zap.Error(err))
	}
}

func (h *Handler) notifyIfDegraded() {
	if h.recovery == nil || h.healthConfig == nil || h.healthConfig.DegradedWindow <= 0 {
		return
	}
	errs, total := traffic.ErrorRate(h.healthConfig.DegradedWindow)
	if traffic.Degraded(errs, total, h.healthConfig.DegradedErrorPct) {
		h.recovery.Notify()
	}
}

// GetLocations handles GET /locations.
func (h *Handler) GetLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := h.catalog.Locations(r.Context())
	if err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Unable to list locations")
		loggerFromRequest(r, h.logger).Debug("location catalog error", zap.Error(err))
		return
	}
	if locations == nil {
		locations = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"locations": locations})
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
	storeErr   error
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if result.storeErr != nil {
		checks["store"] = "unhealthy"
	} else {
		checks["store"] = "healthy"
	}
	resp := map[string]interface{}{
		"status":  result.status,
		"service": serviceName,
		"version": "dev",
		"checks":  checks,
	}
	now := time.Now()
	if hc := h.healthConfig; hc != nil {
		if hc.CachePing != nil {
			if hc.CachePing() == nil {
				checks["cache"] = "healthy"
			} else {
				checks["cache"] = "unhealthy"
			}
		}
		if hc.BreakerStates != nil {
			resp["breakers"] = hc.BreakerStates()
		}
		if hc.Version != "" {
			resp["version"] = hc.Version
		}
		if hc.Clock != nil {
			now = hc.Clock.Now()
		}
	}
	if result.reason != "" {
		resp["reason"] = result.reason
	}
	resp["timestamp"] = now.UTC().Format(time.RFC3339)
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > store unreachable > overloaded > degraded > healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{status: "shutting-down", statusCode: http.StatusServiceUnavailable, reason: "signal"}
	}
	hc := h.healthConfig
	if hc == nil {
		return healthResult{status: "healthy", statusCode: http.StatusOK}
	}
	if hc.StorePing != nil {
		timeout := hc.PingTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		err := hc.StorePing(pingCtx)
		cancel()
		if err != nil {
			return healthResult{status: "degraded", statusCode: http.StatusServiceUnavailable, reason: "store_unreachable", storeErr: err}
		}
	}
	if traffic.Overloaded(traffic.RequestCount(hc.OverloadWindow), float64(hc.RateLimitRPS), hc.OverloadWindow, hc.OverloadThresholdPct) {
		return healthResult{status: "overloaded", statusCode: http.StatusServiceUnavailable, reason: "overload_threshold"}
	}
	if hc.DegradedWindow > 0 {
		errs, total := traffic.ErrorRate(hc.DegradedWindow)
		if traffic.Degraded(errs, total, hc.DegradedErrorPct) {
			return healthResult{status: "degraded", statusCode: http.StatusServiceUnavailable, reason: "error_rate_breach"}
		}
	}
	return healthResult{status: "healthy", statusCode: http.StatusOK}
}

// loggerFromRequest returns the request-scoped logger, or fallback.
func loggerFromRequest(r *http.Request, fallback *zap.Logger) *zap.Logger {
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		return logger
	}
	return fallback
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID, _ := r.Context().Value("correlation_id").(string)
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}
