package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/pumphouse-rainfall-service/internal/radar"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/source"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/timewindow"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/traffic"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/validation"
)

// RadarService answers the day-scoped radar scan lookups.
type RadarService interface {
	Latest(ctx context.Context) (*source.RadarRecord, error)
	Today(ctx context.Context) ([]source.RadarRecord, error)
	OnDate(ctx context.Context, day time.Time) ([]source.RadarRecord, error)
	PumpHouseToday(ctx context.Context, name string) ([]source.RadarRecord, error)
	PumpHousesToday(ctx context.Context) ([]string, error)
	SummaryToday(ctx context.Context) (radar.Summary, error)
	AlertsToday(ctx context.Context, minRainRate float64) ([]source.RadarRecord, error)
	StationToday(ctx context.Context, station string) ([]source.RadarRecord, error)
}

// WithRadar enables the /radar routes.
func (h *Handler) WithRadar(svc RadarService) *Handler {
	h.radar = svc
	return h
}

// GetLatestRadar handles GET /radar/latest.
func (h *Handler) GetLatestRadar(w http.ResponseWriter, r *http.Request) {
	rec, err := h.radar.Latest(r.Context())
	if errors.Is(err, radar.ErrNoRecords) {
		traffic.RecordSuccess()
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "No radar records")
		return
	}
	if err != nil {
		h.writeRadarError(w, r, err)
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, rec)
}

// GetRadarRecords handles GET /radar/records?date=YYYY-MM-DD; no date means today.
func (h *Handler) GetRadarRecords(w http.ResponseWriter, r *http.Request) {
	var (
		recs []source.RadarRecord
		err  error
	)
	if d := strings.TrimSpace(r.URL.Query().Get("date")); d != "" {
		day, perr := timewindow.ParseLocalDate(d)
		if perr != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_RANGE", perr.Error())
			return
		}
		recs, err = h.radar.OnDate(r.Context(), day)
	} else {
		recs, err = h.radar.Today(r.Context())
	}
	h.writeRecords(w, r, recs, err)
}

// GetRadarPumpHouses handles GET /radar/today/pump-houses.
func (h *Handler) GetRadarPumpHouses(w http.ResponseWriter, r *http.Request) {
	names, err := h.radar.PumpHousesToday(r.Context())
	if err != nil {
		h.writeRadarError(w, r, err)
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, map[string]interface{}{"pumpHouses": names, "count": len(names)})
}

// GetRadarPumpHouse handles GET /radar/today/pump-houses/{name}.
func (h *Handler) GetRadarPumpHouse(w http.ResponseWriter, r *http.Request) {
	name, err := validation.ValidatePumpName(mux.Vars(r)["name"], h.nameMinLen, h.nameMaxLen)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", err.Error())
		return
	}
	recs, err := h.radar.PumpHouseToday(r.Context(), name)
	h.writeRecords(w, r, recs, err)
}

// GetRadarSummary handles GET /radar/today/summary.
func (h *Handler) GetRadarSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.radar.SummaryToday(r.Context())
	if err != nil {
		h.writeRadarError(w, r, err)
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, sum)
}

// GetRadarAlerts handles GET /radar/today/alerts?min_rain_rate=<mm/h>.
func (h *Handler) GetRadarAlerts(w http.ResponseWriter, r *http.Request) {
	minRate := radar.DefaultAlertRainRate
	if v := strings.TrimSpace(r.URL.Query().Get("min_rain_rate")); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed < 0 {
			writeError(w, r, http.StatusBadRequest, "INVALID_THRESHOLD", "min_rain_rate must be a non-negative number")
			return
		}
		minRate = parsed
	}
	recs, err := h.radar.AlertsToday(r.Context(), minRate)
	h.writeRecords(w, r, recs, err)
}

// GetRadarStation handles GET /radar/stations/{station}.
func (h *Handler) GetRadarStation(w http.ResponseWriter, r *http.Request) {
	station := strings.TrimSpace(mux.Vars(r)["station"])
	if station == "" {
		writeError(w, r, http.StatusBadRequest, "INVALID_STATION", "station is required")
		return
	}
	recs, err := h.radar.StationToday(r.Context(), station)
	h.writeRecords(w, r, recs, err)
}

func (h *Handler) writeRecords(w http.ResponseWriter, r *http.Request, recs []source.RadarRecord, err error) {
	if err != nil {
		h.writeRadarError(w, r, err)
		return
	}
	if recs == nil {
		recs = []source.RadarRecord{}
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, map[string]interface{}{"records": recs, "count": len(recs)})
}

func (h *Handler) writeRadarError(w http.ResponseWriter, r *http.Request, err error) {
	traffic.RecordError()
	h.notifyIfDegraded()
	writeError(w, r, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Unable to read radar records")
	loggerFromRequest(r, h.logger).Debug("radar lookup failed", zap.Error(err))
}
