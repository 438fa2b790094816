package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"drivewatch/internal/broadcast"
	"drivewatch/internal/dispatch"
	"drivewatch/internal/geo"
	"drivewatch/internal/location"
	"drivewatch/internal/monitor"
)

// Service is the core facade the HTTP layer delegates to.
type Service interface {
	SubmitSignal(driverID string, ear, mouthOpenness float64, ts time.Time)
	SubmitLocation(ctx context.Context, driverID string, lat, lon float64, accuracy *float64, ts time.Time) location.Location
	SubmitExternalAlert(ctx context.Context, driverID string, lat, lon *float64, ts time.Time, details map[string]any) dispatch.Alert
	StartMonitoring(ctx context.Context, driverID string) error
	StopMonitoring(driverID string)
	QueryNearest(lat, lon float64) (geo.Facility, float64, error)
	Facilities() []geo.Facility
	RecentAlerts(facilityID int64, limit int) []dispatch.Alert
	OpenStream() *broadcast.Subscriber
	JoinFacilityRoom(facilityID int64) *broadcast.Subscriber
	CloseSubscription(sub *broadcast.Subscriber)
}

// Handler is the thin HTTP layer. Malformed input is rejected here so it
// never reaches the core with invalid types.
type Handler struct {
	logger *slog.Logger
	svc    Service
}

// NewHandler constructs the HTTP handler set.
func NewHandler(svc Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, svc: svc}
}

type locationRequest struct {
	DriverID string   `json:"driver_id"`
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
	Accuracy *float64 `json:"accuracy,omitempty"`
	TS       *float64 `json:"ts,omitempty"`
}

func (h *Handler) handleSubmitLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DriverID == "" {
		writeError(w, http.StatusBadRequest, "missing driver_id")
		return
	}
	if req.Lat == nil || req.Lon == nil {
		writeError(w, http.StatusBadRequest, "lat and lon are required")
		return
	}

	loc := h.svc.SubmitLocation(r.Context(), req.DriverID, *req.Lat, *req.Lon, req.Accuracy, unixTimestamp(req.TS))
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "location": loc})
}

type alertRequest struct {
	DriverID string         `json:"driver_id"`
	Lat      *float64       `json:"lat,omitempty"`
	Lon      *float64       `json:"lon,omitempty"`
	TS       *float64       `json:"ts,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

func (h *Handler) handleSubmitAlert(w http.ResponseWriter, r *http.Request) {
	var req alertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DriverID == "" {
		writeError(w, http.StatusBadRequest, "missing driver_id")
		return
	}

	alert := h.svc.SubmitExternalAlert(r.Context(), req.DriverID, req.Lat, req.Lon, unixTimestamp(req.TS), req.Details)
	writeJSON(w, http.StatusCreated, map[string]any{"status": "ok", "alert": alert})
}

type signalRequest struct {
	DriverID      string   `json:"driver_id"`
	EAR           *float64 `json:"ear"`
	MouthOpenness *float64 `json:"mouth_openness"`
	TS            *float64 `json:"ts,omitempty"`
}

func (h *Handler) handleSubmitSignal(w http.ResponseWriter, r *http.Request) {
	var req signalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DriverID == "" || req.EAR == nil || req.MouthOpenness == nil {
		writeError(w, http.StatusBadRequest, "driver_id, ear and mouth_openness are required")
		return
	}

	h.svc.SubmitSignal(req.DriverID, *req.EAR, *req.MouthOpenness, unixTimestamp(req.TS))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type monitoringRequest struct {
	DriverID string `json:"driver_id"`
}

func (h *Handler) handleStartDetection(w http.ResponseWriter, r *http.Request) {
	var req monitoringRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DriverID == "" {
		writeError(w, http.StatusBadRequest, "missing driver_id")
		return
	}

	if err := h.svc.StartMonitoring(r.Context(), req.DriverID); err != nil {
		if errors.Is(err, monitor.ErrAlreadyMonitoring) {
			writeError(w, http.StatusConflict, "driver is already being monitored")
			return
		}
		h.logger.Error("failed to start monitoring", "driver_id", req.DriverID, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "failed to start monitoring")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (h *Handler) handleStopDetection(w http.ResponseWriter, r *http.Request) {
	var req monitoringRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DriverID == "" {
		writeError(w, http.StatusBadRequest, "missing driver_id")
		return
	}

	h.svc.StopMonitoring(req.DriverID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (h *Handler) handleFacilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Facilities())
}

func (h *Handler) handleNearestFacility(w http.ResponseWriter, r *http.Request) {
	lat, latErr := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, lonErr := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if latErr != nil || lonErr != nil {
		writeError(w, http.StatusBadRequest, "lat and lon query parameters are required")
		return
	}

	facility, distKm, err := h.svc.QueryNearest(lat, lon)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "no facilities loaded")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"facility": facility, "distance_km": distKm})
}

func (h *Handler) handleRecentAlerts(w http.ResponseWriter, r *http.Request) {
	var facilityID int64
	if raw := r.URL.Query().Get("facility"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid facility id")
			return
		}
		facilityID = id
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	writeJSON(w, http.StatusOK, h.svc.RecentAlerts(facilityID, limit))
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// unixTimestamp converts an optional seconds-since-epoch value; the zero
// time tells the core to stamp with its own clock.
func unixTimestamp(ts *float64) time.Time {
	if ts == nil {
		return time.Time{}
	}
	sec := int64(*ts)
	nsec := int64((*ts - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
