package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"fleet-backend/internal/domain"
	"fleet-backend/internal/hub"
	"fleet-backend/internal/logging"
	"fleet-backend/internal/metrics"
	"fleet-backend/internal/pipeline"
	"fleet-backend/internal/store"
)

// Ingestor is the ingest entry point the handler calls.
type Ingestor interface {
	Ingest(ctx context.Context, r *domain.Reading) (*pipeline.Result, error)
}

// ReadStore serves the dashboard read paths.
type ReadStore interface {
	VehicleExists(ctx context.Context, vehicleID int64) (bool, error)
	LatestReading(ctx context.Context, vehicleID int64) (*domain.Reading, error)
	LatestVerdict(ctx context.Context, vehicleID int64) (*domain.Verdict, error)
}

type Handler struct {
	ingestor Ingestor
	reads    ReadStore
	hub      *hub.Hub
	log      *slog.Logger

	pingDB      func(ctx context.Context) error
	pingCache   func(ctx context.Context) error
	modelsReady func() bool
}

func NewHandler(
	log *slog.Logger,
	ingestor Ingestor,
	reads ReadStore,
	h *hub.Hub,
	pingDB, pingCache func(ctx context.Context) error,
	modelsReady func() bool,
) *Handler {
	return &Handler{
		ingestor:    ingestor,
		reads:       reads,
		hub:         h,
		log:         log,
		pingDB:      pingDB,
		pingCache:   pingCache,
		modelsReady: modelsReady,
	}
}

// Routes builds the API router. authMW, when non-nil, guards the ingest
// endpoint only; read paths and the observer socket stay open.
func (h *Handler) Routes(authMW *AuthMiddleware) chi.Router {
	r := chi.NewRouter()

	r.Get("/health", h.handleHealth)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/ws/vehicles", h.handleWS)

	r.Group(func(r chi.Router) {
		if authMW != nil {
			r.Use(authMW.Wrap)
		}
		r.Post("/sensor-data", h.handleIngest)
	})

	r.Get("/vehicles/{vehicleID}/latest-sensor", h.handleLatestSensor)
	r.Get("/vehicles/{vehicleID}/latest-prediction", h.handleLatestPrediction)

	return r
}

// sensorDataRequest is the inbound reading payload. Sensor fields are
// optional; absent values fall back to the training-time defaults.
type sensorDataRequest struct {
	VehicleID  int64           `json:"vehicle_id"`
	GPSLat     *float64        `json:"gps_lat"`
	GPSLon     *float64        `json:"gps_lon"`
	Speed      *float64        `json:"speed"`
	Battery    *float64        `json:"battery"`
	AccX       *float64        `json:"acc_x"`
	AccY       *float64        `json:"acc_y"`
	AccZ       *float64        `json:"acc_z"`
	TempMotor  *float64        `json:"temp_motor"`
	RawPayload json.RawMessage `json:"raw_payload,omitempty"`
}

func (req *sensorDataRequest) toReading() *domain.Reading {
	orDefault := func(v *float64, fallback float64) float64 {
		if v != nil {
			return *v
		}
		return fallback
	}
	return &domain.Reading{
		VehicleID:  req.VehicleID,
		GPSLat:     req.GPSLat,
		GPSLon:     req.GPSLon,
		Speed:      orDefault(req.Speed, 0.0),
		Battery:    orDefault(req.Battery, 100.0),
		AccX:       orDefault(req.AccX, 0.0),
		AccY:       orDefault(req.AccY, 0.0),
		AccZ:       orDefault(req.AccZ, 0.0),
		TempMotor:  orDefault(req.TempMotor, 25.0),
		RawPayload: req.RawPayload,
	}
}

// ingestResponse is both the ingest reply and the broadcast payload shape.
type ingestResponse struct {
	SensorDataID  int64     `json:"sensor_data_id"`
	PredictionID  int64     `json:"prediction_id"`
	VehicleID     int64     `json:"vehicle_id"`
	Failure       bool      `json:"failure"`
	Confidence    float64   `json:"confidence"`
	Anomaly       bool      `json:"anomaly"`
	IsoScore      float64   `json:"iso_score"`
	Message       string    `json:"message"`
	Timestamp     time.Time `json:"timestamp"`
	MaintenanceID *int64    `json:"maintenance_id,omitempty"`
}

func eventResponse(ev *domain.Event) ingestResponse {
	return ingestResponse{
		SensorDataID:  ev.Reading.ID,
		PredictionID:  ev.Verdict.ID,
		VehicleID:     ev.Verdict.VehicleID,
		Failure:       ev.Verdict.Failure,
		Confidence:    ev.Verdict.Confidence,
		Anomaly:       ev.Verdict.Anomaly,
		IsoScore:      ev.Verdict.IsoScore,
		Message:       ev.Verdict.Message,
		Timestamp:     ev.Verdict.Timestamp,
		MaintenanceID: ev.MaintenanceID,
	}
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req sensorDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	res, err := h.ingestor.Ingest(r.Context(), req.toReading())
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrVehicleNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, pipeline.ErrInvalidReading):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.log.Error("ingest failed", logging.Err(err))
			writeError(w, http.StatusInternalServerError, "ingestion failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, eventResponse(&domain.Event{
		Reading:       res.Reading,
		Verdict:       res.Verdict,
		MaintenanceID: res.MaintenanceID,
	}))
}

type sensorDataResponse struct {
	ID         int64           `json:"id"`
	VehicleID  int64           `json:"vehicle_id"`
	Timestamp  time.Time       `json:"timestamp"`
	GPSLat     *float64        `json:"gps_lat"`
	GPSLon     *float64        `json:"gps_lon"`
	Speed      float64         `json:"speed"`
	Battery    float64         `json:"battery"`
	AccX       float64         `json:"acc_x"`
	AccY       float64         `json:"acc_y"`
	AccZ       float64         `json:"acc_z"`
	TempMotor  float64         `json:"temp_motor"`
	RawPayload json.RawMessage `json:"raw_payload,omitempty"`
}

func (h *Handler) handleLatestSensor(w http.ResponseWriter, r *http.Request) {
	vehicleID, ok := h.vehicleParam(w, r)
	if !ok {
		return
	}

	reading, err := h.reads.LatestReading(r.Context(), vehicleID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no sensor data for vehicle")
		return
	}
	if err != nil {
		h.log.Error("latest reading query failed", logging.Err(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, sensorDataResponse{
		ID:         reading.ID,
		VehicleID:  reading.VehicleID,
		Timestamp:  reading.Timestamp,
		GPSLat:     reading.GPSLat,
		GPSLon:     reading.GPSLon,
		Speed:      reading.Speed,
		Battery:    reading.Battery,
		AccX:       reading.AccX,
		AccY:       reading.AccY,
		AccZ:       reading.AccZ,
		TempMotor:  reading.TempMotor,
		RawPayload: reading.RawPayload,
	})
}

type predictionResponse struct {
	ID           int64     `json:"id"`
	SensorDataID int64     `json:"sensor_data_id"`
	VehicleID    int64     `json:"vehicle_id"`
	Timestamp    time.Time `json:"timestamp"`
	Failure      bool      `json:"failure"`
	Confidence   float64   `json:"confidence"`
	Anomaly      bool      `json:"anomaly"`
	IsoScore     float64   `json:"iso_score"`
	Message      string    `json:"message"`
}

func (h *Handler) handleLatestPrediction(w http.ResponseWriter, r *http.Request) {
	vehicleID, ok := h.vehicleParam(w, r)
	if !ok {
		return
	}

	verdict, err := h.reads.LatestVerdict(r.Context(), vehicleID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no predictions for vehicle")
		return
	}
	if err != nil {
		h.log.Error("latest verdict query failed", logging.Err(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, predictionResponse{
		ID:           verdict.ID,
		SensorDataID: verdict.ReadingID,
		VehicleID:    verdict.VehicleID,
		Timestamp:    verdict.Timestamp,
		Failure:      verdict.Failure,
		Confidence:   verdict.Confidence,
		Anomaly:      verdict.Anomaly,
		IsoScore:     verdict.IsoScore,
		Message:      verdict.Message,
	})
}

// vehicleParam parses and validates the vehicle id path parameter,
// including existence, writing the error response itself on failure.
func (h *Handler) vehicleParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	vehicleID, err := strconv.ParseInt(chi.URLParam(r, "vehicleID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid vehicle id")
		return 0, false
	}
	exists, err := h.reads.VehicleExists(r.Context(), vehicleID)
	if err != nil {
		h.log.Error("vehicle lookup failed", logging.Err(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return 0, false
	}
	if !exists {
		writeError(w, http.StatusNotFound, "vehicle not found")
		return 0, false
	}
	return vehicleID, true
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := map[string]string{
		"status":    "healthy",
		"database":  "connected",
		"cache":     "connected",
		"ml_models": "loaded",
	}
	code := http.StatusOK

	if err := h.pingDB(ctx); err != nil {
		status["status"] = "unhealthy"
		status["database"] = "unreachable"
		code = http.StatusServiceUnavailable
	}
	if err := h.pingCache(ctx); err != nil {
		// Cache loss degrades the read path but ingestion still works.
		if status["status"] == "healthy" {
			status["status"] = "degraded"
		}
		status["cache"] = "unreachable"
	}
	if !h.modelsReady() {
		if status["status"] == "healthy" {
			status["status"] = "degraded"
		}
		status["ml_models"] = "degraded"
	}

	writeJSON(w, code, status)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
