package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/urbanflow/urbanflow/internal/cities"
	"github.com/urbanflow/urbanflow/internal/model"
	"github.com/urbanflow/urbanflow/internal/run"
	"github.com/urbanflow/urbanflow/internal/storage"
	"github.com/urbanflow/urbanflow/internal/telemetry"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	registry   *run.Registry
	supervisor *run.Supervisor
	citySvc    *cities.Service
	db         *storage.DB
	metrics    *telemetry.Metrics
	logger     *slog.Logger
	pageSet    *pageSet
	startedAt  time.Time
	version    string
	logTail    int
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): Metrics.
type HandlersDeps struct {
	Registry   *run.Registry
	Supervisor *run.Supervisor
	CitySvc    *cities.Service
	DB         *storage.DB
	Metrics    *telemetry.Metrics
	Pages      *pageSet
	Logger     *slog.Logger
	Version    string
	LogTail    int
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		registry:   d.Registry,
		supervisor: d.Supervisor,
		citySvc:    d.CitySvc,
		db:         d.DB,
		metrics:    d.Metrics,
		pageSet:    d.Pages,
		logger:     d.Logger,
		startedAt:  time.Now(),
		version:    d.Version,
		logTail:    d.LogTail,
	}
}

// HandleStartRun handles POST /api/run. An empty body starts a run
// with default parameters.
func (h *Handlers) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	var req model.StartRunRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}

	params := req.Params()
	if err := validateParams(params); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	snap := h.supervisor.Start(params)
	if h.metrics != nil {
		h.metrics.RunsStarted.Add(r.Context(), 1)
	}

	writeJSON(w, r, http.StatusAccepted, model.StartRunResponse{
		RunID:  snap.ID,
		Status: snap.Status,
	})
}

// HandleRunStatus handles GET /api/status/{run_id}.
func (h *Handlers) HandleRunStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseRunID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	snap, ok := h.registry.Snapshot(id, h.logTail)
	if !ok {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "run not found")
		return
	}
	writeJSON(w, r, http.StatusOK, snap)
}

// HandleStopRun handles POST /api/stop/{run_id}.
func (h *Handlers) HandleStopRun(w http.ResponseWriter, r *http.Request) {
	id, err := parseRunID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	status, ok := h.supervisor.Stop(id)
	if !ok {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "run not found")
		return
	}
	if h.metrics != nil {
		h.metrics.RunsStopped.Add(r.Context(), 1)
	}

	writeJSON(w, r, http.StatusOK, model.StopRunResponse{RunID: id, Status: status})
}

// HandleListCities handles GET /api/cities with optional ?q= search.
func (h *Handlers) HandleListCities(w http.ResponseWriter, r *http.Request) {
	items, err := h.citySvc.List(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeInternalError(w, r, "failed to list cities", err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.CityListResponse{Count: len(items), Items: items})
}

// HandleGetCity handles GET /api/cities/{slug}.
func (h *Handlers) HandleGetCity(w http.ResponseWriter, r *http.Request) {
	city, err := h.citySvc.Get(r.Context(), r.PathValue("slug"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "city not found")
		return
	}
	if err != nil {
		h.writeInternalError(w, r, "failed to get city", err)
		return
	}
	writeJSON(w, r, http.StatusOK, city)
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	dbStatus := "connected"
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.db.Ping(r.Context()); err != nil {
		dbStatus = "disconnected"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, r, httpStatus, model.HealthResponse{
		Status:     status,
		Version:    h.version,
		Database:   dbStatus,
		ActiveRuns: h.registry.ActiveCount(),
		Uptime:     int64(time.Since(h.startedAt).Seconds()),
	})
}

func (h *Handlers) writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, "error", err, "request_id", RequestIDFromContext(r.Context()))
	writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, msg)
}

func parseRunID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("run_id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid run_id: %w", err)
	}
	return id, nil
}

func validateParams(p model.RunParams) error {
	if p.SimTime <= 0 {
		return fmt.Errorf("sim_time must be positive, got %d", p.SimTime)
	}
	if p.MinGreen <= 0 {
		return fmt.Errorf("min_green must be positive, got %d", p.MinGreen)
	}
	if p.MaxGreen < p.MinGreen {
		return fmt.Errorf("max_green (%d) must be at least min_green (%d)", p.MaxGreen, p.MinGreen)
	}
	return nil
}
