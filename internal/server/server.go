package server

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/urbanflow/urbanflow/internal/cities"
	"github.com/urbanflow/urbanflow/internal/run"
	"github.com/urbanflow/urbanflow/internal/storage"
	"github.com/urbanflow/urbanflow/internal/telemetry"
)

// Server is the UrbanFlow HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a
// Server. Optional (nil-safe): Metrics.
type ServerConfig struct {
	// Required dependencies.
	Registry    *run.Registry
	Supervisor  *run.Supervisor
	CitySvc     *cities.Service
	DB          *storage.DB
	TemplatesFS fs.FS
	Logger      *slog.Logger

	// Optional dependencies (nil = disabled).
	Metrics *telemetry.Metrics

	// HTTP server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Version      string
	LogTail      int
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) (*Server, error) {
	pages, err := newPageSet(cfg.TemplatesFS)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	h := NewHandlers(HandlersDeps{
		Registry:   cfg.Registry,
		Supervisor: cfg.Supervisor,
		CitySvc:    cfg.CitySvc,
		DB:         cfg.DB,
		Metrics:    cfg.Metrics,
		Pages:      pages,
		Logger:     cfg.Logger,
		Version:    cfg.Version,
		LogTail:    cfg.LogTail,
	})

	mux := http.NewServeMux()

	// Simulation control API.
	mux.HandleFunc("POST /api/run", h.HandleStartRun)
	mux.HandleFunc("GET /api/status/{run_id}", h.HandleRunStatus)
	mux.HandleFunc("POST /api/stop/{run_id}", h.HandleStopRun)

	// City dataset API.
	mux.HandleFunc("GET /api/cities", h.HandleListCities)
	mux.HandleFunc("GET /api/cities/{slug}", h.HandleGetCity)

	// Health.
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Dashboard pages.
	mux.HandleFunc("GET /{$}", h.HandleHomePage)
	mux.HandleFunc("GET /dashboard", h.HandleDashboardPage)
	mux.HandleFunc("GET /cities", h.HandleCitiesPage)
	mux.HandleFunc("GET /cities/{slug}", h.HandleCityPage)
	mux.HandleFunc("GET /awareness", h.HandleStaticPage("awareness.html"))
	mux.HandleFunc("GET /about", h.HandleStaticPage("about.html"))
	mux.HandleFunc("GET /resources", h.HandleStaticPage("resources.html"))

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}, nil
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
