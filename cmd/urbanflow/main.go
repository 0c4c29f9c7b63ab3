package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/urbanflow/urbanflow/internal/cities"
	"github.com/urbanflow/urbanflow/internal/config"
	"github.com/urbanflow/urbanflow/internal/run"
	"github.com/urbanflow/urbanflow/internal/server"
	"github.com/urbanflow/urbanflow/internal/storage"
	"github.com/urbanflow/urbanflow/internal/telemetry"
	"github.com/urbanflow/urbanflow/migrations"
	"github.com/urbanflow/urbanflow/ui"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("URBANFLOW_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := runMain(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func runMain(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("urbanflow starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return fmt.Errorf("telemetry metrics: %w", err)
	}

	// Open the city dataset store, migrate, and seed it.
	db, err := storage.Open(ctx, cfg.DatabasePath, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	if err := db.Seed(ctx); err != nil {
		return fmt.Errorf("seed cities: %w", err)
	}

	// Warm the landmark image cache in the background. Failures are
	// logged and skipped; pages fall back to dataset images.
	imageCache := cities.NewImageCache()
	if cfg.WikiWarmCache {
		records, err := db.AllCities(ctx)
		if err != nil {
			return fmt.Errorf("load cities for image warm: %w", err)
		}
		wikiClient := cities.NewWikiClient("", cfg.WikiTimeout)
		go imageCache.Warm(ctx, wikiClient, records, cfg.WikiConcurrent, logger)
	} else {
		logger.Info("landmark image warm: disabled")
	}

	citySvc := cities.NewService(db, imageCache, logger)

	// Run supervisor.
	registry := run.NewRegistry()
	supervisor := run.NewSupervisor(registry, run.SupervisorConfig{
		Command:   cfg.WorkerArgv(),
		Dir:       cfg.WorkerDir,
		StopGrace: cfg.StopGrace,
	}, logger)
	logger.Info("run supervisor ready", "worker", cfg.WorkerCommand, "dir", cfg.WorkerDir)

	templatesFS, err := ui.TemplatesFS()
	if err != nil {
		return fmt.Errorf("ui templates: %w", err)
	}

	srv, err := server.New(server.ServerConfig{
		Registry:     registry,
		Supervisor:   supervisor,
		CitySvc:      citySvc,
		DB:           db,
		TemplatesFS:  templatesFS,
		Metrics:      metrics,
		Logger:       logger,
		Port:         cfg.Port,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		Version:      version,
		LogTail:      cfg.LogTail,
	})
	if err != nil {
		return err
	}

	// Start HTTP server in background.
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	// Graceful shutdown. Each phase gets its own timeout so early
	// completion doesn't steal budget from later phases.
	// Order: (1) stop accepting new HTTP requests and drain in-flight,
	// (2) stop any simulation runs still executing.
	slog.Info("urbanflow shutting down")

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := srv.Shutdown(httpCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	httpCancel()

	supervisor.StopAll()

	slog.Info("shutdown complete")
	return nil
}
