// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Worker process settings.
	WorkerCommand string        // Command line launching the simulation worker.
	WorkerDir     string        // Working directory for the worker, normally the app root.
	StopGrace     time.Duration // Grace period between terminate and kill on stop.
	LogTail       int           // Number of recent log lines returned by status.

	// City dataset settings.
	DatabasePath string // SQLite database file; ":memory:" for ephemeral.

	// Wikipedia image enrichment.
	WikiWarmCache  bool
	WikiTimeout    time.Duration
	WikiConcurrent int

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{}
	var err error

	load := func(dst *int, key string, def int) {
		if err == nil {
			*dst, err = envInt(key, def)
		}
	}
	loadDur := func(dst *time.Duration, key string, def time.Duration) {
		if err == nil {
			*dst, err = envDuration(key, def)
		}
	}
	loadBool := func(dst *bool, key string, def bool) {
		if err == nil {
			*dst, err = envBool(key, def)
		}
	}

	load(&cfg.Port, "URBANFLOW_PORT", 8080)
	loadDur(&cfg.ReadTimeout, "URBANFLOW_READ_TIMEOUT", 30*time.Second)
	loadDur(&cfg.WriteTimeout, "URBANFLOW_WRITE_TIMEOUT", 30*time.Second)
	cfg.WorkerCommand = envStr("URBANFLOW_WORKER_COMMAND", "python3 simulation.py")
	cfg.WorkerDir = envStr("URBANFLOW_WORKER_DIR", ".")
	loadDur(&cfg.StopGrace, "URBANFLOW_STOP_GRACE", 3*time.Second)
	load(&cfg.LogTail, "URBANFLOW_LOG_TAIL", 300)
	cfg.DatabasePath = envStr("URBANFLOW_DB_PATH", "urbanflow.db")
	loadBool(&cfg.WikiWarmCache, "URBANFLOW_WIKI_WARM_CACHE", true)
	loadDur(&cfg.WikiTimeout, "URBANFLOW_WIKI_TIMEOUT", 6*time.Second)
	load(&cfg.WikiConcurrent, "URBANFLOW_WIKI_CONCURRENT", 4)
	cfg.OTELEndpoint = envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	loadBool(&cfg.OTELInsecure, "OTEL_EXPORTER_OTLP_INSECURE", false)
	cfg.ServiceName = envStr("OTEL_SERVICE_NAME", "urbanflow")
	cfg.LogLevel = envStr("URBANFLOW_LOG_LEVEL", "info")

	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and coherent.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: URBANFLOW_PORT must be in 1..65535")
	}
	if strings.TrimSpace(c.WorkerCommand) == "" {
		return fmt.Errorf("config: URBANFLOW_WORKER_COMMAND must not be empty")
	}
	if c.StopGrace <= 0 {
		return fmt.Errorf("config: URBANFLOW_STOP_GRACE must be positive")
	}
	if c.LogTail <= 0 {
		return fmt.Errorf("config: URBANFLOW_LOG_TAIL must be positive")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("config: URBANFLOW_DB_PATH is required")
	}
	if c.WikiConcurrent <= 0 {
		return fmt.Errorf("config: URBANFLOW_WIKI_CONCURRENT must be positive")
	}
	return nil
}

// WorkerArgv splits the worker command line into argv form.
func (c Config) WorkerArgv() []string {
	return strings.Fields(c.WorkerCommand)
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
