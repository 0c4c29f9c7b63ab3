package run

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/urbanflow/urbanflow/internal/model"
	"github.com/urbanflow/urbanflow/internal/stats"
)

// Environment variable names of the worker contract.
const (
	envSimTime  = "SIM_TIME"
	envMinGreen = "MIN_GREEN_TIME"
	envMaxGreen = "MAX_GREEN_TIME"
)

// maxLineBytes bounds a single worker output line. Longer lines abort
// the scan and are handled as a read failure.
const maxLineBytes = 1024 * 1024

// SupervisorConfig configures worker process launching.
type SupervisorConfig struct {
	// Command is the worker executable and its arguments.
	Command []string
	// Dir is the worker's working directory, normally the application root.
	Dir string
	// StopGrace is how long Stop waits after a termination request
	// before force-killing the worker.
	StopGrace time.Duration
}

// Supervisor launches one worker process per run and owns its
// lifecycle: a dedicated reader goroutine consumes the merged
// stdout/stderr stream line by line, folds each line into the run's
// statistics, and finalizes the run status when the worker exits.
type Supervisor struct {
	reg    *Registry
	cfg    SupervisorConfig
	logger *slog.Logger
}

// NewSupervisor creates a supervisor bound to a registry.
func NewSupervisor(reg *Registry, cfg SupervisorConfig, logger *slog.Logger) *Supervisor {
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 3 * time.Second
	}
	return &Supervisor{reg: reg, cfg: cfg, logger: logger}
}

// Start registers a new run and launches its worker asynchronously.
// It returns as soon as the record exists; the run proceeds in the
// background.
func (s *Supervisor) Start(params model.RunParams) model.RunSnapshot {
	rec := s.reg.Create(params)
	s.logger.Info("run started",
		"run_id", rec.id,
		"sim_time", params.SimTime,
		"min_green", params.MinGreen,
		"max_green", params.MaxGreen)
	go s.supervise(rec)
	return rec.snapshot(0)
}

// Stop requests termination of a run's worker. When a live process is
// found it appends a log line, asks the worker to terminate, waits up
// to the grace period and force-kills if needed. The status is pinned
// to stopped and the handle cleared either way, so stopping an
// already-finished run is a harmless bookkeeping update. Returns false
// when the run ID is unknown.
func (s *Supervisor) Stop(id uuid.UUID) (model.RunStatus, bool) {
	rec, ok := s.reg.Get(id)
	if !ok {
		return "", false
	}

	rec.mu.Lock()
	proc := rec.proc
	done := rec.done
	live := proc != nil && processAlive(proc)
	if live {
		rec.log = append(rec.log, "[system] stop requested by user")
	}
	// Pin the status before the grace wait so the reader's end-of-stream
	// finalization defers to it instead of the worker's exit code.
	rec.status = model.RunStatusStopped
	rec.proc = nil
	rec.mu.Unlock()

	if live {
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			s.logger.Warn("terminate signal failed", "run_id", id, "error", err)
		}
		select {
		case <-done:
		case <-time.After(s.cfg.StopGrace):
			s.logger.Warn("worker ignored terminate, killing", "run_id", id)
			_ = proc.Kill()
		}
	}

	s.logger.Info("run stopped", "run_id", id)
	return model.RunStatusStopped, true
}

// StopAll stops every run still executing. Used during shutdown so no
// worker process outlives the server.
func (s *Supervisor) StopAll() {
	for _, rec := range s.reg.active() {
		s.Stop(rec.id)
	}
}

// supervise runs on the reader goroutine and owns the worker process
// from spawn to reap. Every failure is contained to the record; nothing
// escapes this goroutine.
func (s *Supervisor) supervise(rec *Record) {
	defer close(rec.done)

	cmd := exec.Command(s.cfg.Command[0], s.cfg.Command[1:]...)
	cmd.Dir = s.cfg.Dir
	cmd.Env = workerEnv(os.Environ(), rec.params)

	// One pipe carries both streams so log order matches what a
	// terminal would show.
	pr, pw, err := os.Pipe()
	if err != nil {
		s.fail(rec, err)
		return
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		_ = pr.Close()
		s.fail(rec, err)
		return
	}
	// The child holds the write end now; closing ours makes the read
	// end report EOF when the worker exits.
	_ = pw.Close()

	rec.mu.Lock()
	rec.proc = cmd.Process
	rec.mu.Unlock()

	scanner := bufio.NewScanner(pr)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		s.consumeLine(rec, scanner.Text())
	}
	scanErr := scanner.Err()
	_ = pr.Close()

	waitErr := cmd.Wait()

	if scanErr != nil {
		s.fail(rec, scanErr)
		return
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	switch {
	case rec.status == model.RunStatusStopped:
		rec.log = append(rec.log, "[system] simulation halted by user")
	case rec.status.Terminal():
		// Grammar detection already finalized; the exit code is
		// informational only.
	case waitErr == nil:
		rec.status = model.RunStatusFinished
	default:
		rec.log = append(rec.log, fmt.Sprintf("[system] worker exited abnormally: %v", waitErr))
		rec.status = model.RunStatusError
	}
	rec.proc = nil
	s.logger.Info("run finished", "run_id", rec.id, "status", rec.status)
}

// consumeLine applies one worker output line to the record. Log append,
// stats fold and completion check happen in a single locked scope so no
// reader can observe a half-applied line.
func (s *Supervisor) consumeLine(rec *Record, line string) {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.log = append(rec.log, line)
	updated, ev := stats.Apply(line, rec.stats, rec.params)
	rec.stats = updated
	if ev == stats.EventComplete && !rec.status.Terminal() {
		rec.status = model.RunStatusFinished
	}
}

// fail records a spawn or read failure on the run and releases the
// process handle. The run ends in error status; the server keeps going.
func (s *Supervisor) fail(rec *Record, err error) {
	rec.mu.Lock()
	rec.log = append(rec.log, fmt.Sprintf("[backend error] %v", err))
	if !rec.status.Terminal() {
		rec.status = model.RunStatusError
	}
	rec.proc = nil
	rec.mu.Unlock()
	s.logger.Error("run failed", "run_id", rec.id, "error", err)
}

// workerEnv builds the worker's environment from the run parameters.
// Display and audio backends are forced to dummy drivers when no
// display is attached so the worker never tries to open a window.
func workerEnv(base []string, params model.RunParams) []string {
	env := append([]string(nil), base...)
	env = append(env,
		envSimTime+"="+strconv.Itoa(params.SimTime),
		envMinGreen+"="+strconv.Itoa(params.MinGreen),
		envMaxGreen+"="+strconv.Itoa(params.MaxGreen),
	)
	env = setDefault(env, "PYGAME_HIDE_SUPPORT_PROMPT", "1")
	if lookup(env, "DISPLAY") == "" && runtime.GOOS != "windows" {
		env = setDefault(env, "SDL_VIDEODRIVER", "dummy")
		env = setDefault(env, "SDL_AUDIODRIVER", "dummy")
	}
	return env
}

func lookup(env []string, key string) string {
	prefix := key + "="
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			return kv[len(prefix):]
		}
	}
	return ""
}

func setDefault(env []string, key, value string) []string {
	if lookup(env, key) != "" {
		return env
	}
	return append(env, key+"="+value)
}

// processAlive is a non-blocking liveness probe (signal 0).
func processAlive(p *os.Process) bool {
	return p.Signal(syscall.Signal(0)) == nil
}
