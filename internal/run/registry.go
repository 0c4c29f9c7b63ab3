// Package run owns simulation run state: the registry mapping run IDs
// to records, and the supervisor that spawns and reaps the worker
// process for each run.
package run

import (
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/urbanflow/urbanflow/internal/model"
)

// Record is the owned state of one simulation run. The mutable fields
// (status, log, stats, proc) are guarded by mu; every mutation and
// every multi-field read happens under it, so a snapshot can never
// observe a torn combination such as a finished status with stale
// stats.
type Record struct {
	id     uuid.UUID
	params model.RunParams

	mu     sync.Mutex
	status model.RunStatus
	log    []string
	stats  model.Stats
	proc   *os.Process

	// done is closed once the reader goroutine has reaped the worker.
	// Stop waits on it (bounded) after requesting termination.
	done chan struct{}
}

// ID returns the run's immutable identifier.
func (r *Record) ID() uuid.UUID { return r.id }

// Status returns the current status under the record lock.
func (r *Record) Status() model.RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// snapshot captures a consistent view of the record. tail bounds the
// number of most recent log lines copied; tail <= 0 means all lines.
// The stored log is never mutated or aliased.
func (r *Record) snapshot(tail int) model.RunSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	lines := r.log
	if tail > 0 && len(lines) > tail {
		lines = lines[len(lines)-tail:]
	}
	logCopy := make([]string, len(lines))
	copy(logCopy, lines)

	return model.RunSnapshot{
		ID:     r.id,
		Status: r.status,
		Params: r.params,
		Log:    logCopy,
		Stats:  r.stats.Clone(),
	}
}

// Registry is the single source of truth mapping run ID to record.
// Records are retained for the process lifetime; there is no eviction,
// so the map grows with every run started (known resource-growth
// concern, accepted for now).
type Registry struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]*Record
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{runs: make(map[uuid.UUID]*Record)}
}

// Create allocates a fresh run record in running status with zeroed
// statistics and registers it.
func (g *Registry) Create(params model.RunParams) *Record {
	rec := &Record{
		id:     uuid.New(),
		params: params,
		status: model.RunStatusRunning,
		stats:  model.NewStats(),
		done:   make(chan struct{}),
	}
	g.mu.Lock()
	g.runs[rec.id] = rec
	g.mu.Unlock()
	return rec
}

// Get looks up a record by ID.
func (g *Registry) Get(id uuid.UUID) (*Record, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, ok := g.runs[id]
	return rec, ok
}

// Snapshot returns a consistent view of the run with the log truncated
// to the most recent tail lines. The second return is false when the
// ID is unknown.
func (g *Registry) Snapshot(id uuid.UUID, tail int) (model.RunSnapshot, bool) {
	rec, ok := g.Get(id)
	if !ok {
		return model.RunSnapshot{}, false
	}
	return rec.snapshot(tail), true
}

// active returns the records still in running status.
func (g *Registry) active() []*Record {
	g.mu.RLock()
	recs := make([]*Record, 0, len(g.runs))
	for _, rec := range g.runs {
		recs = append(recs, rec)
	}
	g.mu.RUnlock()

	out := recs[:0]
	for _, rec := range recs {
		if rec.Status() == model.RunStatusRunning {
			out = append(out, rec)
		}
	}
	return out
}

// ActiveCount reports how many runs are still in running status.
func (g *Registry) ActiveCount() int {
	return len(g.active())
}
