package run_test

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanflow/urbanflow/internal/model"
	"github.com/urbanflow/urbanflow/internal/run"
)

func TestRegistryCreateAndSnapshot(t *testing.T) {
	reg := run.NewRegistry()
	params := model.RunParams{SimTime: 90, MinGreen: 5, MaxGreen: 30}

	rec := reg.Create(params)
	require.NotEqual(t, uuid.Nil, rec.ID())

	snap, ok := reg.Snapshot(rec.ID(), 0)
	require.True(t, ok)
	assert.Equal(t, rec.ID(), snap.ID)
	assert.Equal(t, model.RunStatusRunning, snap.Status)
	assert.Equal(t, params, snap.Params)
	assert.Empty(t, snap.Log)
	assert.Equal(t, model.NewStats(), snap.Stats)
}

func TestRegistryUnknownID(t *testing.T) {
	reg := run.NewRegistry()
	_, ok := reg.Snapshot(uuid.New(), 0)
	assert.False(t, ok)
	_, ok = reg.Get(uuid.New())
	assert.False(t, ok)
}

func TestRegistryDistinctIDs(t *testing.T) {
	reg := run.NewRegistry()
	a := reg.Create(model.DefaultRunParams())
	b := reg.Create(model.DefaultRunParams())
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestRegistryConcurrentCreate(t *testing.T) {
	reg := run.NewRegistry()
	const n = 50
	ids := make(chan uuid.UUID, n)
	for i := 0; i < n; i++ {
		go func() {
			ids <- reg.Create(model.DefaultRunParams()).ID()
		}()
	}
	seen := make(map[uuid.UUID]bool, n)
	for i := 0; i < n; i++ {
		id := <-ids
		require.False(t, seen[id], "duplicate run id")
		seen[id] = true
		_, ok := reg.Get(id)
		assert.True(t, ok)
	}
}

func TestSnapshotLogTail(t *testing.T) {
	reg := run.NewRegistry()
	sup := newTestSupervisor(t, reg, shellWorker(`
		i=0
		while [ $i -lt 20 ]; do
			echo "line $i"
			i=$((i+1))
		done
	`))

	snap := sup.Start(model.DefaultRunParams())
	waitForStatus(t, reg, snap.ID, model.RunStatusFinished)

	full, ok := reg.Snapshot(snap.ID, 0)
	require.True(t, ok)
	require.Len(t, full.Log, 20)

	tail, ok := reg.Snapshot(snap.ID, 5)
	require.True(t, ok)
	require.Len(t, tail.Log, 5)
	for i, line := range tail.Log {
		assert.Equal(t, fmt.Sprintf("line %d", 15+i), line)
	}

	// Tailing must not have truncated the stored log.
	again, ok := reg.Snapshot(snap.ID, 0)
	require.True(t, ok)
	assert.Len(t, again.Log, 20)
}

func TestSnapshotIsIsolatedCopy(t *testing.T) {
	reg := run.NewRegistry()
	sup := newTestSupervisor(t, reg, shellWorker(`echo "LANE_STATS lane=1 total=4"`))

	snap := sup.Start(model.DefaultRunParams())
	waitForStatus(t, reg, snap.ID, model.RunStatusFinished)

	first, _ := reg.Snapshot(snap.ID, 0)
	first.Stats.Lanes[1] = 999
	first.Log[0] = "tampered"

	second, _ := reg.Snapshot(snap.ID, 0)
	assert.Equal(t, 4, second.Stats.Lanes[1])
	assert.Equal(t, "LANE_STATS lane=1 total=4", second.Log[0])
}
