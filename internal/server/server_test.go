package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanflow/urbanflow/internal/cities"
	"github.com/urbanflow/urbanflow/internal/model"
	"github.com/urbanflow/urbanflow/internal/run"
	"github.com/urbanflow/urbanflow/internal/storage"
	"github.com/urbanflow/urbanflow/migrations"
	"github.com/urbanflow/urbanflow/ui"
)

// newTestServer wires a full server over an in-memory dataset and a
// shell-script worker.
func newTestServer(t *testing.T, workerScript string) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	db, err := storage.Open(ctx, ":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.RunMigrations(ctx, migrations.FS))
	require.NoError(t, db.Seed(ctx))

	registry := run.NewRegistry()
	supervisor := run.NewSupervisor(registry, run.SupervisorConfig{
		Command:   []string{"/bin/sh", "-c", workerScript},
		Dir:       t.TempDir(),
		StopGrace: 2 * time.Second,
	}, logger)

	templatesFS, err := ui.TemplatesFS()
	require.NoError(t, err)

	srv, err := New(ServerConfig{
		Registry:    registry,
		Supervisor:  supervisor,
		CitySvc:     cities.NewService(db, cities.NewImageCache(), logger),
		DB:          db,
		TemplatesFS: templatesFS,
		Logger:      logger,
		Port:        0,
		Version:     "test",
		LogTail:     300,
	})
	require.NoError(t, err)
	return srv
}

func doJSON(t *testing.T, h http.Handler, method, path string, body string) (*httptest.ResponseRecorder, json.RawMessage, model.ErrorDetail) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var envelope struct {
		Data  json.RawMessage   `json:"data"`
		Error model.ErrorDetail `json:"error"`
		Meta  model.ResponseMeta
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope), rec.Body.String())
	return rec, envelope.Data, envelope.Error
}

func TestStartAndPollRun(t *testing.T) {
	srv := newTestServer(t, `
		echo "Total vehicles passed: 40"
		echo "Total time passed: 80"
		echo "SIMULATION_COMPLETE"
	`)
	h := srv.Handler()

	rec, data, _ := doJSON(t, h, http.MethodPost, "/api/run", `{"sim_time": 100}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var started model.StartRunResponse
	require.NoError(t, json.Unmarshal(data, &started))
	assert.Equal(t, model.RunStatusRunning, started.Status)

	var snap model.RunSnapshot
	require.Eventually(t, func() bool {
		rec, data, _ := doJSON(t, h, http.MethodGet, "/api/status/"+started.RunID.String(), "")
		if rec.Code != http.StatusOK {
			return false
		}
		require.NoError(t, json.Unmarshal(data, &snap))
		return snap.Status == model.RunStatusFinished
	}, 10*time.Second, 20*time.Millisecond)

	assert.Equal(t, 40, snap.Stats.TotalVehicles)
	assert.Equal(t, 80, snap.Stats.TotalTime)
	assert.Equal(t, 2.0, snap.Stats.AverageWait)
	assert.Contains(t, strings.Join(snap.Log, "\n"), "SIMULATION_COMPLETE")
}

func TestStartRunEmptyBodyUsesDefaults(t *testing.T) {
	srv := newTestServer(t, `echo "SIM_TIME=$SIM_TIME"`)
	h := srv.Handler()

	rec, data, _ := doJSON(t, h, http.MethodPost, "/api/run", "")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var started model.StartRunResponse
	require.NoError(t, json.Unmarshal(data, &started))

	require.Eventually(t, func() bool {
		_, data, _ := doJSON(t, h, http.MethodGet, "/api/status/"+started.RunID.String(), "")
		var snap model.RunSnapshot
		require.NoError(t, json.Unmarshal(data, &snap))
		return snap.Status == model.RunStatusFinished &&
			strings.Contains(strings.Join(snap.Log, "\n"), "SIM_TIME=120")
	}, 10*time.Second, 20*time.Millisecond)
}

func TestStartRunRejectsBadInput(t *testing.T) {
	srv := newTestServer(t, `true`)
	h := srv.Handler()

	rec, _, errDetail := doJSON(t, h, http.MethodPost, "/api/run", `{"sim_time": -5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, model.ErrCodeInvalidInput, errDetail.Code)

	rec, _, errDetail = doJSON(t, h, http.MethodPost, "/api/run", `{"min_green": 30, "max_green": 10}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, model.ErrCodeInvalidInput, errDetail.Code)

	rec, _, errDetail = doJSON(t, h, http.MethodPost, "/api/run", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, model.ErrCodeInvalidInput, errDetail.Code)

	rec, _, errDetail = doJSON(t, h, http.MethodPost, "/api/run", `{"unknown_field": 1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, model.ErrCodeInvalidInput, errDetail.Code)
}

func TestRunStatusErrors(t *testing.T) {
	srv := newTestServer(t, `true`)
	h := srv.Handler()

	rec, _, errDetail := doJSON(t, h, http.MethodGet, "/api/status/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, model.ErrCodeInvalidInput, errDetail.Code)

	rec, _, errDetail = doJSON(t, h, http.MethodGet, "/api/status/6a0f0cfe-54a6-44cf-a261-1ad1ee18efd1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, model.ErrCodeNotFound, errDetail.Code)
}

func TestStopRun(t *testing.T) {
	srv := newTestServer(t, `
		echo "started"
		sleep 30
	`)
	h := srv.Handler()

	_, data, _ := doJSON(t, h, http.MethodPost, "/api/run", "")
	var started model.StartRunResponse
	require.NoError(t, json.Unmarshal(data, &started))

	// Wait for the worker to come up before stopping it.
	require.Eventually(t, func() bool {
		_, data, _ := doJSON(t, h, http.MethodGet, "/api/status/"+started.RunID.String(), "")
		var snap model.RunSnapshot
		require.NoError(t, json.Unmarshal(data, &snap))
		return len(snap.Log) > 0
	}, 10*time.Second, 20*time.Millisecond)

	rec, data, _ := doJSON(t, h, http.MethodPost, "/api/stop/"+started.RunID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var stopped model.StopRunResponse
	require.NoError(t, json.Unmarshal(data, &stopped))
	assert.Equal(t, model.RunStatusStopped, stopped.Status)

	_, data, _ = doJSON(t, h, http.MethodGet, "/api/status/"+started.RunID.String(), "")
	var snap model.RunSnapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, model.RunStatusStopped, snap.Status)
	assert.Contains(t, strings.Join(snap.Log, "\n"), "stop requested by user")

	rec, _, errDetail := doJSON(t, h, http.MethodPost, "/api/stop/6a0f0cfe-54a6-44cf-a261-1ad1ee18efd1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, model.ErrCodeNotFound, errDetail.Code)
}

func TestCitiesAPI(t *testing.T) {
	srv := newTestServer(t, `true`)
	h := srv.Handler()

	rec, data, _ := doJSON(t, h, http.MethodGet, "/api/cities", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list model.CityListResponse
	require.NoError(t, json.Unmarshal(data, &list))
	assert.Positive(t, list.Count)
	assert.Len(t, list.Items, list.Count)

	rec, data, _ = doJSON(t, h, http.MethodGet, "/api/cities?q=maharashtra", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(data, &list))
	require.NotEmpty(t, list.Items)
	for _, item := range list.Items {
		assert.Equal(t, "Maharashtra", item.State)
	}

	rec, data, _ = doJSON(t, h, http.MethodGet, "/api/cities/delhi", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var city model.CityPayload
	require.NoError(t, json.Unmarshal(data, &city))
	assert.Equal(t, "Delhi", city.City)
	assert.NotEmpty(t, city.Suitability.Priority)

	rec, _, errDetail := doJSON(t, h, http.MethodGet, "/api/cities/atlantis", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, model.ErrCodeNotFound, errDetail.Code)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, `true`)

	rec, data, _ := doJSON(t, srv.Handler(), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var health model.HealthResponse
	require.NoError(t, json.Unmarshal(data, &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "connected", health.Database)
	assert.Equal(t, "test", health.Version)
	assert.Equal(t, 0, health.ActiveRuns)
}

func TestPages(t *testing.T) {
	srv := newTestServer(t, `true`)
	h := srv.Handler()

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	for _, path := range []string{"/", "/dashboard", "/cities", "/cities/delhi", "/awareness", "/about", "/resources"} {
		rec := get(path)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html", path)
		assert.Contains(t, rec.Body.String(), "UrbanFlow", path)
	}

	assert.Contains(t, get("/cities").Body.String(), "Delhi")
	assert.Contains(t, get("/cities?q=maharashtra").Body.String(), "Mumbai")
	assert.Contains(t, get("/cities/delhi").Body.String(), "India Gate")
	assert.Equal(t, http.StatusNotFound, get("/cities/atlantis").Code)
	assert.Equal(t, http.StatusNotFound, get("/nope").Code)
}

func TestSecurityHeaders(t *testing.T) {
	srv := newTestServer(t, `true`)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestIDPassthrough(t *testing.T) {
	srv := newTestServer(t, `true`)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "given-id")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "given-id", rec.Header().Get("X-Request-ID"))

	var envelope model.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "given-id", envelope.Meta.RequestID)
}
