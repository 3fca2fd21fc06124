package httpadapter_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pnhp/nha-sync/internal/adapter/httpadapter"
	"github.com/pnhp/nha-sync/internal/pipeline"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockStatus []pipeline.JobStatus

func (m mockStatus) Status() []pipeline.JobStatus { return m }

func get(t *testing.T, srv *httpadapter.Server, path string) (int, map[string]string) {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHealthzReturns200(t *testing.T) {
	srv := httpadapter.NewServer(":0", slog.Default(), nil, &mockReadiness{err: errors.New("first pass running")})

	code, body := get(t, srv, "/healthz")

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenAllReady(t *testing.T) {
	srv := httpadapter.NewServer(":0", slog.Default(), nil, &mockReadiness{}, &mockReadiness{})

	code, body := get(t, srv, "/readyz")

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenAnyNotReady(t *testing.T) {
	srv := httpadapter.NewServer(":0", slog.Default(), nil,
		&mockReadiness{},
		&mockReadiness{err: errors.New("first pass running")},
		&mockReadiness{err: errors.New("database unreachable")},
	)

	code, body := get(t, srv, "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "first pass running\ndatabase unreachable", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := httpadapter.NewServer(":0", slog.Default(), nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStatusListsJobs(t *testing.T) {
	ran := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
	srv := httpadapter.NewServer(":0", slog.Default(), mockStatus{
		{Job: "refs", LastRun: &ran, LastSuccess: &ran, Attempts: 1},
		{Job: "prioritize", LastRun: &ran, Attempts: 3, LastError: "sink unavailable"},
	})
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Jobs []pipeline.JobStatus `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Jobs, 2)
	assert.Equal(t, "refs", body.Jobs[0].Job)
	assert.True(t, ran.Equal(*body.Jobs[0].LastSuccess))
	assert.Equal(t, "sink unavailable", body.Jobs[1].LastError)
	assert.Nil(t, body.Jobs[1].LastSuccess)
}

func TestStatusOmittedWithoutReporter(t *testing.T) {
	srv := httpadapter.NewServer(":0", slog.Default(), nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
