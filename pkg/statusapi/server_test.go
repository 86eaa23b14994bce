package statusapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Azure/contentflow-sub002/pkg/supervisor"
)

type fakeLister struct{ processes []supervisor.ProcessStatus }

func (f fakeLister) Snapshot() []supervisor.ProcessStatus { return f.processes }

func TestStatusHandler_ReturnsProcessSnapshot(t *testing.T) {
	lister := fakeLister{processes: []supervisor.ProcessStatus{
		{Name: "processing-worker-0", Running: true, StartedAt: time.Now(), RestartCount: 1},
	}}
	srv := NewServer(lister, "test")

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Processes, 1)
	assert.Equal(t, "processing-worker-0", body.Processes[0].Name)
}

func TestStatusHandler_NilListerReturnsEmptyList(t *testing.T) {
	srv := NewServer(nil, "test")

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Processes)
}

func TestStatusHandler_RejectsNonGet(t *testing.T) {
	srv := NewServer(nil, "test")

	req := httptest.NewRequest(http.MethodPost, "/status", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthAndReadyEndpointsAreWired(t *testing.T) {
	srv := NewServer(nil, "test")

	for _, path := range []string{"/health", "/ready", "/live", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		assert.NotEqual(t, http.StatusNotFound, rec.Code, "expected %s to be routed", path)
	}
}
