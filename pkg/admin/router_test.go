package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusd/nexusd/pkg/config"
	"github.com/nexusd/nexusd/pkg/engine"
)

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	cfg := config.GetDefaultConfig()
	cfg.StateStore.Path = t.TempDir()
	cfg.Nexuses = []config.NexusConfig{{
		Name:      "n0",
		SizeBytes: 16 * 1024 * 1024,
		ChildURIs: []string{
			"malloc:///admin-c0?size_mb=32",
			"malloc:///admin-c1?size_mb=32",
		},
		LabelMode: "create",
	}}

	e, err := engine.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestHealthz(t *testing.T) {
	r := NewRouter(testEngine(t))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNexusStatus(t *testing.T) {
	r := NewRouter(testEngine(t))

	req := httptest.NewRequest(http.MethodGet, "/v1/nexus/n0", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var status nexusStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "n0", status.Name)
	assert.Len(t, status.Children, 2)
}

func TestNexusStatus_NotFound(t *testing.T) {
	r := NewRouter(testEngine(t))

	req := httptest.NewRequest(http.MethodGet, "/v1/nexus/missing", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChildrenEndpoint(t *testing.T) {
	r := NewRouter(testEngine(t))

	req := httptest.NewRequest(http.MethodGet, "/v1/nexus/n0/children", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var children []childStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &children))
	assert.Len(t, children, 2)
}

func TestRebuildsEndpoint_Empty(t *testing.T) {
	r := NewRouter(testEngine(t))

	req := httptest.NewRequest(http.MethodGet, "/v1/nexus/n0/rebuilds", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var jobs []rebuildStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	assert.Empty(t, jobs)
}

func TestMetricsEndpoint_DisabledByDefault(t *testing.T) {
	r := NewRouter(testEngine(t))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
