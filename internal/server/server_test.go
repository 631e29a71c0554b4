package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/climate-studio/atlas/internal/dataset"
	"github.com/climate-studio/atlas/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	views, err := store.NewSQLite(filepath.Join(t.TempDir(), "views.db"))
	require.NoError(t, err)
	require.NoError(t, views.Migrate(context.Background()))
	t.Cleanup(func() { _ = views.Close() })

	return New(dataset.NewService(nil), views, Options{})
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func doRequest(t *testing.T, s *Server, method, path string, body []byte) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec.Code, env
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	code, env := doRequest(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
}

func TestListDatasets(t *testing.T) {
	s := newTestServer(t)
	code, env := doRequest(t, s, http.MethodGet, "/api/v1/datasets", nil)
	require.Equal(t, http.StatusOK, code)

	var out []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Len(t, out, len(dataset.Catalog))
}

func TestGetDatasetDerivesForYearAndScenario(t *testing.T) {
	s := newTestServer(t)
	code, env := doRequest(t, s, http.MethodGet, "/api/v1/datasets/aquifers?year=2025&scenario=ssp245", nil)
	require.Equal(t, http.StatusOK, code)
	require.True(t, env.Success)

	var fc struct {
		Features []struct {
			ID         string         `json:"id"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &fc))
	require.NotEmpty(t, fc.Features)

	var found bool
	for _, f := range fc.Features {
		if f.ID == "ogallala" {
			found = true
			assert.Equal(t, "Critical depletion", f.Properties["class"])
			assert.Equal(t, "#7f1d1d", f.Properties["color"])
		}
	}
	assert.True(t, found)
}

func TestGetDatasetLegacyScenario(t *testing.T) {
	s := newTestServer(t)
	code, env := doRequest(t, s, http.MethodGet, "/api/v1/datasets/rivers?year=2055&scenario=rcp85", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
}

func TestGetDatasetBoundsFilter(t *testing.T) {
	s := newTestServer(t)
	code, env := doRequest(t, s, http.MethodGet,
		"/api/v1/datasets/metros?north=36&south=31&east=-109&west=-115", nil)
	require.Equal(t, http.StatusOK, code)

	var fc struct {
		Features []json.RawMessage `json:"features"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &fc))
	assert.Len(t, fc.Features, 1)
}

func TestGetDatasetUnknownID(t *testing.T) {
	s := newTestServer(t)
	code, env := doRequest(t, s, http.MethodGet, "/api/v1/datasets/volcanoes", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, env.Success)
}

func TestGetDatasetBadYear(t *testing.T) {
	s := newTestServer(t)
	code, env := doRequest(t, s, http.MethodGet, "/api/v1/datasets/aquifers?year=soon", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, env.Success)
}

func TestTooltip(t *testing.T) {
	s := newTestServer(t)
	code, env := doRequest(t, s, http.MethodGet,
		"/api/v1/datasets/metros/entities/phoenix/tooltip?year=2095&scenario=ssp245", nil)
	require.Equal(t, http.StatusOK, code)

	var tip struct {
		Name    string `json:"name"`
		Metrics []struct {
			Property string `json:"property"`
			Display  string `json:"display"`
			Class    string `json:"class"`
		} `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &tip))
	assert.Equal(t, "Phoenix", tip.Name)
	require.Len(t, tip.Metrics, 2)

	byProp := map[string]string{}
	for _, m := range tip.Metrics {
		byProp[m.Property] = m.Class
	}
	assert.Equal(t, "Extreme humid heat", byProp["humidity"])
}

func TestTooltipUnknownEntity(t *testing.T) {
	s := newTestServer(t)
	code, env := doRequest(t, s, http.MethodGet, "/api/v1/datasets/metros/entities/atlantis/tooltip", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, env.Success)
}

func TestViewLifecycle(t *testing.T) {
	s := newTestServer(t)

	payload := []byte(`{
		"name": "Drought 2060",
		"year": 2060,
		"scenario": "ssp585",
		"style_id": "satellite",
		"camera": {"center": [-111.6, 34.8], "zoom": 5.5, "bearing": 0, "pitch": 30},
		"layers": [{"layer_id": "aquifers-fill", "visible": true}]
	}`)

	code, env := doRequest(t, s, http.MethodPost, "/api/v1/views", payload)
	require.Equal(t, http.StatusCreated, code)

	var created store.View
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.NotEmpty(t, created.ID)

	code, env = doRequest(t, s, http.MethodGet, "/api/v1/views/"+created.ID, nil)
	require.Equal(t, http.StatusOK, code)
	var got store.View
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, 2060, got.Year)

	created.Year = 2095
	update, err := json.Marshal(created)
	require.NoError(t, err)
	code, _ = doRequest(t, s, http.MethodPut, "/api/v1/views/"+created.ID, update)
	assert.Equal(t, http.StatusOK, code)

	code, env = doRequest(t, s, http.MethodGet, "/api/v1/views", nil)
	require.Equal(t, http.StatusOK, code)
	var list []store.View
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, 2095, list[0].Year)

	code, _ = doRequest(t, s, http.MethodDelete, "/api/v1/views/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, code)

	code, env = doRequest(t, s, http.MethodGet, "/api/v1/views/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, env.Success)
}

func TestSaveViewRequiresName(t *testing.T) {
	s := newTestServer(t)
	code, env := doRequest(t, s, http.MethodPost, "/api/v1/views", []byte(`{"year": 2050}`))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, env.Success)
}
