package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/annel0/terrain-stream/internal/cellindex"
	"github.com/annel0/terrain-stream/internal/grid"
	"github.com/annel0/terrain-stream/internal/scene"
	"github.com/annel0/terrain-stream/internal/streamer"
	"github.com/annel0/terrain-stream/internal/terrain"
	"github.com/annel0/terrain-stream/internal/tilecache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatus struct {
	st *streamer.Status
}

func (f fakeStatus) Status() *streamer.Status { return f.st }

type residentList []tilecache.ResidentTile

func (r residentList) Resident() []tilecache.ResidentTile { return r }

var testTile = grid.TileCoord{X: 32, Y: 32}

func newTestServer(t *testing.T) *RestServer {
	t.Helper()

	p := &terrain.Payload{Coord: testTile, Name: testTile.Name("Azeroth"), Textures: []string{"grass.blp"}}
	for i := 0; i < terrain.UnitsPerTile; i++ {
		p.Units = append(p.Units, terrain.Unit{Index: i, Position: terrain.UnitCorner(testTile, i), Layers: []uint32{0}})
	}
	idx := cellindex.New(time.Second, nil)
	idx.Rebuild(time.Now(), residentList{{Coord: testTile, Payload: p}})

	reg := scene.NewRegistry(nil)
	reg.Present(testTile, p)

	status := &streamer.Status{
		Position:  grid.WorldPosition{X: -1, Y: -1},
		Center:    testTile,
		Cycles:    12,
		Pending:   1,
		IndexSize: idx.Len(),
		Cache: &tilecache.Snapshot{
			Resident: []grid.TileCoord{testTile},
			Pending:  []grid.TileCoord{{X: 32, Y: 33}},
			Failed:   []tilecache.FailedTile{{Coord: grid.TileCoord{X: 0, Y: 0}, Attempts: 1, Permanent: true, Error: "нет"}},
		},
	}

	return NewRestServer(Config{
		Status:    fakeStatus{st: status},
		Cells:     idx,
		Resources: reg,
		Registry:  prometheus.NewRegistry(),
	})
}

func get(t *testing.T, rs *RestServer, url string) (*httptest.ResponseRecorder, GenericResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	rs.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, url, nil))

	var resp GenericResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestHealth(t *testing.T) {
	w, _ := get(t, newTestServer(t), "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestStatus(t *testing.T) {
	w, resp := get(t, newTestServer(t), "/api/status")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)

	data := resp.Data.(map[string]interface{})
	tiles := data["tiles"].(map[string]interface{})
	assert.Equal(t, 1.0, tiles["resident"])
	assert.Equal(t, 1.0, tiles["pending"])
	assert.Equal(t, 1.0, tiles["failed"])
	assert.Equal(t, 12.0, data["cycles"])
	assert.Equal(t, float64(terrain.UnitsPerTile), data["index_size"])

	resources := data["resources"].(map[string]interface{})
	assert.Equal(t, float64(terrain.UnitsPerTile), resources["live"])
	assert.Contains(t, data["server"], "uptime")
}

func TestTiles(t *testing.T) {
	w, resp := get(t, newTestServer(t), "/api/tiles")
	require.Equal(t, http.StatusOK, w.Code)

	data := resp.Data.(map[string]interface{})
	assert.Len(t, data["resident"], 1)
	failed := data["failed"].([]interface{})
	require.Len(t, failed, 1)
	assert.Equal(t, true, failed[0].(map[string]interface{})["permanent"])
}

func TestCellEndpoint(t *testing.T) {
	rs := newTestServer(t)
	cell := grid.CellOf(terrain.UnitCenter(testTile, 5))

	w, resp := get(t, rs, fmt.Sprintf("/api/cells/%d/%d", cell.X, cell.Y))
	require.Equal(t, http.StatusOK, w.Code)
	entry := resp.Data.(map[string]interface{})["entry"].(map[string]interface{})
	assert.Equal(t, 5.0, entry["unit_index"])
	assert.Equal(t, "Azeroth_32_32", entry["tile_name"])

	w, _ = get(t, rs, "/api/cells/9999/9999")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = get(t, rs, "/api/cells/a/1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLookupEndpoint(t *testing.T) {
	rs := newTestServer(t)

	w, resp := get(t, rs, "/api/lookup?x=-1&y=-1")
	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"X": 0.0, "Y": 0.0}, data["cell"])

	w, _ = get(t, rs, "/api/lookup?x=-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = get(t, rs, "/api/lookup?x=90000&y=90000")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rs := newTestServer(t)
	get(t, rs, "/health")

	w, _ := get(t, rs, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "rest_api_http_request_duration_seconds")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w, _ = get(t, rs, "/api/status")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestTilesUnavailableBeforeFirstSnapshot(t *testing.T) {
	rs := NewRestServer(Config{
		Status:   fakeStatus{st: &streamer.Status{}},
		Cells:    cellindex.New(time.Second, nil),
		Registry: prometheus.NewRegistry(),
	})
	w, resp := get(t, rs, "/api/tiles")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.False(t, resp.Success)
}
