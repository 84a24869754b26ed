package streamer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/annel0/terrain-stream/internal/cellindex"
	"github.com/annel0/terrain-stream/internal/config"
	"github.com/annel0/terrain-stream/internal/grid"
	"github.com/annel0/terrain-stream/internal/scene"
	"github.com/annel0/terrain-stream/internal/storage"
	"github.com/annel0/terrain-stream/internal/terrain"
	"github.com/annel0/terrain-stream/internal/tilecache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStreamer(t *testing.T, radius int, edge string) (*Streamer, *tilecache.Cache, *scene.Registry) {
	t.Helper()
	gen := storage.NewGenerator(storage.GeneratorOptions{MapName: "Azeroth", Seed: 5})
	reg := scene.NewRegistry(nil)
	cache := tilecache.New(gen, reg, tilecache.DefaultOptions())
	t.Cleanup(cache.Close)

	idx := cellindex.New(0, nil)
	return New(cache, idx, Options{Radius: radius, EdgePolicy: edge}), cache, reg
}

// stepUntil повторяет цикл в одной позиции, пока не уйдут все ожидающие загрузки
func stepUntil(t *testing.T, s *Streamer, pos grid.WorldPosition) CycleReport {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		report, err := s.Step(pos)
		require.NoError(t, err)
		if s.Status().Pending == 0 && report.Poll == (tilecache.PollReport{}) {
			return report
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("загрузки не завершились")
	return CycleReport{}
}

func TestStepLoadsWindowAndIndexes(t *testing.T) {
	s, cache, reg := newTestStreamer(t, 2, config.EdgeReject)
	// окно не пересекает нулевые оси мира, поэтому ячейки юнитов не совпадают
	pos := grid.TileCenter(grid.TileCoord{X: 10, Y: 10})

	report, err := s.Step(pos)
	require.NoError(t, err)
	assert.Equal(t, grid.TileCoord{X: 10, Y: 10}, report.Center)
	assert.Equal(t, 9, report.Desired)
	assert.Equal(t, 9, report.Reconcile.Requested)

	stepUntil(t, s, pos)
	st := s.Status()
	assert.Len(t, st.Cache.Resident, 9)
	assert.Equal(t, 9*terrain.UnitsPerTile, st.IndexSize)
	assert.Equal(t, 9, reg.Stats().Tiles)
	assert.Len(t, cache.Resident(), 9)

	e, ok := s.index.LookupPosition(pos)
	require.True(t, ok)
	assert.Equal(t, grid.TileCoord{X: 10, Y: 10}, e.Tile)
}

func TestMovingEvictsOldTiles(t *testing.T) {
	s, cache, reg := newTestStreamer(t, 0, config.EdgeReject)

	stepUntil(t, s, grid.TileCenter(grid.TileCoord{X: 5, Y: 5}))
	assert.Equal(t, tilecache.StateResident, cache.State(grid.TileCoord{X: 5, Y: 5}))

	report, err := s.Step(grid.TileCenter(grid.TileCoord{X: 6, Y: 6}))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Reconcile.Evicted)
	assert.Equal(t, tilecache.StateAbsent, cache.State(grid.TileCoord{X: 5, Y: 5}))

	stepUntil(t, s, grid.TileCenter(grid.TileCoord{X: 6, Y: 6}))
	stats := reg.Stats()
	assert.Equal(t, 1, stats.Tiles)
	assert.Equal(t, stats.Issued-stats.Released, uint64(stats.Live))
}

func TestStepOutsideWorld(t *testing.T) {
	s, _, _ := newTestStreamer(t, 2, config.EdgeReject)

	_, err := s.Step(grid.WorldPosition{X: 1e6, Y: 0})
	assert.ErrorIs(t, err, ErrOutsideWorld)
	assert.Contains(t, s.Status().LastError, "вне мира")
}

func TestEdgePolicies(t *testing.T) {
	edge := grid.TileCenter(grid.TileCoord{X: 0, Y: 0})

	s, _, _ := newTestStreamer(t, 2, config.EdgeReject)
	_, err := s.Step(edge)
	assert.ErrorIs(t, err, grid.ErrWindowOutOfBounds)
	var werr *grid.WindowError
	assert.True(t, errors.As(err, &werr))

	s, _, _ = newTestStreamer(t, 2, config.EdgeClip)
	report, err := s.Step(edge)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Desired)
}

func TestRunStopsOnCancel(t *testing.T) {
	s, _, _ := newTestStreamer(t, 1, config.EdgeReject)
	path := NewPath([]grid.WorldPosition{{X: -1, Y: -1}, {X: 600, Y: -1}}, 1000)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := s.Run(ctx, path, 5*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, s.Status().Cycles, uint64(0))
}

func TestPathAdvanceLoops(t *testing.T) {
	p := NewPath([]grid.WorldPosition{{X: 0}, {X: 10}}, 5)

	assert.InDelta(t, 5.0, p.Advance(time.Second).X, 1e-9)
	assert.InDelta(t, 10.0, p.Advance(time.Second).X, 1e-9)
	// после последней точки маршрут возвращается к первой
	assert.InDelta(t, 7.5, p.Advance(500*time.Millisecond).X, 1e-9)
	assert.InDelta(t, 2.5, p.Advance(time.Second).X, 1e-9)
}

func TestPathDegenerate(t *testing.T) {
	single := NewPath([]grid.WorldPosition{{X: 3, Y: 4}}, 10)
	assert.Equal(t, grid.WorldPosition{X: 3, Y: 4}, single.Advance(time.Second))

	same := NewPath([]grid.WorldPosition{{X: 1}, {X: 1}}, 10)
	assert.Equal(t, grid.WorldPosition{X: 1}, same.Advance(time.Second))

	empty := NewPath(nil, 10)
	assert.Equal(t, grid.WorldPosition{}, empty.Advance(time.Second))
}
