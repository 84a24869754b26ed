package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/annel0/terrain-stream/internal/grid"
	"github.com/annel0/terrain-stream/internal/terrain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDirStore(filepath.Join(dir, "maps"), "Azeroth")
	require.NoError(t, err)

	coord := grid.TileCoord{X: 31, Y: 30}
	require.NoError(t, store.SaveTile(testTile(coord)))
	assert.FileExists(t, filepath.Join(dir, "maps", "Azeroth_31_30.tile"))

	p, err := store.Load(context.Background(), coord)
	require.NoError(t, err)
	assert.Equal(t, coord, p.Coord)
	assert.Len(t, p.Units, terrain.UnitsPerTile)
}

func TestDirStoreErrors(t *testing.T) {
	store, err := NewDirStore(t.TempDir(), "Azeroth")
	require.NoError(t, err)

	_, err = store.Load(context.Background(), grid.TileCoord{X: 1, Y: 1})
	assert.ErrorIs(t, err, terrain.ErrNotFound)

	coord := grid.TileCoord{X: 2, Y: 2}
	require.NoError(t, os.WriteFile(store.Path(coord), []byte("мусор"), 0644))
	_, err = store.Load(context.Background(), coord)
	assert.ErrorIs(t, err, terrain.ErrCorrupt)

	var lerr *terrain.LoadError
	assert.False(t, errors.As(err, &lerr), "хранилище не оборачивает ошибки в LoadError")
}

func TestDirStoreCoords(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDirStore(dir, "Azeroth")
	require.NoError(t, err)

	require.NoError(t, store.SaveTile(testTile(grid.TileCoord{X: 5, Y: 1})))
	require.NoError(t, store.SaveTile(testTile(grid.TileCoord{X: 4, Y: 9})))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Kalimdor_1_1.tile"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Azeroth_99_1.tile"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0644))

	coords, err := store.Coords()
	require.NoError(t, err)
	assert.Equal(t, []grid.TileCoord{{X: 4, Y: 9}, {X: 5, Y: 1}}, coords)
}
