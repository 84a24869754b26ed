package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/annel0/terrain-stream/internal/grid"
	"github.com/annel0/terrain-stream/internal/terrain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorDeterministic(t *testing.T) {
	opts := GeneratorOptions{MapName: "Azeroth", Seed: 42}
	coord := grid.TileCoord{X: 32, Y: 32}

	a, err := NewGenerator(opts).Load(context.Background(), coord)
	require.NoError(t, err)
	b, err := NewGenerator(opts).Load(context.Background(), coord)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a.Units, terrain.UnitsPerTile)
	assert.Equal(t, "Azeroth_32_32", a.Name)
	for i, u := range a.Units {
		assert.Equal(t, i, u.Index)
		assert.LessOrEqual(t, u.MinHeight, u.MaxHeight)
		assert.NotEmpty(t, a.LayerTextures(u))
	}
}

func TestGeneratorUnitsInsideTile(t *testing.T) {
	coord := grid.TileCoord{X: 20, Y: 40}
	p, err := NewGenerator(GeneratorOptions{Seed: 1}).Load(context.Background(), coord)
	require.NoError(t, err)

	// центр юнита лежит внутри тайла
	for _, u := range p.Units {
		center := u.Position
		center.X -= grid.CellSize / 2
		center.Y -= grid.CellSize / 2
		assert.Equal(t, coord, grid.TileOf(center))
	}
}

func TestGeneratorOceanIsNotFound(t *testing.T) {
	g := NewGenerator(GeneratorOptions{Seed: 42, SeaLevel: 1.01})
	_, err := g.Load(context.Background(), grid.TileCoord{X: 10, Y: 10})
	assert.ErrorIs(t, err, terrain.ErrNotFound)

	_, err = NewGenerator(GeneratorOptions{}).Load(context.Background(), grid.TileCoord{X: 64, Y: 0})
	assert.ErrorIs(t, err, terrain.ErrNotFound)
}

func TestGeneratorSeaLevelSplitsWorld(t *testing.T) {
	g := NewGenerator(GeneratorOptions{Seed: 3, SeaLevel: 0.5})
	land := 0
	for x := uint32(0); x < grid.GridExtent; x++ {
		for y := uint32(0); y < grid.GridExtent; y++ {
			if g.IsLand(grid.TileCoord{X: x, Y: y}) {
				land++
			}
		}
	}
	assert.Greater(t, land, 0)
	assert.Less(t, land, grid.GridExtent*grid.GridExtent)
}

func TestGeneratorHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewGenerator(GeneratorOptions{}).Load(ctx, grid.TileCoord{X: 1, Y: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

type countingSource struct {
	mu    sync.Mutex
	calls int
	inner terrain.Source
}

func (s *countingSource) Load(ctx context.Context, coord grid.TileCoord) (*terrain.Payload, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.inner.Load(ctx, coord)
}

func TestMemoServesRepeatedLoads(t *testing.T) {
	src := &countingSource{inner: NewGenerator(GeneratorOptions{MapName: "Azeroth"})}
	memo, err := NewMemo(src, 64*terrain.UnitsPerTile)
	require.NoError(t, err)
	defer memo.Close()

	coord := grid.TileCoord{X: 30, Y: 30}
	first, err := memo.Load(context.Background(), coord)
	require.NoError(t, err)
	second, err := memo.Load(context.Background(), coord)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, src.calls)
	hits, misses := memo.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestMemoDoesNotCacheErrors(t *testing.T) {
	src := &countingSource{inner: NewGenerator(GeneratorOptions{SeaLevel: 2})}
	memo, err := NewMemo(src, 1024)
	require.NoError(t, err)
	defer memo.Close()

	for i := 0; i < 2; i++ {
		_, err := memo.Load(context.Background(), grid.TileCoord{X: 1, Y: 1})
		assert.ErrorIs(t, err, terrain.ErrNotFound)
	}
	assert.Equal(t, 2, src.calls)

	_, err = NewMemo(src, 0)
	assert.Error(t, err)
}

func TestOpenSources(t *testing.T) {
	o, err := Open(Options{Kind: KindSynthetic, MapName: "Azeroth", MemoMaxCost: 4096})
	require.NoError(t, err)
	assert.NotNil(t, o.Memo)
	_, err = o.Source.Load(context.Background(), grid.TileCoord{X: 32, Y: 32})
	assert.NoError(t, err)
	assert.NoError(t, o.Close())

	o, err = Open(Options{Kind: KindBadger, Path: t.TempDir()})
	require.NoError(t, err)
	_, err = o.Source.Load(context.Background(), grid.TileCoord{X: 32, Y: 32})
	assert.ErrorIs(t, err, terrain.ErrNotFound)
	assert.NoError(t, o.Close())

	o, err = Open(Options{Kind: KindDir, Path: t.TempDir(), MapName: "Azeroth"})
	require.NoError(t, err)
	assert.IsType(t, &DirStore{}, o.Source)
	assert.NoError(t, o.Close())

	_, err = Open(Options{Kind: "ftp"})
	assert.Error(t, err)
}
