package storage

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/annel0/terrain-stream/internal/grid"
	"github.com/annel0/terrain-stream/internal/terrain"
	"github.com/dgraph-io/ristretto/v2"
)

// Memo кеширует декодированные тайлы перед любым источником.
// Возвращаемые тайлы общие для всех вызывающих и не должны изменяться.
type Memo struct {
	source terrain.Source
	cache  *ristretto.Cache[uint64, *terrain.Payload]
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewMemo создаёт кеш с бюджетом maxCost юнитов
func NewMemo(source terrain.Source, maxCost int64) (*Memo, error) {
	if maxCost <= 0 {
		return nil, fmt.Errorf("бюджет кеша тайлов должен быть положительным: %d", maxCost)
	}
	cache, err := ristretto.NewCache[uint64, *terrain.Payload](&ristretto.Config[uint64, *terrain.Payload]{
		NumCounters: max(10*maxCost/terrain.UnitsPerTile, 100),
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("не удалось создать кеш тайлов: %w", err)
	}
	return &Memo{source: source, cache: cache}, nil
}

// Load возвращает тайл из кеша или загружает его из источника
func (m *Memo) Load(ctx context.Context, coord grid.TileCoord) (*terrain.Payload, error) {
	if p, ok := m.cache.Get(coord.Key()); ok {
		m.hits.Add(1)
		return p, nil
	}
	m.misses.Add(1)

	p, err := m.source.Load(ctx, coord)
	if err != nil {
		return nil, err
	}
	m.cache.Set(coord.Key(), p, int64(len(p.Units)+1))
	m.cache.Wait()
	return p, nil
}

// Stats возвращает число попаданий и промахов
func (m *Memo) Stats() (hits, misses uint64) {
	return m.hits.Load(), m.misses.Load()
}

// Close освобождает ресурсы кеша
func (m *Memo) Close() {
	m.cache.Close()
}
