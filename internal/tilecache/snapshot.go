package tilecache

import (
	"time"

	"github.com/annel0/terrain-stream/internal/grid"
)

// FailedTile описывает неудачную загрузку в снимке
type FailedTile struct {
	Coord     grid.TileCoord `json:"coord"`
	Attempts  int            `json:"attempts"`
	Permanent bool           `json:"permanent"`
	RetryAt   time.Time      `json:"retry_at"`
	Error     string         `json:"error"`
}

// Snapshot содержит неизменяемый снимок состояния кеша для читателей из других горутин
type Snapshot struct {
	Resident  []grid.TileCoord `json:"resident"`
	Pending   []grid.TileCoord `json:"pending"`
	Failed    []FailedTile     `json:"failed"`
	Resources int              `json:"resources"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Snapshot возвращает последний опубликованный снимок
func (c *Cache) Snapshot() *Snapshot {
	return c.snapshot.Load()
}

func (c *Cache) publish() {
	snap := &Snapshot{
		Resident:  sortedKeys(c.resident),
		Pending:   sortedKeys(c.pending),
		Failed:    make([]FailedTile, 0, len(c.failed)),
		UpdatedAt: c.opts.Now(),
	}
	for _, coord := range snap.Resident {
		snap.Resources += len(c.resident[coord].Resources)
	}
	for _, coord := range sortedKeys(c.failed) {
		f := c.failed[coord]
		ft := FailedTile{
			Coord:     coord,
			Attempts:  f.attempts,
			Permanent: f.permanent,
			Error:     f.err.Error(),
		}
		if !f.permanent {
			ft.RetryAt = f.retryAt
		}
		snap.Failed = append(snap.Failed, ft)
	}

	c.snapshot.Store(snap)
	c.pendingCount.Store(int64(len(c.pending)))

	c.metrics.tiles.WithLabelValues(StateResident.String()).Set(float64(len(c.resident)))
	c.metrics.tiles.WithLabelValues(StatePending.String()).Set(float64(len(c.pending)))
	c.metrics.tiles.WithLabelValues(StateFailed.String()).Set(float64(len(c.failed)))
}
