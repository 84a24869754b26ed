// Package cellindex строит индекс "ячейка → тайл и юнит" по резидентным тайлам.
// Индекс перестраивается целиком и публикуется атомарно, поэтому
// Lookup безопасен из любой горутины.
package cellindex

import (
	"sync/atomic"
	"time"

	"github.com/annel0/terrain-stream/internal/grid"
	"github.com/annel0/terrain-stream/internal/logging"
	"github.com/annel0/terrain-stream/internal/terrain"
	"github.com/annel0/terrain-stream/internal/tilecache"
)

// ResidentLister отдаёт резидентные тайлы в детерминированном порядке
type ResidentLister interface {
	Resident() []tilecache.ResidentTile
}

// Entry хранит данные юнита, занимающего ячейку
type Entry struct {
	Tile      grid.TileCoord `json:"tile"`
	TileName  string         `json:"tile_name"`
	UnitIndex int            `json:"unit_index"`
	Unit      terrain.Unit   `json:"unit"`
	Textures  []string       `json:"textures"`
}

// RebuildStats описывает одну перестройку
type RebuildStats struct {
	Tiles    int
	Cells    int
	Dropped  int // Юниты, чья ячейка уже занята
	Duration time.Duration
}

type table struct {
	cells   map[grid.CellCoord]Entry
	builtAt time.Time
}

// Index хранит атомарно публикуемый индекс ячеек
type Index struct {
	interval time.Duration
	log      *logging.Logger
	current  atomic.Pointer[table]
}

// New создаёт пустой индекс, перестраиваемый не чаще interval
func New(interval time.Duration, log *logging.Logger) *Index {
	if log == nil {
		log = logging.Nop()
	}
	idx := &Index{interval: interval, log: log}
	idx.current.Store(&table{cells: map[grid.CellCoord]Entry{}})
	return idx
}

// Rebuild заново заполняет индекс. Юнит попадает в ячейку своей середины.
// При совпадении ячеек побеждает первый записанный юнит, тайлы обходятся
// в порядке координат. Вдоль нулевых осей ячейка 0 вдвое шире остальных,
// поэтому там совпадения ожидаемы.
func (idx *Index) Rebuild(now time.Time, tiles ResidentLister) RebuildStats {
	start := time.Now()
	resident := tiles.Resident()

	t := &table{
		cells:   make(map[grid.CellCoord]Entry, len(resident)*terrain.UnitsPerTile),
		builtAt: now,
	}
	stats := RebuildStats{Tiles: len(resident)}

	for _, tile := range resident {
		p := tile.Payload
		if p == nil {
			continue
		}
		for i, unit := range p.Units {
			cell := grid.CellOf(unit.Center())
			if _, taken := t.cells[cell]; taken {
				stats.Dropped++
				continue
			}
			t.cells[cell] = Entry{
				Tile:      tile.Coord,
				TileName:  p.Name,
				UnitIndex: i,
				Unit:      unit,
				Textures:  p.LayerTextures(unit),
			}
		}
	}

	idx.current.Store(t)
	stats.Cells = len(t.cells)
	stats.Duration = time.Since(start)

	if stats.Dropped > 0 {
		idx.log.Debug("Индекс ячеек: %d юнитов отброшено из-за совпадения ячеек", stats.Dropped)
	}
	idx.log.Trace("Индекс ячеек перестроен: тайлов %d, ячеек %d за %v", stats.Tiles, stats.Cells, stats.Duration)
	return stats
}

// MaybeRebuild перестраивает индекс, если с прошлой перестройки прошло interval
func (idx *Index) MaybeRebuild(now time.Time, tiles ResidentLister) (RebuildStats, bool) {
	last := idx.current.Load().builtAt
	if !last.IsZero() && now.Sub(last) < idx.interval {
		return RebuildStats{}, false
	}
	return idx.Rebuild(now, tiles), true
}

// Lookup возвращает юнит, занимающий ячейку
func (idx *Index) Lookup(cell grid.CellCoord) (Entry, bool) {
	e, ok := idx.current.Load().cells[cell]
	return e, ok
}

// LookupPosition ищет юнит по мировой позиции
func (idx *Index) LookupPosition(pos grid.WorldPosition) (Entry, bool) {
	return idx.Lookup(grid.CellOf(pos))
}

// Len возвращает число занятых ячеек
func (idx *Index) Len() int {
	return len(idx.current.Load().cells)
}

// BuiltAt возвращает время последней перестройки
func (idx *Index) BuiltAt() time.Time {
	return idx.current.Load().builtAt
}
