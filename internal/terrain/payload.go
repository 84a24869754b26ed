package terrain

import (
	"context"
	"errors"
	"fmt"

	"github.com/annel0/terrain-stream/internal/grid"
	"github.com/annel0/terrain-stream/internal/vec"
)

// UnitsPerTile задаёт количество юнитов в полном тайле (16x16)
const UnitsPerTile = grid.CellsPerTile * grid.CellsPerTile

// Ошибки источников тайлов
var (
	ErrNotFound = errors.New("тайл отсутствует в хранилище")
	ErrCorrupt  = errors.New("данные тайла повреждены")
)

// Payload содержит разобранные данные одного тайла
type Payload struct {
	Coord    grid.TileCoord `json:"coord"`
	Name     string         `json:"name"`     // Имя файла тайла, например Azeroth_32_48
	Textures []string       `json:"textures"` // Пути текстур, на которые ссылаются слои
	Units    []Unit         `json:"units"`    // Юниты тайла (ячейки ландшафта)
}

// Unit представляет одну ячейку ландшафта внутри тайла
type Unit struct {
	Index     int           `json:"index"`               // Порядковый номер внутри тайла
	Position  vec.Vec3Float `json:"position"`            // Мировая позиция угла юнита
	Layers    []uint32      `json:"layers,omitempty"`    // Индексы текстур в Payload.Textures
	HasWater  bool          `json:"has_water,omitempty"` // Есть ли поверхность воды
	MinHeight float32       `json:"min_height"`
	MaxHeight float32       `json:"max_height"`
}

// LayerTextures возвращает имена текстур слоёв юнита
func (p *Payload) LayerTextures(u Unit) []string {
	names := make([]string, 0, len(u.Layers))
	for _, id := range u.Layers {
		if int(id) < len(p.Textures) {
			names = append(names, p.Textures[id])
		}
	}
	return names
}

// UnitCorner возвращает мировую позицию угла юнита с номером index.
// Юниты идут строками по CellsPerTile от угла тайла в сторону убывания координат.
func UnitCorner(coord grid.TileCoord, index int) vec.Vec3Float {
	corner := grid.TileCorner(coord)
	row, col := index/grid.CellsPerTile, index%grid.CellsPerTile
	return vec.Vec3Float{
		X: corner.X - float64(col)*grid.CellSize,
		Y: corner.Y - float64(row)*grid.CellSize,
	}
}

// Center возвращает мировую позицию середины юнита.
// Угол лежит на границе ячеек, а середина всегда внутри своей ячейки.
func (u Unit) Center() vec.Vec3Float {
	return vec.Vec3Float{
		X: u.Position.X - grid.CellSize/2,
		Y: u.Position.Y - grid.CellSize/2,
		Z: u.Position.Z,
	}
}

// UnitCenter возвращает мировую позицию середины юнита с номером index
func UnitCenter(coord grid.TileCoord, index int) vec.Vec3Float {
	return Unit{Position: UnitCorner(coord, index)}.Center()
}

// Source загружает тайлы по координатам.
// Реализации должны быть безопасны для вызова из нескольких горутин.
type Source interface {
	// Load возвращает данные тайла или ошибку.
	// Отсутствующий тайл сообщается через ErrNotFound.
	Load(ctx context.Context, coord grid.TileCoord) (*Payload, error)
}

// SourceFunc адаптирует функцию к интерфейсу Source
type SourceFunc func(ctx context.Context, coord grid.TileCoord) (*Payload, error)

// Load вызывает f(ctx, coord)
func (f SourceFunc) Load(ctx context.Context, coord grid.TileCoord) (*Payload, error) {
	return f(ctx, coord)
}

// LoadError описывает неудачную загрузку тайла
type LoadError struct {
	Coord   grid.TileCoord
	Attempt int
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("загрузка тайла %s (попытка %d): %v", e.Coord, e.Attempt, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Permanent сообщает, что повторная попытка не имеет смысла
func (e *LoadError) Permanent() bool {
	return errors.Is(e.Err, ErrNotFound)
}
