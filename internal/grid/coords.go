package grid

import (
	"fmt"

	"github.com/annel0/terrain-stream/internal/vec"
)

// Константы сетки мира
const (
	TileSize     = 533.33333               // Длина ребра тайла в мировых единицах
	Origin       = 17066.66656             // Смещение начала сетки (32 тайла)
	GridExtent   = 64                      // Количество тайлов по каждой оси
	CellsPerTile = 16                      // Количество ячеек на ребро тайла
	CellSize     = TileSize / CellsPerTile // Длина ребра ячейки
	CellLeeway   = 0.001                   // Допуск округления на границе ячейки
)

// WorldPosition задаёт непрерывную позицию в мире, ось Z вертикальна
type WorldPosition = vec.Vec3Float

// TileCoord представляет координаты тайла в сетке мира.
// Диапазон от (0, 0) до (63, 63), центр мира в (32, 32).
type TileCoord struct {
	X uint32
	Y uint32
}

// CellCoord представляет координаты ячейки (мелкого деления тайла)
type CellCoord struct {
	X int32
	Y int32
}

// String возвращает строковое представление координат тайла
func (c TileCoord) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// Name возвращает имя файла тайла без расширения для указанной карты
func (c TileCoord) Name(mapName string) string {
	return fmt.Sprintf("%s_%d_%d", mapName, c.X, c.Y)
}

// Key упаковывает координаты в одно число для ключей кешей
func (c TileCoord) Key() uint64 {
	return uint64(c.X)<<32 | uint64(c.Y)
}

// Valid проверяет, что тайл лежит в пределах сетки
func (c TileCoord) Valid() bool {
	return c.X < GridExtent && c.Y < GridExtent
}

// String возвращает строковое представление координат ячейки
func (c CellCoord) String() string {
	return fmt.Sprintf("[%d,%d]", c.X, c.Y)
}
