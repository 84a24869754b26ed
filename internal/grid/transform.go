package grid

import "math"

// TileOf вычисляет тайл, содержащий позицию.
// Оси намеренно переставлены: X тайла зависит от Y позиции и наоборот.
// Позиция должна лежать в пределах мира (см. InWorld).
func TileOf(pos WorldPosition) TileCoord {
	return TileCoord{
		X: uint32(math.Floor((Origin - pos.Y) / TileSize)),
		Y: uint32(math.Floor((Origin - pos.X) / TileSize)),
	}
}

// InWorld проверяет, что позиция попадает в сетку тайлов
func InWorld(pos WorldPosition) bool {
	x := math.Floor((Origin - pos.Y) / TileSize)
	y := math.Floor((Origin - pos.X) / TileSize)
	return x >= 0 && x < GridExtent && y >= 0 && y < GridExtent
}

// CellOf вычисляет координаты ячейки для позиции.
// Округление зависит от знака и включает допуск CellLeeway,
// чтобы координата не прыгала между соседними ячейками на границе.
func CellOf(pos WorldPosition) CellCoord {
	return CellCoord{
		X: cellAxis(pos.X),
		Y: cellAxis(pos.Y),
	}
}

func cellAxis(coord float64) int32 {
	if coord >= 0 {
		return int32(math.Floor(coord/CellSize + CellLeeway))
	}
	return int32(math.Ceil(coord/CellSize - CellLeeway))
}

// TileCorner возвращает мировую позицию угла тайла (максимальные X и Y).
// Обратное преобразование к TileOf, используется генераторами данных.
func TileCorner(c TileCoord) WorldPosition {
	return WorldPosition{
		X: Origin - float64(c.Y)*TileSize,
		Y: Origin - float64(c.X)*TileSize,
	}
}

// TileCenter возвращает мировую позицию центра тайла
func TileCenter(c TileCoord) WorldPosition {
	corner := TileCorner(c)
	return WorldPosition{
		X: corner.X - TileSize/2,
		Y: corner.Y - TileSize/2,
	}
}
