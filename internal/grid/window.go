package grid

import (
	"errors"
	"fmt"
	"sort"
)

// Ошибки вычисления окна
var (
	ErrWindowOutOfBounds = errors.New("окно выходит за пределы сетки")
	ErrNegativeRadius    = errors.New("отрицательный радиус окна")
)

// WindowError описывает некорректный запрос окна
type WindowError struct {
	Center TileCoord
	Radius int
	Err    error
}

func (e *WindowError) Error() string {
	return fmt.Sprintf("окно %s r=%d: %v", e.Center, e.Radius, e.Err)
}

func (e *WindowError) Unwrap() error {
	return e.Err
}

// Window возвращает тайлы, которые должны быть загружены вокруг центра.
//
// radius = 0 даёт только центр. Для radius = R квадрат идёт от center-R/2
// до center-R/2+R включительно, то есть ширина R+1 и при нечётном R окно
// смещено на один тайл. Окно, выходящее за сетку, отклоняется целиком.
func Window(center TileCoord, radius int) ([]TileCoord, error) {
	minX, minY, maxX, maxY, err := windowBounds(center, radius)
	if err != nil {
		return nil, err
	}
	if minX < 0 || minY < 0 || maxX >= GridExtent || maxY >= GridExtent {
		return nil, &WindowError{Center: center, Radius: radius, Err: ErrWindowOutOfBounds}
	}
	return collect(minX, minY, maxX, maxY), nil
}

// WindowClipped работает как Window, но отбрасывает тайлы вне сетки
func WindowClipped(center TileCoord, radius int) ([]TileCoord, error) {
	minX, minY, maxX, maxY, err := windowBounds(center, radius)
	if err != nil {
		return nil, err
	}
	minX, minY = max(minX, 0), max(minY, 0)
	maxX, maxY = min(maxX, GridExtent-1), min(maxY, GridExtent-1)
	return collect(minX, minY, maxX, maxY), nil
}

func windowBounds(center TileCoord, radius int) (minX, minY, maxX, maxY int, err error) {
	if radius < 0 {
		return 0, 0, 0, 0, &WindowError{Center: center, Radius: radius, Err: ErrNegativeRadius}
	}
	if !center.Valid() {
		return 0, 0, 0, 0, &WindowError{Center: center, Radius: radius, Err: ErrWindowOutOfBounds}
	}
	cx, cy := int(center.X), int(center.Y)
	if radius == 0 {
		return cx, cy, cx, cy, nil
	}
	minX = cx - radius/2
	minY = cy - radius/2
	return minX, minY, minX + radius, minY + radius, nil
}

// collect обходит прямоугольник построчно: X внешний цикл, Y внутренний
func collect(minX, minY, maxX, maxY int) []TileCoord {
	if maxX < minX || maxY < minY {
		return nil
	}
	coords := make([]TileCoord, 0, (maxX-minX+1)*(maxY-minY+1))
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			coords = append(coords, TileCoord{X: uint32(x), Y: uint32(y)})
		}
	}
	return coords
}

// SortByDistance упорядочивает тайлы от ближних к центру к дальним.
// При равном расстоянии сохраняется исходный порядок.
func SortByDistance(coords []TileCoord, center TileCoord) {
	sort.SliceStable(coords, func(i, j int) bool {
		return distanceSq(coords[i], center) < distanceSq(coords[j], center)
	})
}

func distanceSq(a, b TileCoord) int {
	dx := int(a.X) - int(b.X)
	dy := int(a.Y) - int(b.Y)
	return dx*dx + dy*dy
}
