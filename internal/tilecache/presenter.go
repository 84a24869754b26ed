package tilecache

import (
	"github.com/annel0/terrain-stream/internal/grid"
	"github.com/annel0/terrain-stream/internal/terrain"
)

// ResourceID идентифицирует ресурс отображения (меш, материал, текстуру),
// выданный внешним коллаборатором для резидентного тайла.
type ResourceID uint64

// Presenter создаёт и освобождает ресурсы отображения тайлов.
// Вызывается только из управляющей горутины.
type Presenter interface {
	// Present строит ресурсы для ставшего резидентным тайла
	Present(coord grid.TileCoord, payload *terrain.Payload) []ResourceID
	// Release освобождает ресурсы, ранее выданные Present
	Release(coord grid.TileCoord, ids []ResourceID)
}

// NopPresenter не создаёт ресурсов
type NopPresenter struct{}

func (NopPresenter) Present(grid.TileCoord, *terrain.Payload) []ResourceID { return nil }
func (NopPresenter) Release(grid.TileCoord, []ResourceID)                  {}
