// Package scene заменяет граф сцены рендера: выдаёт идентификаторы ресурсов
// отображения для резидентных тайлов и учитывает их освобождение.
package scene

import (
	"sync"

	"github.com/annel0/terrain-stream/internal/grid"
	"github.com/annel0/terrain-stream/internal/logging"
	"github.com/annel0/terrain-stream/internal/terrain"
	"github.com/annel0/terrain-stream/internal/tilecache"
)

// Kind определяет вид ресурса отображения
type Kind uint8

const (
	KindMesh  Kind = iota // Меш юнита ландшафта
	KindWater             // Поверхность воды тайла
)

// Resource описывает выданный ресурс
type Resource struct {
	ID   tilecache.ResourceID
	Kind Kind
	Tile grid.TileCoord
}

// Stats содержит счётчики реестра
type Stats struct {
	Live     int    `json:"live"`
	Tiles    int    `json:"tiles"`
	Issued   uint64 `json:"issued"`
	Released uint64 `json:"released"`
	Unknown  uint64 `json:"unknown"` // Освобождения неизвестных идентификаторов
}

// Registry выдаёт по одному мешу на юнит и один ресурс воды на тайл,
// если хоть один юнит тайла содержит воду.
type Registry struct {
	mu       sync.RWMutex
	next     tilecache.ResourceID
	live     map[tilecache.ResourceID]Resource
	perTile  map[grid.TileCoord]int
	issued   uint64
	released uint64
	unknown  uint64
	log      *logging.Logger
}

var _ tilecache.Presenter = (*Registry)(nil)

// NewRegistry создаёт пустой реестр
func NewRegistry(log *logging.Logger) *Registry {
	if log == nil {
		log = logging.Nop()
	}
	return &Registry{
		live:    make(map[tilecache.ResourceID]Resource),
		perTile: make(map[grid.TileCoord]int),
		log:     log,
	}
}

// Present выдаёт ресурсы для тайла
func (r *Registry) Present(coord grid.TileCoord, payload *terrain.Payload) []tilecache.ResourceID {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]tilecache.ResourceID, 0, len(payload.Units)+1)
	water := false
	for _, u := range payload.Units {
		ids = append(ids, r.issue(coord, KindMesh))
		water = water || u.HasWater
	}
	if water {
		ids = append(ids, r.issue(coord, KindWater))
	}

	r.perTile[coord] += len(ids)
	return ids
}

func (r *Registry) issue(coord grid.TileCoord, kind Kind) tilecache.ResourceID {
	r.next++
	r.live[r.next] = Resource{ID: r.next, Kind: kind, Tile: coord}
	r.issued++
	return r.next
}

// Release освобождает ресурсы тайла
func (r *Registry) Release(coord grid.TileCoord, ids []tilecache.ResourceID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		res, ok := r.live[id]
		if !ok || res.Tile != coord {
			r.unknown++
			r.log.Warn("Освобождение чужого или неизвестного ресурса %d для тайла %s", id, coord)
			continue
		}
		delete(r.live, id)
		r.released++
		r.perTile[coord]--
	}
	if r.perTile[coord] <= 0 {
		delete(r.perTile, coord)
	}
}

// Lookup возвращает живой ресурс
func (r *Registry) Lookup(id tilecache.ResourceID) (Resource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.live[id]
	return res, ok
}

// Stats возвращает счётчики реестра
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		Live:     len(r.live),
		Tiles:    len(r.perTile),
		Issued:   r.issued,
		Released: r.released,
		Unknown:  r.unknown,
	}
}
