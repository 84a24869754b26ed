package storage

import (
	"context"
	"fmt"

	"github.com/annel0/terrain-stream/internal/grid"
	"github.com/annel0/terrain-stream/internal/terrain"
)

// Текстуры синтетического ландшафта, индексы соответствуют слоям юнитов
var generatorTextures = []string{
	"tileset/generic/grass.blp",
	"tileset/generic/rock.blp",
	"tileset/generic/sand.blp",
}

const (
	layerGrass = iota
	layerRock
	layerSand
)

// GeneratorOptions задаёт параметры синтетического мира
type GeneratorOptions struct {
	MapName   string
	Seed      int64
	SeaLevel  float64 // Тайлы с шумом суши ниже уровня считаются океаном и отсутствуют
	MaxHeight float64 // Максимальная высота рельефа в мировых единицах
}

// Generator детерминированно строит тайлы из шума Перлина.
// Одинаковые параметры всегда дают одинаковые тайлы.
type Generator struct {
	opts      GeneratorOptions
	continent noiseField
	relief    noiseField
}

// NewGenerator создаёт генератор
func NewGenerator(opts GeneratorOptions) *Generator {
	if opts.MaxHeight <= 0 {
		opts.MaxHeight = 200
	}
	return &Generator{
		opts:      opts,
		continent: newNoiseField(opts.Seed),
		relief:    newNoiseField(opts.Seed + 1),
	}
}

// IsLand сообщает, есть ли у тайла данные
func (g *Generator) IsLand(coord grid.TileCoord) bool {
	if !coord.Valid() {
		return false
	}
	// Смещение уводит выборку с узлов решётки, где шум Перлина равен нулю
	v := g.continent.at(float64(coord.X)/8+0.37, float64(coord.Y)/8+0.61)
	return v >= g.opts.SeaLevel
}

// Load строит тайл по координатам
func (g *Generator) Load(ctx context.Context, coord grid.TileCoord) (*terrain.Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !g.IsLand(coord) {
		return nil, fmt.Errorf("тайл %s: %w", coord, terrain.ErrNotFound)
	}

	p := &terrain.Payload{
		Coord:    coord,
		Name:     coord.Name(g.opts.MapName),
		Textures: generatorTextures,
		Units:    make([]terrain.Unit, terrain.UnitsPerTile),
	}

	waterLine := 0.2 * g.opts.MaxHeight
	for i := range p.Units {
		pos := terrain.UnitCorner(coord, i)
		h := g.relief.at(pos.X/700, pos.Y/700) * g.opts.MaxHeight
		pos.Z = h

		unit := terrain.Unit{
			Index:     i,
			Position:  pos,
			Layers:    []uint32{layerGrass},
			MinHeight: float32(h - 2),
			MaxHeight: float32(h + 6),
		}
		switch {
		case h < waterLine:
			unit.Layers = append(unit.Layers, layerSand)
			unit.HasWater = true
		case h > 0.65*g.opts.MaxHeight:
			unit.Layers = append(unit.Layers, layerRock)
		}
		p.Units[i] = unit
	}
	return p, nil
}
