package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/annel0/terrain-stream/internal/grid"
	"github.com/annel0/terrain-stream/internal/storage"
	"github.com/annel0/terrain-stream/internal/terrain"
)

// tileWriter принимает готовые тайлы
type tileWriter interface {
	SaveTile(p *terrain.Payload) error
	Coords() ([]grid.TileCoord, error)
}

func main() {
	var (
		kind     = flag.String("kind", storage.KindBadger, "Хранилище: badger или dir")
		path     = flag.String("path", "data/tiles", "Путь к базе или директории тайлов")
		mapName  = flag.String("map", "Azeroth", "Имя карты")
		seed     = flag.Int64("seed", 1, "Сид генератора")
		seaLevel = flag.Float64("sea", 0.45, "Уровень моря (0..1), тайлы ниже отсутствуют")
		center   = flag.String("center", "32,32", "Центральный тайл x,y")
		radius   = flag.Int("radius", 8, "Радиус генерации в тайлах")
	)
	flag.Parse()

	c, err := parseCoord(*center)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	coords, err := grid.WindowClipped(c, *radius)
	if err != nil {
		log.Fatalf("❌ Некорректное окно генерации: %v", err)
	}

	var (
		out        tileWriter
		closeStore func() error
	)
	switch *kind {
	case storage.KindBadger:
		store, err := storage.OpenBadger(*path)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		out, closeStore = store, store.Close
	case storage.KindDir:
		store, err := storage.NewDirStore(*path, *mapName)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		out, closeStore = store, func() error { return nil }
	default:
		log.Fatalf("❌ Неизвестное хранилище: %s", *kind)
	}

	gen := storage.NewGenerator(storage.GeneratorOptions{
		MapName:  *mapName,
		Seed:     *seed,
		SeaLevel: *seaLevel,
	})

	written, ocean := 0, 0
	for _, coord := range coords {
		p, err := gen.Load(context.Background(), coord)
		if errors.Is(err, terrain.ErrNotFound) {
			ocean++
			continue
		}
		if err != nil {
			log.Fatalf("❌ Ошибка генерации %s: %v", coord, err)
		}
		if err := out.SaveTile(p); err != nil {
			log.Fatalf("❌ %v", err)
		}
		written++
	}

	stored, err := out.Coords()
	if err != nil {
		log.Printf("⚠️  Не удалось подсчитать тайлы: %v", err)
	}
	if err := closeStore(); err != nil {
		log.Printf("⚠️  Ошибка закрытия хранилища: %v", err)
	}

	log.Printf("✅ Записано тайлов: %d, океан: %d, всего в хранилище: %d (%s)", written, ocean, len(stored), *path)
}

func parseCoord(s string) (grid.TileCoord, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return grid.TileCoord{}, fmt.Errorf("ожидалось x,y, получено %q", s)
	}
	x, errX := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 32)
	y, errY := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 32)
	if errX != nil || errY != nil {
		return grid.TileCoord{}, fmt.Errorf("некорректные координаты тайла %q", s)
	}
	return grid.TileCoord{X: uint32(x), Y: uint32(y)}, nil
}
