package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/annel0/terrain-stream/internal/grid"
	"github.com/annel0/terrain-stream/internal/terrain"
)

const tileExt = ".tile"

// DirStore хранит тайлы файлами <dir>/<map>_<x>_<y>.tile
type DirStore struct {
	dir     string
	mapName string
}

// NewDirStore создаёт файловое хранилище, при необходимости создавая директорию
func NewDirStore(dir, mapName string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
	}
	return &DirStore{dir: dir, mapName: mapName}, nil
}

// Path возвращает путь к файлу тайла
func (s *DirStore) Path(coord grid.TileCoord) string {
	return filepath.Join(s.dir, coord.Name(s.mapName)+tileExt)
}

// Load читает и декодирует файл тайла
func (s *DirStore) Load(ctx context.Context, coord grid.TileCoord) (*terrain.Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filename := s.Path(coord)
	data, err := os.ReadFile(filename)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("файл %s: %w", filename, terrain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла тайла %s: %w", filename, err)
	}

	p, err := terrain.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("файл %s: %w", filename, err)
	}
	return p, nil
}

// SaveTile записывает тайл. Файл появляется под своим именем только целиком.
func (s *DirStore) SaveTile(p *terrain.Payload) error {
	data, err := terrain.Encode(p)
	if err != nil {
		return err
	}

	filename := s.Path(p.Coord)
	tmp := filename + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("ошибка записи файла %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, filename); err != nil {
		return fmt.Errorf("ошибка переименования %s: %w", tmp, err)
	}
	return nil
}

// Coords возвращает координаты тайлов карты, найденных в директории
func (s *DirStore) Coords() ([]grid.TileCoord, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения директории %s: %w", s.dir, err)
	}

	prefix := s.mapName + "_"
	var coords []grid.TileCoord
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, tileExt) {
			continue
		}
		rest := strings.TrimSuffix(strings.TrimPrefix(name, prefix), tileExt)
		var c grid.TileCoord
		if _, err := fmt.Sscanf(rest, "%d_%d", &c.X, &c.Y); err != nil || !c.Valid() {
			continue
		}
		coords = append(coords, c)
	}

	sort.Slice(coords, func(i, j int) bool {
		if coords[i].X != coords[j].X {
			return coords[i].X < coords[j].X
		}
		return coords[i].Y < coords[j].Y
	})
	return coords, nil
}
