package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/annel0/terrain-stream/internal/grid"
	"github.com/annel0/terrain-stream/internal/terrain"
	"github.com/dgraph-io/badger/v3"
)

const tileKeyPrefix = "tile:"

// BadgerStore хранит закодированные тайлы в BadgerDB
type BadgerStore struct {
	db      *badger.DB
	dbPath  string
	mutex   sync.RWMutex
	isReady bool
}

// OpenBadger открывает хранилище тайлов. Пустой путь открывает базу в памяти.
func OpenBadger(dbPath string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dbPath)
	if dbPath == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	return &BadgerStore{
		db:      db,
		dbPath:  dbPath,
		isReady: true,
	}, nil
}

func tileKey(coord grid.TileCoord) []byte {
	return []byte(fmt.Sprintf("%s%d:%d", tileKeyPrefix, coord.X, coord.Y))
}

// Close закрывает хранилище
func (s *BadgerStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isReady {
		return nil
	}

	s.isReady = false
	return s.db.Close()
}

// SaveTile кодирует и сохраняет тайл
func (s *BadgerStore) SaveTile(p *terrain.Payload) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return fmt.Errorf("хранилище не готово")
	}

	data, err := terrain.Encode(p)
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(tileKey(p.Coord), data)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения тайла %s в BadgerDB: %w", p.Coord, err)
	}
	return nil
}

// Load читает тайл по координатам
func (s *BadgerStore) Load(ctx context.Context, coord grid.TileCoord) (*terrain.Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return nil, fmt.Errorf("хранилище не готово")
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(tileKey(coord))
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...)
			return nil
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("тайл %s: %w", coord, terrain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения тайла %s из BadgerDB: %w", coord, err)
	}

	p, err := terrain.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("тайл %s: %w", coord, err)
	}
	if p.Coord != coord {
		return nil, fmt.Errorf("%w: ключ %s содержит тайл %s", terrain.ErrCorrupt, coord, p.Coord)
	}
	return p, nil
}

// Coords возвращает координаты всех сохранённых тайлов
func (s *BadgerStore) Coords() ([]grid.TileCoord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return nil, fmt.Errorf("хранилище не готово")
	}

	var coords []grid.TileCoord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(tileKeyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := strings.TrimPrefix(string(it.Item().Key()), tileKeyPrefix)
			var c grid.TileCoord
			if _, err := fmt.Sscanf(key, "%d:%d", &c.X, &c.Y); err != nil {
				continue
			}
			coords = append(coords, c)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка обхода BadgerDB: %w", err)
	}
	return coords, nil
}
