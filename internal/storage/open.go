package storage

import (
	"errors"
	"fmt"

	"github.com/annel0/terrain-stream/internal/terrain"
)

// Типы источников тайлов
const (
	KindSynthetic = "synthetic"
	KindBadger    = "badger"
	KindDir       = "dir"
)

// Options описывает источник тайлов, собираемый Open
type Options struct {
	Kind        string
	Path        string
	MapName     string
	Seed        int64
	SeaLevel    float64
	MemoMaxCost int64 // 0: без кеша декодированных тайлов
}

// Opened объединяет открытый источник и функцию освобождения
type Opened struct {
	Source  terrain.Source
	Memo    *Memo
	closers []func() error
}

// Close закрывает источник и кеш в обратном порядке открытия
func (o *Opened) Close() error {
	var errs []error
	for i := len(o.closers) - 1; i >= 0; i-- {
		if err := o.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	o.closers = nil
	return errors.Join(errs...)
}

// Open собирает источник тайлов по описанию
func Open(opts Options) (*Opened, error) {
	o := &Opened{}

	switch opts.Kind {
	case KindSynthetic, "":
		o.Source = NewGenerator(GeneratorOptions{
			MapName:  opts.MapName,
			Seed:     opts.Seed,
			SeaLevel: opts.SeaLevel,
		})
	case KindBadger:
		store, err := OpenBadger(opts.Path)
		if err != nil {
			return nil, err
		}
		o.Source = store
		o.closers = append(o.closers, store.Close)
	case KindDir:
		store, err := NewDirStore(opts.Path, opts.MapName)
		if err != nil {
			return nil, err
		}
		o.Source = store
	default:
		return nil, fmt.Errorf("неизвестный тип источника тайлов: %q", opts.Kind)
	}

	if opts.MemoMaxCost > 0 {
		memo, err := NewMemo(o.Source, opts.MemoMaxCost)
		if err != nil {
			_ = o.Close()
			return nil, err
		}
		o.Source = memo
		o.Memo = memo
		o.closers = append(o.closers, func() error {
			memo.Close()
			return nil
		})
	}
	return o, nil
}
