// Package streamer связывает точку обзора с кешем тайлов и индексом ячеек.
// Step выполняет один цикл управления, Run крутит циклы по таймеру.
package streamer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/annel0/terrain-stream/internal/cellindex"
	"github.com/annel0/terrain-stream/internal/config"
	"github.com/annel0/terrain-stream/internal/grid"
	"github.com/annel0/terrain-stream/internal/logging"
	"github.com/annel0/terrain-stream/internal/tilecache"
)

// ErrOutsideWorld возвращается для позиции за пределами сетки тайлов
var ErrOutsideWorld = errors.New("позиция вне мира")

// Options задаёт параметры цикла управления
type Options struct {
	Radius     int
	EdgePolicy string // config.EdgeReject | config.EdgeClip
	Logger     *logging.Logger
	Now        func() time.Time
}

// CycleReport описывает один цикл управления
type CycleReport struct {
	Center    grid.TileCoord
	Desired   int
	Reconcile tilecache.ReconcileReport
	Poll      tilecache.PollReport
	Rebuilt   bool
	Index     cellindex.RebuildStats
}

// Status хранит последнее опубликованное состояние цикла для читателей из других горутин
type Status struct {
	Position  grid.WorldPosition  `json:"position"`
	Center    grid.TileCoord      `json:"center"`
	Cycles    uint64              `json:"cycles"`
	Pending   int                 `json:"pending"`
	Cache     *tilecache.Snapshot `json:"-"`
	IndexSize int                 `json:"index_size"`
	IndexAt   time.Time           `json:"index_built_at"`
	LastError string              `json:"last_error,omitempty"`
	LastCycle CycleReport         `json:"-"`
}

// Streamer ведёт управляющий цикл кеша тайлов
type Streamer struct {
	cache  *tilecache.Cache
	index  *cellindex.Index
	opts   Options
	log    *logging.Logger
	cycles uint64
	status atomic.Pointer[Status]
}

// New создаёт цикл управления поверх кеша и индекса
func New(cache *tilecache.Cache, index *cellindex.Index, opts Options) *Streamer {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.EdgePolicy == "" {
		opts.EdgePolicy = config.EdgeReject
	}
	s := &Streamer{cache: cache, index: index, opts: opts, log: opts.Logger}
	s.status.Store(&Status{Cache: cache.Snapshot()})
	return s
}

// Step выполняет один цикл: позиция, центр, окно, согласование кеша,
// приём завершённых загрузок и перестройка индекса по интервалу.
// Завершённые загрузки принимаются даже если окно вычислить не удалось.
func (s *Streamer) Step(pos grid.WorldPosition) (CycleReport, error) {
	var report CycleReport
	s.cycles++

	var err error
	if !grid.InWorld(pos) {
		err = fmt.Errorf("%w: (%.2f, %.2f)", ErrOutsideWorld, pos.X, pos.Y)
	} else {
		report.Center = grid.TileOf(pos)
		var desired []grid.TileCoord
		desired, err = s.window(report.Center)
		if err == nil {
			grid.SortByDistance(desired, report.Center)
			report.Desired = len(desired)
			report.Reconcile = s.cache.Reconcile(desired)
		}
	}

	report.Poll = s.cache.PollCompletions()
	report.Index, report.Rebuilt = s.index.MaybeRebuild(s.opts.Now(), s.cache)

	if report.Reconcile.Evicted > 0 || report.Poll != (tilecache.PollReport{}) {
		s.log.Debug("Цикл %d: центр %s, вытеснено %d, запрошено %d, загружено %d, ошибок %d",
			s.cycles, report.Center, report.Reconcile.Evicted, report.Reconcile.Requested,
			report.Poll.Loaded, report.Poll.Failed)
	}

	s.publish(pos, report, err)
	return report, err
}

func (s *Streamer) window(center grid.TileCoord) ([]grid.TileCoord, error) {
	if s.opts.EdgePolicy == config.EdgeClip {
		return grid.WindowClipped(center, s.opts.Radius)
	}
	return grid.Window(center, s.opts.Radius)
}

func (s *Streamer) publish(pos grid.WorldPosition, report CycleReport, err error) {
	st := &Status{
		Position:  pos,
		Center:    report.Center,
		Cycles:    s.cycles,
		Pending:   s.cache.PendingCount(),
		Cache:     s.cache.Snapshot(),
		IndexSize: s.index.Len(),
		IndexAt:   s.index.BuiltAt(),
		LastCycle: report,
	}
	if err != nil {
		st.LastError = err.Error()
	}
	s.status.Store(st)
}

// Status возвращает последнее опубликованное состояние
func (s *Streamer) Status() *Status {
	return s.status.Load()
}

// Run двигает точку обзора по маршруту и выполняет цикл на каждом тике,
// пока ctx не отменён. Ошибки позиции и окна логируются один раз до смены ошибки.
func (s *Streamer) Run(ctx context.Context, path *Path, tick time.Duration) error {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	s.log.Info("🚀 Цикл стриминга запущен: радиус %d, тик %v", s.opts.Radius, tick)
	last := time.Now()
	var lastErr string

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Цикл стриминга остановлен после %d циклов", s.cycles)
			return ctx.Err()
		case now := <-ticker.C:
			pos := path.Advance(now.Sub(last))
			last = now

			_, err := s.Step(pos)
			switch {
			case err == nil:
				lastErr = ""
			case err.Error() != lastErr:
				lastErr = err.Error()
				s.log.Warn("Цикл %d: %v", s.cycles, err)
			}
		}
	}
}
