// Package tilecache хранит тайлы вокруг точки обзора: запрашивает недостающие
// в фоне, принимает завершённые загрузки и вытесняет тайлы, покинувшие окно.
//
// Все изменяющие методы вызываются из одной управляющей горутины.
// PendingCount и Snapshot безопасны из любой горутины.
package tilecache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/annel0/terrain-stream/internal/grid"
	"github.com/annel0/terrain-stream/internal/logging"
	"github.com/annel0/terrain-stream/internal/terrain"
	"github.com/cenkalti/backoff/v4"
)

// ErrNotResident возвращается при попытке вытеснить тайл, который не резидентен
var ErrNotResident = errors.New("тайл не резидентен")

// State описывает состояние координаты в кеше
type State int

const (
	StateAbsent State = iota
	StatePending
	StateResident
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateResident:
		return "resident"
	case StateFailed:
		return "failed"
	default:
		return "absent"
	}
}

// ResidentTile описывает загруженный тайл вместе с выданными ему ресурсами
type ResidentTile struct {
	Coord     grid.TileCoord
	Payload   *terrain.Payload
	Resources []ResourceID
	LoadedAt  time.Time
}

type failure struct {
	err       *terrain.LoadError
	attempts  int
	permanent bool
	retryAt   time.Time
	backoff   *backoff.ExponentialBackOff
}

// ReconcileReport описывает результат одного вызова Reconcile
type ReconcileReport struct {
	Evicted   int // Вытеснено резидентных тайлов
	Requested int // Запущено новых загрузок
	Deferred  int // Отложено из-за ограничения на число загрузок
	Cancelled int // Отменено загрузок тайлов вне окна
}

// PollReport описывает результат одного вызова PollCompletions
type PollReport struct {
	Loaded  int
	Failed  int
	Dropped int
}

// Cache владеет картой тайлов и набора фоновых загрузок
type Cache struct {
	source    terrain.Source
	presenter Presenter
	opts      Options
	log       *logging.Logger
	metrics   *Metrics
	pool      *workerPool

	resident map[grid.TileCoord]*ResidentTile
	pending  map[grid.TileCoord]*job
	failed   map[grid.TileCoord]*failure
	desired  map[grid.TileCoord]struct{}

	pendingCount atomic.Int64
	snapshot     atomic.Pointer[Snapshot]
	closed       bool
}

// New создаёт кеш поверх источника тайлов
func New(source terrain.Source, presenter Presenter, opts Options) *Cache {
	opts.applyDefaults()
	if presenter == nil {
		presenter = NopPresenter{}
	}

	metrics := NewMetrics(opts.Registerer)
	c := &Cache{
		source:    source,
		presenter: presenter,
		opts:      opts,
		log:       opts.Logger,
		metrics:   metrics,
		pool:      newWorkerPool(source, opts.Workers, metrics),
		resident:  make(map[grid.TileCoord]*ResidentTile),
		pending:   make(map[grid.TileCoord]*job),
		failed:    make(map[grid.TileCoord]*failure),
		desired:   make(map[grid.TileCoord]struct{}),
	}
	c.publish()
	return c
}

// Reconcile приводит кеш к желаемому набору тайлов: вытесняет лишние
// резидентные тайлы и запрашивает недостающие.
func (c *Cache) Reconcile(desired []grid.TileCoord) ReconcileReport {
	var report ReconcileReport
	if c.closed {
		return report
	}

	want := make(map[grid.TileCoord]struct{}, len(desired))
	for _, coord := range desired {
		want[coord] = struct{}{}
	}
	c.desired = want

	for _, coord := range sortedKeys(c.resident) {
		if _, ok := want[coord]; ok {
			continue
		}
		if err := c.evict(coord); err == nil {
			report.Evicted++
		}
	}

	if c.opts.CancelStale {
		for coord, j := range c.pending {
			if _, ok := want[coord]; ok || j.cancelled {
				continue
			}
			j.cancel()
			j.cancelled = true
			report.Cancelled++
			c.log.Trace("Отмена загрузки %s (job %s)", coord, j.id)
		}
	}

	now := c.opts.Now()
	toRequest := make([]grid.TileCoord, 0, len(desired))
	seen := make(map[grid.TileCoord]struct{}, len(desired))
	for _, coord := range desired {
		if _, dup := seen[coord]; dup {
			continue
		}
		seen[coord] = struct{}{}
		if c.state(coord) == StateAbsent || c.retryDue(coord, now) {
			toRequest = append(toRequest, coord)
		}
	}

	switch c.opts.Policy {
	case PolicyBatch:
		if len(c.pending) > 0 && len(toRequest) > 0 {
			report.Deferred = len(toRequest)
			toRequest = nil
		}
	default:
		if limit := c.opts.MaxInFlight; limit > 0 {
			free := max(limit-len(c.pending), 0)
			if len(toRequest) > free {
				report.Deferred = len(toRequest) - free
				toRequest = toRequest[:free]
			}
		}
	}

	for _, coord := range toRequest {
		attempt := 1
		prev := c.failed[coord]
		if prev != nil {
			attempt = prev.attempts + 1
			delete(c.failed, coord)
		}
		j := c.pool.submit(coord, attempt, now)
		j.retryOf = prev
		c.pending[coord] = j
		report.Requested++
	}

	if report.Requested > 0 {
		c.log.Debug("Запрошено тайлов: %d, ожидают: %d, отложено: %d",
			report.Requested, len(c.pending), report.Deferred)
	}
	if report != (ReconcileReport{}) {
		c.publish()
	}
	return report
}

func (c *Cache) retryDue(coord grid.TileCoord, now time.Time) bool {
	f, ok := c.failed[coord]
	if !ok || f.permanent {
		return false
	}
	return !now.Before(f.retryAt)
}

// Evict вытесняет резидентный тайл, освобождая его ресурсы
func (c *Cache) Evict(coord grid.TileCoord) error {
	if err := c.evict(coord); err != nil {
		return err
	}
	c.publish()
	return nil
}

func (c *Cache) evict(coord grid.TileCoord) error {
	tile, ok := c.resident[coord]
	if !ok {
		return fmt.Errorf("вытеснение %s: %w", coord, ErrNotResident)
	}
	c.presenter.Release(coord, tile.Resources)
	delete(c.resident, coord)
	c.metrics.evictions.Inc()
	c.log.Trace("Тайл %s вытеснен, освобождено ресурсов: %d", coord, len(tile.Resources))
	return nil
}

// PollCompletions принимает завершённые загрузки, не блокируясь
func (c *Cache) PollCompletions() PollReport {
	var report PollReport

	for _, coord := range sortedKeys(c.pending) {
		j := c.pending[coord]
		res, ok := j.poll()
		if !ok {
			continue
		}
		delete(c.pending, coord)
		c.integrate(j, res, &report)
	}

	if report != (PollReport{}) {
		c.publish()
	}
	return report
}

func (c *Cache) integrate(j *job, res jobResult, report *PollReport) {
	coord := j.coord
	_, wanted := c.desired[coord]

	switch {
	case res.err == nil && !wanted && c.opts.CancelStale:
		c.restoreFailure(j)
		report.Dropped++
		c.metrics.loads.WithLabelValues(resultDropped).Inc()
		c.log.Trace("Тайл %s загружен, но уже не нужен", coord)

	case res.err == nil:
		resources := c.presenter.Present(coord, res.payload)
		c.resident[coord] = &ResidentTile{
			Coord:     coord,
			Payload:   res.payload,
			Resources: resources,
			LoadedAt:  c.opts.Now(),
		}
		report.Loaded++
		if wanted {
			c.metrics.loads.WithLabelValues(resultOK).Inc()
		} else {
			c.metrics.loads.WithLabelValues(resultStale).Inc()
			c.log.Debug("Тайл %s стал резидентным вне окна, будет вытеснен", coord)
		}

	case j.cancelled || errors.Is(res.err, context.Canceled):
		c.restoreFailure(j)
		report.Dropped++
		c.metrics.loads.WithLabelValues(resultDropped).Inc()

	default:
		c.recordFailure(j, res.err)
		report.Failed++
		c.metrics.loads.WithLabelValues(resultFailed).Inc()
	}
}

// restoreFailure возвращает запись о неудаче отменённому повтору,
// чтобы счётчик попыток и расписание не начинались заново.
func (c *Cache) restoreFailure(j *job) {
	if j.retryOf != nil {
		c.failed[j.coord] = j.retryOf
	}
}

func (c *Cache) recordFailure(j *job, err error) {
	lerr := &terrain.LoadError{Coord: j.coord, Attempt: j.attempt, Err: err}

	f := j.retryOf
	if f == nil {
		f = &failure{backoff: c.newBackOff()}
	}
	f.err = lerr
	f.attempts = j.attempt
	f.permanent = lerr.Permanent() || f.attempts >= c.opts.Retry.MaxAttempts

	if f.permanent {
		c.log.Warn("Тайл %s не загружен окончательно: %v", j.coord, lerr)
	} else {
		f.retryAt = c.opts.Now().Add(f.backoff.NextBackOff())
		c.log.Debug("Тайл %s не загружен (попытка %d), повтор после %s: %v",
			j.coord, j.attempt, f.retryAt.Format(time.RFC3339), err)
	}
	c.failed[j.coord] = f
}

func (c *Cache) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.Retry.InitialInterval
	b.MaxInterval = c.opts.Retry.MaxInterval
	b.Multiplier = c.opts.Retry.Multiplier
	b.RandomizationFactor = c.opts.Retry.Jitter
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// PendingCount возвращает число ожидающих загрузок
func (c *Cache) PendingCount() int {
	return int(c.pendingCount.Load())
}

// State возвращает состояние координаты
func (c *Cache) State(coord grid.TileCoord) State {
	return c.state(coord)
}

func (c *Cache) state(coord grid.TileCoord) State {
	if _, ok := c.resident[coord]; ok {
		return StateResident
	}
	if _, ok := c.pending[coord]; ok {
		return StatePending
	}
	if _, ok := c.failed[coord]; ok {
		return StateFailed
	}
	return StateAbsent
}

// Resident возвращает резидентные тайлы, упорядоченные по координатам
func (c *Cache) Resident() []ResidentTile {
	tiles := make([]ResidentTile, 0, len(c.resident))
	for _, coord := range sortedKeys(c.resident) {
		tiles = append(tiles, *c.resident[coord])
	}
	return tiles
}

// Close отменяет все загрузки, ждёт их завершения и освобождает ресурсы
// резидентных тайлов. После Close кеш пуст и не принимает новых запросов.
func (c *Cache) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.pool.close()

	for _, coord := range sortedKeys(c.resident) {
		_ = c.evict(coord)
	}
	c.pending = make(map[grid.TileCoord]*job)
	c.desired = make(map[grid.TileCoord]struct{})
	c.publish()
	c.log.Info("Кеш тайлов закрыт")
}

// sortedKeys возвращает координаты в порядке (X, Y)
func sortedKeys[V any](m map[grid.TileCoord]V) []grid.TileCoord {
	keys := make([]grid.TileCoord, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].X != keys[j].X {
			return keys[i].X < keys[j].X
		}
		return keys[i].Y < keys[j].Y
	})
	return keys
}
