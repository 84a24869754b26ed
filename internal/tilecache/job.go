package tilecache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/annel0/terrain-stream/internal/grid"
	"github.com/annel0/terrain-stream/internal/terrain"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

// job описывает одну фоновую загрузку тайла. Результат записывается ровно один раз
// в собственный буферизованный канал, управляющая горутина читает его без ожидания.
type job struct {
	id        string
	coord     grid.TileCoord
	attempt   int
	submitted time.Time

	cancel    context.CancelFunc
	cancelled bool     // Отмена запрошена управляющей горутиной
	retryOf   *failure // Запись о предыдущей неудаче, если это повтор

	done chan jobResult
}

type jobResult struct {
	payload  *terrain.Payload
	err      error
	duration time.Duration
}

// poll возвращает результат, если загрузка завершилась
func (j *job) poll() (jobResult, bool) {
	select {
	case res := <-j.done:
		return res, true
	default:
		return jobResult{}, false
	}
}

// workerPool запускает загрузки в отдельных горутинах, ограничивая
// число одновременно работающих источников семафором.
type workerPool struct {
	source  terrain.Source
	sem     *semaphore.Weighted
	tracer  trace.Tracer
	metrics *Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newWorkerPool(source terrain.Source, workers int, metrics *Metrics) *workerPool {
	ctx, cancel := context.WithCancel(context.Background())
	return &workerPool{
		source:  source,
		sem:     semaphore.NewWeighted(int64(workers)),
		tracer:  otel.Tracer("terrain-stream/tilecache"),
		metrics: metrics,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (p *workerPool) submit(coord grid.TileCoord, attempt int, now time.Time) *job {
	ctx, cancel := context.WithCancel(p.ctx)
	j := &job{
		id:        uuid.NewString(),
		coord:     coord,
		attempt:   attempt,
		submitted: now,
		cancel:    cancel,
		done:      make(chan jobResult, 1),
	}

	p.wg.Add(1)
	go p.run(ctx, j)
	return j
}

func (p *workerPool) run(ctx context.Context, j *job) {
	defer p.wg.Done()
	defer j.cancel()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		j.done <- jobResult{err: err}
		return
	}
	defer p.sem.Release(1)

	ctx, span := p.tracer.Start(ctx, "tile.load", trace.WithAttributes(
		attribute.Int("tile.x", int(j.coord.X)),
		attribute.Int("tile.y", int(j.coord.Y)),
		attribute.String("job.id", j.id),
		attribute.Int("job.attempt", j.attempt),
	))
	defer span.End()

	start := time.Now()
	payload, err := p.load(ctx, j.coord)
	elapsed := time.Since(start)
	p.metrics.loadDuration.Observe(elapsed.Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	j.done <- jobResult{payload: payload, err: err, duration: elapsed}
}

// load вызывает источник, превращая панику в ошибку этого тайла
func (p *workerPool) load(ctx context.Context, coord grid.TileCoord) (payload *terrain.Payload, err error) {
	defer func() {
		if r := recover(); r != nil {
			payload, err = nil, fmt.Errorf("паника источника: %v", r)
		}
	}()

	payload, err = p.source.Load(ctx, coord)
	if err == nil && payload == nil {
		err = fmt.Errorf("%w: источник вернул пустой тайл", terrain.ErrCorrupt)
	}
	return payload, err
}

// close отменяет все загрузки и ждёт завершения горутин
func (p *workerPool) close() {
	p.cancel()
	p.wg.Wait()
}
