package tilecache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/annel0/terrain-stream/internal/grid"
	"github.com/annel0/terrain-stream/internal/terrain"
)

// fakeSource отдаёт пустые тайлы; при закрытом gate загрузка ждёт его или отмены
type fakeSource struct {
	mu       sync.Mutex
	calls    map[grid.TileCoord]int
	errs     map[grid.TileCoord]error
	gate     chan struct{}
	active   int
	maxAlive int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		calls: make(map[grid.TileCoord]int),
		errs:  make(map[grid.TileCoord]error),
	}
}

func (s *fakeSource) blocking() *fakeSource {
	s.gate = make(chan struct{})
	return s
}

func (s *fakeSource) release() {
	close(s.gate)
}

func (s *fakeSource) failWith(coord grid.TileCoord, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.errs, coord)
		return
	}
	s.errs[coord] = err
}

func (s *fakeSource) callCount(coord grid.TileCoord) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[coord]
}

func (s *fakeSource) Load(ctx context.Context, coord grid.TileCoord) (*terrain.Payload, error) {
	s.mu.Lock()
	s.calls[coord]++
	s.active++
	s.maxAlive = max(s.maxAlive, s.active)
	gate := s.gate
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	err := s.errs[coord]
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &terrain.Payload{Coord: coord, Name: coord.Name("test")}, nil
}

// recordingPresenter выдаёт каждому тайлу по два ресурса и запоминает освобождения
type recordingPresenter struct {
	next     ResourceID
	live     map[ResourceID]grid.TileCoord
	released map[grid.TileCoord][]ResourceID
	issued   map[grid.TileCoord][]ResourceID
}

func newRecordingPresenter() *recordingPresenter {
	return &recordingPresenter{
		live:     make(map[ResourceID]grid.TileCoord),
		released: make(map[grid.TileCoord][]ResourceID),
		issued:   make(map[grid.TileCoord][]ResourceID),
	}
}

func (p *recordingPresenter) Present(coord grid.TileCoord, _ *terrain.Payload) []ResourceID {
	ids := []ResourceID{p.next + 1, p.next + 2}
	p.next += 2
	for _, id := range ids {
		p.live[id] = coord
	}
	p.issued[coord] = ids
	return ids
}

func (p *recordingPresenter) Release(coord grid.TileCoord, ids []ResourceID) {
	for _, id := range ids {
		delete(p.live, id)
	}
	p.released[coord] = append(p.released[coord], ids...)
}

// testClock задаёт управляемые часы для расписания повторов
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func testOptions() Options {
	opts := DefaultOptions()
	opts.MaxInFlight = 0
	opts.Retry.Jitter = 0
	return opts
}

// pollUntil вызывает PollCompletions, пока cond не станет истинным
func pollUntil(t *testing.T, c *Cache, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.PollCompletions()
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("условие не выполнилось за отведённое время")
}

// drain ждёт, пока не останется ожидающих загрузок
func drain(t *testing.T, c *Cache) {
	t.Helper()
	pollUntil(t, c, func() bool { return len(c.pending) == 0 })
}

// checkExclusive проверяет, что каждая координата находится ровно в одном состоянии
func checkExclusive(t *testing.T, c *Cache) {
	t.Helper()
	for coord := range c.resident {
		if _, ok := c.pending[coord]; ok {
			t.Errorf("%s одновременно резидентен и ожидает", coord)
		}
		if _, ok := c.failed[coord]; ok {
			t.Errorf("%s одновременно резидентен и в ошибке", coord)
		}
	}
	for coord := range c.pending {
		if _, ok := c.failed[coord]; ok {
			t.Errorf("%s одновременно ожидает и в ошибке", coord)
		}
	}
}

func tc(x, y uint32) grid.TileCoord {
	return grid.TileCoord{X: x, Y: y}
}
