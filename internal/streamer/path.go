package streamer

import (
	"time"

	"github.com/annel0/terrain-stream/internal/grid"
)

// Path описывает замкнутый маршрут точки обзора с постоянной скоростью
type Path struct {
	points []grid.WorldPosition
	speed  float64
	next   int
	pos    grid.WorldPosition
}

// NewPath создаёт маршрут, начинающийся в первой точке.
// После последней точки движение продолжается к первой.
func NewPath(points []grid.WorldPosition, speed float64) *Path {
	p := &Path{points: points, speed: speed}
	if len(points) > 0 {
		p.pos = points[0]
		p.next = 1 % len(points)
	}
	return p
}

// Position возвращает текущую позицию
func (p *Path) Position() grid.WorldPosition {
	return p.pos
}

// Advance сдвигает позицию вдоль маршрута на speed*dt
func (p *Path) Advance(dt time.Duration) grid.WorldPosition {
	if len(p.points) < 2 || p.speed <= 0 || dt <= 0 {
		return p.pos
	}

	remaining := p.speed * dt.Seconds()
	idle := 0
	for remaining > 0 && idle <= len(p.points) {
		target := p.points[p.next]
		d := p.pos.DistanceTo(target)
		if d > remaining {
			p.pos = p.pos.Lerp(target, remaining/d)
			break
		}
		if d == 0 {
			idle++
		} else {
			idle = 0
		}
		p.pos = target
		remaining -= d
		p.next = (p.next + 1) % len(p.points)
	}
	return p.pos
}
