package vec

import (
	"math"
	"testing"
)

func TestFromEngineSwapsAxes(t *testing.T) {
	v := FromEngine(1, 2, 3)
	if v.X != 1 || v.Y != 3 || v.Z != 2 {
		t.Errorf("Ожидалось {1,3,2}, получено %+v", v)
	}

	x, y, z := v.ToEngine()
	if x != 1 || y != 2 || z != 3 {
		t.Errorf("Обратное преобразование дало (%v,%v,%v)", x, y, z)
	}
}

func TestLerpAndDistance(t *testing.T) {
	a := Vec3Float{X: 0, Y: 0, Z: 0}
	b := Vec3Float{X: 10, Y: 0, Z: 0}

	mid := a.Lerp(b, 0.5)
	if mid.X != 5 {
		t.Errorf("Ожидалась середина 5, получено %v", mid.X)
	}

	if d := a.DistanceTo(Vec3Float{X: 3, Y: 4}); math.Abs(d-5) > 1e-9 {
		t.Errorf("Ожидалось расстояние 5, получено %v", d)
	}

	if n := (Vec3Float{}).Normalized(); n != (Vec3Float{}) {
		t.Errorf("Нулевой вектор должен оставаться нулевым, получено %+v", n)
	}
}
