package vec

import "math"

// Vec3Float представляет позицию в мировых координатах.
// Хранится в формате мира (ось Z вертикальна).
type Vec3Float struct {
	X float64
	Y float64
	Z float64
}

// FromEngine конвертирует вектор движка (Y вверх) в мировой формат (Z вверх)
func FromEngine(x, y, z float64) Vec3Float {
	return Vec3Float{X: x, Y: z, Z: y}
}

// ToEngine возвращает координаты в формате движка (Y вверх)
func (v Vec3Float) ToEngine() (x, y, z float64) {
	return v.X, v.Z, v.Y
}

// Add складывает два вектора
func (v Vec3Float) Add(other Vec3Float) Vec3Float {
	return Vec3Float{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Sub вычитает вектор
func (v Vec3Float) Sub(other Vec3Float) Vec3Float {
	return Vec3Float{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Mul умножает вектор на скаляр
func (v Vec3Float) Mul(scalar float64) Vec3Float {
	return Vec3Float{X: v.X * scalar, Y: v.Y * scalar, Z: v.Z * scalar}
}

// Length возвращает длину вектора
func (v Vec3Float) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Normalized возвращает нормализованный вектор
func (v Vec3Float) Normalized() Vec3Float {
	length := v.Length()
	if length == 0 {
		return Vec3Float{}
	}
	return v.Mul(1 / length)
}

// DistanceTo вычисляет расстояние до другой точки
func (v Vec3Float) DistanceTo(other Vec3Float) float64 {
	return v.Sub(other).Length()
}

// Lerp линейно интерполирует между v и other, t в диапазоне [0, 1]
func (v Vec3Float) Lerp(other Vec3Float, t float64) Vec3Float {
	return v.Add(other.Sub(v).Mul(t))
}
