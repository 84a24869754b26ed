package storage

import "github.com/aquilax/go-perlin"

// noiseField возвращает шум Перлина в диапазоне от 0 до 1
type noiseField struct {
	p *perlin.Perlin
}

func newNoiseField(seed int64) noiseField {
	alpha := 2.0  // Сглаживание шума
	beta := 2.0   // Частота шума
	n := int32(3) // Количество октав
	return noiseField{p: perlin.NewPerlin(alpha, beta, n, seed)}
}

// at возвращает значение шума для указанных координат (от 0 до 1)
func (f noiseField) at(x, y float64) float64 {
	v := (f.p.Noise2D(x, y) + 1.0) / 2.0
	return min(max(v, 0), 1)
}
