package tilecache

import "github.com/prometheus/client_golang/prometheus"

// Результаты загрузки для метки result
const (
	resultOK      = "ok"
	resultFailed  = "failed"
	resultDropped = "dropped" // отменённая или ненужная загрузка отброшена
	resultStale   = "stale"   // тайл стал резидентным, уже покинув окно
)

// Metrics содержит Prometheus-метрики кеша
type Metrics struct {
	tiles        *prometheus.GaugeVec
	loads        *prometheus.CounterVec
	evictions    prometheus.Counter
	loadDuration prometheus.Histogram
}

// NewMetrics создаёт метрики и регистрирует их, если reg != nil
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tiles: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tilecache",
			Name:      "tiles",
			Help:      "Количество тайлов по состояниям.",
		}, []string{"state"}),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tilecache",
			Name:      "loads_total",
			Help:      "Завершённые фоновые загрузки по результату.",
		}, []string{"result"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tilecache",
			Name:      "evictions_total",
			Help:      "Вытеснённые резидентные тайлы.",
		}),
		loadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tilecache",
			Name:      "load_duration_seconds",
			Help:      "Длительность загрузки тайла из источника.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}

	if reg != nil {
		reg.MustRegister(m.tiles, m.loads, m.evictions, m.loadDuration)
	}
	return m
}
