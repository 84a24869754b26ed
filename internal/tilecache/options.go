package tilecache

import (
	"time"

	"github.com/annel0/terrain-stream/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
)

// Policy определяет, как кеш ограничивает фоновые загрузки
type Policy string

const (
	// PolicyBatch не выпускает новые запросы, пока есть хоть одна незавершённая загрузка
	PolicyBatch Policy = "batch"
	// PolicyPerTile держит не больше MaxInFlight ожидающих тайлов, остальные откладывает
	PolicyPerTile Policy = "per_tile"
)

// RetryOptions задаёт повторные попытки для неудачных загрузок
type RetryOptions struct {
	MaxAttempts     int           // Всего попыток, включая первую; <= 1 отключает повторы
	InitialInterval time.Duration // Первая пауза перед повтором
	MaxInterval     time.Duration // Верхняя граница паузы
	Multiplier      float64       // Множитель роста паузы
	Jitter          float64       // Доля случайного разброса паузы (0..1)
}

// Options содержит параметры кеша
type Options struct {
	Policy      Policy
	MaxInFlight int  // Для PolicyPerTile; 0 означает без ограничения
	Workers     int  // Сколько загрузок выполняется одновременно
	CancelStale bool // Отменять загрузки тайлов, покинувших окно
	Retry       RetryOptions

	Logger     *logging.Logger       // nil: без логов
	Registerer prometheus.Registerer // nil: метрики не регистрируются
	Now        func() time.Time      // Часы для расписания повторов
}

// DefaultOptions возвращает параметры по умолчанию
func DefaultOptions() Options {
	return Options{
		Policy:      PolicyPerTile,
		MaxInFlight: 16,
		Workers:     4,
		CancelStale: true,
		Retry: RetryOptions{
			MaxAttempts:     3,
			InitialInterval: 2 * time.Second,
			MaxInterval:     30 * time.Second,
			Multiplier:      2,
			Jitter:          0.2,
		},
	}
}

func (o *Options) applyDefaults() {
	def := DefaultOptions()
	if o.Policy == "" {
		o.Policy = def.Policy
	}
	if o.Workers <= 0 {
		o.Workers = def.Workers
	}
	if o.Retry.InitialInterval <= 0 {
		o.Retry.InitialInterval = def.Retry.InitialInterval
	}
	if o.Retry.MaxInterval <= 0 {
		o.Retry.MaxInterval = def.Retry.MaxInterval
	}
	if o.Retry.Multiplier < 1 {
		o.Retry.Multiplier = def.Retry.Multiplier
	}
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}
