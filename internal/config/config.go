package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации стримера тайлов
type Config struct {
	World     WorldConfig     `yaml:"world"`
	Cache     CacheConfig     `yaml:"cache"`
	Index     IndexConfig     `yaml:"index"`
	Source    SourceConfig    `yaml:"source"`
	Loop      LoopConfig      `yaml:"loop"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// Политики обработки окна у края сетки
const (
	EdgeReject = "reject"
	EdgeClip   = "clip"
)

type WorldConfig struct {
	MapName    string `yaml:"map_name"`
	Radius     int    `yaml:"radius"`
	EdgePolicy string `yaml:"edge_policy"`
}

type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	Multiplier      float64       `yaml:"multiplier"`
}

type CacheConfig struct {
	Backpressure string      `yaml:"backpressure"` // batch | per_tile
	MaxInFlight  int         `yaml:"max_in_flight"`
	Workers      int         `yaml:"workers"`
	CancelStale  bool        `yaml:"cancel_stale"`
	Retry        RetryConfig `yaml:"retry"`
}

type IndexConfig struct {
	RebuildInterval time.Duration `yaml:"rebuild_interval"`
}

type SourceConfig struct {
	Kind        string  `yaml:"kind"` // synthetic | badger | dir
	Path        string  `yaml:"path"`
	Seed        int64   `yaml:"seed"`
	SeaLevel    float64 `yaml:"sea_level"`
	MemoMaxCost int64   `yaml:"memo_max_cost"`
}

// Waypoint задаёт точку маршрута точки обзора в мировых координатах
type Waypoint struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

type LoopConfig struct {
	Tick      time.Duration `yaml:"tick"`
	Speed     float64       `yaml:"speed"` // Мировых единиц в секунду
	Waypoints []Waypoint    `yaml:"waypoints"`
}

type ServerConfig struct {
	Enabled  bool `yaml:"enabled"`
	RESTPort int  `yaml:"rest_port"`
}

type LoggingConfig struct {
	Dir          string `yaml:"dir"`
	ConsoleLevel string `yaml:"console_level"`
	FileLevel    string `yaml:"file_level"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
	Endpoint    string `yaml:"endpoint"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		World: WorldConfig{
			MapName:    "Azeroth",
			Radius:     2,
			EdgePolicy: EdgeReject,
		},
		Cache: CacheConfig{
			Backpressure: "per_tile",
			MaxInFlight:  16,
			Workers:      4,
			CancelStale:  true,
			Retry: RetryConfig{
				MaxAttempts:     3,
				InitialInterval: 2 * time.Second,
				MaxInterval:     30 * time.Second,
				Multiplier:      2,
			},
		},
		Index: IndexConfig{RebuildInterval: time.Second},
		Source: SourceConfig{
			Kind:        "synthetic",
			Seed:        1,
			SeaLevel:    0.45,
			MemoMaxCost: 64 * 257,
		},
		Loop: LoopConfig{
			Tick:  50 * time.Millisecond,
			Speed: 120,
			Waypoints: []Waypoint{
				{X: 0, Y: 0},
				{X: 3000, Y: 1500},
				{X: -2000, Y: 2500},
			},
		},
		Server: ServerConfig{Enabled: true},
		Logging: LoggingConfig{
			Dir:          "logs",
			ConsoleLevel: "INFO",
			FileLevel:    "DEBUG",
		},
		Telemetry: TelemetryConfig{ServiceName: "terrain-stream"},
	}
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "TERRAIN_REST_PORT", 8088)
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	// Если порт задан в конфиге и больше 0, используем его
	if configPort > 0 {
		return configPort
	}

	// Пробуем прочитать из environment variable
	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	// Используем дефолтное значение
	return defaultPort
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", путь берётся из ENV TERRAIN_CONFIG; без файла возвращаются дефолты.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("TERRAIN_CONFIG")
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать конфигурацию %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора конфигурации %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет согласованность значений
func (c *Config) Validate() error {
	var errs []error

	if c.World.Radius < 0 {
		errs = append(errs, fmt.Errorf("world.radius не может быть отрицательным: %d", c.World.Radius))
	}
	switch c.World.EdgePolicy {
	case EdgeReject, EdgeClip:
	default:
		errs = append(errs, fmt.Errorf("world.edge_policy: неизвестное значение %q", c.World.EdgePolicy))
	}
	switch c.Cache.Backpressure {
	case "batch", "per_tile":
	default:
		errs = append(errs, fmt.Errorf("cache.backpressure: неизвестное значение %q", c.Cache.Backpressure))
	}
	if c.Cache.MaxInFlight < 0 {
		errs = append(errs, fmt.Errorf("cache.max_in_flight не может быть отрицательным"))
	}
	if c.Cache.Workers <= 0 {
		errs = append(errs, fmt.Errorf("cache.workers должен быть положительным"))
	}
	if c.Index.RebuildInterval < 0 {
		errs = append(errs, fmt.Errorf("index.rebuild_interval не может быть отрицательным"))
	}
	switch c.Source.Kind {
	case "synthetic":
	case "badger", "dir":
		if c.Source.Path == "" {
			errs = append(errs, fmt.Errorf("source.path обязателен для источника %q", c.Source.Kind))
		}
	default:
		errs = append(errs, fmt.Errorf("source.kind: неизвестное значение %q", c.Source.Kind))
	}
	if c.Loop.Tick <= 0 {
		errs = append(errs, fmt.Errorf("loop.tick должен быть положительным"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("некорректная конфигурация: %w", errors.Join(errs...))
	}
	return nil
}
