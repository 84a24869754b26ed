package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/annel0/terrain-stream/internal/api"
	"github.com/annel0/terrain-stream/internal/cellindex"
	"github.com/annel0/terrain-stream/internal/config"
	"github.com/annel0/terrain-stream/internal/grid"
	"github.com/annel0/terrain-stream/internal/logging"
	"github.com/annel0/terrain-stream/internal/observability"
	"github.com/annel0/terrain-stream/internal/scene"
	"github.com/annel0/terrain-stream/internal/storage"
	"github.com/annel0/terrain-stream/internal/streamer"
	"github.com/annel0/terrain-stream/internal/tilecache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	configPath := flag.String("config", "", "Путь к YAML конфигурации (по умолчанию TERRAIN_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}
	if err := run(cfg); err != nil {
		log.Fatalf("❌ %v", err)
	}
}

// run поднимает стример и блокируется до сигнала завершения.
// Ошибка возвращается после того, как отработали все отложенные закрытия.
func run(cfg *config.Config) error {
	logOpts := logging.DefaultOptions()
	logOpts.Dir = cfg.Logging.Dir
	logOpts.ConsoleLevel = logging.ParseLevel(cfg.Logging.ConsoleLevel)
	logOpts.FileLevel = logging.ParseLevel(cfg.Logging.FileLevel)
	logging.Configure(logOpts)

	if err := logging.InitDefaultLogger("streamer"); err != nil {
		return fmt.Errorf("ошибка инициализации логирования: %w", err)
	}
	defer logging.CloseDefaultLogger()
	defer logging.GetLoggerManager().CloseAll()

	logging.Info("🗺️  Запуск стримера тайлов: карта %s, радиус %d, источник %s",
		cfg.World.MapName, cfg.World.Radius, cfg.Source.Kind)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := observability.InitTelemetry(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.Endpoint)
		if err != nil {
			logging.Warn("OpenTelemetry недоступен: %v", err)
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logging.Warn("Ошибка остановки OpenTelemetry: %v", err)
				}
			}()
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// === ИСТОЧНИК ТАЙЛОВ ===
	src, err := storage.Open(storage.Options{
		Kind:        cfg.Source.Kind,
		Path:        cfg.Source.Path,
		MapName:     cfg.World.MapName,
		Seed:        cfg.Source.Seed,
		SeaLevel:    cfg.Source.SeaLevel,
		MemoMaxCost: cfg.Source.MemoMaxCost,
	})
	if err != nil {
		logging.Error("❌ Ошибка открытия источника тайлов: %v", err)
		return fmt.Errorf("ошибка открытия источника тайлов: %w", err)
	}
	storageLog := logging.GetStorageLogger()
	storageLog.Info("Источник тайлов открыт: %s (кеш декодированных тайлов: %t)", cfg.Source.Kind, src.Memo != nil)
	defer func() {
		if src.Memo != nil {
			hits, misses := src.Memo.Stats()
			storageLog.Info("Кеш декодированных тайлов: попаданий %d, промахов %d", hits, misses)
		}
		if err := src.Close(); err != nil {
			logging.Error("Ошибка закрытия источника тайлов: %v", err)
		}
	}()

	// === КЕШ, ИНДЕКС, ЦИКЛ ===
	presenter := scene.NewRegistry(logging.GetComponentLogger("scene"))

	cacheOpts := tilecache.DefaultOptions()
	cacheOpts.Policy = tilecache.Policy(cfg.Cache.Backpressure)
	cacheOpts.MaxInFlight = cfg.Cache.MaxInFlight
	cacheOpts.Workers = cfg.Cache.Workers
	cacheOpts.CancelStale = cfg.Cache.CancelStale
	cacheOpts.Retry.MaxAttempts = cfg.Cache.Retry.MaxAttempts
	cacheOpts.Retry.InitialInterval = cfg.Cache.Retry.InitialInterval
	cacheOpts.Retry.MaxInterval = cfg.Cache.Retry.MaxInterval
	cacheOpts.Retry.Multiplier = cfg.Cache.Retry.Multiplier
	cacheOpts.Logger = logging.GetCacheLogger()
	cacheOpts.Registerer = registry

	cache := tilecache.New(src.Source, presenter, cacheOpts)
	defer cache.Close()

	index := cellindex.New(cfg.Index.RebuildInterval, logging.GetIndexLogger())
	loop := streamer.New(cache, index, streamer.Options{
		Radius:     cfg.World.Radius,
		EdgePolicy: cfg.World.EdgePolicy,
		Logger:     logging.GetStreamerLogger(),
	})

	// === REST API ===
	if cfg.Server.Enabled {
		rest := api.NewRestServer(api.Config{
			Port:      fmt.Sprintf(":%d", cfg.Server.GetRESTPort()),
			Status:    loop,
			Cells:     index,
			Resources: presenter,
			Registry:  registry,
			Logger:    logging.GetAPILogger(),
		})
		if err := rest.Start(); err != nil {
			logging.Error("❌ Ошибка запуска REST API: %v", err)
			return fmt.Errorf("ошибка запуска REST API: %w", err)
		}
		defer func() {
			if err := rest.Stop(context.Background()); err != nil {
				logging.Error("❌ %v", err)
			}
		}()
	}

	waypoints := make([]grid.WorldPosition, 0, len(cfg.Loop.Waypoints))
	for _, wp := range cfg.Loop.Waypoints {
		waypoints = append(waypoints, grid.WorldPosition{X: wp.X, Y: wp.Y, Z: wp.Z})
	}
	path := streamer.NewPath(waypoints, cfg.Loop.Speed)

	runErr := loop.Run(ctx, path, cfg.Loop.Tick)
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	if runErr != nil {
		logging.Error("Цикл стриминга завершился с ошибкой: %v", runErr)
	}

	logging.Info("📡 Получен сигнал завершения, остановка...")
	if snap := cache.Snapshot(); snap != nil {
		logging.Info("Итог: резидентных %d, ожидающих %d, ошибок %d, ресурсов %d",
			len(snap.Resident), len(snap.Pending), len(snap.Failed), presenter.Stats().Live)
	}
	if runErr != nil {
		return fmt.Errorf("цикл стриминга: %w", runErr)
	}
	logging.Info("👋 Стример успешно остановлен")
	return nil
}
