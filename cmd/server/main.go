package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/blockroll/internal/api"
	"github.com/annel0/blockroll/internal/cache"
	"github.com/annel0/blockroll/internal/config"
	"github.com/annel0/blockroll/internal/eventbus"
	"github.com/annel0/blockroll/internal/game"
	"github.com/annel0/blockroll/internal/logging"
	"github.com/annel0/blockroll/internal/metrics"
	"github.com/annel0/blockroll/internal/observability"
	"github.com/annel0/blockroll/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (иначе BLOCKROLL_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	// Инициализируем систему логирования
	logging.LogDir = cfg.Logging.GetDir()
	if err := logging.InitDefaultLogger("server"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	logLevel := logging.ParseLevel(cfg.Logging.GetLevel())
	logging.Default().SetLevels(logLevel, logging.DEBUG)
	logging.GetLoggerManager().SetConsoleLevel(logLevel)

	logging.Info("🎮 Запуск Blockroll Server...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === ШИНА СОБЫТИЙ ===
	bus, err := newEventBus(cfg)
	if err != nil {
		log.Fatalf("❌ Ошибка создания шины событий: %v", err)
	}
	defer bus.Close()
	eventbus.Init(bus)

	if _, err := eventbus.StartLoggingListener(bus); err != nil {
		logging.Warn("LoggingListener не запущен: %v", err)
	}

	// === ХРАНИЛИЩА ===
	levels, replays, closeStorage, err := newRepos(cfg)
	if err != nil {
		log.Fatalf("❌ Ошибка инициализации хранилища: %v", err)
	}
	defer closeStorage()

	levels, closeCache, err := withLevelCache(ctx, cfg, levels)
	if err != nil {
		log.Fatalf("❌ Ошибка инициализации кеша уровней: %v", err)
	}
	defer closeCache()

	if cfg.Levels.GetBackend() != config.BackendFile {
		n, err := storage.ImportDir(ctx, levels, cfg.Levels.GetDir())
		if err != nil {
			logging.Error("❌ Ошибка импорта уровней из %s: %v", cfg.Levels.GetDir(), err)
		} else {
			logging.Info("📦 Импортировано уровней: %d (%s)", n, cfg.Levels.GetDir())
		}
	}

	// === ИГРА ===
	manager := game.NewManager(levels, replays, game.Options{
		RotationSpeed: cfg.Game.GetRotationSpeed(),
		QueueSize:     cfg.Game.QueueSize,
		Bus:           bus,
		Logger:        logging.GetGameLogger(),
	})
	go manager.Run(ctx, cfg.Game.GetTickRate())

	// === МЕТРИКИ И ТРАССИРОВКА ===
	gameMetrics := metrics.NewGameMetrics(prometheus.DefaultRegisterer, manager.Count)
	if err := gameMetrics.Subscribe(ctx, bus); err != nil {
		logging.Warn("Метрики игры не подписаны на шину: %v", err)
	}
	defer gameMetrics.Unsubscribe()

	busExporter := metrics.NewBusExporter(bus, prometheus.DefaultRegisterer)
	busExporter.Start()
	defer busExporter.Stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := observability.InitTelemetry(ctx, "blockroll", cfg.Telemetry.GetEndpoint())
		if err != nil {
			logging.Error("❌ Ошибка инициализации OpenTelemetry: %v", err)
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	// === REST API ===
	restPort := ":" + strconv.Itoa(cfg.Server.GetRESTPort())
	server := api.NewRestServer(api.Config{
		Port:    restPort,
		Manager: manager,
	})
	go func() {
		if err := server.Start(); err != nil {
			logging.Error("❌ REST API остановлен с ошибкой: %v", err)
			cancel()
		}
	}()

	logging.Info("✅ Все сервисы запущены")
	logging.Info("   🌐 REST API: http://localhost%s", restPort)
	logging.Info("   ❤️  Health check: http://localhost%s/health", restPort)
	logging.Info("💡 curl -X POST http://localhost%s/api/sessions -d '{\"level_id\":\"classic\"}'", restPort)

	// Канал для получения сигналов ОС
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info("📡 Получен сигнал %v, завершение работы...", sig)
	case <-ctx.Done():
	}

	// === GRACEFUL SHUTDOWN ===
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := server.Stop(shutdownCtx); err != nil {
		logging.Error("❌ Ошибка остановки REST API: %v", err)
	}
	cancel()

	// Незавершенные попытки сохраняются как записи
	for _, s := range manager.List() {
		if err := manager.Remove(shutdownCtx, s.ID()); err != nil {
			logging.Warn("сессия %s: %v", s.ID(), err)
		}
	}

	logging.Info("👋 Сервер успешно остановлен")
	if err := logging.GetLoggerManager().CloseAll(); err != nil {
		log.Printf("логгеры компонентов: %v", err)
	}
}

// withLevelCache ставит кеш перед общими хранилищами (redis, maria).
// Узлы с NATS рассылают друг другу инвалидации.
func withLevelCache(ctx context.Context, cfg *config.Config, repo storage.LevelRepo) (storage.LevelRepo, func(), error) {
	switch cfg.Levels.GetBackend() {
	case config.BackendRedis, config.BackendMaria:
	default:
		return repo, func() {}, nil
	}

	var inv cache.Invalidator
	if url := cfg.EventBus.GetURL(); url != "" {
		ni, err := cache.NewNATSInvalidator(&cache.InvalidatorConfig{NATSURL: url}, uuid.NewString())
		if err != nil {
			return nil, nil, err
		}
		inv = ni
	}

	c, err := cache.NewLevelCache(ctx, repo, cfg.Storage.GetCacheTTL(), inv)
	if err != nil {
		if inv != nil {
			_ = inv.Close()
		}
		return nil, nil, err
	}
	logging.Info("🧊 Кеш уровней: TTL %s, инвалидация через NATS: %v", cfg.Storage.GetCacheTTL(), inv != nil)

	closeFn := func() {
		st := c.Stats()
		logging.Info("кеш уровней: попаданий %d, промахов %d", st.Hits, st.Misses)
		if inv != nil {
			_ = inv.Close()
		}
	}
	return c, closeFn, nil
}

func newEventBus(cfg *config.Config) (eventbus.EventBus, error) {
	url := cfg.EventBus.GetURL()
	if url == "" {
		logging.Info("🚌 Шина событий в памяти")
		return eventbus.NewMemoryBus(1024), nil
	}
	jb, err := eventbus.NewJetStreamBus(url, cfg.EventBus.Stream, cfg.EventBus.GetRetention())
	if err != nil {
		return nil, err
	}
	logging.Info("🚌 Шина событий JetStream: %s", url)
	return jb, nil
}

// newRepos выбирает хранилища уровней и записей по конфигурации
func newRepos(cfg *config.Config) (storage.LevelRepo, storage.ReplayRepo, func(), error) {
	var (
		levels  storage.LevelRepo
		replays storage.ReplayRepo
		closers []io.Closer
	)
	fail := func(err error) (storage.LevelRepo, storage.ReplayRepo, func(), error) {
		for _, c := range closers {
			_ = c.Close()
		}
		return nil, nil, nil, err
	}

	backend := cfg.Levels.GetBackend()
	switch backend {
	case config.BackendFile:
		repo, err := storage.NewFileLevelRepo(cfg.Levels.GetDir())
		if err != nil {
			return fail(err)
		}
		levels = repo
	case config.BackendBadger:
		store, err := storage.NewBadgerStore(cfg.Storage.GetBadgerPath())
		if err != nil {
			return fail(err)
		}
		closers = append(closers, store)
		levels, replays = store.Levels(), store.Replays()
	case config.BackendRedis:
		rc := storage.DefaultRedisConfig()
		rc.Addr = cfg.Storage.GetRedisAddr()
		repo, err := storage.NewRedisLevelRepo(rc)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, repo)
		levels = repo
	case config.BackendMaria:
		repo, err := storage.NewMariaLevelRepo(cfg.Storage.GetMariaDSN())
		if err != nil {
			return fail(err)
		}
		closers = append(closers, repo)
		levels = repo
	default:
		levels = storage.NewMemoryLevelRepo()
	}
	storeLog := logging.GetStorageLogger()
	storeLog.Info("хранилище уровней: %s", backend)

	if uri := cfg.Storage.GetMongoURI(); uri != "" {
		repo, err := storage.NewMongoReplayRepo(storage.MongoConfig{URI: uri})
		if err != nil {
			return fail(err)
		}
		closers = append(closers, repo)
		replays = repo
		storeLog.Info("записи прохождений: MongoDB")
	} else if replays == nil {
		replays = storage.NewMemoryReplayRepo()
	}

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				storeLog.Warn("ошибка закрытия хранилища: %v", err)
			}
		}
	}
	return levels, replays, closeAll, nil
}
