// Taskmachine Worker — обрабатывает конверты задач одного типа воркера.
//
// Worker:
//   - Ждёт готовности конфигурации и объявляет топологию своего типа
//   - Поддерживает relay отложенных очередей после переподключений
//   - Потребляет основную очередь и публикует продолжения
//   - Запускает периодические триггеры и sweeper застрявших задач
//   - Отдаёт /healthz, /metrics и журнал задач по HTTP
//
// Тип воркера задаётся WORKER_TYPE; workers масштабируются горизонтально.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/taskmachine/internal/api"
	"github.com/shaiso/taskmachine/internal/config"
	"github.com/shaiso/taskmachine/internal/dedup"
	"github.com/shaiso/taskmachine/internal/flows"
	"github.com/shaiso/taskmachine/internal/machine"
	"github.com/shaiso/taskmachine/internal/mq"
	"github.com/shaiso/taskmachine/internal/repo"
	"github.com/shaiso/taskmachine/internal/scheduler"
	"github.com/shaiso/taskmachine/internal/telemetry"
	"github.com/shaiso/taskmachine/internal/worker"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting taskmachine-worker")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker exited", "error", err)
		os.Exit(1)
	}

	logger.Info("taskmachine-worker stopped")
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Конфигурация
	path := os.Getenv("CONFIG_FILE")
	if os.Getenv("CONFIG_WAIT") != "" {
		if err := config.WaitReady(ctx, path, 2*time.Second, logger); err != nil {
			return err
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	def, err := flows.Lookup(cfg.WorkerType)
	if err != nil {
		return err
	}
	table := def.Build()

	prefetch := def.Prefetch
	if cfg.Prefetch > 0 {
		prefetch = cfg.Prefetch
	}

	logger = telemetry.WithWorker(logger, def.Name)
	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	// RabbitMQ
	mqConn, err := mq.NewConnection(ctx, cfg.ResolveBrokerURL(), logger, mq.ConnectionConfig{})
	if err != nil {
		return fmt.Errorf("connect to rabbitmq: %w", err)
	}
	defer mqConn.Close()

	topo := mq.NewTopology(def.Name, cfg.DelayClasses)

	// Топология + relay отложенных очередей (и после каждого переподключения)
	relay := mq.NewRelay(mqConn, topo, logger)
	if err := relay.Start(ctx); err != nil {
		return fmt.Errorf("setup topology: %w", err)
	}
	logger.Info("topology declared", "topology", topo.Info())

	publisher := mq.NewPublisher(mqConn, topo, logger, mq.DefaultRetryPolicy())

	// Дедупликация (опционально)
	var store dedup.Store = dedup.NewMemoryStore(0)
	if cfg.RedisURL != "" {
		rdb, err := dedup.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer rdb.Close()
		store = dedup.NewRedisStore(rdb)
		logger.Info("redis dedup store connected")
	}

	// Журнал (опционально)
	var journal *repo.TaskRepo
	if cfg.DBURL != "" {
		pool, err := repo.NewPool(ctx, cfg.DBURL)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer pool.Close()

		journal = repo.NewTaskRepo(pool)
		if err := journal.Migrate(ctx); err != nil {
			return err
		}
		logger.Info("task journal connected")
	}

	deps := &machine.Deps{
		Logger:   logger,
		HTTP:     &http.Client{Timeout: 30 * time.Second},
		Config:   cfg,
		Services: cfg.Services,
	}

	wcfg := worker.Config{
		Table:         table,
		Publisher:     publisher,
		Conn:          mqConn,
		Prefetch:      prefetch,
		Deps:          deps,
		Dedup:         store,
		DedupTTL:      cfg.DedupTTL,
		WaitThreshold: cfg.WaitThreshold,
		Logger:        logger,
		Metrics:       metrics,
	}
	scfg := scheduler.Config{
		Worker:        def.Name,
		Triggers:      cfg.Triggers,
		Publisher:     publisher,
		KnownState:    table.Has,
		WaitThreshold: cfg.WaitThreshold,
		SweepCron:     cfg.SweepCron,
		Logger:        logger,
		Metrics:       metrics,
	}
	if journal != nil {
		wcfg.Journal = journal
		scfg.Journal = journal
	}

	w, err := worker.New(wcfg)
	if err != nil {
		return err
	}
	sched, err := scheduler.New(scfg)
	if err != nil {
		return err
	}

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	defer w.Stop()

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	// HTTP: /healthz, /metrics и чтение журнала
	acfg := api.Config{
		Worker:        def.Name,
		Healthy:       mqConn.IsConnected,
		WaitThreshold: cfg.WaitThreshold,
		Metrics:       promhttp.Handler(),
		Logger:        logger,
	}
	if journal != nil {
		acfg.Journal = journal
	}

	mux := http.NewServeMux()
	api.NewHandler(acfg).RegisterRoutes(mux)

	server := &http.Server{Addr: ":" + cfg.Port, Handler: mux}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// Безвозвратная потеря брокера или остановка consumer'а — выход процесса
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-mqConn.Fatal():
			return mqConn.Err()
		case <-w.Done():
			if err := w.Err(); err != nil {
				return err
			}
			return nil
		}
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
