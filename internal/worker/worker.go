package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shaiso/taskmachine/internal/dedup"
	"github.com/shaiso/taskmachine/internal/domain"
	"github.com/shaiso/taskmachine/internal/machine"
	"github.com/shaiso/taskmachine/internal/mq"
	"github.com/shaiso/taskmachine/internal/telemetry"
)

// Default configuration values.
const (
	defaultPrefetch = 1
	defaultDedupTTL = 24 * time.Hour
)

// Continuations — публикация продолжений.
//
// Реализуется mq.Publisher; ошибка означает, что конверт не был
// надёжно опубликован.
type Continuations interface {
	PublishNow(ctx context.Context, env domain.Envelope) error
	PublishDelayed(ctx context.Context, env domain.Envelope, delay time.Duration) error
}

// Journal — запись результата обработки.
type Journal interface {
	Record(ctx context.Context, task *domain.Task) error
}

// Worker — Worker Loop одного типа воркера.
type Worker struct {
	name      string
	table     *machine.Table
	publisher Continuations
	conn      *mq.Connection
	queue     mq.Queue
	prefetch  int
	deps      *machine.Deps

	dedup    dedup.Store
	dedupTTL time.Duration
	journal  Journal

	waitThreshold time.Duration

	// Consumer
	consumer *mq.Consumer

	// Lifecycle
	logger     *slog.Logger
	metrics    *telemetry.Metrics
	now        func() time.Time
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
	done       chan struct{}
	err        error
}

// Config — конфигурация Worker.
type Config struct {
	// Table — таблица переходов (обязательно).
	Table *machine.Table

	// MQ
	Publisher Continuations
	Conn      *mq.Connection
	Queue     mq.Queue // основная очередь (default: имя таблицы)
	Prefetch  int      // максимум неподтверждённых доставок (default: 1)

	// Deps — зависимости Handler'ов.
	Deps *machine.Deps

	// Dedup — хранилище обработанных конвертов (default: dedup.Nop).
	Dedup    dedup.Store
	DedupTTL time.Duration // default: 24h

	// Journal — журнал задач (опционально).
	Journal Journal

	// WaitThreshold — возраст задачи, после которого конверт считается
	// устаревшим (0 — проверка выключена).
	WaitThreshold time.Duration

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// New создаёт новый Worker.
func New(cfg Config) (*Worker, error) {
	if cfg.Table == nil {
		return nil, ErrNoTable
	}
	if cfg.Publisher == nil {
		return nil, ErrNoPublisher
	}

	queue := cfg.Queue
	if queue == "" {
		queue = mq.Queue(cfg.Table.Name())
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}

	store := cfg.Dedup
	if store == nil {
		store = dedup.Nop{}
	}

	dedupTTL := cfg.DedupTTL
	if dedupTTL <= 0 {
		dedupTTL = defaultDedupTTL
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = telemetry.WithWorker(logger, cfg.Table.Name())

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NewMetrics(prometheus.NewRegistry())
	}

	deps := cfg.Deps
	if deps == nil {
		deps = &machine.Deps{}
	}
	if deps.Logger == nil {
		deps.Logger = logger
	}

	return &Worker{
		name:          cfg.Table.Name(),
		table:         cfg.Table,
		publisher:     cfg.Publisher,
		conn:          cfg.Conn,
		queue:         queue,
		prefetch:      prefetch,
		deps:          deps,
		dedup:         store,
		dedupTTL:      dedupTTL,
		journal:       cfg.Journal,
		waitThreshold: cfg.WaitThreshold,
		logger:        logger,
		metrics:       metrics,
		now:           time.Now,
		done:          make(chan struct{}),
	}, nil
}

// Name возвращает тип воркера.
func (w *Worker) Name() string {
	return w.name
}

// Start запускает consumer основной очереди. Не блокирует.
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"queue", w.queue,
		"prefetch", w.prefetch,
		"states", len(w.table.States()),
		"wait_threshold", w.waitThreshold,
	)

	w.consumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
		Queue:    w.queue,
		Tag:      w.name + "-" + uuid.NewString(),
		Handler:  w.handleDelivery,
		Prefetch: w.prefetch,
	})

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer close(w.done)

		err := w.consumer.Start(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("consumer stopped", "error", err)
			w.err = err
		}
	}()

	w.logger.Info("worker started")
	return nil
}

// Done закрывается, когда consumer завершился.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Err возвращает причину остановки consumer'а (после закрытия Done).
func (w *Worker) Err() error {
	select {
	case <-w.done:
		return w.err
	default:
		return nil
	}
}

// Stop останавливает Worker и дожидается обработки текущей доставки.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}

	if w.consumer != nil {
		w.consumer.Stop()
	}

	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}
