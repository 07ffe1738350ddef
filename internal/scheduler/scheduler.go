package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/taskmachine/internal/config"
	"github.com/shaiso/taskmachine/internal/domain"
	"github.com/shaiso/taskmachine/internal/telemetry"
)

// ErrInvalidTrigger — триггер описан некорректно.
var ErrInvalidTrigger = errors.New("invalid trigger")

// Publisher — публикация начальных конвертов.
type Publisher interface {
	PublishNow(ctx context.Context, env domain.Envelope) error
}

// Journal — источник задач для sweeper.
type Journal interface {
	ListStale(ctx context.Context, worker string, olderThan time.Duration, limit int) ([]domain.Task, error)
}

// Scheduler — планировщик триггеров и sweeper'а.
type Scheduler struct {
	worker    string
	triggers  []config.Trigger
	publisher Publisher
	journal   Journal
	threshold time.Duration
	sweepCron string
	batchSize int
	logger    *slog.Logger
	metrics   *telemetry.Metrics

	cron *cron.Cron
	now  func() time.Time
}

// Config — конфигурация Scheduler.
type Config struct {
	Worker        string
	Triggers      []config.Trigger
	Publisher     Publisher
	KnownState    func(domain.State) bool // nil — состояния триггеров не проверяются
	Journal       Journal                 // nil — sweeper выключен
	WaitThreshold time.Duration           // порог «застрявшей» задачи (default: 30m)
	SweepCron     string                  // расписание sweeper'а (default: "@every 1m")
	BatchSize     int                     // задач за один проход sweeper'а (default: 100)
	Logger        *slog.Logger
	Metrics       *telemetry.Metrics
}

// New создаёт Scheduler и проверяет расписания.
func New(cfg Config) (*Scheduler, error) {
	if cfg.WaitThreshold <= 0 {
		cfg.WaitThreshold = config.DefaultWaitThreshold
	}
	if cfg.SweepCron == "" {
		cfg.SweepCron = config.DefaultSweepCron
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}

	for _, t := range cfg.Triggers {
		if t.Name == "" || t.State == "" {
			return nil, fmt.Errorf("%w: name and state are required", ErrInvalidTrigger)
		}
		if err := ValidateCronExpr(t.Cron); err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidTrigger, t.Name, err)
		}
		if cfg.KnownState != nil && !cfg.KnownState(domain.State(t.State)) {
			return nil, fmt.Errorf("%w %q: state %s has no handler", ErrInvalidTrigger, t.Name, t.State)
		}
	}
	if cfg.Journal != nil {
		if err := ValidateCronExpr(cfg.SweepCron); err != nil {
			return nil, fmt.Errorf("sweep cron: %w", err)
		}
	}

	return &Scheduler{
		worker:    cfg.Worker,
		triggers:  cfg.Triggers,
		publisher: cfg.Publisher,
		journal:   cfg.Journal,
		threshold: cfg.WaitThreshold,
		sweepCron: cfg.SweepCron,
		batchSize: cfg.BatchSize,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		now:       time.Now,
	}, nil
}

// Start регистрирует задания и запускает cron. Не блокирует.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron = cron.New(cron.WithParser(cronParser))

	for _, t := range s.triggers {
		trigger := t
		if _, err := s.cron.AddFunc(trigger.Cron, func() {
			if err := s.Fire(ctx, trigger); err != nil {
				s.logger.Error("trigger failed", "trigger", trigger.Name, "error", err)
			}
		}); err != nil {
			return fmt.Errorf("add trigger %q: %w", trigger.Name, err)
		}
	}

	if s.journal != nil {
		if _, err := s.cron.AddFunc(s.sweepCron, func() {
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("sweep failed", "worker", s.worker, "error", err)
			}
		}); err != nil {
			return fmt.Errorf("add sweeper: %w", err)
		}
	}

	s.cron.Start()

	s.logger.Info("scheduler started",
		"worker", s.worker,
		"triggers", len(s.triggers),
		"sweeper", s.journal != nil,
	)

	return nil
}

// Stop останавливает cron и ждёт завершения запущенных заданий.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// Fire публикует начальный конверт для триггера.
//
// Без фиксированного subject_id субъект строится из имени триггера
// и времени срабатывания: "{name}_{unix}".
func (s *Scheduler) Fire(ctx context.Context, t config.Trigger) error {
	now := s.now()

	subject := t.SubjectID
	if subject == "" {
		subject = fmt.Sprintf("%s_%d", t.Name, now.Unix())
	}

	env := domain.NewEnvelope(domain.State(t.State), subject, t.Payload)

	if err := s.publisher.PublishNow(ctx, env); err != nil {
		s.countFire(t.Name, "error")
		return fmt.Errorf("publish initial envelope: %w", err)
	}

	s.countFire(t.Name, "ok")
	s.logger.Info("trigger fired",
		"trigger", t.Name,
		"subject_id", subject,
		"state", t.State,
		"envelope_id", env.ID,
	)

	return nil
}

// Sweep находит задачи без движения дольше порога ожидания.
// Возвращает найденные задачи.
func (s *Scheduler) Sweep(ctx context.Context) ([]domain.Task, error) {
	if s.journal == nil {
		return nil, nil
	}

	tasks, err := s.journal.ListStale(ctx, s.worker, s.threshold, s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("list stale tasks: %w", err)
	}

	if s.metrics != nil {
		s.metrics.StuckTasks.WithLabelValues(s.worker).Set(float64(len(tasks)))
	}

	now := s.now()
	for _, task := range tasks {
		s.logger.Warn("task stuck beyond wait threshold",
			"worker", task.Worker,
			"subject_id", task.SubjectID,
			"state", task.State,
			"attempt", task.Attempt,
			"envelope_id", task.EnvelopeID,
			"idle", now.Sub(task.UpdatedAt).Round(time.Second),
		)
	}

	return tasks, nil
}

func (s *Scheduler) countFire(trigger, result string) {
	if s.metrics != nil {
		s.metrics.TriggerFires.WithLabelValues(trigger, result).Inc()
	}
}
