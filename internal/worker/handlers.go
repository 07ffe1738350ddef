package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/taskmachine/internal/domain"
	"github.com/shaiso/taskmachine/internal/machine"
	"github.com/shaiso/taskmachine/internal/telemetry"
)

// handleDelivery обрабатывает одну доставку из основной очереди.
func (w *Worker) handleDelivery(ctx context.Context, d amqp.Delivery) {
	env, err := domain.DecodeEnvelope(d.Body)
	if err != nil {
		w.logger.Error("dropping malformed envelope",
			"delivery_tag", d.DeliveryTag,
			"message_id", d.MessageId,
			"error", err,
		)
		w.count(telemetry.ResultMalformed)
		w.ack(d, w.logger)
		return
	}

	logger := telemetry.WithEnvelope(w.logger, env.ID.String(), env.SubjectID, string(env.State), env.Attempt)

	if w.seen(ctx, env, logger) {
		logger.Info("envelope already processed, skipping")
		w.count(telemetry.ResultDuplicate)
		w.ack(d, logger)
		return
	}

	if age := env.Age(w.now()); w.waitThreshold > 0 && age > w.waitThreshold {
		logger.Warn("envelope exceeded wait threshold",
			"age", age.Round(time.Second),
			"threshold", w.waitThreshold,
		)
		w.metrics.StaleEnvelopes.WithLabelValues(w.name, string(env.State)).Inc()
	}

	handler, err := w.table.Lookup(env.State)
	if err != nil {
		logger.Error("dropping envelope with unknown state", "error", err)
		w.count(telemetry.ResultUnknownState)
		w.ack(d, logger)
		return
	}

	outcome, err := w.execute(ctx, handler, env, logger)
	if err != nil {
		logger.Error("handler failed, task will not continue", "error", err)
		w.count(telemetry.ResultHandlerError)
		w.settle(ctx, d, env, domain.TaskStatusFailed, err.Error(), logger)
		return
	}

	switch outcome.Kind() {
	case machine.KindComplete:
		logger.Info("task completed")
		w.count(telemetry.ResultComplete)
		w.settle(ctx, d, env, domain.TaskStatusCompleted, "", logger)

	case machine.KindFail:
		logger.Warn("task failed", "reason", outcome.Reason())
		w.count(telemetry.ResultFail)
		w.settle(ctx, d, env, domain.TaskStatusFailed, outcome.Reason(), logger)

	case machine.KindContinue:
		if err := w.publish(ctx, outcome); err != nil {
			logger.Error("failed to publish continuation, returning delivery to queue",
				"next", outcome.Next().String(),
				"error", err,
			)
			w.count(telemetry.ResultPublishFailed)
			w.requeue(d, logger)
			return
		}

		logger.Debug("continuation published",
			"next", outcome.Next().String(),
			"next_envelope_id", outcome.Next().ID,
			"delay", outcome.Delay(),
		)
		if outcome.Delayed() {
			w.count(telemetry.ResultDelayed)
		} else {
			w.count(telemetry.ResultContinue)
		}
		w.settle(ctx, d, env, domain.TaskStatusActive, "", logger)
	}
}

// execute вызывает Handler, перехватывая панику и проверяя решение.
func (w *Worker) execute(ctx context.Context, h machine.Handler, env domain.Envelope, logger *slog.Logger) (outcome machine.Outcome, err error) {
	started := w.now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("handler panic", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
		w.metrics.HandlerDuration.WithLabelValues(w.name, string(env.State)).Observe(w.now().Sub(started).Seconds())
	}()

	// Зависимости с логгером конверта
	deps := *w.deps
	deps.Logger = logger

	outcome, err = h.Execute(telemetry.WithLogger(ctx, logger), env, &deps)
	if err != nil {
		return machine.Outcome{}, err
	}
	if verr := outcome.Valid(); verr != nil {
		return machine.Outcome{}, fmt.Errorf("%w: %v", ErrInvalidOutcome, verr)
	}
	return outcome, nil
}

// publish публикует продолжение сразу или через отложенную очередь.
func (w *Worker) publish(ctx context.Context, outcome machine.Outcome) error {
	if outcome.Delayed() {
		return w.publisher.PublishDelayed(ctx, outcome.Next(), outcome.Delay())
	}
	return w.publisher.PublishNow(ctx, outcome.Next())
}

// settle отмечает конверт обработанным, пишет журнал и подтверждает доставку.
func (w *Worker) settle(ctx context.Context, d amqp.Delivery, env domain.Envelope, status domain.TaskStatus, reason string, logger *slog.Logger) {
	if env.ID != uuid.Nil {
		if err := w.dedup.Mark(ctx, env.ID, w.dedupTTL); err != nil {
			logger.Warn("failed to mark envelope processed", "error", err)
		}
	}

	if w.journal != nil {
		if err := w.journal.Record(ctx, domain.NewTask(w.name, env, status, reason)); err != nil {
			logger.Warn("failed to record task journal", "error", err)
		}
	}

	w.ack(d, logger)
}

// seen проверяет хранилище дедупликации. Ошибка хранилища не блокирует обработку.
// Конверты без id (внешние продюсеры) не дедуплицируются.
func (w *Worker) seen(ctx context.Context, env domain.Envelope, logger *slog.Logger) bool {
	if env.ID == uuid.Nil {
		return false
	}
	seen, err := w.dedup.Seen(ctx, env.ID)
	if err != nil {
		logger.Warn("dedup check failed, processing anyway", "error", err)
		return false
	}
	return seen
}

func (w *Worker) ack(d amqp.Delivery, logger *slog.Logger) {
	if err := d.Ack(false); err != nil {
		logger.Error("failed to ack delivery", "delivery_tag", d.DeliveryTag, "error", err)
	}
}

// requeue возвращает доставку в очередь. Если nack не прошёл, доставка
// остаётся неподтверждённой и вернётся в очередь при разрыве соединения.
func (w *Worker) requeue(d amqp.Delivery, logger *slog.Logger) {
	if err := d.Nack(false, true); err != nil {
		logger.Error("failed to nack delivery, leaving it unacked", "delivery_tag", d.DeliveryTag, "error", err)
	}
}

func (w *Worker) count(result string) {
	w.metrics.Deliveries.WithLabelValues(w.name, result).Inc()
}
