package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/taskmachine/internal/domain"
)

// Ошибки публикации.
var (
	// ErrPublishFailed — конверт не удалось надёжно опубликовать после всех попыток.
	ErrPublishFailed = errors.New("publish failed")

	// ErrPublishNacked — брокер отказался принять сообщение (basic.nack).
	ErrPublishNacked = errors.New("publish not confirmed by broker")
)

// RetryPolicy — политика повтора публикации при сбоях связи с брокером.
//
// Задержка перед повтором n (n >= 1): IntervalStart + IntervalStep*(n-1),
// но не больше IntervalMax.
type RetryPolicy struct {
	MaxRetries    int
	IntervalStart time.Duration
	IntervalStep  time.Duration
	IntervalMax   time.Duration
}

// DefaultRetryPolicy — до 15 повторов, линейная задержка от 0 до 3 секунд.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    15,
		IntervalStart: 0,
		IntervalStep:  200 * time.Millisecond,
		IntervalMax:   3 * time.Second,
	}
}

// Interval возвращает задержку перед повтором retry (начиная с 1).
func (p RetryPolicy) Interval(retry int) time.Duration {
	if retry < 1 {
		return 0
	}
	d := p.IntervalStart + p.IntervalStep*time.Duration(retry-1)
	if p.IntervalMax > 0 && d > p.IntervalMax {
		d = p.IntervalMax
	}
	return d
}

// publishFunc — низкоуровневая публикация одного сообщения с подтверждением.
type publishFunc func(ctx context.Context, exchange Exchange, key RoutingKey, msg amqp.Publishing) error

// Publisher публикует конверты в топологию одного типа воркера.
//
// Continuation Publisher: PublishNow кладёт конверт в основную очередь,
// PublishDelayed — в отложенную очередь подходящего класса.
// Публикация успешна только после подтверждения брокера.
type Publisher struct {
	topo   Topology
	logger *slog.Logger
	policy RetryPolicy

	mu      sync.Mutex
	publish publishFunc
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, topo Topology, logger *slog.Logger, policy RetryPolicy) *Publisher {
	return &Publisher{
		topo:    topo,
		logger:  logger,
		policy:  policy,
		publish: confirmedPublish(conn),
	}
}

// Topology возвращает топологию издателя.
func (p *Publisher) Topology() Topology {
	return p.topo
}

// PublishNow публикует конверт в основную очередь.
func (p *Publisher) PublishNow(ctx context.Context, env domain.Envelope) error {
	return p.send(ctx, p.topo.Exchange(), p.topo.RoutingKey(), env)
}

// PublishDelayed публикует конверт в отложенную очередь.
//
// Сообщение вернётся в основную очередь не раньше, чем через класс
// задержки >= delay. delay <= 0 эквивалентно PublishNow.
func (p *Publisher) PublishDelayed(ctx context.Context, env domain.Envelope, delay time.Duration) error {
	if delay <= 0 {
		return p.PublishNow(ctx, env)
	}

	class, clamped := p.topo.ClassFor(delay)
	if clamped {
		p.logger.Warn("requested delay exceeds largest delay class, clamping",
			"subject_id", env.SubjectID,
			"state", env.State,
			"requested", delay,
			"class", class,
		)
	}

	return p.send(ctx, p.topo.DelayedExchange(), p.topo.DelayedRoutingKey(class), env)
}

// send сериализует конверт и публикует его с повтором по RetryPolicy.
func (p *Publisher) send(ctx context.Context, exchange Exchange, key RoutingKey, env domain.Envelope) error {
	body, err := env.Encode()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
		MessageId:    env.ID.String(),
		Type:         string(env.State),
		Timestamp:    time.Now(),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt <= p.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := p.policy.Interval(attempt)
			p.logger.Warn("retrying publish",
				"exchange", exchange,
				"routing_key", key,
				"subject_id", env.SubjectID,
				"attempt", attempt,
				"wait", wait,
				"error", lastErr,
			)

			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrPublishFailed, ctx.Err())
			case <-time.After(wait):
			}
		}

		lastErr = p.publish(ctx, exchange, key, msg)
		if lastErr == nil {
			p.logger.Debug("published envelope",
				"exchange", exchange,
				"routing_key", key,
				"envelope_id", env.ID,
				"subject_id", env.SubjectID,
				"state", env.State,
				"attempt", env.Attempt,
			)
			return nil
		}
	}

	return fmt.Errorf("%w: %s/%s after %d retries: %v", ErrPublishFailed, exchange, key, p.policy.MaxRetries, lastErr)
}

// confirmedPublish публикует через канал публикации и ждёт confirm брокера.
func confirmedPublish(conn *Connection) publishFunc {
	return func(ctx context.Context, exchange Exchange, key RoutingKey, msg amqp.Publishing) error {
		ch := conn.PublishChannel()
		if ch == nil || ch.IsClosed() {
			return fmt.Errorf("no publish channel available")
		}

		dc, err := ch.PublishWithDeferredConfirmWithContext(
			ctx,
			string(exchange), // exchange
			string(key),      // routing key
			false,            // mandatory
			false,            // immediate
			msg,
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, key, err)
		}

		// Канал не в confirm-режиме — подтверждения не будет
		if dc == nil {
			return nil
		}

		ok, err := dc.WaitContext(ctx)
		if err != nil {
			return fmt.Errorf("wait confirm: %w", err)
		}
		if !ok {
			return ErrPublishNacked
		}

		return nil
	}
}
