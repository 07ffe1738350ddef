package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Параметры переподключения.
const (
	defaultDialAttempts      = 10
	defaultReconnectAttempts = 30
	maxReconnectDelay        = 30 * time.Second
)

// ErrConnectionLost — переподключение к брокеру не удалось за отведённое число попыток.
var ErrConnectionLost = errors.New("rabbitmq connection lost")

// Connection — обёртка над AMQP соединением с автоматическим reconnect.
//
// Особенности:
//   - Два канала: для потребления и для публикации (в confirm-режиме)
//   - Ограниченное число попыток переподключения; после исчерпания
//     соединение считается потерянным (Fatal) и процесс должен завершиться
//   - Хуки OnReconnect для восстановления топологии после failover
type Connection struct {
	url    string
	logger *slog.Logger

	mu         sync.RWMutex
	conn       *amqp.Connection
	channel    *amqp.Channel
	pubChannel *amqp.Channel

	closed   bool
	closedCh chan struct{}

	// Для уведомления consumer'а о переподключении
	reconnectCh chan struct{}

	hooksMu sync.Mutex
	hooks   []func(ctx context.Context)

	fatalOnce sync.Once
	fatalCh   chan struct{}
	fatalErr  error

	reconnectAttempts int
}

// ConnectionConfig — параметры соединения.
type ConnectionConfig struct {
	// DialAttempts — попыток первичного подключения (default: 10).
	DialAttempts int

	// ReconnectAttempts — попыток переподключения после разрыва (default: 30).
	ReconnectAttempts int
}

// NewConnection создаёт новое соединение с RabbitMQ.
//
// Первичное подключение повторяется с экспоненциальной задержкой;
// если брокер так и не стал доступен, возвращается ошибка.
func NewConnection(ctx context.Context, url string, logger *slog.Logger, cfg ConnectionConfig) (*Connection, error) {
	if cfg.DialAttempts <= 0 {
		cfg.DialAttempts = defaultDialAttempts
	}
	if cfg.ReconnectAttempts <= 0 {
		cfg.ReconnectAttempts = defaultReconnectAttempts
	}

	c := &Connection{
		url:               url,
		logger:            logger,
		closedCh:          make(chan struct{}),
		reconnectCh:       make(chan struct{}, 1),
		fatalCh:           make(chan struct{}),
		reconnectAttempts: cfg.ReconnectAttempts,
	}

	delay := time.Second
	var err error
	for attempt := 1; attempt <= cfg.DialAttempts; attempt++ {
		if err = c.connect(); err == nil {
			break
		}

		c.logger.Warn("rabbitmq not available", "attempt", attempt, "delay", delay, "error", err)
		if attempt == cfg.DialAttempts {
			return nil, fmt.Errorf("connect after %d attempts: %w", attempt, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, maxReconnectDelay)
	}

	// Запускаем горутину для мониторинга соединения
	go c.watchConnection()

	return c, nil
}

// connect устанавливает соединение и открывает каналы.
func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	pub, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open publish channel: %w", err)
	}

	// Confirm-режим: публикация считается успешной только после ack брокера
	if err := pub.Confirm(false); err != nil {
		conn.Close()
		return fmt.Errorf("enable publisher confirms: %w", err)
	}

	c.conn = conn
	c.channel = ch
	c.pubChannel = pub

	c.logger.Info("connected to RabbitMQ")

	return nil
}

// watchConnection следит за соединением и переподключается при разрыве.
func (c *Connection) watchConnection() {
	for {
		c.mu.RLock()
		if c.closed {
			c.mu.RUnlock()
			return
		}
		conn := c.conn
		ch, pub := c.channel, c.pubChannel
		c.mu.RUnlock()

		// Ждём уведомления о закрытии соединения
		notifyClose := conn.NotifyClose(make(chan *amqp.Error, 1))
		chClose := ch.NotifyClose(make(chan *amqp.Error, 1))
		pubClose := pub.NotifyClose(make(chan *amqp.Error, 1))

		select {
		case <-c.closedCh:
			return
		case err := <-chClose:
			// Канал закрыт брокером при живом соединении — пересоздаём всё
			c.logger.Warn("channel closed", "error", err)
			conn.Close()
			if !c.reconnect() {
				return
			}
		case err := <-pubClose:
			c.logger.Warn("publish channel closed", "error", err)
			conn.Close()
			if !c.reconnect() {
				return
			}
		case err := <-notifyClose:
			if err != nil {
				c.logger.Warn("connection closed", "error", err)
			}

			if !c.reconnect() {
				return
			}
		}
	}
}

// reconnect пытается переподключиться с экспоненциальной задержкой.
// Возвращает false, если соединение закрыто или попытки исчерпаны.
func (c *Connection) reconnect() bool {
	delay := time.Second

	for attempt := 1; attempt <= c.reconnectAttempts; attempt++ {
		if c.isClosed() {
			return false
		}

		c.logger.Info("attempting to reconnect", "attempt", attempt, "delay", delay)

		select {
		case <-c.closedCh:
			return false
		case <-time.After(delay):
		}

		if err := c.connect(); err != nil {
			c.logger.Warn("reconnect failed", "attempt", attempt, "error", err)
			// Увеличиваем задержку (максимум 30 секунд)
			delay = min(delay*2, maxReconnectDelay)
			continue
		}

		c.logger.Info("reconnected to RabbitMQ")

		// Сначала хуки (восстановление топологии), затем consumer
		c.runHooks()

		select {
		case c.reconnectCh <- struct{}{}:
		default:
		}

		return true
	}

	c.fail(fmt.Errorf("%w: %d reconnect attempts exhausted", ErrConnectionLost, c.reconnectAttempts))
	return false
}

// OnReconnect регистрирует хук, вызываемый после каждого успешного переподключения.
func (c *Connection) OnReconnect(fn func(ctx context.Context)) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.hooks = append(c.hooks, fn)
}

// runHooks вызывает хуки переподключения.
func (c *Connection) runHooks() {
	c.hooksMu.Lock()
	hooks := make([]func(ctx context.Context), len(c.hooks))
	copy(hooks, c.hooks)
	c.hooksMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, hook := range hooks {
		hook(ctx)
	}
}

// fail помечает соединение как безвозвратно потерянное.
func (c *Connection) fail(err error) {
	c.fatalOnce.Do(func() {
		c.logger.Error("rabbitmq connection is unrecoverable", "error", err)
		c.fatalErr = err
		close(c.fatalCh)
	})
}

// Fatal закрывается, когда соединение потеряно безвозвратно.
func (c *Connection) Fatal() <-chan struct{} {
	return c.fatalCh
}

// Err возвращает причину потери соединения (после закрытия Fatal).
func (c *Connection) Err() error {
	select {
	case <-c.fatalCh:
		return c.fatalErr
	default:
		return nil
	}
}

// Channel возвращает текущий AMQP канал для потребления.
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// PublishChannel возвращает текущий канал публикации (confirm-режим).
func (c *Connection) PublishChannel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pubChannel
}

// OpenChannel открывает временный канал на текущем соединении.
// Закрытие канала — ответственность вызывающего.
func (c *Connection) OpenChannel() (*amqp.Channel, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return nil, fmt.Errorf("no connection available")
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return ch, nil
}

// ReconnectNotify возвращает канал для уведомлений о переподключении.
func (c *Connection) ReconnectNotify() <-chan struct{} {
	return c.reconnectCh
}

// Close закрывает соединение.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.closedCh)

	var errs []error

	for _, ch := range []*amqp.Channel{c.channel, c.pubChannel} {
		if ch == nil || ch.IsClosed() {
			continue
		}
		if err := ch.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}

	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	c.logger.Info("connection closed")
	return nil
}

func (c *Connection) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// IsConnected проверяет, установлено ли соединение.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn == nil {
		return false
	}

	return !c.conn.IsClosed()
}

// WithChannel выполняет функцию с текущим каналом потребления.
func (c *Connection) WithChannel(ctx context.Context, fn func(ch *amqp.Channel) error) error {
	ch := c.Channel()
	if ch == nil {
		return fmt.Errorf("no channel available")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return fn(ch)
}
