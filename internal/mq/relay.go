package mq

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Relay поддерживает dead-letter relay отложенных очередей.
//
// У отложенных очередей нет настоящих потребителей, их задача —
// дать сообщениям истечь по TTL. После failover брокера устаревшее
// объявление может молча остановить relay, поэтому при старте и после
// каждого переподключения Relay заново объявляет топологию и ненадолго
// открывает каждую отложенную очередь.
type Relay struct {
	conn   *Connection
	topo   Topology
	logger *slog.Logger
}

// NewRelay создаёт Relay для топологии.
func NewRelay(conn *Connection, topo Topology, logger *slog.Logger) *Relay {
	return &Relay{conn: conn, topo: topo, logger: logger}
}

// Start выполняет Revive и регистрирует его как хук переподключения.
func (r *Relay) Start(ctx context.Context) error {
	if err := r.Revive(ctx); err != nil {
		return err
	}

	r.conn.OnReconnect(func(ctx context.Context) {
		if err := r.Revive(ctx); err != nil {
			r.logger.Error("failed to revive delayed relay", "worker", r.topo.Name(), "error", err)
		}
	})

	return nil
}

// Revive объявляет топологию и открывает каждую отложенную очередь.
func (r *Relay) Revive(ctx context.Context) error {
	if err := r.topo.Declare(ctx, r.conn); err != nil {
		return fmt.Errorf("declare topology: %w", err)
	}

	for _, class := range r.topo.Classes() {
		queue := r.topo.DelayedQueue(class)
		if err := r.touch(queue); err != nil {
			return fmt.Errorf("touch delayed queue %s: %w", queue, err)
		}
	}

	r.logger.Info("delayed relay revived",
		"worker", r.topo.Name(),
		"classes", len(r.topo.Classes()),
	)

	return nil
}

// touch подписывается на очередь и сразу отписывается.
//
// Канал временный: всё, что брокер успел доставить, возвращается
// в очередь при закрытии канала без ack.
func (r *Relay) touch(queue Queue) error {
	ch, err := r.conn.OpenChannel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	tag := "relay-" + uuid.NewString()
	if _, err := ch.Consume(
		string(queue), // queue
		tag,           // consumer tag
		false,         // auto-ack
		false,         // exclusive
		false,         // no-local
		false,         // no-wait
		nil,           // args
	); err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	if err := ch.Cancel(tag, false); err != nil {
		return fmt.Errorf("cancel: %w", err)
	}

	return nil
}
