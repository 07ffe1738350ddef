package mq

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/taskmachine/internal/domain"
)

// Интеграционные тесты: запускаются только при заданном RABBITMQ_URL.

func integrationConn(t *testing.T) *Connection {
	t.Helper()
	url := os.Getenv("RABBITMQ_URL")
	if url == "" {
		t.Skip("RABBITMQ_URL not set")
	}

	conn, err := NewConnection(context.Background(), url, testLogger(), ConnectionConfig{DialAttempts: 1})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// integrationTopology объявляет топологию с уникальным именем и удаляет её после теста.
func integrationTopology(t *testing.T, conn *Connection, classes []time.Duration) Topology {
	t.Helper()
	topo := NewTopology("test-"+uuid.NewString()[:8], classes)

	if err := topo.Declare(context.Background(), conn); err != nil {
		t.Fatalf("declare topology: %v", err)
	}

	t.Cleanup(func() {
		ch, err := conn.OpenChannel()
		if err != nil {
			return
		}
		defer ch.Close()

		ch.QueueDelete(string(topo.Queue()), false, false, false)
		for _, class := range topo.Classes() {
			ch.QueueDelete(string(topo.DelayedQueue(class)), false, false, false)
		}
		ch.ExchangeDelete(string(topo.Exchange()), false, false)
		ch.ExchangeDelete(string(topo.DelayedExchange()), false, false)
	})

	return topo
}

// queueDepth возвращает число готовых сообщений в очереди.
func queueDepth(t *testing.T, conn *Connection, queue Queue) int {
	t.Helper()
	ch, err := conn.OpenChannel()
	if err != nil {
		t.Fatalf("open channel: %v", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclarePassive(string(queue), true, false, false, false, nil)
	if err != nil {
		t.Fatalf("inspect queue %s: %v", queue, err)
	}
	return q.Messages
}

func TestIntegration_DelayedPublishArrivesAfterTTL(t *testing.T) {
	conn := integrationConn(t)
	topo := integrationTopology(t, conn, []time.Duration{2 * time.Second})
	pub := NewPublisher(conn, topo, testLogger(), DefaultRetryPolicy())

	start := time.Now()
	env := domain.NewEnvelope(domain.StateRunning, "r-1", nil)
	if err := pub.PublishDelayed(context.Background(), env, 2*time.Second); err != nil {
		t.Fatalf("publish delayed: %v", err)
	}

	if n := queueDepth(t, conn, topo.Queue()); n != 0 {
		t.Fatalf("delayed envelope reached primary queue early: %d messages", n)
	}
	if n := queueDepth(t, conn, topo.DelayedQueue(2*time.Second)); n != 1 {
		t.Fatalf("expected 1 message in delayed queue, got %d", n)
	}

	deadline := time.Now().Add(10 * time.Second)
	for queueDepth(t, conn, topo.Queue()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("delayed envelope never reached primary queue")
		}
		time.Sleep(100 * time.Millisecond)
	}

	if elapsed := time.Since(start); elapsed < 2*time.Second {
		t.Errorf("envelope arrived after %v, before the 2s class", elapsed)
	}
	if n := queueDepth(t, conn, topo.Queue()); n != 1 {
		t.Errorf("expected exactly 1 message in primary queue, got %d", n)
	}
}

// recorder копит доставки, не подтверждая их.
type recorder struct {
	mu         sync.Mutex
	deliveries []amqp.Delivery
	notify     chan struct{}
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan struct{}, 100)}
}

func (r *recorder) handle(_ context.Context, d amqp.Delivery) {
	r.mu.Lock()
	r.deliveries = append(r.deliveries, d)
	r.mu.Unlock()
	r.notify <- struct{}{}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.deliveries)
}

func (r *recorder) first() amqp.Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deliveries[0]
}

// waitCount ждёт, пока число доставок достигнет n, или истечёт timeout.
func (r *recorder) waitCount(n int, timeout time.Duration) int {
	deadline := time.After(timeout)
	for r.count() < n {
		select {
		case <-r.notify:
		case <-deadline:
			return r.count()
		}
	}
	return r.count()
}

func TestIntegration_PrefetchBoundsUnacked(t *testing.T) {
	conn := integrationConn(t)
	topo := integrationTopology(t, conn, []time.Duration{2 * time.Second})
	pub := NewPublisher(conn, topo, testLogger(), DefaultRetryPolicy())

	for i := 0; i < 5; i++ {
		if err := pub.PublishNow(context.Background(), domain.NewEnvelope(domain.StateStarted, "r-1", nil)); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	rec := newRecorder()
	consumer := NewConsumer(conn, testLogger(), ConsumerConfig{
		Queue:    topo.Queue(),
		Handler:  rec.handle,
		Prefetch: 2,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go consumer.Start(ctx)
	defer consumer.Stop()

	if n := rec.waitCount(2, 5*time.Second); n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}

	// Без ack брокер больше ничего не отдаёт
	if n := rec.waitCount(3, time.Second); n != 2 {
		t.Fatalf("prefetch 2 exceeded: %d unacked deliveries", n)
	}

	// Ack освобождает ровно одно место
	if err := rec.first().Ack(false); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if n := rec.waitCount(3, 5*time.Second); n != 3 {
		t.Fatalf("expected third delivery after ack, got %d", n)
	}
	if n := rec.waitCount(4, time.Second); n != 3 {
		t.Errorf("prefetch 2 exceeded after ack: %d deliveries", n)
	}
}

func TestIntegration_RelayRevive(t *testing.T) {
	conn := integrationConn(t)
	topo := integrationTopology(t, conn, []time.Duration{2 * time.Second, 5 * time.Second})
	relay := NewRelay(conn, topo, testLogger())

	if err := relay.Start(context.Background()); err != nil {
		t.Fatalf("relay start: %v", err)
	}
	// Повторный Revive идемпотентен
	if err := relay.Revive(context.Background()); err != nil {
		t.Fatalf("second revive: %v", err)
	}

	for _, class := range topo.Classes() {
		// Relay не потребляет сообщения: очереди существуют и пусты
		if n := queueDepth(t, conn, topo.DelayedQueue(class)); n != 0 {
			t.Errorf("delayed queue %s should be empty, got %d", topo.DelayedQueue(class), n)
		}
	}
}

func TestIntegration_ReconnectResubscribes(t *testing.T) {
	conn := integrationConn(t)
	topo := integrationTopology(t, conn, []time.Duration{2 * time.Second})
	pub := NewPublisher(conn, topo, testLogger(), DefaultRetryPolicy())

	hooks := make(chan struct{}, 1)
	conn.OnReconnect(func(context.Context) {
		select {
		case hooks <- struct{}{}:
		default:
		}
	})

	rec := newRecorder()
	consumer := NewConsumer(conn, testLogger(), ConsumerConfig{
		Queue:    topo.Queue(),
		Handler:  rec.handle,
		Prefetch: 1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go consumer.Start(ctx)
	defer consumer.Stop()

	// Обрываем соединение под Connection
	conn.mu.RLock()
	raw := conn.conn
	conn.mu.RUnlock()
	raw.Close()

	select {
	case <-hooks:
	case <-time.After(15 * time.Second):
		t.Fatal("reconnect hook was not called")
	}

	if err := pub.PublishNow(context.Background(), domain.NewEnvelope(domain.StateStarted, "r-1", nil)); err != nil {
		t.Fatalf("publish after reconnect: %v", err)
	}

	if n := rec.waitCount(1, 10*time.Second); n != 1 {
		t.Fatalf("consumer did not resubscribe after reconnect: %d deliveries", n)
	}
	rec.first().Ack(false)
}
