package mq

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// DefaultDelayClasses — классы задержки по умолчанию.
//
// TTL задаётся на очередь, поэтому каждый класс — отдельная очередь.
// Запрошенная задержка округляется вверх до ближайшего класса.
var DefaultDelayClasses = []time.Duration{
	2 * time.Second,
	5 * time.Second,
	15 * time.Second,
	time.Minute,
	5 * time.Minute,
}

// Topology — топология брокера для одного типа воркера.
//
//	<name> (direct)
//	└── <name> [routing: <name>]                  основная очередь
//	<name>.delayed (direct)
//	├── <name>.delayed.2000 [routing: 2000]       TTL 2s  → DLX <name>
//	└── <name>.delayed.5000 [routing: 5000]       TTL 5s  → DLX <name>
//
// Отложенные очереди не имеют потребителей: сообщение истекает по TTL
// и брокер сам перекладывает его в основной обменник (dead-letter relay).
type Topology struct {
	name    string
	classes []time.Duration
}

// NewTopology создаёт топологию типа воркера.
// Пустой список классов — DefaultDelayClasses.
func NewTopology(name string, classes []time.Duration) Topology {
	if len(classes) == 0 {
		classes = DefaultDelayClasses
	}

	// Сортируем и убираем дубли/некорректные значения
	uniq := make(map[time.Duration]struct{}, len(classes))
	sorted := make([]time.Duration, 0, len(classes))
	for _, d := range classes {
		d = d.Truncate(time.Millisecond)
		if d <= 0 {
			continue
		}
		if _, ok := uniq[d]; ok {
			continue
		}
		uniq[d] = struct{}{}
		sorted = append(sorted, d)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	if len(sorted) == 0 {
		sorted = append(sorted, DefaultDelayClasses...)
	}

	return Topology{name: name, classes: sorted}
}

// Name возвращает имя типа воркера.
func (t Topology) Name() string { return t.name }

// Exchange возвращает основной обменник.
func (t Topology) Exchange() Exchange { return Exchange(t.name) }

// Queue возвращает основную очередь.
func (t Topology) Queue() Queue { return Queue(t.name) }

// RoutingKey возвращает ключ маршрутизации основной очереди.
func (t Topology) RoutingKey() RoutingKey { return RoutingKey(t.name) }

// DelayedExchange возвращает обменник отложенных сообщений.
func (t Topology) DelayedExchange() Exchange { return Exchange(t.name + ".delayed") }

// DelayedQueue возвращает отложенную очередь класса.
func (t Topology) DelayedQueue(class time.Duration) Queue {
	return Queue(t.name + ".delayed." + strconv.FormatInt(class.Milliseconds(), 10))
}

// DelayedRoutingKey возвращает ключ маршрутизации класса.
func (t Topology) DelayedRoutingKey(class time.Duration) RoutingKey {
	return RoutingKey(strconv.FormatInt(class.Milliseconds(), 10))
}

// Classes возвращает классы задержки по возрастанию.
func (t Topology) Classes() []time.Duration {
	out := make([]time.Duration, len(t.classes))
	copy(out, t.classes)
	return out
}

// ClassFor возвращает наименьший класс >= delay.
// Если delay больше максимального класса, возвращается максимальный
// и clamped = true.
func (t Topology) ClassFor(delay time.Duration) (class time.Duration, clamped bool) {
	for _, c := range t.classes {
		if c >= delay {
			return c, false
		}
	}
	return t.classes[len(t.classes)-1], true
}

// Declare объявляет обменники, очереди и привязки. Идемпотентна.
func (t Topology) Declare(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, t.declare)
}

// declare объявляет топологию на канале.
func (t Topology) declare(ch *amqp.Channel) error {
	// 1. Создаём exchanges
	for _, ex := range []Exchange{t.Exchange(), t.DelayedExchange()} {
		err := ch.ExchangeDeclare(
			string(ex), // name
			"direct",   // type
			true,       // durable
			false,      // auto-deleted
			false,      // internal
			false,      // no-wait
			nil,        // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex, err)
		}
	}

	// 2. Основная очередь
	if err := declareAndBind(ch, t.Queue(), t.RoutingKey(), t.Exchange(), nil); err != nil {
		return err
	}

	// 3. Отложенные очереди: TTL + dead-letter обратно в основной обменник
	for _, class := range t.classes {
		args := amqp.Table{
			"x-message-ttl":             class.Milliseconds(),
			"x-dead-letter-exchange":    string(t.Exchange()),
			"x-dead-letter-routing-key": string(t.RoutingKey()),
		}
		if err := declareAndBind(ch, t.DelayedQueue(class), t.DelayedRoutingKey(class), t.DelayedExchange(), args); err != nil {
			return err
		}
	}

	return nil
}

// declareAndBind создаёт durable очередь и привязывает её к обменнику.
func declareAndBind(ch *amqp.Channel, queue Queue, key RoutingKey, exchange Exchange, args amqp.Table) error {
	_, err := ch.QueueDeclare(
		string(queue), // name
		true,          // durable
		false,         // delete when unused
		false,         // exclusive
		false,         // no-wait
		args,          // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}

	err = ch.QueueBind(
		string(queue),    // queue name
		string(key),      // routing key
		string(exchange), // exchange
		false,            // no-wait
		nil,              // arguments
	)
	if err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", queue, exchange, err)
	}

	return nil
}

// Info возвращает описание топологии для логирования.
func (t Topology) Info() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s (direct)\n", t.Exchange())
	fmt.Fprintf(&b, "└── %s [routing: %s]\n", t.Queue(), t.RoutingKey())
	fmt.Fprintf(&b, "%s (direct)\n", t.DelayedExchange())
	for i, class := range t.classes {
		branch := "├──"
		if i == len(t.classes)-1 {
			branch = "└──"
		}
		fmt.Fprintf(&b, "%s %s [routing: %s] ttl=%s dlx=%s\n",
			branch, t.DelayedQueue(class), t.DelayedRoutingKey(class), class, t.Exchange())
	}

	return b.String()
}
