package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/taskmachine/internal/config"
	"github.com/shaiso/taskmachine/internal/domain"
	"github.com/shaiso/taskmachine/internal/mq"
	"github.com/shaiso/taskmachine/internal/repo"
)

// Client — подключения CLI к брокеру и журналу.
type Client struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewClient создаёт Client.
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	return &Client{cfg: cfg, logger: logger}
}

// Topology возвращает топологию типа воркера с классами задержки из конфигурации.
func (c *Client) Topology(worker string) mq.Topology {
	return mq.NewTopology(worker, c.cfg.DelayClasses)
}

// connect открывает соединение с брокером (несколько быстрых попыток).
func (c *Client) connect(ctx context.Context) (*mq.Connection, error) {
	conn, err := mq.NewConnection(ctx, c.cfg.ResolveBrokerURL(), c.logger, mq.ConnectionConfig{
		DialAttempts:      3,
		ReconnectAttempts: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return conn, nil
}

// Declare объявляет топологию типа воркера.
func (c *Client) Declare(ctx context.Context, worker string) (mq.Topology, error) {
	conn, err := c.connect(ctx)
	if err != nil {
		return mq.Topology{}, err
	}
	defer conn.Close()

	topo := c.Topology(worker)
	if err := topo.Declare(ctx, conn); err != nil {
		return mq.Topology{}, err
	}
	return topo, nil
}

// Publish объявляет топологию и публикует конверт (delay > 0 — через отложенную очередь).
func (c *Client) Publish(ctx context.Context, worker string, env domain.Envelope, delay time.Duration) error {
	conn, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	topo := c.Topology(worker)
	if err := topo.Declare(ctx, conn); err != nil {
		return err
	}

	policy := mq.DefaultRetryPolicy()
	policy.MaxRetries = 3
	publisher := mq.NewPublisher(conn, topo, c.logger, policy)

	return publisher.PublishDelayed(ctx, env, delay)
}

// Journal открывает журнал задач. Вызывающий закрывает пул.
func (c *Client) Journal(ctx context.Context) (*repo.TaskRepo, *pgxpool.Pool, error) {
	pool, err := repo.NewPool(ctx, c.cfg.DBURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to journal: %w", err)
	}
	return repo.NewTaskRepo(pool), pool, nil
}
