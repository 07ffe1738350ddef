package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "taskmachine:done:"

// RedisStore — хранилище отметок в Redis, общее для всех экземпляров воркера.
type RedisStore struct {
	rdb *redis.Client
}

// Connect подключается к Redis по URL и проверяет соединение.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// NewRedisStore создаёт хранилище поверх клиента.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Key возвращает ключ отметки для конверта.
func Key(id uuid.UUID) string {
	return keyPrefix + id.String()
}

// Seen проверяет наличие ключа.
func (s *RedisStore) Seen(ctx context.Context, id uuid.UUID) (bool, error) {
	n, err := s.rdb.Exists(ctx, Key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Mark ставит отметку (SET NX PX ttl). Повторная отметка не продлевает TTL.
func (s *RedisStore) Mark(ctx context.Context, id uuid.UUID, ttl time.Duration) error {
	if err := s.rdb.SetNX(ctx, Key(id), 1, ttl).Err(); err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	return nil
}
