// Package dedup хранит отметки об уже обработанных конвертах.
//
// Доставка at-least-once: после падения между публикацией продолжения
// и ack брокер доставит тот же конверт ещё раз. Отметка по ID конверта
// позволяет подтвердить такую доставку, не выполняя Handler повторно.
// Хранилище — оптимизация поверх идемпотентных Handler'ов, а не замена им.
package dedup

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store — хранилище отметок об обработанных конвертах.
type Store interface {
	// Seen возвращает true, если конверт уже обработан.
	Seen(ctx context.Context, id uuid.UUID) (bool, error)

	// Mark отмечает конверт обработанным на ttl.
	Mark(ctx context.Context, id uuid.UUID, ttl time.Duration) error
}

// Nop — хранилище, которое ничего не помнит.
type Nop struct{}

// Seen всегда возвращает false.
func (Nop) Seen(context.Context, uuid.UUID) (bool, error) { return false, nil }

// Mark ничего не делает.
func (Nop) Mark(context.Context, uuid.UUID, time.Duration) error { return nil }
