package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// Параметры хранилища в памяти.
const (
	// DefaultMaxItems — лимит отметок по умолчанию.
	DefaultMaxItems = 1_000_000

	// DefaultCleanupInterval — период фоновой очистки просроченных отметок.
	DefaultCleanupInterval = time.Minute
)

// MemoryStore — хранилище в памяти процесса.
//
// Подходит для одного экземпляра воркера и тестов: переживает
// повторную доставку, но не рестарт процесса. Просроченные отметки
// удаляет фоновый janitor go-cache; Seen и Mark не обходят всё хранилище.
type MemoryStore struct {
	items    *cache.Cache
	maxItems int
}

// NewMemoryStore создаёт пустое хранилище.
// maxItems <= 0 означает DefaultMaxItems.
func NewMemoryStore(maxItems int) *MemoryStore {
	return newMemoryStore(maxItems, DefaultCleanupInterval)
}

func newMemoryStore(maxItems int, cleanup time.Duration) *MemoryStore {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	return &MemoryStore{
		items:    cache.New(cache.NoExpiration, cleanup),
		maxItems: maxItems,
	}
}

// Seen проверяет наличие непросроченной отметки.
func (s *MemoryStore) Seen(_ context.Context, id uuid.UUID) (bool, error) {
	_, ok := s.items.Get(id.String())
	return ok, nil
}

// Mark ставит отметку на ttl.
//
// При достигнутом лимите сначала удаляются просроченные отметки;
// если места так и нет, возвращается ErrStoreFull.
func (s *MemoryStore) Mark(_ context.Context, id uuid.UUID, ttl time.Duration) error {
	key := id.String()

	if _, ok := s.items.Get(key); !ok && s.items.ItemCount() >= s.maxItems {
		s.items.DeleteExpired()
		if s.items.ItemCount() >= s.maxItems {
			return fmt.Errorf("%w: %d items", ErrStoreFull, s.maxItems)
		}
	}

	s.items.Set(key, struct{}{}, ttl)
	return nil
}

// Len возвращает число хранимых отметок (включая ещё не вычищенные просроченные).
func (s *MemoryStore) Len() int {
	return s.items.ItemCount()
}
