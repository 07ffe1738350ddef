package dedup

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)
	id := uuid.New()

	seen, err := s.Seen(ctx, id)
	if err != nil || seen {
		t.Fatalf("new id should not be seen: %v %v", seen, err)
	}

	if err := s.Mark(ctx, id, time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen, _ = s.Seen(ctx, id)
	if !seen {
		t.Error("marked id should be seen")
	}

	seen, _ = s.Seen(ctx, uuid.New())
	if seen {
		t.Error("other id should not be seen")
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)

	id := uuid.New()
	s.Mark(ctx, id, 20*time.Millisecond)

	time.Sleep(60 * time.Millisecond)

	if seen, _ := s.Seen(ctx, id); seen {
		t.Error("expired id should not be seen")
	}
}

func TestMemoryStore_JanitorEvictsExpired(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(0, 10*time.Millisecond)

	s.Mark(ctx, uuid.New(), 5*time.Millisecond)
	s.Mark(ctx, uuid.New(), time.Hour)

	deadline := time.Now().Add(2 * time.Second)
	for s.Len() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if s.Len() != 1 {
		t.Errorf("expected 1 live entry after cleanup, got %d", s.Len())
	}
}

func TestMemoryStore_MaxItems(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2)

	a, b := uuid.New(), uuid.New()
	if err := s.Mark(ctx, a, time.Hour); err != nil {
		t.Fatalf("mark a: %v", err)
	}
	if err := s.Mark(ctx, b, time.Hour); err != nil {
		t.Fatalf("mark b: %v", err)
	}

	err := s.Mark(ctx, uuid.New(), time.Hour)
	if !errors.Is(err, ErrStoreFull) {
		t.Errorf("expected ErrStoreFull, got %v", err)
	}

	// Повторная отметка существующего ID не упирается в лимит
	if err := s.Mark(ctx, a, time.Hour); err != nil {
		t.Errorf("re-mark should succeed: %v", err)
	}
}

func TestMemoryStore_MaxItemsReclaimsExpired(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(1, time.Hour)

	s.Mark(ctx, uuid.New(), 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	if err := s.Mark(ctx, uuid.New(), time.Hour); err != nil {
		t.Errorf("expired entry should free a slot: %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", s.Len())
	}
}

// Стоимость Mark не зависит от размера хранилища.
func TestMemoryStore_MarkCostIsFlat(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)

	const batch = 10_000
	mark := func() time.Duration {
		start := time.Now()
		for i := 0; i < batch; i++ {
			s.Mark(ctx, uuid.New(), 24*time.Hour)
		}
		return time.Since(start)
	}

	first := mark()
	for i := 0; i < 4; i++ {
		mark()
	}
	last := mark()

	if s.Len() != 6*batch {
		t.Fatalf("expected %d entries, got %d", 6*batch, s.Len())
	}
	// Обход всей карты на каждый Mark дал бы рост в десятки раз
	if last > 10*first+100*time.Millisecond {
		t.Errorf("mark cost grew with store size: first batch %v, last batch %v", first, last)
	}
}

func TestNop(t *testing.T) {
	var s Store = Nop{}
	id := uuid.New()
	s.Mark(context.Background(), id, time.Minute)

	if seen, _ := s.Seen(context.Background(), id); seen {
		t.Error("Nop should never report seen")
	}
}

func TestKey(t *testing.T) {
	id := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	if Key(id) != "taskmachine:done:11111111-2222-3333-4444-555555555555" {
		t.Errorf("unexpected key %s", Key(id))
	}
}

// Интеграционный тест: запускается только при заданном REDIS_URL.
func TestRedisStore(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}

	ctx := context.Background()
	rdb, err := Connect(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer rdb.Close()

	s := NewRedisStore(rdb)
	id := uuid.New()
	defer rdb.Del(ctx, Key(id))

	if seen, err := s.Seen(ctx, id); err != nil || seen {
		t.Fatalf("new id should not be seen: %v %v", seen, err)
	}
	if err := s.Mark(ctx, id, time.Minute); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if seen, err := s.Seen(ctx, id); err != nil || !seen {
		t.Errorf("marked id should be seen: %v %v", seen, err)
	}
}
