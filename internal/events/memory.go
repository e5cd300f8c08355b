// memory.go — in-memory приёмник событий для тестов.
package events

import (
	"context"
	"errors"
	"sync"
)

// MemorySink — приёмник, накапливающий события в памяти.
// Используется в тестах; опционально имитирует ошибку публикации.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
	// Fail — при true каждый Publish/PublishBatch возвращает ошибку
	Fail bool
}

// NewMemorySink создаёт пустой in-memory приёмник.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Name возвращает имя приёмника.
func (s *MemorySink) Name() string { return "memory" }

// Publish сохраняет одно событие.
func (s *MemorySink) Publish(ctx context.Context, event Event) error {
	return s.PublishBatch(ctx, []Event{event})
}

// PublishBatch сохраняет пакет событий.
func (s *MemorySink) PublishBatch(_ context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return errors.New("имитация ошибки приёмника")
	}
	s.events = append(s.events, events...)
	return nil
}

// Close — ничего не освобождает.
func (s *MemorySink) Close() error { return nil }

// Events возвращает копию накопленных событий.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
