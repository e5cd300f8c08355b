// file.go — приёмник событий, дописывающий JSON Lines в локальный файл.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// FileSink — журнал событий в формате JSONL (одна строка — одно событие).
type FileSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileSink открывает файл журнала в режиме append.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("открытие файла событий %s: %w", path, err)
	}
	return &FileSink{file: f}, nil
}

// Name возвращает имя приёмника.
func (s *FileSink) Name() string { return "file" }

// Publish дописывает одно событие.
func (s *FileSink) Publish(ctx context.Context, event Event) error {
	return s.PublishBatch(ctx, []Event{event})
}

// PublishBatch дописывает пакет событий одной блокировкой.
func (s *FileSink) PublishBatch(ctx context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, evt := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("сериализация события: %w", err)
		}
		line = append(line, '\n')
		if _, err := s.file.Write(line); err != nil {
			return fmt.Errorf("запись события: %w", err)
		}
	}
	return nil
}

// Close закрывает файл журнала.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
