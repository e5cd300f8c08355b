// Пакет events — публикация событий хранилища во внешние приёмники.
//
// Приёмник (sink) — обычный интерфейс; конкретные реализации
// (webhook, file, AMQP, Kafka, in-memory для тестов) независимы и
// выбираются конфигурацией. Публикация всегда best-effort: ошибки
// приёмников логируются и никогда не влияют на результат HTTP-запроса.
package events

import (
	"context"
	"time"
)

// Event — событие изменения хранилища.
type Event struct {
	// Sequence — номер соответствующей записи ленты изменений
	Sequence int64 `json:"Sequence"`
	// Action — create, update или delete
	Action            string    `json:"Action"`
	StudyInstanceUID  string    `json:"StudyInstanceUID"`
	SeriesInstanceUID string    `json:"SeriesInstanceUID"`
	SOPInstanceUID    string    `json:"SOPInstanceUID"`
	Timestamp         time.Time `json:"Timestamp"`
}

// Sink — приёмник событий. Реализации сами отвечают за свои
// retry/backoff; вызывающий код ограничивает каждый вызов таймаутом
// через контекст.
type Sink interface {
	// Publish отправляет одно событие.
	Publish(ctx context.Context, event Event) error
	// PublishBatch отправляет пакет событий одного STOW-запроса.
	PublishBatch(ctx context.Context, events []Event) error
	// Close освобождает ресурсы приёмника.
	Close() error
}

// Name — человекочитаемое имя приёмника для логов.
// Реализуется всеми встроенными приёмниками.
type Name interface {
	Name() string
}
