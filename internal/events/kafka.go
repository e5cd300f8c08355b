// kafka.go — приёмник событий, пишущий в Kafka-топик.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// KafkaSink — публикация событий в Kafka-топик.
// kafka.Writer сам управляет соединениями и ретраями.
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink создаёт Kafka-приёмник.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// Name возвращает имя приёмника.
func (s *KafkaSink) Name() string { return "kafka" }

// Publish отправляет одно событие.
func (s *KafkaSink) Publish(ctx context.Context, event Event) error {
	return s.PublishBatch(ctx, []Event{event})
}

// PublishBatch отправляет пакет событий одним WriteMessages.
// Ключ сообщения — SOP Instance UID: события одного экземпляра
// попадают в одну партицию и сохраняют порядок.
func (s *KafkaSink) PublishBatch(ctx context.Context, events []Event) error {
	msgs := make([]kafka.Message, 0, len(events))
	for _, evt := range events {
		body, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("сериализация события: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(evt.SOPInstanceUID),
			Value: body,
		})
	}
	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("запись в Kafka: %w", err)
	}
	return nil
}

// Close закрывает writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
