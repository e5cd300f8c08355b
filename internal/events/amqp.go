// amqp.go — приёмник событий, публикующий в AMQP exchange (RabbitMQ).
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPSink — публикация событий в AMQP exchange.
// Соединение устанавливается лениво при первой публикации и
// восстанавливается после ошибки на следующем вызове.
type AMQPSink struct {
	url      string
	exchange string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPSink создаёт AMQP-приёмник. Недоступность брокера на старте
// не является ошибкой: соединение откладывается до первой публикации.
func NewAMQPSink(url, exchange string) *AMQPSink {
	return &AMQPSink{url: url, exchange: exchange}
}

// Name возвращает имя приёмника.
func (s *AMQPSink) Name() string { return "amqp" }

// Publish отправляет одно событие.
func (s *AMQPSink) Publish(ctx context.Context, event Event) error {
	return s.PublishBatch(ctx, []Event{event})
}

// PublishBatch отправляет пакет событий. Routing key — действие
// события с префиксом dicom (dicom.create / dicom.update / dicom.delete).
func (s *AMQPSink) PublishBatch(ctx context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, err := s.channel()
	if err != nil {
		return err
	}

	for _, evt := range events {
		body, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("сериализация события: %w", err)
		}
		err = ch.PublishWithContext(ctx, s.exchange, "dicom."+evt.Action, false, false,
			amqp.Publishing{
				ContentType: "application/json",
				Body:        body,
			})
		if err != nil {
			// Канал в неопределённом состоянии — пересоздадим при
			// следующем вызове
			s.reset()
			return fmt.Errorf("публикация в AMQP: %w", err)
		}
	}
	return nil
}

// Close закрывает канал и соединение.
func (s *AMQPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}

// channel возвращает открытый канал, устанавливая соединение
// и объявляя exchange при необходимости. Вызывается под mutex.
func (s *AMQPSink) channel() (*amqp.Channel, error) {
	if s.ch != nil {
		return s.ch, nil
	}

	conn, err := amqp.Dial(s.url)
	if err != nil {
		return nil, fmt.Errorf("соединение с AMQP %s: %w", s.url, err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("открытие AMQP-канала: %w", err)
	}
	if err := ch.ExchangeDeclare(s.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("объявление exchange %s: %w", s.exchange, err)
	}

	s.conn = conn
	s.ch = ch
	return ch, nil
}

// reset сбрасывает соединение. Вызывается под mutex.
func (s *AMQPSink) reset() {
	if s.ch != nil {
		_ = s.ch.Close()
		s.ch = nil
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}
