// webhook.go — приёмник событий, отправляющий HTTP POST с JSON-телом.
package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// WebhookSink — публикация событий HTTP POST-запросом на внешний URL.
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink создаёт webhook-приёмник.
// Таймаут запроса задаётся контекстом вызова, не клиентом.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		url:    url,
		client: &http.Client{},
	}
}

// Name возвращает имя приёмника.
func (s *WebhookSink) Name() string { return "webhook" }

// Publish отправляет одно событие как JSON-объект.
func (s *WebhookSink) Publish(ctx context.Context, event Event) error {
	return s.post(ctx, event)
}

// PublishBatch отправляет пакет событий как JSON-массив одним запросом.
func (s *WebhookSink) PublishBatch(ctx context.Context, events []Event) error {
	return s.post(ctx, events)
}

// Close — webhook не держит ресурсов.
func (s *WebhookSink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// post выполняет POST с JSON-сериализацией payload.
func (s *WebhookSink) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("сериализация события: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("создание запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("отправка webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook вернул статус %d", resp.StatusCode)
	}
	return nil
}
