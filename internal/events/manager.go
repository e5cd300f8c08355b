// manager.go — менеджер приёмников событий.
//
// Явно конструируемый сервис, передаваемый пайплайну загрузки при
// старте — никакого глобального состояния. Публикация выполняется
// строго после коммита транзакции, последовательно по приёмникам,
// каждый вызов ограничен таймаутом; зависший или ошибающийся приёмник
// пропускается и логируется.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики публикации событий.
var (
	publishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "de_event_publish_total",
		Help: "Общее количество публикаций событий по приёмникам и результатам",
	}, []string{"sink", "result"})
)

// Manager — набор сконфигурированных приёмников с единой политикой
// best-effort публикации.
type Manager struct {
	sinks   []Sink
	timeout time.Duration
	logger  *slog.Logger
}

// NewManager создаёт менеджер приёмников.
// timeout — ограничение на один вызов одного приёмника.
func NewManager(sinks []Sink, timeout time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		sinks:   sinks,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "event_manager")),
	}
}

// SinkCount возвращает количество сконфигурированных приёмников.
func (m *Manager) SinkCount() int { return len(m.sinks) }

// PublishBatch отправляет пакет событий во все приёмники.
// Ошибки логируются и не возвращаются: публикация никогда не влияет
// на уже сформированный ответ хранилища.
func (m *Manager) PublishBatch(ctx context.Context, evts []Event) {
	if len(evts) == 0 {
		return
	}
	for _, sink := range m.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, m.timeout)
		err := sink.PublishBatch(sinkCtx, evts)
		cancel()

		name := sinkName(sink)
		if err != nil {
			publishTotal.WithLabelValues(name, "error").Inc()
			m.logger.Warn("Ошибка публикации событий, приёмник пропущен",
				slog.String("sink", name),
				slog.Int("events", len(evts)),
				slog.String("error", err.Error()),
			)
			continue
		}
		publishTotal.WithLabelValues(name, "success").Inc()
		m.logger.Debug("События опубликованы",
			slog.String("sink", name),
			slog.Int("events", len(evts)),
		)
	}
}

// Publish отправляет одно событие во все приёмники.
func (m *Manager) Publish(ctx context.Context, evt Event) {
	m.PublishBatch(ctx, []Event{evt})
}

// Close закрывает все приёмники. Ошибки закрытия логируются.
func (m *Manager) Close() {
	for _, sink := range m.sinks {
		if err := sink.Close(); err != nil {
			m.logger.Warn("Ошибка закрытия приёмника",
				slog.String("sink", sinkName(sink)),
				slog.String("error", err.Error()),
			)
		}
	}
}

// sinkName возвращает имя приёмника для логов и метрик.
func sinkName(s Sink) string {
	if n, ok := s.(Name); ok {
		return n.Name()
	}
	return "unknown"
}
