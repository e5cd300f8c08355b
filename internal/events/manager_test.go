package events

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"
)

// testLogger возвращает логгер для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// testEvent создаёт событие для тестов.
func testEvent(seq int64) Event {
	return Event{
		Sequence:          seq,
		Action:            "create",
		StudyInstanceUID:  "1.2.3",
		SeriesInstanceUID: "1.2.3.1",
		SOPInstanceUID:    "1.2.3.1.1",
		Timestamp:         time.Now().UTC(),
	}
}

// TestManagerPublishBatch проверяет доставку батча во все приёмники.
func TestManagerPublishBatch(t *testing.T) {
	first := NewMemorySink()
	second := NewMemorySink()
	m := NewManager([]Sink{first, second}, time.Second, testLogger())

	m.PublishBatch(context.Background(), []Event{testEvent(1), testEvent(2)})

	for i, sink := range []*MemorySink{first, second} {
		if got := len(sink.Events()); got != 2 {
			t.Errorf("приёмник %d: ожидались 2 события, получено %d", i, got)
		}
	}
}

// TestManagerFailingSinkDoesNotBlockOthers проверяет, что ошибка
// одного приёмника не мешает доставке в остальные.
func TestManagerFailingSinkDoesNotBlockOthers(t *testing.T) {
	failing := NewMemorySink()
	failing.Fail = true
	healthy := NewMemorySink()
	m := NewManager([]Sink{failing, healthy}, time.Second, testLogger())

	m.PublishBatch(context.Background(), []Event{testEvent(1)})

	if got := len(healthy.Events()); got != 1 {
		t.Errorf("здоровый приёмник: ожидалось 1 событие, получено %d", got)
	}
	if got := len(failing.Events()); got != 0 {
		t.Errorf("отказавший приёмник не должен накапливать события: %d", got)
	}
}

// TestManagerEmptyBatch проверяет, что пустой батч не трогает приёмники.
func TestManagerEmptyBatch(t *testing.T) {
	sink := NewMemorySink()
	m := NewManager([]Sink{sink}, time.Second, testLogger())

	m.PublishBatch(context.Background(), nil)

	if got := len(sink.Events()); got != 0 {
		t.Errorf("пустой батч: получено %d событий", got)
	}
}

// TestManagerSinkCount проверяет счётчик приёмников.
func TestManagerSinkCount(t *testing.T) {
	m := NewManager(nil, time.Second, testLogger())
	if m.SinkCount() != 0 {
		t.Errorf("ожидалось 0 приёмников, получено %d", m.SinkCount())
	}
}
