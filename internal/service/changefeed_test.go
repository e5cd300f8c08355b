package service

import (
	"context"
	"testing"

	"github.com/arturkryukov/dicomemu/internal/domain/model"
)

// TestFeedListNormalizesPagination проверяет нормализацию
// отрицательных offset/limit.
func TestFeedListNormalizesPagination(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	seedInstances(t, env, [3]string{"1.2.3", "1.2.3.1", "1.2.3.1.1"})

	entries, err := env.feed.List(ctx, -5, -1, nil, nil)
	if err != nil {
		t.Fatalf("ошибка чтения ленты: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("ожидалась 1 запись, получено %d", len(entries))
	}
	if entries[0].Sequence != 1 || entries[0].Action != model.ActionCreate {
		t.Errorf("первая запись ленты: %+v", entries[0])
	}
}

// TestFeedLatestSentinel проверяет сентинел пустой ленты.
func TestFeedLatestSentinel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	latest, err := env.feed.Latest(ctx)
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	if latest.Sequence != 0 {
		t.Errorf("пустая лента: ожидался Sequence 0, получено %d", latest.Sequence)
	}

	seedInstances(t, env, [3]string{"1.2.3", "1.2.3.1", "1.2.3.1.1"})

	latest, err = env.feed.Latest(ctx)
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	if latest.Sequence != 1 || latest.State != model.StateCurrent {
		t.Errorf("после загрузки: %+v", latest)
	}
}
