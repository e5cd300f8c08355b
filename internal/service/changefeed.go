// changefeed.go — сервис ленты изменений.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/arturkryukov/dicomemu/internal/domain/model"
	"github.com/arturkryukov/dicomemu/internal/repository"
)

// Пагинация ленты изменений.
const (
	defaultFeedLimit = 100
	maxFeedLimit     = 1000
)

// ChangeFeedService — чтение ленты изменений.
type ChangeFeedService struct {
	feed   repository.ChangeFeedRepository
	logger *slog.Logger
}

// NewChangeFeedService создаёт сервис ленты.
func NewChangeFeedService(feed repository.ChangeFeedRepository, logger *slog.Logger) *ChangeFeedService {
	return &ChangeFeedService{
		feed:   feed,
		logger: logger.With(slog.String("component", "changefeed_service")),
	}
}

// List возвращает страницу ленты по возрастанию sequence.
// Отрицательные offset/limit и превышение максимума нормализуются.
func (s *ChangeFeedService) List(ctx context.Context, offset, limit int64, startTime, endTime *time.Time) ([]*model.ChangeFeedEntry, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultFeedLimit
	}
	if limit > maxFeedLimit {
		limit = maxFeedLimit
	}
	return s.feed.List(ctx, offset, limit, startTime, endTime)
}

// Latest возвращает последнюю запись ленты; для пустой ленты —
// сентинел с Sequence == 0.
func (s *ChangeFeedService) Latest(ctx context.Context) (*model.ChangeFeedEntry, error) {
	return s.feed.Latest(ctx)
}
