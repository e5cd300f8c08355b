// delete.go — удаление экземпляров на уровне исследования, серии
// или одного экземпляра.
package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/dicomemu/internal/domain/model"
	"github.com/arturkryukov/dicomemu/internal/events"
	"github.com/arturkryukov/dicomemu/internal/repository"
	"github.com/arturkryukov/dicomemu/internal/storage/filestore"
)

var instancesDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "de_instances_deleted_total",
	Help: "Количество удалённых экземпляров по инициатору",
}, []string{"initiator"})

// DeleteService — каскадное удаление экземпляров.
type DeleteService struct {
	db     *sql.DB
	store  *filestore.FileStore
	events *events.Manager
	logger *slog.Logger
}

// NewDeleteService создаёт сервис удаления.
func NewDeleteService(db *sql.DB, store *filestore.FileStore, ev *events.Manager, logger *slog.Logger) *DeleteService {
	return &DeleteService{
		db:     db,
		store:  store,
		events: ev,
		logger: logger.With(slog.String("component", "delete_service")),
	}
}

// Delete удаляет все экземпляры, соответствующие иерархии
// идентификаторов. Пустые seriesUID/sopUID расширяют охват до серии
// или всего исследования. Для каждого экземпляра в ленту добавляется
// запись delete (state=current), прежние записи вытесняются.
// Возвращает число удалённых экземпляров; ErrNotFound — ничего
// не совпало.
func (s *DeleteService) Delete(ctx context.Context, studyUID, seriesUID, sopUID string) (int, error) {
	return s.deleteMatched(ctx, studyUID, seriesUID, sopUID, "request")
}

// DeleteExpired удаляет один экземпляр от имени сборщика устаревших.
func (s *DeleteService) DeleteExpired(ctx context.Context, rec *model.InstanceRecord) error {
	_, err := s.deleteMatched(ctx, rec.StudyInstanceUID, rec.SeriesInstanceUID, rec.SOPInstanceUID, "retention")
	return err
}

func (s *DeleteService) deleteMatched(ctx context.Context, studyUID, seriesUID, sopUID, initiator string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("открытие транзакции: %w", err)
	}
	defer tx.Rollback()

	instances := repository.NewInstanceRepository(tx)
	feed := repository.NewChangeFeedRepository(tx)

	recs, err := instances.Resolve(ctx, studyUID, seriesUID, sopUID)
	if err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		return 0, ErrNotFound
	}

	now := time.Now().UTC()
	evts := make([]events.Event, 0, len(recs))
	paths := make([]string, 0, len(recs))

	for _, rec := range recs {
		if err := instances.Delete(ctx, rec.SOPInstanceUID); err != nil {
			return 0, fmt.Errorf("удаление экземпляра %s: %w", rec.SOPInstanceUID, err)
		}

		// Снимок метаданных сохраняется в записи delete — потребители
		// ленты видят, что именно было удалено
		var snapshot map[string]any
		_ = json.Unmarshal([]byte(rec.MetadataJSON), &snapshot)

		seq, err := feed.Append(ctx, &model.ChangeFeedEntry{
			StudyInstanceUID:  rec.StudyInstanceUID,
			SeriesInstanceUID: rec.SeriesInstanceUID,
			SOPInstanceUID:    rec.SOPInstanceUID,
			Action:            model.ActionDelete,
			Timestamp:         now,
			Metadata:          snapshot,
		})
		if err != nil {
			return 0, fmt.Errorf("запись delete в ленту: %w", err)
		}
		if err := feed.Supersede(ctx, rec.SOPInstanceUID, seq); err != nil {
			return 0, fmt.Errorf("вытеснение записей ленты: %w", err)
		}

		paths = append(paths, rec.StoragePath)
		evts = append(evts, events.Event{
			Sequence:          seq,
			Action:            string(model.ActionDelete),
			StudyInstanceUID:  rec.StudyInstanceUID,
			SeriesInstanceUID: rec.SeriesInstanceUID,
			SOPInstanceUID:    rec.SOPInstanceUID,
			Timestamp:         now,
		})
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("коммит транзакции удаления: %w", err)
	}

	// Файлы удаляются только после коммита: при откате транзакции
	// данные остаются целыми
	for _, path := range paths {
		if err := s.store.Delete(path); err != nil {
			s.logger.Error("Ошибка удаления файла",
				slog.String("storage_path", path),
				slog.String("error", err.Error()),
			)
		}
	}

	instancesDeletedTotal.WithLabelValues(initiator).Add(float64(len(recs)))
	go s.events.PublishBatch(context.WithoutCancel(ctx), evts)

	s.logger.Info("Экземпляры удалены",
		slog.String("study_instance_uid", studyUID),
		slog.Int("count", len(recs)),
		slog.String("initiator", initiator),
	)
	return len(recs), nil
}
