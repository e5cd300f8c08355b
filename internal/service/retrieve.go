// retrieve.go — сервис WADO-RS: чтение метаданных и бинарных файлов
// на уровне исследования, серии или экземпляра.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/dicomemu/internal/domain/model"
	"github.com/arturkryukov/dicomemu/internal/multipart"
	"github.com/arturkryukov/dicomemu/internal/repository"
	"github.com/arturkryukov/dicomemu/internal/storage/filestore"
)

var metadataCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "de_metadata_cache_total",
	Help: "Обращения к кэшу метаданных по результату",
}, []string{"result"})

// RetrieveService — чтение сохранённых экземпляров.
type RetrieveService struct {
	instances repository.InstanceRepository
	store     *filestore.FileStore
	// cache хранит tag-JSON экземпляра. Ключ включает updated_at,
	// поэтому после замены экземпляра прежняя запись становится
	// недостижимой и доживает до вытеснения по TTL.
	cache  *lru.LRU[string, json.RawMessage]
	logger *slog.Logger
}

// NewRetrieveService создаёт сервис чтения.
func NewRetrieveService(
	instances repository.InstanceRepository,
	store *filestore.FileStore,
	cache *lru.LRU[string, json.RawMessage],
	logger *slog.Logger,
) *RetrieveService {
	return &RetrieveService{
		instances: instances,
		store:     store,
		cache:     cache,
		logger:    logger.With(slog.String("component", "retrieve_service")),
	}
}

// Resolve возвращает записи экземпляров по иерархии идентификаторов.
// Пустые seriesUID/sopUID расширяют выборку до серии или исследования.
func (s *RetrieveService) Resolve(ctx context.Context, studyUID, seriesUID, sopUID string) ([]*model.InstanceRecord, error) {
	recs, err := s.instances.Resolve(ctx, studyUID, seriesUID, sopUID)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs, nil
}

// Metadata возвращает массив tag-JSON документов разрешённых
// экземпляров — ровно те байты, что были сохранены при приёме.
func (s *RetrieveService) Metadata(ctx context.Context, studyUID, seriesUID, sopUID string) ([]json.RawMessage, error) {
	recs, err := s.Resolve(ctx, studyUID, seriesUID, sopUID)
	if err != nil {
		return nil, err
	}

	docs := make([]json.RawMessage, 0, len(recs))
	for _, rec := range recs {
		key := rec.SOPInstanceUID + "|" + rec.UpdatedAt.UTC().Format("20060102150405.000000")
		if doc, ok := s.cache.Get(key); ok {
			metadataCacheHits.WithLabelValues("hit").Inc()
			docs = append(docs, doc)
			continue
		}
		metadataCacheHits.WithLabelValues("miss").Inc()
		doc := json.RawMessage(rec.MetadataJSON)
		s.cache.Add(key, doc)
		docs = append(docs, doc)
	}
	return docs, nil
}

// Binary собирает multipart/related тело из файлов разрешённых
// экземпляров. Возвращает тело и boundary для Content-Type ответа.
func (s *RetrieveService) Binary(ctx context.Context, studyUID, seriesUID, sopUID string) ([]byte, string, error) {
	recs, err := s.Resolve(ctx, studyUID, seriesUID, sopUID)
	if err != nil {
		return nil, "", err
	}

	parts := make([]multipart.Part, 0, len(recs))
	for _, rec := range recs {
		data, err := s.store.Read(rec.StoragePath)
		if err != nil {
			// Строка есть, файла нет: рассинхронизация реестра и диска
			s.logger.Error("Файл экземпляра отсутствует на диске",
				slog.String("sop_instance_uid", rec.SOPInstanceUID),
				slog.String("storage_path", rec.StoragePath),
			)
			return nil, "", fmt.Errorf("чтение экземпляра %s: %w", rec.SOPInstanceUID, err)
		}
		parts = append(parts, multipart.Part{
			ContentType: multipart.MediaTypeDICOM,
			Data:        data,
		})
	}

	boundary := uuid.NewString()
	return multipart.Build(parts, boundary), boundary, nil
}
