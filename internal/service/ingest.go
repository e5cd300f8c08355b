// Пакет service — бизнес-логика DICOM Emulator.
// ingest.go — пайплайн приёма STOW-RS: парсинг multipart-тела,
// повалидационная обработка каждой части, единая транзакция на запрос,
// post-commit публикация событий.
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

	"github.com/arturkryukov/dicomemu/internal/dicom"
	"github.com/arturkryukov/dicomemu/internal/domain/model"
	"github.com/arturkryukov/dicomemu/internal/events"
	"github.com/arturkryukov/dicomemu/internal/multipart"
	"github.com/arturkryukov/dicomemu/internal/repository"
	"github.com/arturkryukov/dicomemu/internal/storage/filestore"
)

// Prometheus-метрики приёма.
var (
	stowPartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "de_stow_parts_total",
		Help: "Количество обработанных частей STOW-запросов по результату",
	}, []string{"result"})
	stowRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "de_stow_requests_total",
		Help: "Общее количество STOW-запросов",
	})
)

// IngestService — пайплайн приёма STOW-RS.
type IngestService struct {
	db          *sql.DB
	store       *filestore.FileStore
	events      *events.Manager
	maxPartSize int64
	logger      *slog.Logger
}

// NewIngestService создаёт пайплайн приёма.
// maxPartSize — предел размера одной части; часть больше предела
// отклоняется как необрабатываемая, не прерывая батч.
func NewIngestService(db *sql.DB, store *filestore.FileStore, ev *events.Manager, maxPartSize int64, logger *slog.Logger) *IngestService {
	return &IngestService{
		db:          db,
		store:       store,
		events:      ev,
		maxPartSize: maxPartSize,
		logger:      logger.With(slog.String("component", "ingest_service")),
	}
}

// stagedSuffix — суффикс пути файла, подготовленного к публикации.
const stagedSuffix = ".staged"

// stagedPart — принятая часть до коммита транзакции.
type stagedPart struct {
	stored      model.StoredInstance
	sequence    int64
	storagePath string
	// stagedPath — путь подготовленного файла при замене по тому же
	// storagePath; прежний файл не перезаписывается до коммита,
	// публикация выполняется переименованием после него
	stagedPath string
	// oldPath — путь прежнего файла, если update переместил экземпляр
	// в другое исследование/серию; удаляется только после коммита
	oldPath string
}

// Store обрабатывает один STOW-RS запрос.
//
// Каждая часть обрабатывается независимо: парсинг → валидация
// обязательных тегов → (опционально) сверка Study UID из пути →
// запись файла → upsert строки → запись в ленту изменений.
// Отказ части не прерывает батч. Все мутации строк выполняются
// в одной транзакции с единственным коммитом в конце цикла.
//
// expectedStudyUID — Study UID из пути запроса; пустая строка —
// сверка не выполняется. Ошибка возвращается только при фатальных
// проблемах всего запроса (multipart.ErrNoBoundary, отказ коммита).
func (s *IngestService) Store(ctx context.Context, body []byte, contentType, expectedStudyUID string) (*model.StowResult, error) {
	stowRequestsTotal.Inc()

	parts, err := multipart.Parse(body, contentType)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("открытие транзакции: %w", err)
	}
	defer tx.Rollback()

	instances := repository.NewInstanceRepository(tx)
	feed := repository.NewChangeFeedRepository(tx)

	result := &model.StowResult{}
	var staged []stagedPart

	for _, part := range parts {
		outcome, failed := s.processPart(ctx, instances, feed, part, expectedStudyUID)
		if failed != nil {
			stowPartsTotal.WithLabelValues("failure").Inc()
			result.Failed = append(result.Failed, *failed)
			continue
		}
		stowPartsTotal.WithLabelValues("success").Inc()
		result.Stored = append(result.Stored, outcome.stored)
		staged = append(staged, *outcome)
	}

	if err := tx.Commit(); err != nil {
		// Подготовленные замены не публикуются: строки откатились,
		// прежние файлы остаются действительными
		for _, p := range staged {
			if p.stagedPath != "" {
				_ = s.store.Delete(p.stagedPath)
			}
		}
		return nil, fmt.Errorf("коммит STOW-транзакции: %w", err)
	}

	// Post-commit: публикация подготовленных замен, прежние файлы
	// перемещённых экземпляров, события
	evts := make([]events.Event, 0, len(staged))
	now := time.Now().UTC()
	for _, p := range staged {
		if p.stagedPath != "" {
			if err := s.store.Promote(p.stagedPath, p.storagePath); err != nil {
				s.logger.Error("Ошибка публикации заменённого файла",
					slog.String("storage_path", p.storagePath),
					slog.String("error", err.Error()),
				)
			}
		}
		if p.oldPath != "" {
			if err := s.store.Delete(p.oldPath); err != nil {
				s.logger.Error("Ошибка удаления прежнего файла",
					slog.String("storage_path", p.oldPath),
					slog.String("error", err.Error()),
				)
			}
		}
		evts = append(evts, events.Event{
			Sequence:          p.sequence,
			Action:            string(p.stored.Action),
			StudyInstanceUID:  p.stored.StudyInstanceUID,
			SeriesInstanceUID: p.stored.SeriesInstanceUID,
			SOPInstanceUID:    p.stored.SOPInstanceUID,
			Timestamp:         now,
		})
	}

	// Fire-and-forget: публикация не задерживает ответ и не влияет
	// на него; менеджер ограничивает каждый приёмник таймаутом
	if len(evts) > 0 {
		go s.events.PublishBatch(context.WithoutCancel(ctx), evts)
	}

	s.logger.Info("STOW-запрос обработан",
		slog.Int("parts", len(parts)),
		slog.Int("stored", len(result.Stored)),
		slog.Int("failed", len(result.Failed)),
	)
	return result, nil
}

// processPart обрабатывает одну часть multipart-тела внутри транзакции.
// Возвращает либо принятую часть, либо запись об отказе.
func (s *IngestService) processPart(
	ctx context.Context,
	instances repository.InstanceRepository,
	feed repository.ChangeFeedRepository,
	part multipart.Part,
	expectedStudyUID string,
) (*stagedPart, *model.FailedInstance) {
	if s.maxPartSize > 0 && int64(len(part.Data)) > s.maxPartSize {
		s.logger.Warn("Часть превышает предел размера",
			slog.Int("size", len(part.Data)),
			slog.Int64("max", s.maxPartSize),
		)
		return nil, &model.FailedInstance{Reason: model.FailureUnableToProcess}
	}

	ds, err := dicom.Parse(part.Data)
	if err != nil {
		s.logger.Warn("Часть не является DICOM-объектом", slog.String("error", err.Error()))
		return nil, &model.FailedInstance{Reason: model.FailureUnableToProcess}
	}

	sopClassUID, _ := ds.StringValue(dicom.TagSOPClassUID)
	sopUID, _ := ds.StringValue(dicom.TagSOPInstanceUID)

	if issues := dicom.ValidateRequired(ds); len(issues) > 0 {
		for _, issue := range issues {
			s.logger.Warn("Отказ валидации части", slog.String("reason", issue.Error()))
		}
		return nil, &model.FailedInstance{
			SOPClassUID:    sopClassUID,
			SOPInstanceUID: sopUID,
			Reason:         model.FailureUnableToProcess,
		}
	}

	studyUID, _ := ds.StringValue(dicom.TagStudyInstanceUID)
	seriesUID, _ := ds.StringValue(dicom.TagSeriesInstanceUID)

	if expectedStudyUID != "" && studyUID != expectedStudyUID {
		s.logger.Warn("Study UID тела не совпадает с UID из пути",
			slog.String("expected", expectedStudyUID),
			slog.String("actual", studyUID),
		)
		return nil, &model.FailedInstance{
			SOPClassUID:    sopClassUID,
			SOPInstanceUID: sopUID,
			Reason:         model.FailureUIDMismatch,
		}
	}

	// Синтаксис UID проверяется до подстановки в путь файловой системы
	if !dicom.ValidateUID(studyUID) || !dicom.ValidateUID(seriesUID) || !dicom.ValidateUID(sopUID) {
		s.logger.Warn("Некорректный синтаксис UID",
			slog.String("study", studyUID),
			slog.String("series", seriesUID),
			slog.String("sop", sopUID),
		)
		return nil, &model.FailedInstance{
			SOPClassUID:    sopClassUID,
			SOPInstanceUID: sopUID,
			Reason:         model.FailureUnableToProcess,
		}
	}

	storagePath := filestore.InstancePath(studyUID, seriesUID, sopUID)

	// Повторная загрузка того же SOP UID — замена строки и файла.
	// Замена по тому же пути пишется в подготовленный файл: прежние
	// байты остаются действительными до коммита транзакции
	action := model.ActionCreate
	now := time.Now().UTC()
	createdAt := now
	oldPath := ""
	stagedPath := ""
	savePath := storagePath
	existing, err := instances.GetBySOPInstanceUID(ctx, sopUID)
	switch {
	case err == nil:
		action = model.ActionUpdate
		createdAt = existing.CreatedAt
		if existing.StoragePath != storagePath {
			oldPath = existing.StoragePath
		} else {
			stagedPath = storagePath + stagedSuffix
			savePath = stagedPath
		}
	case err != repository.ErrNotFound:
		s.logger.Error("Ошибка поиска существующего экземпляра",
			slog.String("sop_instance_uid", sopUID),
			slog.String("error", err.Error()),
		)
		return nil, &model.FailedInstance{
			SOPClassUID:    sopClassUID,
			SOPInstanceUID: sopUID,
			Reason:         model.FailureUnableToProcess,
		}
	}

	if err := s.store.Save(savePath, part.Data); err != nil {
		s.logger.Error("Ошибка записи файла экземпляра",
			slog.String("storage_path", savePath),
			slog.String("error", err.Error()),
		)
		return nil, &model.FailedInstance{
			SOPClassUID:    sopClassUID,
			SOPInstanceUID: sopUID,
			Reason:         model.FailureUnableToProcess,
		}
	}

	tagMap := dicom.ToJSON(ds)
	metadataJSON, err := json.Marshal(tagMap)
	if err != nil {
		return nil, &model.FailedInstance{
			SOPClassUID:    sopClassUID,
			SOPInstanceUID: sopUID,
			Reason:         model.FailureUnableToProcess,
		}
	}
	searchable := dicom.ExtractSearchable(ds)
	transferSyntax, _ := ds.StringValue(dicom.TagTransferSyntaxUID)

	rec := &model.InstanceRecord{
		SOPInstanceUID:    sopUID,
		StudyInstanceUID:  studyUID,
		SeriesInstanceUID: seriesUID,
		SOPClassUID:       sopClassUID,
		TransferSyntaxUID: transferSyntax,
		Searchable:        searchable,
		MetadataJSON:      string(metadataJSON),
		StoragePath:       storagePath,
		Size:              int64(len(part.Data)),
		CreatedAt:         createdAt,
		UpdatedAt:         now,
	}
	if err := instances.Upsert(ctx, rec); err != nil {
		s.logger.Error("Ошибка сохранения строки экземпляра",
			slog.String("sop_instance_uid", sopUID),
			slog.String("error", err.Error()),
		)
		return nil, &model.FailedInstance{
			SOPClassUID:    sopClassUID,
			SOPInstanceUID: sopUID,
			Reason:         model.FailureUnableToProcess,
		}
	}

	var snapshot map[string]any
	_ = json.Unmarshal(metadataJSON, &snapshot)

	seq, err := feed.Append(ctx, &model.ChangeFeedEntry{
		StudyInstanceUID:  studyUID,
		SeriesInstanceUID: seriesUID,
		SOPInstanceUID:    sopUID,
		Action:            action,
		Timestamp:         now,
		Metadata:          snapshot,
	})
	if err != nil {
		s.logger.Error("Ошибка записи в ленту изменений",
			slog.String("sop_instance_uid", sopUID),
			slog.String("error", err.Error()),
		)
		return nil, &model.FailedInstance{
			SOPClassUID:    sopClassUID,
			SOPInstanceUID: sopUID,
			Reason:         model.FailureUnableToProcess,
		}
	}
	if action == model.ActionUpdate {
		if err := feed.Supersede(ctx, sopUID, seq); err != nil {
			s.logger.Error("Ошибка вытеснения прежних записей ленты",
				slog.String("sop_instance_uid", sopUID),
				slog.String("error", err.Error()),
			)
		}
	}

	// Store-then-warn: объект принят, но без ключевых демографических
	// атрибутов поиск по пациенту его не найдёт
	warning := searchable.PatientID == nil && searchable.PatientName == nil
	if warning {
		s.logger.Warn("Экземпляр принят без атрибутов пациента",
			slog.String("sop_instance_uid", sopUID),
		)
	}

	return &stagedPart{
		stored: model.StoredInstance{
			SOPClassUID:       sopClassUID,
			SOPInstanceUID:    sopUID,
			StudyInstanceUID:  studyUID,
			SeriesInstanceUID: seriesUID,
			Action:            action,
			Warning:           warning,
		},
		sequence:    seq,
		storagePath: storagePath,
		stagedPath:  stagedPath,
		oldPath:     oldPath,
	}, nil
}
