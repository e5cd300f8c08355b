// instance.go — репозиторий реестра сохранённых SOP Instance.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arturkryukov/dicomemu/internal/domain/model"
)

// instanceColumns — список столбцов таблицы instances для SELECT-запросов.
// DRY: одно место для всех SELECT'ов.
const instanceColumns = `sop_instance_uid, study_instance_uid, series_instance_uid,
	sop_class_uid, transfer_syntax_uid, patient_id, patient_name, study_date,
	study_time, accession_number, study_description, modality, series_description,
	series_number, instance_number, referring_physician_name, metadata_json,
	storage_path, size, created_at, updated_at`

// InstanceRepository — доступ к реестру экземпляров.
type InstanceRepository interface {
	// GetBySOPInstanceUID возвращает запись по SOP Instance UID или ErrNotFound.
	GetBySOPInstanceUID(ctx context.Context, sopUID string) (*model.InstanceRecord, error)
	// Upsert вставляет запись или целиком заменяет существующую
	// с тем же SOP Instance UID (created_at сохраняется).
	Upsert(ctx context.Context, rec *model.InstanceRecord) error
	// Resolve возвращает записи по точному совпадению переданных
	// идентификаторов; пустые series/sop не фильтруют.
	Resolve(ctx context.Context, studyUID, seriesUID, sopUID string) ([]*model.InstanceRecord, error)
	// Search выполняет поиск по скомпилированным предикатам
	// с пагинацией на уровне строк-экземпляров.
	Search(ctx context.Context, preds []Predicate, limit, offset int) ([]*model.InstanceRecord, error)
	// ListUpdatedBefore возвращает записи, не обновлявшиеся с cutoff.
	// Используется сборщиком устаревших экземпляров.
	ListUpdatedBefore(ctx context.Context, cutoff time.Time) ([]*model.InstanceRecord, error)
	// Delete удаляет запись по SOP Instance UID.
	Delete(ctx context.Context, sopUID string) error
}

// instanceRepo — реализация InstanceRepository поверх DBTX.
type instanceRepo struct {
	db DBTX
}

// NewInstanceRepository создаёт репозиторий экземпляров.
// db — *sql.DB вне транзакций или *sql.Tx внутри STOW-батча.
func NewInstanceRepository(db DBTX) InstanceRepository {
	return &instanceRepo{db: db}
}

func (r *instanceRepo) GetBySOPInstanceUID(ctx context.Context, sopUID string) (*model.InstanceRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM instances WHERE sop_instance_uid = ?`, instanceColumns)

	rec, err := scanInstance(r.db.QueryRowContext(ctx, query, sopUID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение экземпляра: %w", err)
	}
	return rec, nil
}

func (r *instanceRepo) Upsert(ctx context.Context, rec *model.InstanceRecord) error {
	query := `
		INSERT INTO instances (
			sop_instance_uid, study_instance_uid, series_instance_uid,
			sop_class_uid, transfer_syntax_uid, patient_id, patient_name,
			study_date, study_time, accession_number, study_description,
			modality, series_description, series_number, instance_number,
			referring_physician_name, metadata_json, storage_path, size,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (sop_instance_uid) DO UPDATE SET
			study_instance_uid = excluded.study_instance_uid,
			series_instance_uid = excluded.series_instance_uid,
			sop_class_uid = excluded.sop_class_uid,
			transfer_syntax_uid = excluded.transfer_syntax_uid,
			patient_id = excluded.patient_id,
			patient_name = excluded.patient_name,
			study_date = excluded.study_date,
			study_time = excluded.study_time,
			accession_number = excluded.accession_number,
			study_description = excluded.study_description,
			modality = excluded.modality,
			series_description = excluded.series_description,
			series_number = excluded.series_number,
			instance_number = excluded.instance_number,
			referring_physician_name = excluded.referring_physician_name,
			metadata_json = excluded.metadata_json,
			storage_path = excluded.storage_path,
			size = excluded.size,
			updated_at = excluded.updated_at`

	s := rec.Searchable
	_, err := r.db.ExecContext(ctx, query,
		rec.SOPInstanceUID, rec.StudyInstanceUID, rec.SeriesInstanceUID,
		rec.SOPClassUID, rec.TransferSyntaxUID, s.PatientID, s.PatientName,
		s.StudyDate, s.StudyTime, s.AccessionNumber, s.StudyDescription,
		s.Modality, s.SeriesDescription, s.SeriesNumber, s.InstanceNumber,
		s.ReferringPhysicianName, rec.MetadataJSON, rec.StoragePath, rec.Size,
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("сохранение экземпляра: %w", err)
	}
	return nil
}

func (r *instanceRepo) Resolve(ctx context.Context, studyUID, seriesUID, sopUID string) ([]*model.InstanceRecord, error) {
	conditions := []string{"study_instance_uid = ?"}
	args := []any{studyUID}

	if seriesUID != "" {
		conditions = append(conditions, "series_instance_uid = ?")
		args = append(args, seriesUID)
	}
	if sopUID != "" {
		conditions = append(conditions, "sop_instance_uid = ?")
		args = append(args, sopUID)
	}

	query := fmt.Sprintf(
		`SELECT %s FROM instances WHERE %s ORDER BY series_instance_uid, instance_number, sop_instance_uid`,
		instanceColumns, strings.Join(conditions, " AND "),
	)
	return r.queryInstances(ctx, query, args)
}

func (r *instanceRepo) Search(ctx context.Context, preds []Predicate, limit, offset int) ([]*model.InstanceRecord, error) {
	where := ""
	var args []any
	if len(preds) > 0 {
		clauses := make([]string, len(preds))
		for i, p := range preds {
			clauses[i] = p.SQL
			args = append(args, p.Args...)
		}
		where = "WHERE " + strings.Join(clauses, " AND ")
	}

	query := fmt.Sprintf(
		`SELECT %s FROM instances %s ORDER BY study_instance_uid, series_instance_uid, sop_instance_uid LIMIT ? OFFSET ?`,
		instanceColumns, where,
	)
	args = append(args, limit, offset)

	return r.queryInstances(ctx, query, args)
}

func (r *instanceRepo) ListUpdatedBefore(ctx context.Context, cutoff time.Time) ([]*model.InstanceRecord, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM instances WHERE updated_at < ? ORDER BY updated_at`,
		instanceColumns,
	)
	return r.queryInstances(ctx, query, []any{cutoff})
}

func (r *instanceRepo) Delete(ctx context.Context, sopUID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM instances WHERE sop_instance_uid = ?`, sopUID)
	if err != nil {
		return fmt.Errorf("удаление экземпляра: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// queryInstances выполняет SELECT и сканирует все строки.
func (r *instanceRepo) queryInstances(ctx context.Context, query string, args []any) ([]*model.InstanceRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("поиск экземпляров: %w", err)
	}
	defer rows.Close()

	var result []*model.InstanceRecord
	for rows.Next() {
		rec, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("сканирование экземпляра: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("итерация результатов: %w", err)
	}
	return result, nil
}

// rowScanner — общий интерфейс *sql.Row и *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanInstance сканирует одну строку instances в InstanceRecord.
func scanInstance(row rowScanner) (*model.InstanceRecord, error) {
	rec := &model.InstanceRecord{}
	s := &rec.Searchable
	err := row.Scan(
		&rec.SOPInstanceUID, &rec.StudyInstanceUID, &rec.SeriesInstanceUID,
		&rec.SOPClassUID, &rec.TransferSyntaxUID, &s.PatientID, &s.PatientName,
		&s.StudyDate, &s.StudyTime, &s.AccessionNumber, &s.StudyDescription,
		&s.Modality, &s.SeriesDescription, &s.SeriesNumber, &s.InstanceNumber,
		&s.ReferringPhysicianName, &rec.MetadataJSON, &rec.StoragePath, &rec.Size,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}
