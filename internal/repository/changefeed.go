// changefeed.go — репозиторий append-only ленты изменений.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/arturkryukov/dicomemu/internal/domain/model"
)

// feedColumns — столбцы таблицы changefeed для SELECT-запросов.
const feedColumns = `sequence, study_instance_uid, series_instance_uid,
	sop_instance_uid, action, state, timestamp, metadata_json`

// ChangeFeedRepository — доступ к ленте изменений.
type ChangeFeedRepository interface {
	// Append добавляет запись в состоянии current и возвращает
	// назначенный хранилищем sequence (монотонно возрастающий).
	Append(ctx context.Context, entry *model.ChangeFeedEntry) (int64, error)
	// Supersede переводит в state=replaced все current-записи данного
	// SOP UID, кроме записи excludeSeq.
	Supersede(ctx context.Context, sopUID string, excludeSeq int64) error
	// List возвращает записи по возрастанию sequence. Границы времени
	// включительные; nil — фильтр не применяется.
	List(ctx context.Context, offset, limit int64, startTime, endTime *time.Time) ([]*model.ChangeFeedEntry, error)
	// Latest возвращает последнюю запись ленты. Для пустой ленты —
	// сентинел с Sequence == 0, который вызывающий код обязан
	// отличать от настоящей записи.
	Latest(ctx context.Context) (*model.ChangeFeedEntry, error)
}

// feedRepo — реализация ChangeFeedRepository поверх DBTX.
type feedRepo struct {
	db DBTX
}

// NewChangeFeedRepository создаёт репозиторий ленты изменений.
func NewChangeFeedRepository(db DBTX) ChangeFeedRepository {
	return &feedRepo{db: db}
}

func (r *feedRepo) Append(ctx context.Context, entry *model.ChangeFeedEntry) (int64, error) {
	metadataJSON := sql.NullString{}
	if entry.Metadata != nil {
		raw, err := json.Marshal(entry.Metadata)
		if err != nil {
			return 0, fmt.Errorf("сериализация снимка метаданных: %w", err)
		}
		metadataJSON = sql.NullString{String: string(raw), Valid: true}
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO changefeed (
			study_instance_uid, series_instance_uid, sop_instance_uid,
			action, state, timestamp, metadata_json
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.StudyInstanceUID, entry.SeriesInstanceUID, entry.SOPInstanceUID,
		string(entry.Action), string(model.StateCurrent), entry.Timestamp, metadataJSON,
	)
	if err != nil {
		return 0, fmt.Errorf("добавление записи ленты: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("получение sequence: %w", err)
	}
	return seq, nil
}

func (r *feedRepo) Supersede(ctx context.Context, sopUID string, excludeSeq int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE changefeed
		SET state = ?
		WHERE sop_instance_uid = ? AND state = ? AND sequence != ?`,
		string(model.StateReplaced), sopUID, string(model.StateCurrent), excludeSeq,
	)
	if err != nil {
		return fmt.Errorf("вытеснение записей ленты: %w", err)
	}
	return nil
}

func (r *feedRepo) List(ctx context.Context, offset, limit int64, startTime, endTime *time.Time) ([]*model.ChangeFeedEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM changefeed`, feedColumns)
	var conditions []string
	var args []any

	if startTime != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, *startTime)
	}
	if endTime != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, *endTime)
	}
	for i, c := range conditions {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY sequence ASC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("чтение ленты: %w", err)
	}
	defer rows.Close()

	entries := []*model.ChangeFeedEntry{}
	for rows.Next() {
		entry, err := scanFeedEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("сканирование записи ленты: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("итерация ленты: %w", err)
	}
	return entries, nil
}

func (r *feedRepo) Latest(ctx context.Context) (*model.ChangeFeedEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM changefeed ORDER BY sequence DESC LIMIT 1`, feedColumns)

	entry, err := scanFeedEntry(r.db.QueryRowContext(ctx, query))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Пустая лента: сентинел Sequence == 0
			return &model.ChangeFeedEntry{Sequence: 0}, nil
		}
		return nil, fmt.Errorf("чтение последней записи ленты: %w", err)
	}
	return entry, nil
}

// scanFeedEntry сканирует одну строку changefeed в ChangeFeedEntry.
func scanFeedEntry(row rowScanner) (*model.ChangeFeedEntry, error) {
	entry := &model.ChangeFeedEntry{}
	var action, state string
	var metadataJSON sql.NullString

	err := row.Scan(
		&entry.Sequence, &entry.StudyInstanceUID, &entry.SeriesInstanceUID,
		&entry.SOPInstanceUID, &action, &state, &entry.Timestamp, &metadataJSON,
	)
	if err != nil {
		return nil, err
	}
	entry.Action = model.FeedAction(action)
	entry.State = model.FeedState(state)
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &entry.Metadata); err != nil {
			return nil, fmt.Errorf("десериализация снимка метаданных: %w", err)
		}
	}
	return entry, nil
}
