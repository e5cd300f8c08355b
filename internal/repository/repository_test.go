package repository

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/arturkryukov/dicomemu/internal/domain/model"
)

// testDB открывает временную базу с применёнными миграциями.
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("ошибка открытия базы: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// testRecord создаёт запись экземпляра с заданными идентификаторами.
func testRecord(studyUID, seriesUID, sopUID string) *model.InstanceRecord {
	patientID := "PAT001"
	modality := "CT"
	now := time.Now().UTC().Truncate(time.Second)
	return &model.InstanceRecord{
		SOPInstanceUID:    sopUID,
		StudyInstanceUID:  studyUID,
		SeriesInstanceUID: seriesUID,
		SOPClassUID:       "1.2.840.10008.5.1.4.1.1.2",
		TransferSyntaxUID: "1.2.840.10008.1.2.1",
		Searchable: model.Searchable{
			PatientID: &patientID,
			Modality:  &modality,
		},
		MetadataJSON: `{"00100020":{"vr":"LO","Value":["PAT001"]}}`,
		StoragePath:  filepath.Join(studyUID, seriesUID, sopUID+".dcm"),
		Size:         1024,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// TestInstanceUpsertAndGet проверяет вставку и чтение записи.
func TestInstanceUpsertAndGet(t *testing.T) {
	repo := NewInstanceRepository(testDB(t))
	ctx := context.Background()

	rec := testRecord("1.2.3", "1.2.3.1", "1.2.3.1.1")
	if err := repo.Upsert(ctx, rec); err != nil {
		t.Fatalf("ошибка upsert: %v", err)
	}

	got, err := repo.GetBySOPInstanceUID(ctx, "1.2.3.1.1")
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	if got.StudyInstanceUID != "1.2.3" || got.Size != 1024 {
		t.Errorf("запись прочитана неверно: %+v", got)
	}
	if got.Searchable.PatientID == nil || *got.Searchable.PatientID != "PAT001" {
		t.Errorf("поисковый атрибут потерян: %v", got.Searchable.PatientID)
	}
}

// TestInstanceGetNotFound проверяет ErrNotFound для несуществующего UID.
func TestInstanceGetNotFound(t *testing.T) {
	repo := NewInstanceRepository(testDB(t))

	_, err := repo.GetBySOPInstanceUID(context.Background(), "9.9.9")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено %v", err)
	}
}

// TestInstanceUpsertReplaces проверяет замену записи с тем же SOP UID.
func TestInstanceUpsertReplaces(t *testing.T) {
	repo := NewInstanceRepository(testDB(t))
	ctx := context.Background()

	rec := testRecord("1.2.3", "1.2.3.1", "1.2.3.1.1")
	if err := repo.Upsert(ctx, rec); err != nil {
		t.Fatalf("ошибка первого upsert: %v", err)
	}

	// Тот же SOP UID, другое исследование и размер
	updated := testRecord("7.7.7", "7.7.7.1", "1.2.3.1.1")
	updated.Size = 2048
	if err := repo.Upsert(ctx, updated); err != nil {
		t.Fatalf("ошибка повторного upsert: %v", err)
	}

	got, err := repo.GetBySOPInstanceUID(ctx, "1.2.3.1.1")
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	if got.StudyInstanceUID != "7.7.7" || got.Size != 2048 {
		t.Errorf("запись не заменена: %+v", got)
	}

	// Всего одна строка
	recs, err := repo.Resolve(ctx, "7.7.7", "", "")
	if err != nil {
		t.Fatalf("ошибка resolve: %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("ожидалась 1 запись, получено %d", len(recs))
	}
}

// TestInstanceResolveHierarchy проверяет разрешение идентификаторов
// на уровнях исследования, серии и экземпляра.
func TestInstanceResolveHierarchy(t *testing.T) {
	repo := NewInstanceRepository(testDB(t))
	ctx := context.Background()

	for _, rec := range []*model.InstanceRecord{
		testRecord("1.2.3", "1.2.3.1", "1.2.3.1.1"),
		testRecord("1.2.3", "1.2.3.1", "1.2.3.1.2"),
		testRecord("1.2.3", "1.2.3.2", "1.2.3.2.1"),
		testRecord("9.9.9", "9.9.9.1", "9.9.9.1.1"),
	} {
		if err := repo.Upsert(ctx, rec); err != nil {
			t.Fatalf("ошибка upsert: %v", err)
		}
	}

	study, _ := repo.Resolve(ctx, "1.2.3", "", "")
	if len(study) != 3 {
		t.Errorf("уровень исследования: ожидались 3 записи, получено %d", len(study))
	}
	series, _ := repo.Resolve(ctx, "1.2.3", "1.2.3.1", "")
	if len(series) != 2 {
		t.Errorf("уровень серии: ожидались 2 записи, получено %d", len(series))
	}
	inst, _ := repo.Resolve(ctx, "1.2.3", "1.2.3.2", "1.2.3.2.1")
	if len(inst) != 1 {
		t.Errorf("уровень экземпляра: ожидалась 1 запись, получено %d", len(inst))
	}
	none, _ := repo.Resolve(ctx, "5.5.5", "", "")
	if len(none) != 0 {
		t.Errorf("несуществующее исследование: получено %d записей", len(none))
	}
}

// TestInstanceSearchPredicates проверяет поиск с предикатами и пагинацией.
func TestInstanceSearchPredicates(t *testing.T) {
	repo := NewInstanceRepository(testDB(t))
	ctx := context.Background()

	ct := testRecord("1.2.3", "1.2.3.1", "1.2.3.1.1")
	mr := testRecord("4.5.6", "4.5.6.1", "4.5.6.1.1")
	mrMod := "MR"
	mr.Searchable.Modality = &mrMod
	for _, rec := range []*model.InstanceRecord{ct, mr} {
		if err := repo.Upsert(ctx, rec); err != nil {
			t.Fatalf("ошибка upsert: %v", err)
		}
	}

	pred, err := CompilePredicate("Modality", "MR", false)
	if err != nil {
		t.Fatalf("ошибка компиляции: %v", err)
	}
	rows, err := repo.Search(ctx, []Predicate{pred}, 100, 0)
	if err != nil {
		t.Fatalf("ошибка поиска: %v", err)
	}
	if len(rows) != 1 || rows[0].SOPInstanceUID != "4.5.6.1.1" {
		t.Errorf("поиск по модальности: %v", rows)
	}

	// Пагинация на уровне строк
	all, _ := repo.Search(ctx, nil, 1, 0)
	if len(all) != 1 {
		t.Errorf("limit=1: получено %d строк", len(all))
	}
	second, _ := repo.Search(ctx, nil, 1, 1)
	if len(second) != 1 || second[0].SOPInstanceUID == all[0].SOPInstanceUID {
		t.Errorf("offset=1 должен вернуть другую строку")
	}
}

// TestInstanceSearchWildcard проверяет wildcard-предикат на реальной базе.
func TestInstanceSearchWildcard(t *testing.T) {
	repo := NewInstanceRepository(testDB(t))
	ctx := context.Background()

	rec := testRecord("1.2.3", "1.2.3.1", "1.2.3.1.1")
	if err := repo.Upsert(ctx, rec); err != nil {
		t.Fatalf("ошибка upsert: %v", err)
	}

	pred, _ := CompilePredicate("PatientID", "PAT*", false)
	rows, err := repo.Search(ctx, []Predicate{pred}, 100, 0)
	if err != nil {
		t.Fatalf("ошибка поиска: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("wildcard PAT*: ожидалась 1 строка, получено %d", len(rows))
	}

	pred, _ = CompilePredicate("PatientID", "XYZ*", false)
	rows, _ = repo.Search(ctx, []Predicate{pred}, 100, 0)
	if len(rows) != 0 {
		t.Errorf("wildcard XYZ*: ожидалось 0 строк, получено %d", len(rows))
	}
}

// TestInstanceSearchUIDList проверяет список UID через запятую
// на реальной базе.
func TestInstanceSearchUIDList(t *testing.T) {
	repo := NewInstanceRepository(testDB(t))
	ctx := context.Background()

	for _, rec := range []*model.InstanceRecord{
		testRecord("1.2.3", "1.2.3.1", "1.2.3.1.1"),
		testRecord("4.5.6", "4.5.6.1", "4.5.6.1.1"),
		testRecord("9.9.9", "9.9.9.1", "9.9.9.1.1"),
	} {
		if err := repo.Upsert(ctx, rec); err != nil {
			t.Fatalf("ошибка upsert: %v", err)
		}
	}

	pred, err := CompilePredicate("StudyInstanceUID", "1.2.3,4.5.6", false)
	if err != nil {
		t.Fatalf("ошибка компиляции: %v", err)
	}
	rows, err := repo.Search(ctx, []Predicate{pred}, 100, 0)
	if err != nil {
		t.Fatalf("ошибка поиска: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("список UID: ожидались 2 строки, получено %d", len(rows))
	}
	for _, row := range rows {
		if row.StudyInstanceUID == "9.9.9" {
			t.Errorf("исследование вне списка попало в результат: %v", row)
		}
	}
}

// TestInstanceSearchFuzzyName проверяет fuzzy-поиск по имени пациента
// на реальной базе: "joh" находит John^Doe и Doe^John, но не Jane^Smith.
func TestInstanceSearchFuzzyName(t *testing.T) {
	repo := NewInstanceRepository(testDB(t))
	ctx := context.Background()

	names := map[string]string{
		"1.2.3.1.1": "John^Doe",
		"1.2.3.1.2": "Doe^John",
		"1.2.3.1.3": "Jane^Smith",
	}
	for sop, name := range names {
		rec := testRecord("1.2.3", "1.2.3.1", sop)
		n := name
		rec.Searchable.PatientName = &n
		if err := repo.Upsert(ctx, rec); err != nil {
			t.Fatalf("ошибка upsert: %v", err)
		}
	}

	pred, err := CompilePredicate("PatientName", "joh", true)
	if err != nil {
		t.Fatalf("ошибка компиляции: %v", err)
	}
	rows, err := repo.Search(ctx, []Predicate{pred}, 100, 0)
	if err != nil {
		t.Fatalf("ошибка поиска: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("fuzzy joh: ожидались 2 строки, получено %d", len(rows))
	}
	for _, row := range rows {
		if *row.Searchable.PatientName == "Jane^Smith" {
			t.Errorf("Jane^Smith не должна совпадать с joh")
		}
	}
}

// TestInstanceDelete проверяет удаление и ErrNotFound при повторе.
func TestInstanceDelete(t *testing.T) {
	repo := NewInstanceRepository(testDB(t))
	ctx := context.Background()

	rec := testRecord("1.2.3", "1.2.3.1", "1.2.3.1.1")
	if err := repo.Upsert(ctx, rec); err != nil {
		t.Fatalf("ошибка upsert: %v", err)
	}
	if err := repo.Delete(ctx, "1.2.3.1.1"); err != nil {
		t.Fatalf("ошибка удаления: %v", err)
	}
	if err := repo.Delete(ctx, "1.2.3.1.1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторное удаление: ожидалась ErrNotFound, получено %v", err)
	}
}

// TestInstanceListUpdatedBefore проверяет выборку устаревших записей.
func TestInstanceListUpdatedBefore(t *testing.T) {
	repo := NewInstanceRepository(testDB(t))
	ctx := context.Background()

	old := testRecord("1.2.3", "1.2.3.1", "1.2.3.1.1")
	old.UpdatedAt = time.Now().UTC().Add(-48 * time.Hour)
	fresh := testRecord("4.5.6", "4.5.6.1", "4.5.6.1.1")
	for _, rec := range []*model.InstanceRecord{old, fresh} {
		if err := repo.Upsert(ctx, rec); err != nil {
			t.Fatalf("ошибка upsert: %v", err)
		}
	}

	expired, err := repo.ListUpdatedBefore(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("ошибка выборки: %v", err)
	}
	if len(expired) != 1 || expired[0].SOPInstanceUID != "1.2.3.1.1" {
		t.Errorf("устаревшие записи выбраны неверно: %v", expired)
	}
}

// --- Лента изменений ---

// feedEntry создаёт запись ленты для тестов.
func feedEntry(sopUID string, action model.FeedAction) *model.ChangeFeedEntry {
	return &model.ChangeFeedEntry{
		StudyInstanceUID:  "1.2.3",
		SeriesInstanceUID: "1.2.3.1",
		SOPInstanceUID:    sopUID,
		Action:            action,
		Timestamp:         time.Now().UTC().Truncate(time.Second),
		Metadata:          map[string]any{"00100020": map[string]any{"vr": "LO"}},
	}
}

// TestFeedAppendMonotonic проверяет монотонный рост sequence.
func TestFeedAppendMonotonic(t *testing.T) {
	repo := NewChangeFeedRepository(testDB(t))
	ctx := context.Background()

	var prev int64
	for i := 0; i < 5; i++ {
		seq, err := repo.Append(ctx, feedEntry("1.2.3.1.1", model.ActionCreate))
		if err != nil {
			t.Fatalf("ошибка append: %v", err)
		}
		if seq <= prev {
			t.Errorf("sequence не монотонен: %d после %d", seq, prev)
		}
		prev = seq
	}
}

// TestFeedSupersede проверяет вытеснение прежних current-записей.
func TestFeedSupersede(t *testing.T) {
	db := testDB(t)
	repo := NewChangeFeedRepository(db)
	ctx := context.Background()

	first, err := repo.Append(ctx, feedEntry("1.2.3.1.1", model.ActionCreate))
	if err != nil {
		t.Fatalf("ошибка append: %v", err)
	}
	second, err := repo.Append(ctx, feedEntry("1.2.3.1.1", model.ActionUpdate))
	if err != nil {
		t.Fatalf("ошибка append: %v", err)
	}
	if err := repo.Supersede(ctx, "1.2.3.1.1", second); err != nil {
		t.Fatalf("ошибка supersede: %v", err)
	}

	entries, err := repo.List(ctx, 0, 100, nil, nil)
	if err != nil {
		t.Fatalf("ошибка list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("ожидались 2 записи, получено %d", len(entries))
	}
	for _, e := range entries {
		switch e.Sequence {
		case first:
			if e.State != model.StateReplaced {
				t.Errorf("первая запись должна быть replaced, получено %s", e.State)
			}
		case second:
			if e.State != model.StateCurrent {
				t.Errorf("вторая запись должна быть current, получено %s", e.State)
			}
		}
	}
}

// TestFeedListTimeWindow проверяет включительные границы времени.
func TestFeedListTimeWindow(t *testing.T) {
	repo := NewChangeFeedRepository(testDB(t))
	ctx := context.Background()

	early := feedEntry("1.1", model.ActionCreate)
	early.Timestamp = time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	late := feedEntry("2.2", model.ActionCreate)
	late.Timestamp = time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	for _, e := range []*model.ChangeFeedEntry{early, late} {
		if _, err := repo.Append(ctx, e); err != nil {
			t.Fatalf("ошибка append: %v", err)
		}
	}

	start := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	entries, err := repo.List(ctx, 0, 100, &start, nil)
	if err != nil {
		t.Fatalf("ошибка list: %v", err)
	}
	if len(entries) != 1 || entries[0].SOPInstanceUID != "2.2" {
		t.Errorf("фильтр startTime: %v", entries)
	}

	// Включительность нижней границы
	startInclusive := early.Timestamp
	entries, _ = repo.List(ctx, 0, 100, &startInclusive, nil)
	if len(entries) != 2 {
		t.Errorf("граница должна быть включительной, получено %d записей", len(entries))
	}
}

// TestFeedLatestSentinel проверяет сентинел Sequence == 0 для пустой
// ленты и настоящую запись после добавления.
func TestFeedLatestSentinel(t *testing.T) {
	repo := NewChangeFeedRepository(testDB(t))
	ctx := context.Background()

	entry, err := repo.Latest(ctx)
	if err != nil {
		t.Fatalf("ошибка latest: %v", err)
	}
	if entry.Sequence != 0 {
		t.Errorf("пустая лента: ожидался Sequence 0, получено %d", entry.Sequence)
	}

	seq, err := repo.Append(ctx, feedEntry("1.2.3.1.1", model.ActionCreate))
	if err != nil {
		t.Fatalf("ошибка append: %v", err)
	}
	entry, err = repo.Latest(ctx)
	if err != nil {
		t.Fatalf("ошибка latest: %v", err)
	}
	if entry.Sequence != seq {
		t.Errorf("ожидался Sequence %d, получено %d", seq, entry.Sequence)
	}
	if entry.Metadata == nil {
		t.Error("снимок метаданных потерян")
	}
}
