// search.go — сервис QIDO-RS: компиляция параметров запроса в предикаты,
// выборка строк-экземпляров и проекция результатов на уровень
// исследования, серии или экземпляра.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/arturkryukov/dicomemu/internal/dicom"
	"github.com/arturkryukov/dicomemu/internal/domain/model"
	"github.com/arturkryukov/dicomemu/internal/repository"
)

// Пагинация QIDO-запросов.
const (
	defaultSearchLimit = 100
	maxSearchLimit     = 1000
)

// QueryLevel — уровень иерархии, на который проецируются результаты.
type QueryLevel int

const (
	LevelStudy QueryLevel = iota
	LevelSeries
	LevelInstance
)

// InvalidParameterError — некорректное значение параметра запроса.
type InvalidParameterError struct {
	Param string
	Value string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("некорректное значение параметра %s: %q", e.Param, e.Value)
}

// SearchService — выполнение QIDO-RS запросов.
type SearchService struct {
	instances repository.InstanceRepository
	logger    *slog.Logger
}

// NewSearchService создаёт сервис поиска.
func NewSearchService(instances repository.InstanceRepository, logger *slog.Logger) *SearchService {
	return &SearchService{
		instances: instances,
		logger:    logger.With(slog.String("component", "search_service")),
	}
}

// Search выполняет поиск по параметрам запроса.
//
// studyUID/seriesUID — идентификаторы из пути запроса (поиск серий
// внутри исследования и т.п.); пустые — не ограничивают. Пагинация
// применяется к строкам-экземплярам ДО группировки, поэтому число
// результирующих исследований/серий на странице может быть меньше
// limit, а соседние страницы могут делить одно исследование.
func (s *SearchService) Search(ctx context.Context, level QueryLevel, studyUID, seriesUID string, params url.Values) ([]dicom.TagMap, error) {
	limit, offset, fuzzy, err := parseControls(params)
	if err != nil {
		return nil, err
	}

	var preds []repository.Predicate
	if studyUID != "" {
		preds = append(preds, repository.Predicate{SQL: "study_instance_uid = ?", Args: []any{studyUID}})
	}
	if seriesUID != "" {
		preds = append(preds, repository.Predicate{SQL: "series_instance_uid = ?", Args: []any{seriesUID}})
	}
	for attr, values := range params {
		if repository.IsControlParam(attr) {
			continue
		}
		// Повторённый параметр — отдельный предикат на каждое значение,
		// все условия соединяются через AND
		for _, value := range values {
			if value == "" {
				continue
			}
			pred, err := repository.CompilePredicate(attr, value, fuzzy)
			if err != nil {
				return nil, err
			}
			preds = append(preds, pred)
		}
	}

	rows, err := s.instances.Search(ctx, preds, limit, offset)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("QIDO-запрос выполнен",
		slog.Int("level", int(level)),
		slog.Int("predicates", len(preds)),
		slog.Int("rows", len(rows)),
	)

	switch level {
	case LevelStudy:
		return projectStudies(rows), nil
	case LevelSeries:
		return projectSeries(rows), nil
	default:
		return projectInstances(rows), nil
	}
}

// parseControls извлекает limit/offset/fuzzymatching.
func parseControls(params url.Values) (limit, offset int, fuzzy bool, err error) {
	limit = defaultSearchLimit
	if raw := params.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return 0, 0, false, &InvalidParameterError{Param: "limit", Value: raw}
		}
		if v > maxSearchLimit {
			v = maxSearchLimit
		}
		limit = v
	}
	if raw := params.Get("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return 0, 0, false, &InvalidParameterError{Param: "offset", Value: raw}
		}
		offset = v
	}
	if raw := params.Get("fuzzymatching"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return 0, 0, false, &InvalidParameterError{Param: "fuzzymatching", Value: raw}
		}
		fuzzy = v
	}
	return limit, offset, fuzzy, nil
}

// projectStudies группирует строки по Study UID с сохранением порядка
// и строит проекцию уровня исследования. Агрегаты (модальности,
// счётчики серий и экземпляров) вычисляются по строкам текущей страницы.
func projectStudies(rows []*model.InstanceRecord) []dicom.TagMap {
	order := []string{}
	groups := map[string][]*model.InstanceRecord{}
	for _, row := range rows {
		uid := row.StudyInstanceUID
		if _, ok := groups[uid]; !ok {
			order = append(order, uid)
		}
		groups[uid] = append(groups[uid], row)
	}

	result := make([]dicom.TagMap, 0, len(order))
	for _, uid := range order {
		group := groups[uid]
		first := group[0]

		modalities := distinctStrings(group, func(r *model.InstanceRecord) *string { return r.Searchable.Modality })
		seriesCount := len(distinctStrings(group, func(r *model.InstanceRecord) *string { return &r.SeriesInstanceUID }))

		m := dicom.TagMap{}
		putString(m, "0020000D", "UI", uid)
		putOptString(m, "00100020", "LO", first.Searchable.PatientID)
		putOptPersonName(m, "00100010", first.Searchable.PatientName)
		putOptString(m, "00080020", "DA", first.Searchable.StudyDate)
		putOptString(m, "00080030", "TM", first.Searchable.StudyTime)
		putOptString(m, "00080050", "SH", first.Searchable.AccessionNumber)
		putOptString(m, "00081030", "LO", first.Searchable.StudyDescription)
		putOptPersonName(m, "00080090", first.Searchable.ReferringPhysicianName)
		if len(modalities) > 0 {
			values := make([]any, len(modalities))
			for i, v := range modalities {
				values[i] = v
			}
			m["00080061"] = dicom.TagEntry{VR: "CS", Value: values}
		}
		putInt(m, "00201206", int64(seriesCount))
		putInt(m, "00201208", int64(len(group)))
		result = append(result, m)
	}
	return result
}

// projectSeries группирует строки по Series UID.
func projectSeries(rows []*model.InstanceRecord) []dicom.TagMap {
	order := []string{}
	groups := map[string][]*model.InstanceRecord{}
	for _, row := range rows {
		uid := row.SeriesInstanceUID
		if _, ok := groups[uid]; !ok {
			order = append(order, uid)
		}
		groups[uid] = append(groups[uid], row)
	}

	result := make([]dicom.TagMap, 0, len(order))
	for _, uid := range order {
		group := groups[uid]
		first := group[0]

		m := dicom.TagMap{}
		putString(m, "0020000E", "UI", uid)
		putString(m, "0020000D", "UI", first.StudyInstanceUID)
		putOptString(m, "00080060", "CS", first.Searchable.Modality)
		putOptString(m, "0008103E", "LO", first.Searchable.SeriesDescription)
		putOptInt(m, "00200011", first.Searchable.SeriesNumber)
		putInt(m, "00201209", int64(len(group)))
		result = append(result, m)
	}
	return result
}

// projectInstances строит проекцию уровня экземпляра — одна запись
// результата на строку.
func projectInstances(rows []*model.InstanceRecord) []dicom.TagMap {
	result := make([]dicom.TagMap, 0, len(rows))
	for _, row := range rows {
		m := dicom.TagMap{}
		putString(m, "00080018", "UI", row.SOPInstanceUID)
		putString(m, "00080016", "UI", row.SOPClassUID)
		putString(m, "0020000D", "UI", row.StudyInstanceUID)
		putString(m, "0020000E", "UI", row.SeriesInstanceUID)
		putOptString(m, "00080060", "CS", row.Searchable.Modality)
		putOptInt(m, "00200013", row.Searchable.InstanceNumber)
		result = append(result, m)
	}
	return result
}

// distinctStrings возвращает уникальные непустые значения атрибута
// в порядке первого появления.
func distinctStrings(rows []*model.InstanceRecord, get func(*model.InstanceRecord) *string) []string {
	seen := map[string]bool{}
	var out []string
	for _, row := range rows {
		v := get(row)
		if v == nil || *v == "" || seen[*v] {
			continue
		}
		seen[*v] = true
		out = append(out, *v)
	}
	return out
}

func putString(m dicom.TagMap, key, vr, value string) {
	m[key] = dicom.TagEntry{VR: vr, Value: []any{value}}
}

func putOptString(m dicom.TagMap, key, vr string, value *string) {
	if value == nil || *value == "" {
		return
	}
	putString(m, key, vr, *value)
}

func putOptPersonName(m dicom.TagMap, key string, value *string) {
	if value == nil || *value == "" {
		return
	}
	m[key] = dicom.TagEntry{VR: "PN", Value: []any{map[string]string{"Alphabetic": *value}}}
}

func putInt(m dicom.TagMap, key string, value int64) {
	m[key] = dicom.TagEntry{VR: "IS", Value: []any{value}}
}

func putOptInt(m dicom.TagMap, key string, value *int64) {
	if value == nil {
		return
	}
	putInt(m, key, *value)
}
