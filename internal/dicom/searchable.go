// searchable.go — извлечение поисковых атрибутов QIDO-RS и валидация
// обязательных тегов / синтаксиса UID.
package dicom

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/arturkryukov/dicomemu/internal/domain/model"
)

// RequiredTagError — отсутствует или пуст обязательный тег.
// Каждый отсутствующий тег даёт отдельную ошибку.
type RequiredTagError struct {
	Keyword string
	Tag     Tag
}

func (e *RequiredTagError) Error() string {
	return fmt.Sprintf("обязательный тег %s (%s) отсутствует или пуст", e.Keyword, e.Tag)
}

// requiredTags — теги, без которых объект не принимается на хранение.
var requiredTags = []struct {
	keyword string
	tag     Tag
}{
	{"StudyInstanceUID", TagStudyInstanceUID},
	{"SeriesInstanceUID", TagSeriesInstanceUID},
	{"SOPInstanceUID", TagSOPInstanceUID},
	{"SOPClassUID", TagSOPClassUID},
}

// ValidateRequired проверяет наличие четырёх обязательных UID-тегов.
// Отсутствие поисковых атрибутов ошибкой не считается — такие объекты
// принимаются с предупреждением (store-then-warn).
func ValidateRequired(ds *Dataset) []error {
	var errs []error
	for _, req := range requiredTags {
		if _, ok := ds.StringValue(req.tag); !ok {
			errs = append(errs, &RequiredTagError{Keyword: req.keyword, Tag: req.tag})
		}
	}
	return errs
}

// ValidateUID проверяет синтаксис UID: только цифры и точки, длина
// до 64 символов. Вызывается до подстановки UID в путь файловой
// системы — отсекает path traversal.
func ValidateUID(uid string) bool {
	if uid == "" || len(uid) > 64 {
		return false
	}
	for _, r := range uid {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return true
}

// ExtractSearchable извлекает фиксированный набор поисковых атрибутов.
// SeriesNumber и InstanceNumber парсятся как целые; нечисловое или
// отсутствующее значение → nil. Остальные поля — trimmed-строки или nil.
func ExtractSearchable(ds *Dataset) model.Searchable {
	return model.Searchable{
		PatientID:              strAttr(ds, TagPatientID),
		PatientName:            strAttr(ds, TagPatientName),
		StudyDate:              strAttr(ds, TagStudyDate),
		StudyTime:              strAttr(ds, TagStudyTime),
		AccessionNumber:        strAttr(ds, TagAccessionNumber),
		StudyDescription:       strAttr(ds, TagStudyDescription),
		Modality:               strAttr(ds, TagModality),
		SeriesDescription:      strAttr(ds, TagSeriesDescription),
		SeriesNumber:           intAttr(ds, TagSeriesNumber),
		InstanceNumber:         intAttr(ds, TagInstanceNumber),
		ReferringPhysicianName: strAttr(ds, TagReferringPhysicianName),
	}
}

// strAttr возвращает trimmed-значение строкового тега или nil.
func strAttr(ds *Dataset, tag Tag) *string {
	v, ok := ds.StringValue(tag)
	if !ok {
		return nil
	}
	return &v
}

// intAttr парсит значение IS-тега как целое, nil при нечисловом значении.
func intAttr(ds *Dataset, tag Tag) *int64 {
	v, ok := ds.StringValue(tag)
	if !ok {
		return nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return nil
	}
	return &n
}
