// stow.go — результаты обработки STOW-RS запроса.
package model

// Коды причин отказа в FailedSOPSequence (0008,1197).
const (
	// FailureUnableToProcess — датасет не прошёл парсинг или валидацию
	FailureUnableToProcess = 272
	// FailureUIDMismatch — StudyInstanceUID тела не совпал с UID из пути
	FailureUIDMismatch = 43265
)

// Код предупреждения в (0008,1196): принято с отсутствующими
// поисковыми атрибутами.
const WarningCoercion = 45063

// StoredInstance — успешно сохранённый экземпляр в рамках STOW-запроса.
type StoredInstance struct {
	SOPClassUID       string
	SOPInstanceUID    string
	StudyInstanceUID  string
	SeriesInstanceUID string
	// Action — create или update (определяется наличием строки по UID)
	Action FeedAction
	// Warning — true, если часть поисковых атрибутов отсутствовала
	Warning bool
}

// FailedInstance — отклонённая часть STOW-запроса.
// Отказ одной части не прерывает обработку остальных.
type FailedInstance struct {
	SOPClassUID    string
	SOPInstanceUID string
	// Reason — числовой код причины (FailureUnableToProcess, FailureUIDMismatch)
	Reason int
}

// StowResult — агрегированный результат обработки всех частей запроса.
type StowResult struct {
	Stored []StoredInstance
	Failed []FailedInstance
}

// StatusCode возвращает HTTP-статус по политике STOW-RS:
// 409 — только отказы, 202 — смесь успехов и отказов/предупреждений,
// 200 — все части приняты без предупреждений.
func (r *StowResult) StatusCode() int {
	if len(r.Failed) > 0 && len(r.Stored) == 0 {
		return 409
	}
	if len(r.Failed) > 0 || r.HasWarnings() {
		return 202
	}
	return 200
}

// HasWarnings сообщает, была ли хотя бы одна часть принята с предупреждением.
func (r *StowResult) HasWarnings() bool {
	for _, s := range r.Stored {
		if s.Warning {
			return true
		}
	}
	return false
}
