// matcher.go — компилятор поисковых параметров QIDO-RS в SQL-предикаты.
//
// Каждый параметр запроса, не входящий в управляющий набор (limit,
// offset, fuzzymatching, includefield), транслируется в одно WHERE-условие;
// все условия одного запроса соединяются через AND.
package repository

import (
	"fmt"
	"strings"
)

// Predicate — скомпилированное WHERE-условие с аргументами.
type Predicate struct {
	SQL  string
	Args []any
}

// UnknownAttributeError — параметр запроса не является ни поддерживаемым
// ключевым словом DICOM, ни его числовой формой тега.
type UnknownAttributeError struct {
	Attribute string
}

func (e *UnknownAttributeError) Error() string {
	return fmt.Sprintf("неизвестный поисковый атрибут %q", e.Attribute)
}

// controlParams — управляющие параметры QIDO-RS, не являющиеся фильтрами.
var controlParams = map[string]bool{
	"limit":         true,
	"offset":        true,
	"fuzzymatching": true,
	"includefield":  true,
}

// attributeColumns — таблица соответствия атрибутов столбцам.
// Ключевое слово и числовая форма тега указывают на один столбец
// (PatientID и 00100020 эквивалентны).
var attributeColumns = map[string]string{
	"StudyInstanceUID":  "study_instance_uid",
	"0020000D":          "study_instance_uid",
	"SeriesInstanceUID": "series_instance_uid",
	"0020000E":          "series_instance_uid",
	"SOPInstanceUID":    "sop_instance_uid",
	"00080018":          "sop_instance_uid",
	"SOPClassUID":       "sop_class_uid",
	"00080016":          "sop_class_uid",

	"PatientID":              "patient_id",
	"00100020":               "patient_id",
	"PatientName":            "patient_name",
	"00100010":               "patient_name",
	"StudyDate":              "study_date",
	"00080020":               "study_date",
	"StudyTime":              "study_time",
	"00080030":               "study_time",
	"AccessionNumber":        "accession_number",
	"00080050":               "accession_number",
	"StudyDescription":       "study_description",
	"00081030":               "study_description",
	"Modality":               "modality",
	"00080060":               "modality",
	"SeriesDescription":      "series_description",
	"0008103E":               "series_description",
	"SeriesNumber":           "series_number",
	"00200011":               "series_number",
	"InstanceNumber":         "instance_number",
	"00200013":               "instance_number",
	"ReferringPhysicianName": "referring_physician_name",
	"00080090":               "referring_physician_name",
}

// personNameColumns — столбцы person-name, для которых применим fuzzy matching.
var personNameColumns = map[string]bool{
	"patient_name":             true,
	"referring_physician_name": true,
}

// dateColumns — столбцы дат, поддерживающие диапазоны вида A-B.
var dateColumns = map[string]bool{
	"study_date": true,
}

// uidColumns — столбцы UID, поддерживающие списки через запятую.
var uidColumns = map[string]bool{
	"study_instance_uid":  true,
	"series_instance_uid": true,
	"sop_instance_uid":    true,
	"sop_class_uid":       true,
}

// IsControlParam сообщает, является ли параметр управляющим
// (не компилируется в предикат).
func IsControlParam(name string) bool {
	return controlParams[strings.ToLower(name)]
}

// CompilePredicate компилирует один поисковый параметр в предикат.
// Приоритет: список UID → wildcard → fuzzy (person name) →
// диапазон дат → равенство.
func CompilePredicate(attribute, value string, fuzzy bool) (Predicate, error) {
	column, ok := attributeColumns[attribute]
	if !ok {
		// Числовая форма тега допускается в нижнем регистре
		column, ok = attributeColumns[strings.ToUpper(attribute)]
	}
	if !ok {
		return Predicate{}, &UnknownAttributeError{Attribute: attribute}
	}

	switch {
	case uidColumns[column] && strings.Contains(value, ","):
		// Запятая в значении UID-атрибута — перечисление допустимых UID
		return compileUIDList(column, value), nil
	case strings.ContainsAny(value, "*?"):
		// Wildcard имеет приоритет над fuzzy matching
		return Predicate{
			SQL:  fmt.Sprintf(`%s LIKE ? ESCAPE '\'`, column),
			Args: []any{translateWildcard(value)},
		}, nil
	case fuzzy && personNameColumns[column]:
		return compileFuzzyName(column, value), nil
	case dateColumns[column] && isDateRange(value):
		return compileDateRange(column, value), nil
	default:
		return Predicate{SQL: fmt.Sprintf("%s = ?", column), Args: []any{value}}, nil
	}
}

// compileUIDList строит предикат IN (...) из перечисления UID.
// Пустые элементы списка отбрасываются.
func compileUIDList(column, value string) Predicate {
	var args []any
	for _, uid := range strings.Split(value, ",") {
		if uid = strings.TrimSpace(uid); uid != "" {
			args = append(args, uid)
		}
	}
	if len(args) == 0 {
		return Predicate{SQL: fmt.Sprintf("%s = ?", column), Args: []any{value}}
	}
	placeholders := strings.Repeat("?,", len(args))
	return Predicate{
		SQL:  fmt.Sprintf("%s IN (%s)", column, placeholders[:len(placeholders)-1]),
		Args: args,
	}
}

// translateWildcard переводит DICOM-шаблон в LIKE-шаблон:
// сначала экранируются буквальные %, _ и \, затем * → % и ? → _.
func translateWildcard(value string) string {
	var b strings.Builder
	for _, r := range value {
		switch r {
		case '%', '_', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '*':
			b.WriteByte('%')
		case '?':
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// escapeLike экранирует буквальные LIKE-метасимволы значения.
func escapeLike(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	value = strings.ReplaceAll(value, "%", `\%`)
	value = strings.ReplaceAll(value, "_", `\_`)
	return value
}

// compileFuzzyName строит fuzzy-предикат для person-name столбца:
// вход режется по пробелам, для каждого слова — OR из "начинается с"
// и "начинается после компонентного разделителя ^", без учёта регистра.
func compileFuzzyName(column, value string) Predicate {
	words := strings.Fields(strings.ToLower(value))
	if len(words) == 0 {
		return Predicate{SQL: fmt.Sprintf("%s = ?", column), Args: []any{value}}
	}

	var clauses []string
	var args []any
	for _, word := range words {
		escaped := escapeLike(word)
		clauses = append(clauses,
			fmt.Sprintf(`LOWER(%s) LIKE ? ESCAPE '\'`, column),
			fmt.Sprintf(`LOWER(%s) LIKE ? ESCAPE '\'`, column),
		)
		args = append(args, escaped+"%", "%^"+escaped+"%")
	}
	return Predicate{
		SQL:  "(" + strings.Join(clauses, " OR ") + ")",
		Args: args,
	}
}

// isDateRange распознаёт диапазон дат вида YYYYMMDD-YYYYMMDD,
// включая открытые границы (A- и -B).
func isDateRange(value string) bool {
	if !strings.Contains(value, "-") {
		return false
	}
	lo, hi, _ := strings.Cut(value, "-")
	return isDigits(lo) && isDigits(hi) && (lo != "" || hi != "")
}

// compileDateRange строит предикат диапазона с включительными границами.
func compileDateRange(column, value string) Predicate {
	lo, hi, _ := strings.Cut(value, "-")
	switch {
	case lo != "" && hi != "":
		return Predicate{
			SQL:  fmt.Sprintf("%s BETWEEN ? AND ?", column),
			Args: []any{lo, hi},
		}
	case lo != "":
		return Predicate{SQL: fmt.Sprintf("%s >= ?", column), Args: []any{lo}}
	default:
		return Predicate{SQL: fmt.Sprintf("%s <= ?", column), Args: []any{hi}}
	}
}

// isDigits сообщает, состоит ли строка только из цифр (пустая — да).
func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
