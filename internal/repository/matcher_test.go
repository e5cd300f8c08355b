package repository

import (
	"errors"
	"testing"
)

// TestCompilePredicateEquality проверяет компиляцию точного совпадения.
func TestCompilePredicateEquality(t *testing.T) {
	p, err := CompilePredicate("PatientID", "PAT001", false)
	if err != nil {
		t.Fatalf("ошибка компиляции: %v", err)
	}
	if p.SQL != "patient_id = ?" {
		t.Errorf("SQL: %q", p.SQL)
	}
	if len(p.Args) != 1 || p.Args[0] != "PAT001" {
		t.Errorf("аргументы: %v", p.Args)
	}
}

// TestCompilePredicateTagForm проверяет числовую форму тега,
// в том числе в нижнем регистре.
func TestCompilePredicateTagForm(t *testing.T) {
	for _, attr := range []string{"00100020", "0008103e"} {
		if _, err := CompilePredicate(attr, "x", false); err != nil {
			t.Errorf("атрибут %q должен компилироваться: %v", attr, err)
		}
	}
}

// TestCompilePredicateUnknown проверяет ошибку для неизвестного атрибута.
func TestCompilePredicateUnknown(t *testing.T) {
	_, err := CompilePredicate("NoSuchAttribute", "x", false)
	var unknown *UnknownAttributeError
	if !errors.As(err, &unknown) {
		t.Fatalf("ожидалась UnknownAttributeError, получено %v", err)
	}
}

// TestCompilePredicateUIDList проверяет компиляцию списка UID
// через запятую в предикат IN.
func TestCompilePredicateUIDList(t *testing.T) {
	p, err := CompilePredicate("StudyInstanceUID", "1.2.3,4.5.6", false)
	if err != nil {
		t.Fatalf("ошибка компиляции: %v", err)
	}
	if p.SQL != "study_instance_uid IN (?,?)" {
		t.Errorf("SQL: %q", p.SQL)
	}
	if len(p.Args) != 2 || p.Args[0] != "1.2.3" || p.Args[1] != "4.5.6" {
		t.Errorf("аргументы: %v", p.Args)
	}

	// Пробелы и пустые элементы списка отбрасываются
	p, _ = CompilePredicate("SOPInstanceUID", "1.2.3, 4.5.6,", false)
	if len(p.Args) != 2 || p.Args[1] != "4.5.6" {
		t.Errorf("нормализация списка: %v", p.Args)
	}

	// Одиночный UID без запятой остаётся равенством
	p, _ = CompilePredicate("StudyInstanceUID", "1.2.3", false)
	if p.SQL != "study_instance_uid = ?" {
		t.Errorf("одиночный UID: %q", p.SQL)
	}

	// Запятая в не-UID атрибуте не образует список
	p, _ = CompilePredicate("PatientID", "A,B", false)
	if p.SQL != "patient_id = ?" {
		t.Errorf("не-UID атрибут: %q", p.SQL)
	}
}

// TestCompilePredicateWildcard проверяет трансляцию DICOM-шаблонов в LIKE.
func TestCompilePredicateWildcard(t *testing.T) {
	p, err := CompilePredicate("PatientID", "PAT*", false)
	if err != nil {
		t.Fatalf("ошибка компиляции: %v", err)
	}
	if p.SQL != `patient_id LIKE ? ESCAPE '\'` {
		t.Errorf("SQL: %q", p.SQL)
	}
	if p.Args[0] != "PAT%" {
		t.Errorf("шаблон: %v", p.Args[0])
	}

	p, _ = CompilePredicate("PatientID", "PAT???", false)
	if p.Args[0] != "PAT___" {
		t.Errorf("шаблон ?: %v", p.Args[0])
	}

	// Буквальные метасимволы LIKE экранируются
	p, _ = CompilePredicate("PatientID", "100%*", false)
	if p.Args[0] != `100\%%` {
		t.Errorf("экранирование: %v", p.Args[0])
	}
}

// TestCompilePredicateWildcardBeatsFuzzy проверяет приоритет wildcard
// над fuzzy matching.
func TestCompilePredicateWildcardBeatsFuzzy(t *testing.T) {
	p, err := CompilePredicate("PatientName", "Iva*", true)
	if err != nil {
		t.Fatalf("ошибка компиляции: %v", err)
	}
	if p.SQL != `patient_name LIKE ? ESCAPE '\'` {
		t.Errorf("wildcard должен иметь приоритет: %q", p.SQL)
	}
}

// TestCompilePredicateFuzzy проверяет fuzzy-предикат person-name:
// совпадение по началу любой компоненты имени.
func TestCompilePredicateFuzzy(t *testing.T) {
	p, err := CompilePredicate("PatientName", "joh", true)
	if err != nil {
		t.Fatalf("ошибка компиляции: %v", err)
	}
	if len(p.Args) != 2 {
		t.Fatalf("ожидались 2 аргумента, получено %d: %v", len(p.Args), p.Args)
	}
	if p.Args[0] != "joh%" || p.Args[1] != "%^joh%" {
		t.Errorf("аргументы fuzzy: %v", p.Args)
	}
}

// TestCompilePredicateFuzzyIgnoredForNonName проверяет, что fuzzy
// не применяется к столбцам, не являющимся person-name.
func TestCompilePredicateFuzzyIgnoredForNonName(t *testing.T) {
	p, err := CompilePredicate("PatientID", "PAT001", true)
	if err != nil {
		t.Fatalf("ошибка компиляции: %v", err)
	}
	if p.SQL != "patient_id = ?" {
		t.Errorf("fuzzy не должен влиять на PatientID: %q", p.SQL)
	}
}

// TestCompilePredicateDateRange проверяет диапазоны дат с открытыми
// границами.
func TestCompilePredicateDateRange(t *testing.T) {
	p, _ := CompilePredicate("StudyDate", "20260101-20260131", false)
	if p.SQL != "study_date BETWEEN ? AND ?" {
		t.Errorf("закрытый диапазон: %q", p.SQL)
	}

	p, _ = CompilePredicate("StudyDate", "20260101-", false)
	if p.SQL != "study_date >= ?" || p.Args[0] != "20260101" {
		t.Errorf("открытая верхняя граница: %q %v", p.SQL, p.Args)
	}

	p, _ = CompilePredicate("StudyDate", "-20260131", false)
	if p.SQL != "study_date <= ?" || p.Args[0] != "20260131" {
		t.Errorf("открытая нижняя граница: %q %v", p.SQL, p.Args)
	}

	// Точная дата без дефиса — равенство
	p, _ = CompilePredicate("StudyDate", "20260815", false)
	if p.SQL != "study_date = ?" {
		t.Errorf("точная дата: %q", p.SQL)
	}
}

// TestIsControlParam проверяет распознавание управляющих параметров
// без учёта регистра.
func TestIsControlParam(t *testing.T) {
	for _, name := range []string{"limit", "OFFSET", "FuzzyMatching", "includefield"} {
		if !IsControlParam(name) {
			t.Errorf("%q должен быть управляющим параметром", name)
		}
	}
	if IsControlParam("PatientID") {
		t.Error("PatientID не является управляющим параметром")
	}
}
