package dicom

import "testing"

// TestValidateRequired проверяет независимую проверку каждого
// обязательного тега.
func TestValidateRequired(t *testing.T) {
	full := testDataset()
	if errs := ValidateRequired(full); len(errs) != 0 {
		t.Errorf("полный датасет не должен давать ошибок: %v", errs)
	}

	// Без SeriesInstanceUID и SOPClassUID
	partial := &Dataset{Elements: []Element{
		{Tag: TagStudyInstanceUID, VR: "UI", Strings: []string{"1.2.3"}},
		{Tag: TagSOPInstanceUID, VR: "UI", Strings: []string{"1.2.3.4.5"}},
	}}
	errs := ValidateRequired(partial)
	if len(errs) != 2 {
		t.Fatalf("ожидались 2 ошибки, получено %d: %v", len(errs), errs)
	}
}

// TestValidateUID проверяет синтаксическую валидацию UID.
func TestValidateUID(t *testing.T) {
	cases := []struct {
		uid  string
		want bool
	}{
		{"1.2.840.10008.1.2", true},
		{"1", true},
		{"", false},
		{"1.2.abc", false},
		{"../../../etc/passwd", false},
		{"1.2 .3", false},
		{string(make([]byte, 65)), false},
	}
	for _, c := range cases {
		if got := ValidateUID(c.uid); got != c.want {
			t.Errorf("ValidateUID(%q): ожидалось %v, получено %v", c.uid, c.want, got)
		}
	}
}

// TestExtractSearchable проверяет извлечение поисковых атрибутов.
func TestExtractSearchable(t *testing.T) {
	s := ExtractSearchable(testDataset())

	if s.PatientID == nil || *s.PatientID != "PAT001" {
		t.Errorf("PatientID извлечён неверно: %v", s.PatientID)
	}
	if s.Modality == nil || *s.Modality != "CT" {
		t.Errorf("Modality извлечена неверно: %v", s.Modality)
	}
	if s.InstanceNumber == nil || *s.InstanceNumber != 7 {
		t.Errorf("InstanceNumber извлечён неверно: %v", s.InstanceNumber)
	}
	if s.SeriesNumber != nil {
		t.Errorf("отсутствующий SeriesNumber должен быть nil: %v", *s.SeriesNumber)
	}
}

// TestExtractSearchableNonNumeric проверяет, что нечисловой
// InstanceNumber даёт nil, а не ошибку.
func TestExtractSearchableNonNumeric(t *testing.T) {
	ds := &Dataset{Elements: []Element{
		{Tag: TagInstanceNumber, VR: "IS", Strings: []string{"abc"}},
	}}
	if got := ExtractSearchable(ds).InstanceNumber; got != nil {
		t.Errorf("нечисловое значение должно давать nil, получено %v", *got)
	}
}
