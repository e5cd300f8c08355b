// Пакет dicom — кодек бинарного формата DICOM.
// Декодирует датасет из байтов, кодирует в канонический tag-JSON,
// извлекает поисковые атрибуты и валидирует обязательные теги.
package dicom

import (
	"fmt"
	"strings"
)

// Tag — тег DICOM в виде GGGGEEEE (группа в старших 16 битах).
type Tag uint32

// Известные теги, используемые кодеком и пайплайнами.
const (
	TagFileMetaGroupLength Tag = 0x00020000
	TagTransferSyntaxUID   Tag = 0x00020010

	TagSOPClassUID            Tag = 0x00080016
	TagSOPInstanceUID         Tag = 0x00080018
	TagStudyDate              Tag = 0x00080020
	TagStudyTime              Tag = 0x00080030
	TagAccessionNumber        Tag = 0x00080050
	TagModality               Tag = 0x00080060
	TagReferringPhysicianName Tag = 0x00080090
	TagStudyDescription       Tag = 0x00081030
	TagSeriesDescription      Tag = 0x0008103E

	TagPatientName Tag = 0x00100010
	TagPatientID   Tag = 0x00100020

	TagStudyInstanceUID  Tag = 0x0020000D
	TagSeriesInstanceUID Tag = 0x0020000E
	TagSeriesNumber      Tag = 0x00200011
	TagInstanceNumber    Tag = 0x00200013

	TagPixelData Tag = 0x7FE00010

	tagItem      Tag = 0xFFFEE000
	tagItemDelim Tag = 0xFFFEE00D
	tagSeqDelim  Tag = 0xFFFEE0DD
)

// Group возвращает группу тега.
func (t Tag) Group() uint16 { return uint16(t >> 16) }

// Element возвращает элемент тега.
func (t Tag) Element() uint16 { return uint16(t) }

// String возвращает тег в виде 8 hex-символов верхнего регистра (GGGGEEEE).
func (t Tag) String() string { return fmt.Sprintf("%08X", uint32(t)) }

// IsPrivate сообщает, является ли тег приватным (нечётная группа).
func (t Tag) IsPrivate() bool { return t.Group()%2 == 1 }

// vrKind — категория VR. Явное разбиение вместо ad hoc проверок типов:
// каждая категория имеет собственное поле-носитель в Element.
type vrKind int

const (
	// vrString — текстовые VR (включая PN и UI), значение в Strings
	vrString vrKind = iota
	// vrNumber — бинарные числовые VR, значение в Numbers
	vrNumber
	// vrBinary — бинарные VR (OB/OD/OF/OL/OW/UN и т.п.), значение в Bytes
	vrBinary
	// vrSequence — SQ, значение в Items
	vrSequence
)

// vrCategory возвращает категорию для двухсимвольного кода VR.
// Неизвестные VR трактуются как бинарные.
func vrCategory(vr string) vrKind {
	switch vr {
	case "SQ":
		return vrSequence
	case "US", "UL", "SS", "SL", "FL", "FD", "UV", "SV":
		return vrNumber
	case "AE", "AS", "CS", "DA", "DS", "DT", "IS", "LO", "LT",
		"PN", "SH", "ST", "TM", "UC", "UI", "UR", "UT":
		return vrString
	default:
		// OB, OD, OF, OL, OV, OW, UN, AT и всё неопознанное
		return vrBinary
	}
}

// longFormVR сообщает, использует ли VR длинную форму длины
// (2 байта reserved + 4 байта длины) в explicit-синтаксисе.
func longFormVR(vr string) bool {
	switch vr {
	case "OB", "OD", "OF", "OL", "OV", "OW", "SQ", "UC", "UN", "UR", "UT", "SV", "UV":
		return true
	}
	return false
}

// Element — один элемент датасета. Носитель значения определяется
// категорией VR: Strings / Numbers / Bytes / Items.
type Element struct {
	Tag Tag
	// VR — двухсимвольный код Value Representation
	VR string
	// Strings — сырые строковые значения (multiplicity через '\')
	Strings []string
	// Numbers — числовые значения бинарных числовых VR
	Numbers []float64
	// Bytes — сырые байты бинарных VR
	Bytes []byte
	// Items — вложенные датасеты для SQ
	Items []*Dataset
}

// Dataset — упорядоченный набор элементов DICOM.
type Dataset struct {
	Elements []Element
}

// Get возвращает элемент по тегу или nil.
func (ds *Dataset) Get(tag Tag) *Element {
	for i := range ds.Elements {
		if ds.Elements[i].Tag == tag {
			return &ds.Elements[i]
		}
	}
	return nil
}

// StringValue возвращает первое строковое значение тега,
// очищенное от паддинга и пробелов. false — тег отсутствует,
// не строковый или пуст после обрезки.
func (ds *Dataset) StringValue(tag Tag) (string, bool) {
	el := ds.Get(tag)
	if el == nil || len(el.Strings) == 0 {
		return "", false
	}
	v := strings.TrimSpace(trimPadding(el.Strings[0]))
	if v == "" {
		return "", false
	}
	return v, true
}

// trimPadding убирает завершающие нулевые байты и пробелы
// (DICOM выравнивает строки до чётной длины).
func trimPadding(s string) string {
	return strings.TrimRight(s, "\x00 ")
}
