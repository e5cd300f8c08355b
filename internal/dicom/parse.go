// parse.go — best-effort декодер бинарного DICOM.
//
// Декодер терпим к контейнерным странностям: отсутствующая преамбула,
// неверно заявленный синтаксис передачи, усечённый хвост. Датасет без
// обязательных тегов — корректный результат парсинга; отсутствие тегов
// ловит валидация, а не парсер. Ошибка возвращается только когда из
// байтов не удалось извлечь ни одного элемента.
package dicom

import (
	"encoding/binary"
	"errors"
	"math"
	"strings"
)

// ErrNotDICOM — из байтов не удалось извлечь ни одного элемента.
var ErrNotDICOM = errors.New("данные не являются DICOM-датасетом")

// undefinedLength — маркер неопределённой длины значения.
const undefinedLength = 0xFFFFFFFF

// validVRCodes — множество известных двухсимвольных кодов VR.
// Используется эвристикой выбора explicit/implicit синтаксиса.
var validVRCodes = map[string]bool{
	"AE": true, "AS": true, "AT": true, "CS": true, "DA": true,
	"DS": true, "DT": true, "FL": true, "FD": true, "IS": true,
	"LO": true, "LT": true, "OB": true, "OD": true, "OF": true,
	"OL": true, "OV": true, "OW": true, "PN": true, "SH": true,
	"SL": true, "SQ": true, "SS": true, "ST": true, "SV": true,
	"TM": true, "UC": true, "UI": true, "UL": true, "UN": true,
	"UR": true, "US": true, "UT": true, "UV": true,
}

// reader — курсор по байтам датасета (little endian).
type reader struct {
	data []byte
	pos  int
}

func (r *reader) remaining() int { return len(r.data) - r.pos }

func (r *reader) uint16() (uint16, bool) {
	if r.remaining() < 2 {
		return 0, false
	}
	v := binary.LittleEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, true
}

func (r *reader) uint32() (uint32, bool) {
	if r.remaining() < 4 {
		return 0, false
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, true
}

func (r *reader) bytes(n int) ([]byte, bool) {
	if n < 0 || r.remaining() < n {
		return nil, false
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, true
}

// tag читает тег: группа и элемент, оба little endian.
func (r *reader) tag() (Tag, bool) {
	g, ok := r.uint16()
	if !ok {
		return 0, false
	}
	e, ok := r.uint16()
	if !ok {
		return 0, false
	}
	return Tag(uint32(g)<<16 | uint32(e)), true
}

// peekTag возвращает следующий тег без сдвига курсора.
func (r *reader) peekTag() (Tag, bool) {
	save := r.pos
	t, ok := r.tag()
	r.pos = save
	return t, ok
}

// Parse декодирует бинарный DICOM-объект в Dataset.
func Parse(data []byte) (*Dataset, error) {
	r := &reader{data: data}

	// Преамбула 128 байт + магия DICM; при отсутствии — парсим с нуля
	if len(data) >= 132 && string(data[128:132]) == "DICM" {
		r.pos = 132
	}

	ds := &Dataset{}

	// File Meta группа (0002,xxxx) — всегда explicit little endian
	for {
		t, ok := r.peekTag()
		if !ok || t.Group() != 0x0002 {
			break
		}
		save := r.pos
		el, ok := readElement(r, true)
		if !ok {
			r.pos = save
			break
		}
		ds.Elements = append(ds.Elements, el)
	}

	// Синтаксис основного датасета: заявленному TransferSyntaxUID не
	// доверяем вслепую — реальные файлы нередко врут. Эвристика по
	// первому элементу покрывает оба направления обмана.
	explicit := guessExplicit(r)

	for r.remaining() >= 8 {
		save := r.pos
		el, ok := readElement(r, explicit)
		if !ok {
			// Best effort: остаток не декодируется — останавливаемся
			r.pos = save
			break
		}
		ds.Elements = append(ds.Elements, el)
	}

	if len(ds.Elements) == 0 {
		return nil, ErrNotDICOM
	}
	return ds, nil
}

// guessExplicit определяет синтаксис по байтам 4-5 следующего элемента:
// валидный код VR — explicit, иначе — implicit.
func guessExplicit(r *reader) bool {
	if r.remaining() < 8 {
		return true
	}
	vr := string(r.data[r.pos+4 : r.pos+6])
	return validVRCodes[vr]
}

// readElement читает один элемент датасета.
// false — элемент не декодируется (усечение, мусор, делимитер).
func readElement(r *reader, explicit bool) (Element, bool) {
	tag, ok := r.tag()
	if !ok {
		return Element{}, false
	}
	// Делимитеры последовательностей на верхнем уровне — признак рассинхрона
	if tag == tagItemDelim || tag == tagSeqDelim || tag == tagItem {
		return Element{}, false
	}

	var vr string
	var length uint32
	if explicit {
		vrBytes, ok := r.bytes(2)
		if !ok {
			return Element{}, false
		}
		vr = string(vrBytes)
		if !validVRCodes[vr] {
			return Element{}, false
		}
		if longFormVR(vr) {
			if _, ok := r.bytes(2); !ok { // reserved
				return Element{}, false
			}
			if length, ok = r.uint32(); !ok {
				return Element{}, false
			}
		} else {
			l16, ok := r.uint16()
			if !ok {
				return Element{}, false
			}
			length = uint32(l16)
		}
	} else {
		vr = lookupImplicitVR(tag)
		if length, ok = r.uint32(); !ok {
			return Element{}, false
		}
	}

	// Последовательности: SQ, а также UN неопределённой длины
	// (implicit-вложение по стандарту)
	if vr == "SQ" || (vr == "UN" && length == undefinedLength) {
		items, ok := readItems(r, length, explicit && vr == "SQ")
		if !ok {
			return Element{}, false
		}
		return Element{Tag: tag, VR: "SQ", Items: items}, true
	}

	// Неопределённая длина вне SQ — инкапсулированные данные
	// (фрагментированный pixel data): склеиваем фрагменты
	if length == undefinedLength {
		payload, ok := readFragments(r)
		if !ok {
			return Element{}, false
		}
		return Element{Tag: tag, VR: vr, Bytes: payload}, true
	}

	value, ok := r.bytes(int(length))
	if !ok {
		return Element{}, false
	}
	return decodeValue(tag, vr, value), true
}

// readItems читает элементы SQ: items с определённой или неопределённой
// длиной, завершаемые Sequence Delimitation Item при undefined length.
func readItems(r *reader, length uint32, explicit bool) ([]*Dataset, bool) {
	var items []*Dataset

	if length != undefinedLength {
		sub, ok := r.bytes(int(length))
		if !ok {
			return nil, false
		}
		sr := &reader{data: sub}
		return readItemList(sr, explicit, false)
	}
	var ok bool
	items, ok = readItemList(r, explicit, true)
	return items, ok
}

// readItemList читает список item'ов. delimited — ожидается
// завершающий Sequence Delimitation Item.
func readItemList(r *reader, explicit, delimited bool) ([]*Dataset, bool) {
	var items []*Dataset
	for {
		if !delimited && r.remaining() < 8 {
			return items, true
		}
		tag, ok := r.tag()
		if !ok {
			return items, !delimited
		}
		length, ok := r.uint32()
		if !ok {
			return nil, false
		}
		if tag == tagSeqDelim {
			return items, true
		}
		if tag != tagItem {
			return nil, false
		}

		item := &Dataset{}
		if length == undefinedLength {
			// Элементы до Item Delimitation Item
			for {
				t, ok := r.peekTag()
				if !ok {
					return nil, false
				}
				if t == tagItemDelim {
					r.pos += 4
					if _, ok := r.uint32(); !ok {
						return nil, false
					}
					break
				}
				el, ok := readElement(r, explicit)
				if !ok {
					return nil, false
				}
				item.Elements = append(item.Elements, el)
			}
		} else {
			sub, ok := r.bytes(int(length))
			if !ok {
				return nil, false
			}
			sr := &reader{data: sub}
			for sr.remaining() >= 8 {
				el, ok := readElement(sr, explicit)
				if !ok {
					break
				}
				item.Elements = append(item.Elements, el)
			}
		}
		items = append(items, item)
	}
}

// readFragments склеивает item-фрагменты инкапсулированного значения
// до Sequence Delimitation Item.
func readFragments(r *reader) ([]byte, bool) {
	var payload []byte
	for {
		tag, ok := r.tag()
		if !ok {
			return nil, false
		}
		length, ok := r.uint32()
		if !ok {
			return nil, false
		}
		if tag == tagSeqDelim {
			return payload, true
		}
		if tag != tagItem || length == undefinedLength {
			return nil, false
		}
		frag, ok := r.bytes(int(length))
		if !ok {
			return nil, false
		}
		payload = append(payload, frag...)
	}
}

// decodeValue раскладывает сырые байты значения по носителю категории VR.
func decodeValue(tag Tag, vr string, value []byte) Element {
	el := Element{Tag: tag, VR: vr}
	switch vrCategory(vr) {
	case vrString:
		if len(value) > 0 {
			// Multiplicity: компоненты через backslash
			el.Strings = strings.Split(string(value), "\\")
		}
	case vrNumber:
		el.Numbers = decodeNumbers(vr, value)
	default:
		el.Bytes = value
	}
	return el
}

// decodeNumbers декодирует массив бинарных чисел по размеру VR.
func decodeNumbers(vr string, value []byte) []float64 {
	var out []float64
	switch vr {
	case "US":
		for i := 0; i+2 <= len(value); i += 2 {
			out = append(out, float64(binary.LittleEndian.Uint16(value[i:])))
		}
	case "SS":
		for i := 0; i+2 <= len(value); i += 2 {
			out = append(out, float64(int16(binary.LittleEndian.Uint16(value[i:]))))
		}
	case "UL":
		for i := 0; i+4 <= len(value); i += 4 {
			out = append(out, float64(binary.LittleEndian.Uint32(value[i:])))
		}
	case "SL":
		for i := 0; i+4 <= len(value); i += 4 {
			out = append(out, float64(int32(binary.LittleEndian.Uint32(value[i:]))))
		}
	case "FL":
		for i := 0; i+4 <= len(value); i += 4 {
			out = append(out, float64(math.Float32frombits(binary.LittleEndian.Uint32(value[i:]))))
		}
	case "FD":
		for i := 0; i+8 <= len(value); i += 8 {
			out = append(out, math.Float64frombits(binary.LittleEndian.Uint64(value[i:])))
		}
	case "UV":
		for i := 0; i+8 <= len(value); i += 8 {
			out = append(out, float64(binary.LittleEndian.Uint64(value[i:])))
		}
	case "SV":
		for i := 0; i+8 <= len(value); i += 8 {
			out = append(out, float64(int64(binary.LittleEndian.Uint64(value[i:]))))
		}
	}
	return out
}
