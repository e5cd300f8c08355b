// json.go — кодирование датасета в канонический tag-JSON.
//
// Формат: объект с ключами из 8 hex-символов (GGGGEEEE), значение —
// {vr, Value?, InlineBinary?}. Приватные теги и pixel data исключаются.
package dicom

import (
	"encoding/base64"
	"strings"
)

// TagEntry — одно значение tag-JSON. Поле vr присутствует всегда;
// Value и InlineBinary — по категории VR и непустоте значения.
type TagEntry struct {
	VR           string `json:"vr"`
	Value        []any  `json:"Value,omitempty"`
	InlineBinary string `json:"InlineBinary,omitempty"`
}

// TagMap — канонический tag-JSON документ датасета.
type TagMap map[string]TagEntry

// ToJSON кодирует датасет в tag-JSON. Правила:
//   - PN → Value:[{Alphabetic:<raw>}] при непустом значении;
//   - строковые VR → Value:[<raw>] при непустом trimmed-значении,
//     иначе Value опускается, vr остаётся;
//   - числовые VR → Value:[n, ...] (массив даже для одного числа);
//   - SQ → Value:[<вложенный TagMap>, ...] рекурсивно;
//   - бинарные VR → InlineBinary: base64 байтов;
//   - pixel data и приватные теги не включаются никогда.
func ToJSON(ds *Dataset) TagMap {
	out := make(TagMap, len(ds.Elements))
	for i := range ds.Elements {
		el := &ds.Elements[i]
		if el.Tag == TagPixelData || el.Tag.IsPrivate() {
			continue
		}
		out[el.Tag.String()] = encodeEntry(el)
	}
	return out
}

// encodeEntry кодирует один элемент в TagEntry.
func encodeEntry(el *Element) TagEntry {
	entry := TagEntry{VR: el.VR}

	switch vrCategory(el.VR) {
	case vrSequence:
		for _, item := range el.Items {
			entry.Value = append(entry.Value, ToJSON(item))
		}
	case vrNumber:
		for _, n := range el.Numbers {
			entry.Value = append(entry.Value, n)
		}
	case vrString:
		if el.VR == "PN" {
			if v := joinedValue(el.Strings); v != "" {
				entry.Value = []any{map[string]string{"Alphabetic": v}}
			}
		} else if v := joinedValue(el.Strings); v != "" {
			entry.Value = []any{v}
		}
	default:
		if len(el.Bytes) > 0 {
			entry.InlineBinary = base64.StdEncoding.EncodeToString(el.Bytes)
		}
	}
	return entry
}

// joinedValue восстанавливает сырое строковое значение элемента
// (multiplicity через backslash) без паддинга. Пустая строка —
// значение отсутствует.
func joinedValue(parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	trimmed := make([]string, len(parts))
	for i, p := range parts {
		trimmed[i] = trimPadding(p)
	}
	v := strings.Join(trimmed, "\\")
	if strings.TrimSpace(v) == "" {
		return ""
	}
	return v
}
