// write.go — кодирование датасета в бинарный DICOM (explicit VR
// little endian). Используется тестами и генерацией фикстур; сам
// пайплайн хранит полученные от клиента байты как есть.
package dicom

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"
)

// Encode сериализует датасет в бинарный DICOM с преамбулой и магией
// DICM, explicit VR little endian. Элементы пишутся в порядке среза.
func Encode(ds *Dataset) []byte {
	var buf bytes.Buffer
	buf.Write(make([]byte, 128))
	buf.WriteString("DICM")
	for i := range ds.Elements {
		writeElement(&buf, &ds.Elements[i])
	}
	return buf.Bytes()
}

// writeElement пишет один элемент в explicit LE.
func writeElement(buf *bytes.Buffer, el *Element) {
	value := encodeValue(el)
	// Выравнивание до чётной длины: пробел для строк, ноль для остального
	if len(value)%2 == 1 {
		pad := byte(0x00)
		if vrCategory(el.VR) == vrString && el.VR != "UI" {
			pad = ' '
		}
		value = append(value, pad)
	}

	writeUint16(buf, el.Tag.Group())
	writeUint16(buf, el.Tag.Element())
	buf.WriteString(el.VR)
	if longFormVR(el.VR) {
		buf.Write([]byte{0x00, 0x00})
		writeUint32(buf, uint32(len(value)))
	} else {
		writeUint16(buf, uint16(len(value)))
	}
	buf.Write(value)
}

// encodeValue сериализует значение элемента по категории VR.
func encodeValue(el *Element) []byte {
	switch vrCategory(el.VR) {
	case vrSequence:
		var buf bytes.Buffer
		for _, item := range el.Items {
			var body bytes.Buffer
			for i := range item.Elements {
				writeElement(&body, &item.Elements[i])
			}
			writeUint16(&buf, tagItem.Group())
			writeUint16(&buf, tagItem.Element())
			writeUint32(&buf, uint32(body.Len()))
			buf.Write(body.Bytes())
		}
		return buf.Bytes()
	case vrNumber:
		return encodeNumbers(el.VR, el.Numbers)
	case vrString:
		return []byte(strings.Join(el.Strings, "\\"))
	default:
		return el.Bytes
	}
}

// encodeNumbers сериализует массив чисел по размеру VR.
func encodeNumbers(vr string, numbers []float64) []byte {
	var buf bytes.Buffer
	for _, n := range numbers {
		switch vr {
		case "US":
			writeUint16(&buf, uint16(n))
		case "SS":
			writeUint16(&buf, uint16(int16(n)))
		case "UL":
			writeUint32(&buf, uint32(n))
		case "SL":
			writeUint32(&buf, uint32(int32(n)))
		case "FL":
			writeUint32(&buf, math.Float32bits(float32(n)))
		case "FD":
			writeUint64(&buf, math.Float64bits(n))
		case "UV":
			writeUint64(&buf, uint64(n))
		case "SV":
			writeUint64(&buf, uint64(int64(n)))
		}
	}
	return buf.Bytes()
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}
