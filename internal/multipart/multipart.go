// Пакет multipart — кодек multipart/related для DICOMweb.
//
// Парсер намеренно нестрогий: STOW-клиенты собирают тела вручную и
// регулярно нарушают RFC 2387 (голый boundary, LF вместо CRLF, мусор
// до первого разделителя). Чанки без разделителя заголовков молча
// пропускаются; boundary, не встречающийся в теле, даёт ноль частей.
// Фатальна только полностью отсутствующая boundary-директива.
package multipart

import (
	"bytes"
	"errors"
	"strings"
)

// MediaTypeDICOM — media type части по умолчанию.
const MediaTypeDICOM = "application/dicom"

// ErrNoBoundary — в Content-Type отсутствует параметр boundary.
// Фатально для всего запроса: без boundary тело не делится на части.
var ErrNoBoundary = errors.New("в Content-Type отсутствует параметр boundary")

// Part — одна часть multipart/related тела.
type Part struct {
	// ContentType — заявленный media type части
	ContentType string
	// Data — полезная нагрузка части
	Data []byte
}

// Parse разбирает multipart/related тело по boundary из заголовка
// Content-Type. Возвращает ErrNoBoundary при отсутствии boundary;
// все остальные отклонения от формата деградируют до пропуска части.
func Parse(body []byte, contentType string) ([]Part, error) {
	boundary := extractBoundary(contentType)
	if boundary == "" {
		return nil, ErrNoBoundary
	}

	parts := []Part{}
	delim := []byte("--" + boundary)
	for _, chunk := range bytes.Split(body, delim) {
		// Завершающий маркер "--" и пролог до первого разделителя
		// частями не являются
		if p, ok := parseChunk(chunk); ok {
			parts = append(parts, p)
		}
	}
	return parts, nil
}

// Build собирает multipart/related тело: по каждой части
// --boundary, Content-Type, пустая строка, данные; в конце
// закрывающий --boundary--.
func Build(parts []Part, boundary string) []byte {
	var buf bytes.Buffer
	for _, p := range parts {
		ct := p.ContentType
		if ct == "" {
			ct = MediaTypeDICOM
		}
		buf.WriteString("--" + boundary + "\r\n")
		buf.WriteString("Content-Type: " + ct + "\r\n\r\n")
		buf.Write(p.Data)
		buf.WriteString("\r\n")
	}
	buf.WriteString("--" + boundary + "--\r\n")
	return buf.Bytes()
}

// extractBoundary достаёт значение параметра boundary из Content-Type.
// Поддерживает обе формы: boundary="token" и boundary=token.
func extractBoundary(contentType string) string {
	for _, param := range strings.Split(contentType, ";") {
		param = strings.TrimSpace(param)
		key, value, found := strings.Cut(param, "=")
		if !found || !strings.EqualFold(strings.TrimSpace(key), "boundary") {
			continue
		}
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"`)
		return value
	}
	return ""
}

// parseChunk разбирает один фрагмент между разделителями boundary.
// false — фрагмент не является частью (нет разделителя заголовков).
func parseChunk(chunk []byte) (Part, bool) {
	headers, data, ok := splitHeaders(chunk)
	if !ok {
		return Part{}, false
	}

	contentType := MediaTypeDICOM
	for _, line := range strings.Split(headers, "\n") {
		key, value, found := strings.Cut(line, ":")
		if found && strings.EqualFold(strings.TrimSpace(key), "Content-Type") {
			contentType = strings.TrimSpace(strings.TrimRight(value, "\r"))
		}
	}

	// Завершающий CRLF принадлежит следующему разделителю, не данным
	data = bytes.TrimSuffix(data, []byte("\r\n"))
	data = bytes.TrimSuffix(data, []byte("\n"))

	return Part{ContentType: contentType, Data: data}, true
}

// splitHeaders отделяет блок заголовков части от данных по первой
// пустой строке (\r\n\r\n или \n\n).
func splitHeaders(chunk []byte) (headers string, data []byte, ok bool) {
	if i := bytes.Index(chunk, []byte("\r\n\r\n")); i >= 0 {
		return string(chunk[:i]), chunk[i+4:], true
	}
	if i := bytes.Index(chunk, []byte("\n\n")); i >= 0 {
		return string(chunk[:i]), chunk[i+2:], true
	}
	return "", nil, false
}
