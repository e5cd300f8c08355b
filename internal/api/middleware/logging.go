// logging.go — slog-журнал DICOMweb-запросов.
//
// Каждая запись несёт ресурс DICOMweb (studies/series/instances/
// changefeed/system), определяемый по пути, помимо обычных полей
// HTTP-журнала. Служебные пути (/metrics, /health/*) журналируются
// только на уровне DEBUG, чтобы не зашумлять журнал периодическими
// опросами.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// statusRecorder перехватывает статус-код и объём записанного тела.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += int64(n)
	return n, err
}

// Unwrap отдаёт исходный ResponseWriter для http.ResponseController.
func (rec *statusRecorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

// RequestLogger возвращает middleware журнала запросов.
// Уровень записи следует исходу: INFO до 4xx, WARN на 4xx, ERROR на 5xx;
// служебные ресурсы понижаются до DEBUG.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			resource := resourceKind(r.URL.Path)
			level := slog.LevelInfo
			switch {
			case rec.status >= 500:
				level = slog.LevelError
			case rec.status >= 400:
				level = slog.LevelWarn
			case resource == "system":
				level = slog.LevelDebug
			}

			logger.LogAttrs(r.Context(), level, "DICOMweb запрос",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("resource", resource),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", rec.bytes),
				slog.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}

// resourceKind классифицирует путь запроса по ресурсу DICOMweb.
// Иерархические пути относятся к самому глубокому уровню:
// /studies/{x}/series/{y}/instances/... — это instances.
func resourceKind(path string) string {
	switch {
	case strings.Contains(path, "/instances"):
		return "instances"
	case strings.Contains(path, "/series"):
		return "series"
	case strings.HasPrefix(path, "/studies"):
		return "studies"
	case strings.HasPrefix(path, "/changefeed"):
		return "changefeed"
	default:
		return "system"
	}
}
