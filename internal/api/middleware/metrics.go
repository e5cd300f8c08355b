// metrics.go — Prometheus HTTP метрики DICOM Emulator.
// Регистрирует метрики: de_http_requests_total, de_http_request_duration_seconds.
// Бизнес-метрики (de_stow_parts_total, de_sweep_runs_total и др.)
// регистрируются в соответствующих пакетах сервисного слоя.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "de_http_requests_total",
			Help: "Общее количество HTTP-запросов к DICOM Emulator",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "de_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к DICOM Emulator в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			// (заменяем UID-сегменты на {uid} для предотвращения кардинальности)
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath заменяет DICOM UID-сегменты пути на {uid} для
// предотвращения взрывного роста кардинальности метрик.
// /studies/1.2.840.../series/1.2.841... → /studies/{uid}/series/{uid}
func normalizePath(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if isUIDSegment(seg) {
			segments[i] = "{uid}"
		}
	}
	return strings.Join(segments, "/")
}

// isUIDSegment проверяет, является ли сегмент DICOM UID
// (цифры и точки, минимум одна точка).
func isUIDSegment(seg string) bool {
	if len(seg) < 3 || !strings.Contains(seg, ".") {
		return false
	}
	for _, c := range seg {
		if c != '.' && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
