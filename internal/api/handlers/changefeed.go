// changefeed.go — обработчики ленты изменений.
package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	apierrors "github.com/arturkryukov/dicomemu/internal/api/errors"
)

// ChangeFeed — GET /changefeed.
// Параметры: offset, limit, startTime, endTime (RFC 3339, включительно).
func (h *Handler) ChangeFeed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	offset, err := parseInt64Param(q.Get("offset"), 0)
	if err != nil {
		apierrors.ValidationError(w, "Некорректное значение параметра offset")
		return
	}
	limit, err := parseInt64Param(q.Get("limit"), 0)
	if err != nil {
		apierrors.ValidationError(w, "Некорректное значение параметра limit")
		return
	}

	startTime, err := parseTimeParam(q.Get("startTime"))
	if err != nil {
		apierrors.ValidationError(w, "Некорректное значение параметра startTime, ожидается RFC 3339")
		return
	}
	endTime, err := parseTimeParam(q.Get("endTime"))
	if err != nil {
		apierrors.ValidationError(w, "Некорректное значение параметра endTime, ожидается RFC 3339")
		return
	}

	entries, err := h.feed.List(r.Context(), offset, limit, startTime, endTime)
	if err != nil {
		slog.Error("Ошибка чтения ленты изменений", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка при чтении ленты изменений")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// ChangeFeedLatest — GET /changefeed/latest.
// Для пустой ленты возвращается сентинел с Sequence == 0.
func (h *Handler) ChangeFeedLatest(w http.ResponseWriter, r *http.Request) {
	entry, err := h.feed.Latest(r.Context())
	if err != nil {
		slog.Error("Ошибка чтения последней записи ленты", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка при чтении ленты изменений")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// parseInt64Param разбирает числовой параметр; пустая строка — значение
// по умолчанию.
func parseInt64Param(raw string, defaultVal int64) (int64, error) {
	if raw == "" {
		return defaultVal, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

// parseTimeParam разбирает временной параметр RFC 3339; пустая строка — nil.
func parseTimeParam(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
