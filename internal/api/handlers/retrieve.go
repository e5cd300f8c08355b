// retrieve.go — обработчики WADO-RS: бинарное получение экземпляров
// и получение метаданных на уровне исследования, серии и экземпляра.
package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/arturkryukov/dicomemu/internal/api/errors"
	"github.com/arturkryukov/dicomemu/internal/service"
)

// --- Бинарное получение ---

// RetrieveStudy — GET /studies/{studyUID}.
func (h *Handler) RetrieveStudy(w http.ResponseWriter, r *http.Request) {
	h.retrieveBinary(w, r, chi.URLParam(r, "studyUID"), "", "")
}

// RetrieveSeries — GET /studies/{studyUID}/series/{seriesUID}.
func (h *Handler) RetrieveSeries(w http.ResponseWriter, r *http.Request) {
	h.retrieveBinary(w, r, chi.URLParam(r, "studyUID"), chi.URLParam(r, "seriesUID"), "")
}

// RetrieveInstance — GET .../instances/{sopUID}.
func (h *Handler) RetrieveInstance(w http.ResponseWriter, r *http.Request) {
	h.retrieveBinary(w, r,
		chi.URLParam(r, "studyUID"), chi.URLParam(r, "seriesUID"), chi.URLParam(r, "sopUID"))
}

// retrieveBinary отдаёт multipart/related тело с файлами экземпляров.
// Переговоры Accept выполняются до разрешения идентификаторов:
// неподдерживаемый Accept — 406 независимо от существования данных.
func (h *Handler) retrieveBinary(w http.ResponseWriter, r *http.Request, studyUID, seriesUID, sopUID string) {
	if !acceptsBinary(r.Header.Get("Accept")) {
		apierrors.NotAcceptable(w, "Поддерживается только multipart/related; type=\"application/dicom\"")
		return
	}

	body, boundary, err := h.retrieve.Binary(r.Context(), studyUID, seriesUID, sopUID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Экземпляры не найдены")
			return
		}
		slog.Error("Ошибка получения экземпляров", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка при чтении экземпляров")
		return
	}

	w.Header().Set("Content-Type", fmt.Sprintf(
		`multipart/related; type="application/dicom"; boundary=%s`, boundary))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// --- Метаданные ---

// RetrieveStudyMetadata — GET /studies/{studyUID}/metadata.
func (h *Handler) RetrieveStudyMetadata(w http.ResponseWriter, r *http.Request) {
	h.retrieveMetadata(w, r, chi.URLParam(r, "studyUID"), "", "")
}

// RetrieveSeriesMetadata — GET .../series/{seriesUID}/metadata.
func (h *Handler) RetrieveSeriesMetadata(w http.ResponseWriter, r *http.Request) {
	h.retrieveMetadata(w, r, chi.URLParam(r, "studyUID"), chi.URLParam(r, "seriesUID"), "")
}

// RetrieveInstanceMetadata — GET .../instances/{sopUID}/metadata.
func (h *Handler) RetrieveInstanceMetadata(w http.ResponseWriter, r *http.Request) {
	h.retrieveMetadata(w, r,
		chi.URLParam(r, "studyUID"), chi.URLParam(r, "seriesUID"), chi.URLParam(r, "sopUID"))
}

// retrieveMetadata отдаёт массив tag-JSON документов.
func (h *Handler) retrieveMetadata(w http.ResponseWriter, r *http.Request, studyUID, seriesUID, sopUID string) {
	if !acceptsJSON(r.Header.Get("Accept")) {
		apierrors.NotAcceptable(w, "Поддерживается только application/dicom+json")
		return
	}

	docs, err := h.retrieve.Metadata(r.Context(), studyUID, seriesUID, sopUID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Экземпляры не найдены")
			return
		}
		slog.Error("Ошибка получения метаданных", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка при чтении метаданных")
		return
	}

	writeDICOMJSON(w, http.StatusOK, docs)
}

// acceptsBinary проверяет заголовок Accept для бинарного получения.
// Допустимы: отсутствие заголовка, */*, multipart/related.
func acceptsBinary(accept string) bool {
	if accept == "" {
		return true
	}
	for _, part := range strings.Split(accept, ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if mediaType == "*/*" || mediaType == "multipart/related" {
			return true
		}
	}
	return false
}

// acceptsJSON проверяет заголовок Accept для JSON-ответов.
// Допустимы: отсутствие заголовка, */*, application/dicom+json,
// application/json.
func acceptsJSON(accept string) bool {
	if accept == "" {
		return true
	}
	for _, part := range strings.Split(accept, ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		switch mediaType {
		case "*/*", "application/dicom+json", "application/json":
			return true
		}
	}
	return false
}
