// delete.go — обработчики удаления исследований, серий и экземпляров.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/arturkryukov/dicomemu/internal/api/errors"
	"github.com/arturkryukov/dicomemu/internal/service"
)

// DeleteStudy — DELETE /studies/{studyUID}.
func (h *Handler) DeleteStudy(w http.ResponseWriter, r *http.Request) {
	h.runDelete(w, r, chi.URLParam(r, "studyUID"), "", "")
}

// DeleteSeries — DELETE /studies/{studyUID}/series/{seriesUID}.
func (h *Handler) DeleteSeries(w http.ResponseWriter, r *http.Request) {
	h.runDelete(w, r, chi.URLParam(r, "studyUID"), chi.URLParam(r, "seriesUID"), "")
}

// DeleteInstance — DELETE .../instances/{sopUID}.
func (h *Handler) DeleteInstance(w http.ResponseWriter, r *http.Request) {
	h.runDelete(w, r,
		chi.URLParam(r, "studyUID"), chi.URLParam(r, "seriesUID"), chi.URLParam(r, "sopUID"))
}

// runDelete удаляет совпавшие экземпляры; 204 при успехе.
func (h *Handler) runDelete(w http.ResponseWriter, r *http.Request, studyUID, seriesUID, sopUID string) {
	if _, err := h.delete.Delete(r.Context(), studyUID, seriesUID, sopUID); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Экземпляры не найдены")
			return
		}
		slog.Error("Ошибка удаления", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка при удалении")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
