// search.go — обработчики QIDO-RS: поиск исследований, серий
// и экземпляров по параметрам запроса.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/arturkryukov/dicomemu/internal/api/errors"
	"github.com/arturkryukov/dicomemu/internal/repository"
	"github.com/arturkryukov/dicomemu/internal/service"
)

// SearchStudies — GET /studies.
func (h *Handler) SearchStudies(w http.ResponseWriter, r *http.Request) {
	h.runSearch(w, r, service.LevelStudy, "", "")
}

// SearchAllSeries — GET /series.
func (h *Handler) SearchAllSeries(w http.ResponseWriter, r *http.Request) {
	h.runSearch(w, r, service.LevelSeries, "", "")
}

// SearchAllInstances — GET /instances.
func (h *Handler) SearchAllInstances(w http.ResponseWriter, r *http.Request) {
	h.runSearch(w, r, service.LevelInstance, "", "")
}

// SearchSeries — GET /studies/{studyUID}/series.
func (h *Handler) SearchSeries(w http.ResponseWriter, r *http.Request) {
	h.runSearch(w, r, service.LevelSeries, chi.URLParam(r, "studyUID"), "")
}

// SearchStudyInstances — GET /studies/{studyUID}/instances.
func (h *Handler) SearchStudyInstances(w http.ResponseWriter, r *http.Request) {
	h.runSearch(w, r, service.LevelInstance, chi.URLParam(r, "studyUID"), "")
}

// SearchInstances — GET /studies/{studyUID}/series/{seriesUID}/instances.
func (h *Handler) SearchInstances(w http.ResponseWriter, r *http.Request) {
	h.runSearch(w, r, service.LevelInstance,
		chi.URLParam(r, "studyUID"), chi.URLParam(r, "seriesUID"))
}

// runSearch выполняет QIDO-запрос и сериализует результат.
// Пустой результат — 204 без тела, как предписывает DICOMweb.
func (h *Handler) runSearch(w http.ResponseWriter, r *http.Request, level service.QueryLevel, studyUID, seriesUID string) {
	if !acceptsJSON(r.Header.Get("Accept")) {
		apierrors.NotAcceptable(w, "Поддерживается только application/dicom+json")
		return
	}

	results, err := h.search.Search(r.Context(), level, studyUID, seriesUID, r.URL.Query())
	if err != nil {
		var unknownAttr *repository.UnknownAttributeError
		var invalidParam *service.InvalidParameterError
		switch {
		case errors.As(err, &unknownAttr):
			apierrors.ValidationError(w, unknownAttr.Error())
		case errors.As(err, &invalidParam):
			apierrors.ValidationError(w, invalidParam.Error())
		default:
			slog.Error("Ошибка выполнения поиска", slog.String("error", err.Error()))
			apierrors.InternalError(w, "Внутренняя ошибка при поиске")
		}
		return
	}

	if len(results) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeDICOMJSON(w, http.StatusOK, results)
}
