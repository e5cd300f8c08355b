// stow.go — обработчик STOW-RS: POST /studies и POST /studies/{studyUID}.
package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/arturkryukov/dicomemu/internal/api/errors"
	"github.com/arturkryukov/dicomemu/internal/dicom"
	"github.com/arturkryukov/dicomemu/internal/domain/model"
	"github.com/arturkryukov/dicomemu/internal/multipart"
)

// StoreInstances — приём DICOM-экземпляров.
// Тело — multipart/related с частями application/dicom.
// Статус ответа зависит от исхода частей: 200 — все приняты,
// 202 — частичный успех или предупреждения, 409 — все отклонены.
func (h *Handler) StoreInstances(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "multipart/related" {
		apierrors.UnsupportedMediaType(w, "Ожидается Content-Type multipart/related")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		apierrors.ValidationError(w, "Ошибка чтения тела запроса")
		return
	}

	expectedStudyUID := chi.URLParam(r, "studyUID")

	result, err := h.ingest.Store(r.Context(), body, contentType, expectedStudyUID)
	if err != nil {
		if errors.Is(err, multipart.ErrNoBoundary) {
			apierrors.InvalidMultipart(w, "Content-Type не содержит параметр boundary")
			return
		}
		slog.Error("Ошибка обработки STOW-запроса", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка при сохранении экземпляров")
		return
	}

	writeDICOMJSON(w, result.StatusCode(), stowResponseBody(result, requestBaseURL(r)))
}

// stowResponseBody строит tag-JSON тело ответа STOW-RS:
// ReferencedSOPSequence для принятых частей, FailedSOPSequence —
// для отклонённых.
func stowResponseBody(result *model.StowResult, baseURL string) dicom.TagMap {
	body := dicom.TagMap{}

	if len(result.Stored) > 0 {
		items := make([]any, 0, len(result.Stored))
		for _, inst := range result.Stored {
			item := dicom.TagMap{
				"00081150": dicom.TagEntry{VR: "UI", Value: []any{inst.SOPClassUID}},
				"00081155": dicom.TagEntry{VR: "UI", Value: []any{inst.SOPInstanceUID}},
				"00081190": dicom.TagEntry{VR: "UR", Value: []any{fmt.Sprintf(
					"%s/studies/%s/series/%s/instances/%s",
					baseURL, inst.StudyInstanceUID, inst.SeriesInstanceUID, inst.SOPInstanceUID,
				)}},
			}
			if inst.Warning {
				item["00081196"] = dicom.TagEntry{VR: "US", Value: []any{model.WarningCoercion}}
			}
			items = append(items, item)
		}
		body["00081199"] = dicom.TagEntry{VR: "SQ", Value: items}
	}

	if len(result.Failed) > 0 {
		items := make([]any, 0, len(result.Failed))
		for _, inst := range result.Failed {
			item := dicom.TagMap{
				"00081197": dicom.TagEntry{VR: "US", Value: []any{inst.Reason}},
			}
			if inst.SOPClassUID != "" {
				item["00081150"] = dicom.TagEntry{VR: "UI", Value: []any{inst.SOPClassUID}}
			}
			if inst.SOPInstanceUID != "" {
				item["00081155"] = dicom.TagEntry{VR: "UI", Value: []any{inst.SOPInstanceUID}}
			}
			items = append(items, item)
		}
		body["00081198"] = dicom.TagEntry{VR: "SQ", Value: items}
	}

	return body
}

// requestBaseURL восстанавливает базовый URL сервиса из запроса.
func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// writeDICOMJSON сериализует tag-JSON ответ с медиатипом DICOMweb.
func writeDICOMJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/dicom+json")
	w.WriteHeader(statusCode)
	writeJSONBody(w, v)
}
