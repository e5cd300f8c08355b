// handler.go — Handler собирает все DICOMweb-обработчики и строит
// дерево маршрутов chi.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arturkryukov/dicomemu/internal/service"
)

// Handler — единый обработчик DICOMweb API.
type Handler struct {
	ingest   *service.IngestService
	retrieve *service.RetrieveService
	search   *service.SearchService
	delete   *service.DeleteService
	feed     *service.ChangeFeedService
	health   *HealthHandler
}

// New создаёт единый обработчик для всех endpoints.
func New(
	ingest *service.IngestService,
	retrieve *service.RetrieveService,
	search *service.SearchService,
	del *service.DeleteService,
	feed *service.ChangeFeedService,
	health *HealthHandler,
) *Handler {
	return &Handler{
		ingest:   ingest,
		retrieve: retrieve,
		search:   search,
		delete:   del,
		feed:     feed,
		health:   health,
	}
}

// Routes регистрирует все маршруты DICOMweb API на роутере.
func (h *Handler) Routes(r chi.Router) {
	// STOW-RS
	r.Post("/studies", h.StoreInstances)
	r.Post("/studies/{studyUID}", h.StoreInstances)

	// QIDO-RS
	r.Get("/studies", h.SearchStudies)
	r.Get("/series", h.SearchAllSeries)
	r.Get("/instances", h.SearchAllInstances)
	r.Get("/studies/{studyUID}/series", h.SearchSeries)
	r.Get("/studies/{studyUID}/instances", h.SearchStudyInstances)
	r.Get("/studies/{studyUID}/series/{seriesUID}/instances", h.SearchInstances)

	// WADO-RS
	r.Get("/studies/{studyUID}", h.RetrieveStudy)
	r.Get("/studies/{studyUID}/metadata", h.RetrieveStudyMetadata)
	r.Get("/studies/{studyUID}/series/{seriesUID}", h.RetrieveSeries)
	r.Get("/studies/{studyUID}/series/{seriesUID}/metadata", h.RetrieveSeriesMetadata)
	r.Get("/studies/{studyUID}/series/{seriesUID}/instances/{sopUID}", h.RetrieveInstance)
	r.Get("/studies/{studyUID}/series/{seriesUID}/instances/{sopUID}/metadata", h.RetrieveInstanceMetadata)

	// Удаление
	r.Delete("/studies/{studyUID}", h.DeleteStudy)
	r.Delete("/studies/{studyUID}/series/{seriesUID}", h.DeleteSeries)
	r.Delete("/studies/{studyUID}/series/{seriesUID}/instances/{sopUID}", h.DeleteInstance)

	// Лента изменений
	r.Get("/changefeed", h.ChangeFeed)
	r.Get("/changefeed/latest", h.ChangeFeedLatest)

	// Служебные endpoints
	r.Get("/health/live", h.health.Live)
	r.Get("/health/ready", h.health.Ready)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
}

// writeJSON сериализует значение в тело ответа с указанным статусом.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSONBody(w, v)
}

// writeJSONBody пишет JSON после того, как заголовки уже отправлены.
func writeJSONBody(w http.ResponseWriter, v any) {
	_ = json.NewEncoder(w).Encode(v)
}
