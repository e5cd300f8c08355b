// health.go — liveness и readiness probes.
package handlers

import (
	"database/sql"
	"net/http"
	"os"

	"github.com/arturkryukov/dicomemu/internal/config"
	"github.com/arturkryukov/dicomemu/internal/storage/filestore"
)

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	db    *sql.DB
	store *filestore.FileStore
}

// NewHealthHandler создаёт обработчик health endpoints.
func NewHealthHandler(db *sql.DB, store *filestore.FileStore) *HealthHandler {
	return &HealthHandler{db: db, store: store}
}

// healthResponse — тело ответа health endpoints.
type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Reason  string `json:"reason,omitempty"`
}

// Live — GET /health/live. Процесс жив.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: config.Version,
	})
}

// Ready — GET /health/ready. Готовность зависимостей: база доступна,
// директория данных существует.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status:  "unavailable",
			Version: config.Version,
			Reason:  "база данных недоступна",
		})
		return
	}
	if _, err := os.Stat(h.store.DataDir()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status:  "unavailable",
			Version: config.Version,
			Reason:  "директория данных недоступна",
		})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: config.Version,
	})
}
