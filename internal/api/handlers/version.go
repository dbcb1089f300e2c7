// version.go — GET /api/1.0/version и GET /api/1.0/openapi.yaml.
package handlers

import (
	"net/http"

	"github.com/johanherman/snpseq-archive-db/internal/api/openapi"
	"github.com/johanherman/snpseq-archive-db/internal/config"
)

// Version — GET /api/1.0/version.
func (h *APIHandler) Version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": config.Version})
}

// OpenAPI — GET /api/1.0/openapi.yaml, встроенный контракт API.
func (h *APIHandler) OpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openapi.Raw())
}
