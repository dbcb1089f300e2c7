// events.go — обработчики событий архива:
// POST /api/1.0/{upload,verification,removal} — запись события,
// GET /api/1.0/{upload,verification,removal}[/{description}] — последнее событие,
// GET /api/1.0/archive/{description} — сводка по архиву.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/johanherman/snpseq-archive-db/internal/api/errors"
	"github.com/johanherman/snpseq-archive-db/internal/domain/model"
	"github.com/johanherman/snpseq-archive-db/internal/service"
)

// eventRequest — тело запроса записи события.
// Указатели позволяют отличить отсутствующее поле от пустого.
type eventRequest struct {
	Description *string `json:"description"`
	Path        *string `json:"path"`
	Host        *string `json:"host"`
}

// eventResponse — событие в ответе API.
type eventResponse struct {
	ID          int64     `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
	Path        string    `json:"path"`
	Host        string    `json:"host"`
}

func toEventResponse(rec *model.EventRecord) *eventResponse {
	return &eventResponse{
		ID:          rec.ID,
		Timestamp:   rec.Timestamp.UTC(),
		Description: rec.Description,
		Path:        rec.Path,
		Host:        rec.Host,
	}
}

// RecordEvent возвращает обработчик POST для события kind.
// Ответ: {"status": "created", "<kind>": {...}}.
func (h *APIHandler) RecordEvent(kind model.EventKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req eventRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
			return
		}

		for _, f := range []struct {
			name  string
			value *string
		}{
			{"description", req.Description},
			{"path", req.Path},
			{"host", req.Host},
		} {
			if f.value == nil {
				apierrors.ValidationError(w, "Expecting '"+f.name+"' in the JSON body")
				return
			}
		}

		rec, err := h.recorder.RecordEvent(r.Context(), kind, service.EventInput{
			Description: *req.Description,
			Path:        *req.Path,
			Host:        *req.Host,
		})
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "created",
			kind.String(): toEventResponse(rec),
		})
	}
}

// LatestEvent возвращает обработчик GET последнего события kind.
// Без {description} — среди всех архивов. Ответ: {"<kind>": {...}}.
func (h *APIHandler) LatestEvent(kind model.EventKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		description := chi.URLParam(r, "description")

		rec, err := h.query.LatestEvent(r.Context(), kind, description)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			kind.String(): toEventResponse(rec),
		})
	}
}

// archiveResponse — архив в ответе API.
type archiveResponse struct {
	ID          int64     `json:"id"`
	Description string    `json:"description"`
	Path        string    `json:"path"`
	Host        string    `json:"host"`
	CreatedAt   time.Time `json:"created_at"`
}

// eventSummary — количество и последнее событие одного типа.
type eventSummary struct {
	Count  int            `json:"count"`
	Latest *eventResponse `json:"latest,omitempty"`
}

// archiveStatusResponse — ответ GET /archive/{description}.
type archiveStatusResponse struct {
	Archive  archiveResponse         `json:"archive"`
	Verified bool                    `json:"verified"`
	Events   map[string]eventSummary `json:"events"`
}

// ArchiveStatus — GET /api/1.0/archive/{description}.
func (h *APIHandler) ArchiveStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.query.ArchiveStatus(r.Context(), chi.URLParam(r, "description"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := archiveStatusResponse{
		Archive: archiveResponse{
			ID:          status.Archive.ID,
			Description: status.Archive.Description,
			Path:        status.Archive.Path,
			Host:        status.Archive.Host,
			CreatedAt:   status.Archive.CreatedAt.UTC(),
		},
		Verified: status.Verified(),
		Events:   make(map[string]eventSummary, len(model.EventKinds)),
	}
	for _, kind := range model.EventKinds {
		summary := eventSummary{Count: status.Counts[kind]}
		if latest, ok := status.Latest[kind]; ok {
			summary.Latest = toEventResponse(latest)
		}
		resp.Events[kind.String()] = summary
	}

	writeJSON(w, http.StatusOK, resp)
}
