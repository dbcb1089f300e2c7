// handler.go — основной обработчик API журнала архивов.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/johanherman/snpseq-archive-db/internal/api/errors"
	"github.com/johanherman/snpseq-archive-db/internal/api/middleware"
	"github.com/johanherman/snpseq-archive-db/internal/domain/model"
	"github.com/johanherman/snpseq-archive-db/internal/service"
)

// maxBodyBytes — максимальный размер тела запроса.
const maxBodyBytes = 1 << 20

// EventRecorder — запись событий архива.
// Реализуется service.EventRecorder.
type EventRecorder interface {
	RecordEvent(ctx context.Context, kind model.EventKind, in service.EventInput) (*model.EventRecord, error)
}

// EventQuerier — чтение событий архива.
// Реализуется service.EventQueryService.
type EventQuerier interface {
	LatestEvent(ctx context.Context, kind model.EventKind, description string) (*model.EventRecord, error)
	ArchiveStatus(ctx context.Context, description string) (*model.ArchiveStatus, error)
}

// CandidatePicker — выбор архива для проверки.
// Реализуется service.CandidateSelector.
type CandidatePicker interface {
	PickUnverifiedCandidate(ctx context.Context, ageDays, marginDays int) (*model.Candidate, error)
}

// APIHandler — основной обработчик API.
type APIHandler struct {
	health   *HealthHandler
	recorder EventRecorder
	query    EventQuerier
	picker   CandidatePicker
	logger   *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	recorder EventRecorder,
	query EventQuerier,
	picker CandidatePicker,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:   health,
		recorder: recorder,
		query:    query,
		picker:   picker,
		logger:   logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeServiceError преобразует ошибку сервисного слоя в HTTP-ответ.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrNoCandidate):
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, service.ErrStoreUnavailable):
		apierrors.StoreUnavailable(w, "Хранилище событий недоступно")
	default:
		h.logger.Error("Необработанная ошибка",
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка")
	}
}
