// query.go — чтение журналов событий: последнее событие и сводка по архиву.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/johanherman/snpseq-archive-db/internal/domain/model"
	"github.com/johanherman/snpseq-archive-db/internal/repository"
)

// EventQueryService — сервис чтения событий. Только чтение, без транзакций.
type EventQueryService struct {
	archives repository.ArchiveRepository
	events   repository.EventRepository
	cache    *ArchiveCache
	logger   *slog.Logger
}

// NewEventQueryService создаёт сервис чтения событий.
func NewEventQueryService(
	archives repository.ArchiveRepository,
	events repository.EventRepository,
	cache *ArchiveCache,
	logger *slog.Logger,
) *EventQueryService {
	return &EventQueryService{
		archives: archives,
		events:   events,
		cache:    cache,
		logger:   logger.With(slog.String("component", "event_query")),
	}
}

// LatestEvent возвращает последнее событие kind.
// Пустой description — последнее событие среди всех архивов.
// Неизвестный архив или отсутствие событий — ErrNotFound.
func (s *EventQueryService) LatestEvent(ctx context.Context, kind model.EventKind, description string) (*model.EventRecord, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: неизвестный тип события %q", ErrValidation, kind)
	}

	var archiveID *int64
	if description = strings.TrimSpace(description); description != "" {
		a, err := s.resolveArchive(ctx, description)
		if err != nil {
			return nil, err
		}
		archiveID = &a.ID
	}

	rec, err := s.events.Latest(ctx, kind, archiveID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Debug("Событий не найдено",
				slog.String("kind", kind.String()),
				slog.String("description", description),
			)
			return nil, fmt.Errorf("%w: нет событий %s", ErrNotFound, kind)
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return rec, nil
}

// ArchiveStatus возвращает архив, количество и последние события каждого типа.
// Статус проверки вычисляется из журнала при каждом вызове.
func (s *EventQueryService) ArchiveStatus(ctx context.Context, description string) (*model.ArchiveStatus, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, fmt.Errorf("%w: поле 'description' обязательно", ErrValidation)
	}

	a, err := s.resolveArchive(ctx, description)
	if err != nil {
		return nil, err
	}

	status := &model.ArchiveStatus{
		Archive: a,
		Counts:  make(map[model.EventKind]int, len(model.EventKinds)),
		Latest:  make(map[model.EventKind]*model.EventRecord, len(model.EventKinds)),
	}
	for _, kind := range model.EventKinds {
		events, err := s.events.ListByArchive(ctx, kind, a.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		status.Counts[kind] = len(events)
		if len(events) > 0 {
			status.Latest[kind] = model.NewEventRecord(events[len(events)-1], a)
		}
	}
	return status, nil
}

// resolveArchive ищет архив сначала в кэше, затем в БД.
func (s *EventQueryService) resolveArchive(ctx context.Context, description string) (*model.Archive, error) {
	if a, ok := s.cache.Get(description); ok {
		return a, nil
	}

	a, err := s.archives.GetByDescription(ctx, description)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: архив %q", ErrNotFound, description)
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	s.cache.Set(a)
	return a, nil
}
