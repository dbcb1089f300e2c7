// recorder.go — запись событий жизненного цикла архива (upload, verification, removal).
// Get-or-create архива и добавление события выполняются в одной транзакции;
// конфликты уникальности description повторяются с экспоненциальной задержкой.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/johanherman/snpseq-archive-db/internal/domain/model"
	"github.com/johanherman/snpseq-archive-db/internal/repository"
)

// Prometheus-метрики записи событий.
var (
	eventsRecordedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ad_events_recorded_total",
		Help: "Общее количество записанных событий по типам.",
	}, []string{"kind"})
	archiveCreateRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ad_archive_create_retries_total",
		Help: "Количество повторов get-or-create архива после конфликта уникальности.",
	})
)

// EventInput — данные архива из отчёта клиента.
type EventInput struct {
	Description string
	Path        string
	Host        string
}

// normalize обрезает пробелы по краям всех полей.
func (in EventInput) normalize() EventInput {
	return EventInput{
		Description: strings.TrimSpace(in.Description),
		Path:        strings.TrimSpace(in.Path),
		Host:        strings.TrimSpace(in.Host),
	}
}

// validate проверяет обязательные поля.
func (in EventInput) validate() error {
	switch {
	case in.Description == "":
		return fmt.Errorf("%w: поле 'description' обязательно", ErrValidation)
	case in.Path == "":
		return fmt.Errorf("%w: поле 'path' обязательно", ErrValidation)
	case in.Host == "":
		return fmt.Errorf("%w: поле 'host' обязательно", ErrValidation)
	}
	return nil
}

// EventRecorder — сервис записи событий архива.
type EventRecorder struct {
	tx      repository.Transactor
	cache   *ArchiveCache
	retries int
	now     func() time.Time
	logger  *slog.Logger
}

// NewEventRecorder создаёт сервис записи событий.
// retries — максимальное число повторов после конфликта уникальности (AD_ARCHIVE_CREATE_RETRIES).
// cache может быть nil — тогда архив всегда разрешается через БД.
func NewEventRecorder(
	tx repository.Transactor,
	cache *ArchiveCache,
	retries int,
	logger *slog.Logger,
) *EventRecorder {
	return NewEventRecorderWithClock(tx, cache, retries, time.Now, logger)
}

// NewEventRecorderWithClock создаёт сервис с указанными часами.
// Используется в тестах для детерминированных timestamp.
func NewEventRecorderWithClock(
	tx repository.Transactor,
	cache *ArchiveCache,
	retries int,
	now func() time.Time,
	logger *slog.Logger,
) *EventRecorder {
	return &EventRecorder{
		tx:      tx,
		cache:   cache,
		retries: retries,
		now:     now,
		logger:  logger.With(slog.String("component", "event_recorder")),
	}
}

// RecordUpload записывает событие загрузки архива на ленту.
func (r *EventRecorder) RecordUpload(ctx context.Context, in EventInput) (*model.EventRecord, error) {
	return r.RecordEvent(ctx, model.EventUpload, in)
}

// RecordVerification записывает событие успешной проверки архива.
func (r *EventRecorder) RecordVerification(ctx context.Context, in EventInput) (*model.EventRecord, error) {
	return r.RecordEvent(ctx, model.EventVerification, in)
}

// RecordRemoval записывает событие удаления архива с локального диска.
func (r *EventRecorder) RecordRemoval(ctx context.Context, in EventInput) (*model.EventRecord, error) {
	return r.RecordEvent(ctx, model.EventRemoval, in)
}

// RecordEvent разрешает архив по description (создавая при необходимости)
// и добавляет в его журнал событие kind с текущим временем.
// Возвращаемый снимок содержит path/host архива, а не запроса.
func (r *EventRecorder) RecordEvent(ctx context.Context, kind model.EventKind, in EventInput) (*model.EventRecord, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: неизвестный тип события %q", ErrValidation, kind)
	}
	in = in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}

	ts := r.now().UTC().Truncate(time.Microsecond)

	var (
		rec     *model.EventRecord
		archive *model.Archive
	)
	operation := func() error {
		err := r.tx.WithinTx(ctx, func(repos repository.Repositories) error {
			a, ok := r.cache.Get(in.Description)
			if !ok {
				var (
					created bool
					err     error
				)
				a, created, err = repos.Archives.GetOrCreate(ctx, in.Description, in.Path, in.Host)
				if err != nil {
					return err
				}
				if created {
					r.logger.Info("Архив зарегистрирован",
						slog.Int64("archive_id", a.ID),
						slog.String("description", a.Description),
						slog.String("path", a.Path),
						slog.String("host", a.Host),
					)
				}
			}

			e, err := repos.Events.Append(ctx, kind, a.ID, ts)
			if err != nil {
				return err
			}
			rec = model.NewEventRecord(e, a)
			archive = a
			return nil
		})
		if err != nil && !errors.Is(err, repository.ErrConflict) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.MaxInterval = 250 * time.Millisecond

	err := backoff.RetryNotify(operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(r.retries)), ctx),
		func(err error, wait time.Duration) {
			archiveCreateRetriesTotal.Inc()
			r.logger.Warn("Конфликт при регистрации архива, повтор",
				slog.String("description", in.Description),
				slog.Duration("wait", wait),
				slog.String("error", err.Error()),
			)
		},
	)
	if err != nil {
		r.logger.Error("Ошибка записи события",
			slog.String("kind", kind.String()),
			slog.String("description", in.Description),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: запись события %s: %v", ErrStoreUnavailable, kind, err)
	}

	r.cache.Set(archive)
	eventsRecordedTotal.WithLabelValues(kind.String()).Inc()

	r.logger.Debug("Событие записано",
		slog.String("kind", kind.String()),
		slog.Int64("event_id", rec.ID),
		slog.Int64("archive_id", rec.ArchiveID),
		slog.Time("timestamp", rec.Timestamp),
	)
	return rec, nil
}
