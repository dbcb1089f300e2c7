package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/johanherman/snpseq-archive-db/internal/domain/model"
)

// EventRepository — интерфейс доступа к журналам событий (uploads, verifications, removals).
// Имя таблицы выбирается только из model.EventKind.Table(), пользовательский ввод в SQL не попадает.
type EventRepository interface {
	// Append добавляет событие kind для архива с заданным временем.
	Append(ctx context.Context, kind model.EventKind, archiveID int64, ts time.Time) (*model.Event, error)
	// Latest возвращает последнее событие kind (по timestamp, затем по id).
	// Если archiveID != nil — только среди событий этого архива.
	// Возвращает ErrNotFound, если событий нет.
	Latest(ctx context.Context, kind model.EventKind, archiveID *int64) (*model.EventRecord, error)
	// ListByArchive возвращает все события kind архива в порядке (timestamp, id).
	ListByArchive(ctx context.Context, kind model.EventKind, archiveID int64) ([]*model.Event, error)
	// UnverifiedUploads возвращает архивы, у которых есть загрузка в [from, to]
	// и нет ни одной проверки. Одна строка на архив, порядок — по id архива.
	UnverifiedUploads(ctx context.Context, from, to time.Time) ([]*model.Candidate, error)
}

// eventRepo — реализация EventRepository.
type eventRepo struct {
	db DBTX
}

// NewEventRepository создаёт репозиторий событий.
func NewEventRepository(db DBTX) EventRepository {
	return &eventRepo{db: db}
}

// tableFor возвращает имя таблицы журнала или ошибку для неизвестного типа.
func tableFor(kind model.EventKind) (string, error) {
	table := kind.Table()
	if table == "" {
		return "", fmt.Errorf("неизвестный тип события %q", kind)
	}
	return table, nil
}

func (r *eventRepo) Append(ctx context.Context, kind model.EventKind, archiveID int64, ts time.Time) (*model.Event, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (archive_id, timestamp)
		VALUES ($1, $2)
		RETURNING id, archive_id, timestamp`, table)

	e := &model.Event{Kind: kind}
	err = r.db.QueryRow(ctx, query, archiveID, ts.UTC()).Scan(&e.ID, &e.ArchiveID, &e.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("ошибка записи события %s: %w", kind, err)
	}
	e.Timestamp = e.Timestamp.UTC()
	return e, nil
}

func (r *eventRepo) Latest(ctx context.Context, kind model.EventKind, archiveID *int64) (*model.EventRecord, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT e.id, e.timestamp, a.id, a.description, a.path, a.host
		FROM %s e
		JOIN archives a ON a.id = e.archive_id`, table)
	var args []any
	if archiveID != nil {
		query += ` WHERE e.archive_id = $1`
		args = append(args, *archiveID)
	}
	query += ` ORDER BY e.timestamp DESC, e.id DESC LIMIT 1`

	rec := &model.EventRecord{Kind: kind}
	err = r.db.QueryRow(ctx, query, args...).Scan(
		&rec.ID, &rec.Timestamp, &rec.ArchiveID, &rec.Description, &rec.Path, &rec.Host,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения последнего события %s: %w", kind, err)
	}
	rec.Timestamp = rec.Timestamp.UTC()
	return rec, nil
}

func (r *eventRepo) ListByArchive(ctx context.Context, kind model.EventKind, archiveID int64) ([]*model.Event, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT id, archive_id, timestamp
		FROM %s
		WHERE archive_id = $1
		ORDER BY timestamp, id`, table)

	rows, err := r.db.Query(ctx, query, archiveID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения событий %s: %w", kind, err)
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		e := &model.Event{Kind: kind}
		if err := rows.Scan(&e.ID, &e.ArchiveID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("ошибка сканирования события: %w", err)
		}
		e.Timestamp = e.Timestamp.UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации событий: %w", err)
	}
	return events, nil
}

// UnverifiedUploads — кандидаты на проверку. Для архива с несколькими
// загрузками в окне возвращается самая ранняя из них.
func (r *eventRepo) UnverifiedUploads(ctx context.Context, from, to time.Time) ([]*model.Candidate, error) {
	query := `
		SELECT a.id, a.description, a.path, a.host, MIN(u.timestamp)
		FROM uploads u
		JOIN archives a ON a.id = u.archive_id
		WHERE u.timestamp >= $1 AND u.timestamp <= $2
		  AND NOT EXISTS (
		      SELECT 1 FROM verifications v WHERE v.archive_id = u.archive_id
		  )
		GROUP BY a.id, a.description, a.path, a.host
		ORDER BY a.id`

	rows, err := r.db.Query(ctx, query, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска непроверенных архивов: %w", err)
	}
	defer rows.Close()

	var candidates []*model.Candidate
	for rows.Next() {
		c := &model.Candidate{}
		if err := rows.Scan(&c.ArchiveID, &c.Description, &c.Path, &c.Host, &c.UploadedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования кандидата: %w", err)
		}
		c.UploadedAt = c.UploadedAt.UTC()
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации кандидатов: %w", err)
	}
	return candidates, nil
}
