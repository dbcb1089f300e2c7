package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/johanherman/snpseq-archive-db/internal/domain/model"
)

// archiveColumns — список столбцов таблицы archives для SELECT-запросов.
const archiveColumns = `id, description, path, host, created_at`

// ArchiveRepository — интерфейс доступа к таблице archives.
type ArchiveRepository interface {
	// GetOrCreate возвращает архив по description, создавая его при отсутствии.
	// Существующий архив возвращается без изменений, даже если path/host отличаются.
	// created = true, если архив был создан этим вызовом.
	GetOrCreate(ctx context.Context, description, path, host string) (a *model.Archive, created bool, err error)
	// GetByDescription возвращает архив по description или ErrNotFound.
	GetByDescription(ctx context.Context, description string) (*model.Archive, error)
	// Count возвращает количество архивов.
	Count(ctx context.Context) (int, error)
}

// archiveRepo — реализация ArchiveRepository.
type archiveRepo struct {
	db DBTX
}

// NewArchiveRepository создаёт репозиторий архивов.
func NewArchiveRepository(db DBTX) ArchiveRepository {
	return &archiveRepo{db: db}
}

// GetOrCreate — атомарный get-or-create по уникальному description.
// INSERT ... ON CONFLICT DO NOTHING не создаёт дубликат при параллельной вставке;
// если строка не вставлена и не видна (параллельная транзакция откатилась),
// возвращается ErrConflict — вызывающий повторяет операцию.
func (r *archiveRepo) GetOrCreate(ctx context.Context, description, path, host string) (*model.Archive, bool, error) {
	insert := fmt.Sprintf(`
		INSERT INTO archives (description, path, host)
		VALUES ($1, $2, $3)
		ON CONFLICT (description) DO NOTHING
		RETURNING %s`, archiveColumns)

	a := &model.Archive{}
	err := r.db.QueryRow(ctx, insert, description, path, host).Scan(
		&a.ID, &a.Description, &a.Path, &a.Host, &a.CreatedAt,
	)
	if err == nil {
		return a, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		if isUniqueViolation(err) {
			return nil, false, fmt.Errorf("%w: архив %q", ErrConflict, description)
		}
		return nil, false, fmt.Errorf("ошибка создания архива: %w", err)
	}

	existing, err := r.GetByDescription(ctx, description)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, false, fmt.Errorf("%w: архив %q не виден после конфликта вставки", ErrConflict, description)
		}
		return nil, false, err
	}
	return existing, false, nil
}

func (r *archiveRepo) GetByDescription(ctx context.Context, description string) (*model.Archive, error) {
	query := fmt.Sprintf(`SELECT %s FROM archives WHERE description = $1`, archiveColumns)

	a := &model.Archive{}
	err := r.db.QueryRow(ctx, query, description).Scan(
		&a.ID, &a.Description, &a.Path, &a.Host, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения архива: %w", err)
	}
	return a, nil
}

func (r *archiveRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM archives`).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта архивов: %w", err)
	}
	return count, nil
}
