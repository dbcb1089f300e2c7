package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/johanherman/snpseq-archive-db/internal/config"
	"github.com/johanherman/snpseq-archive-db/internal/database"
	"github.com/johanherman/snpseq-archive-db/internal/domain/model"
)

// setupTestDB запускает PostgreSQL контейнер, применяет миграции.
// Возвращает pgxpool.Pool, закрываемый в t.Cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("archives_test"),
		postgres.WithUsername("archive"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	t.Setenv("AD_DB_HOST", host)
	t.Setenv("AD_DB_PORT", port.Port())
	t.Setenv("AD_DB_NAME", "archives_test")
	t.Setenv("AD_DB_USER", "archive")
	t.Setenv("AD_DB_PASSWORD", "test-password")
	t.Setenv("AD_DB_SSL_MODE", "disable")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

// day возвращает полночь UTC, отстоящую от ref на days дней назад.
func day(ref time.Time, days int) time.Time {
	return ref.AddDate(0, 0, -days)
}

// --- Тесты ArchiveRepository ---

func TestArchiveGetOrCreate(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewArchiveRepository(pool)

	a, created, err := repo.GetOrCreate(ctx, "desc-1", "/data/mm/runfolders/run1", "mm-xa-01")
	if err != nil {
		t.Fatalf("GetOrCreate() ошибка: %v", err)
	}
	if !created {
		t.Error("created = false для нового архива")
	}
	if a.ID == 0 || a.CreatedAt.IsZero() {
		t.Errorf("архив не заполнен: %+v", a)
	}

	// Повторный вызов с другими path/host возвращает исходный архив без изменений
	again, created, err := repo.GetOrCreate(ctx, "desc-1", "/other/path", "other-host")
	if err != nil {
		t.Fatalf("повторный GetOrCreate() ошибка: %v", err)
	}
	if created {
		t.Error("created = true для существующего архива")
	}
	if again.ID != a.ID {
		t.Errorf("ID = %d, хотели %d", again.ID, a.ID)
	}
	if again.Path != "/data/mm/runfolders/run1" || again.Host != "mm-xa-01" {
		t.Errorf("path/host изменены: %q/%q", again.Path, again.Host)
	}

	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count() ошибка: %v", err)
	}
	if count != 1 {
		t.Errorf("Count() = %d, хотели 1", count)
	}
}

func TestArchiveGetOrCreate_SamePathDifferentDescription(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewArchiveRepository(pool)

	a1, _, err := repo.GetOrCreate(ctx, "desc-a", "/data/run1", "host")
	if err != nil {
		t.Fatalf("GetOrCreate() ошибка: %v", err)
	}
	a2, _, err := repo.GetOrCreate(ctx, "desc-b", "/data/run1", "host")
	if err != nil {
		t.Fatalf("GetOrCreate() ошибка: %v", err)
	}
	if a1.ID == a2.ID {
		t.Error("архивы с разным description получили один ID")
	}
}

func TestArchiveGetOrCreate_Concurrent(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewArchiveRepository(pool)

	const workers = 8
	ids := make([]int64, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, _, err := repo.GetOrCreate(ctx, "concurrent", fmt.Sprintf("/data/run-%d", i), "host")
			errs[i] = err
			if err == nil {
				ids[i] = a.ID
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d: %v", i, err)
		}
		if ids[i] != ids[0] {
			t.Errorf("worker %d получил ID %d, хотели %d", i, ids[i], ids[0])
		}
	}

	count, _ := repo.Count(ctx)
	if count != 1 {
		t.Errorf("Count() = %d, хотели 1", count)
	}
}

func TestArchiveGetByDescription_NotFound(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewArchiveRepository(pool)

	_, err := repo.GetByDescription(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидали ErrNotFound, получили: %v", err)
	}
}

// --- Тесты EventRepository ---

func TestEventAppendAndLatest(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	archives := NewArchiveRepository(pool)
	events := NewEventRepository(pool)

	a, _, _ := archives.GetOrCreate(ctx, "desc-1", "/data/run1", "host1")
	b, _, _ := archives.GetOrCreate(ctx, "desc-2", "/data/run2", "host2")

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if _, err := events.Append(ctx, model.EventUpload, a.ID, base); err != nil {
		t.Fatalf("Append() ошибка: %v", err)
	}
	if _, err := events.Append(ctx, model.EventUpload, b.ID, base.Add(time.Hour)); err != nil {
		t.Fatalf("Append() ошибка: %v", err)
	}
	// Более позднее по id, но более раннее по времени событие не становится последним
	if _, err := events.Append(ctx, model.EventUpload, a.ID, base.Add(-time.Hour)); err != nil {
		t.Fatalf("Append() ошибка: %v", err)
	}

	latest, err := events.Latest(ctx, model.EventUpload, nil)
	if err != nil {
		t.Fatalf("Latest() ошибка: %v", err)
	}
	if latest.Description != "desc-2" || !latest.Timestamp.Equal(base.Add(time.Hour)) {
		t.Errorf("Latest() = %+v", latest)
	}

	latestA, err := events.Latest(ctx, model.EventUpload, &a.ID)
	if err != nil {
		t.Fatalf("Latest(a) ошибка: %v", err)
	}
	if !latestA.Timestamp.Equal(base) || latestA.Path != "/data/run1" || latestA.Host != "host1" {
		t.Errorf("Latest(a) = %+v", latestA)
	}

	history, err := events.ListByArchive(ctx, model.EventUpload, a.ID)
	if err != nil {
		t.Fatalf("ListByArchive() ошибка: %v", err)
	}
	if len(history) != 2 || !history[0].Timestamp.Before(history[1].Timestamp) {
		t.Errorf("ListByArchive() = %d событий, порядок нарушен", len(history))
	}
}

func TestEventLatest_TieBrokenByID(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	archives := NewArchiveRepository(pool)
	events := NewEventRepository(pool)

	a, _, _ := archives.GetOrCreate(ctx, "desc-a", "/data/a", "h")
	b, _, _ := archives.GetOrCreate(ctx, "desc-b", "/data/b", "h")

	ts := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	events.Append(ctx, model.EventRemoval, a.ID, ts) //nolint:errcheck
	second, err := events.Append(ctx, model.EventRemoval, b.ID, ts)
	if err != nil {
		t.Fatalf("Append() ошибка: %v", err)
	}

	latest, err := events.Latest(ctx, model.EventRemoval, nil)
	if err != nil {
		t.Fatalf("Latest() ошибка: %v", err)
	}
	if latest.ID != second.ID {
		t.Errorf("Latest().ID = %d, хотели %d", latest.ID, second.ID)
	}
}

func TestEventLatest_Empty(t *testing.T) {
	pool := setupTestDB(t)
	events := NewEventRepository(pool)

	for _, kind := range model.EventKinds {
		if _, err := events.Latest(context.Background(), kind, nil); !errors.Is(err, ErrNotFound) {
			t.Errorf("Latest(%s) на пустой БД: %v, хотели ErrNotFound", kind, err)
		}
	}
}

func TestEventAppend_UnknownKind(t *testing.T) {
	pool := setupTestDB(t)
	events := NewEventRepository(pool)

	if _, err := events.Append(context.Background(), model.EventKind("drop"), 1, time.Now()); err == nil {
		t.Error("Append() с неизвестным типом не вернул ошибку")
	}
}

func TestUnverifiedUploads(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	archives := NewArchiveRepository(pool)
	events := NewEventRepository(pool)

	now := time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)
	upload := func(desc string, daysAgo int) *model.Archive {
		t.Helper()
		a, _, err := archives.GetOrCreate(ctx, desc, "/data/"+desc, "host")
		if err != nil {
			t.Fatalf("GetOrCreate(%s): %v", desc, err)
		}
		if _, err := events.Append(ctx, model.EventUpload, a.ID, day(now, daysAgo)); err != nil {
			t.Fatalf("Append(%s): %v", desc, err)
		}
		return a
	}

	upload("too-old", 10)
	in3 := upload("in-3", 3)
	in4 := upload("in-4", 4)
	verified := upload("verified", 4)
	upload("too-new", 0)
	if _, err := events.Append(ctx, model.EventVerification, verified.ID, day(now, 1)); err != nil {
		t.Fatalf("Append(verification): %v", err)
	}
	// Вторая загрузка in-4 в окне не даёт дубликата
	if _, err := events.Append(ctx, model.EventUpload, in4.ID, day(now, 2)); err != nil {
		t.Fatalf("Append(upload): %v", err)
	}

	// age=5, margin=1 → окно [now-6d, now-1d]
	got, err := events.UnverifiedUploads(ctx, day(now, 6), day(now, 1))
	if err != nil {
		t.Fatalf("UnverifiedUploads() ошибка: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("UnverifiedUploads() = %d кандидатов, хотели 2", len(got))
	}
	if got[0].ArchiveID != in3.ID || got[1].ArchiveID != in4.ID {
		t.Errorf("кандидаты = [%d %d], хотели [%d %d]", got[0].ArchiveID, got[1].ArchiveID, in3.ID, in4.ID)
	}
	if !got[1].UploadedAt.Equal(day(now, 4)) {
		t.Errorf("UploadedAt = %v, хотели самую раннюю загрузку в окне %v", got[1].UploadedAt, day(now, 4))
	}
	if got[0].Name() != "in-3" {
		t.Errorf("Name() = %q, хотели in-3", got[0].Name())
	}
}

func TestUnverifiedUploads_BoundariesInclusive(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	archives := NewArchiveRepository(pool)
	events := NewEventRepository(pool)

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	for desc, ts := range map[string]time.Time{
		"at-start":     from,
		"at-end":       to,
		"before-start": from.Add(-time.Microsecond),
		"after-end":    to.Add(time.Microsecond),
	} {
		a, _, _ := archives.GetOrCreate(ctx, desc, "/data/"+desc, "h")
		if _, err := events.Append(ctx, model.EventUpload, a.ID, ts); err != nil {
			t.Fatalf("Append(%s): %v", desc, err)
		}
	}

	got, err := events.UnverifiedUploads(ctx, from, to)
	if err != nil {
		t.Fatalf("UnverifiedUploads() ошибка: %v", err)
	}
	names := map[string]bool{}
	for _, c := range got {
		names[c.Description] = true
	}
	if len(got) != 2 || !names["at-start"] || !names["at-end"] {
		t.Errorf("кандидаты = %v, хотели at-start и at-end", names)
	}
}

// --- Тесты TxRunner ---

func TestWithinTx_RollbackOnError(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	runner := NewTxRunner(pool)

	boom := errors.New("boom")
	err := runner.WithinTx(ctx, func(repos Repositories) error {
		a, _, err := repos.Archives.GetOrCreate(ctx, "rolled-back", "/data/x", "h")
		if err != nil {
			return err
		}
		if _, err := repos.Events.Append(ctx, model.EventUpload, a.ID, time.Now()); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithinTx() = %v, хотели boom", err)
	}

	if _, err := NewArchiveRepository(pool).GetByDescription(ctx, "rolled-back"); !errors.Is(err, ErrNotFound) {
		t.Errorf("архив сохранился после отката: %v", err)
	}
}

func TestRunInTx_Commit(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	runner := NewTxRunner(pool)

	err := runner.RunInTx(ctx, func(tx pgx.Tx) error {
		_, _, err := NewArchiveRepository(tx).GetOrCreate(ctx, "committed", "/data/y", "h")
		return err
	})
	if err != nil {
		t.Fatalf("RunInTx() ошибка: %v", err)
	}

	if _, err := NewArchiveRepository(pool).GetByDescription(ctx, "committed"); err != nil {
		t.Errorf("архив не найден после коммита: %v", err)
	}
}
