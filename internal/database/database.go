// Пакет database — PostgreSQL-хранилище журнала архивов:
// пул подключений pgxpool, схема archives + журналы событий (golang-migrate)
// и проверка готовности для /health/ready.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/johanherman/snpseq-archive-db/internal/config"
	"github.com/johanherman/snpseq-archive-db/internal/domain/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// applicationName — имя клиента в pg_stat_activity.
const applicationName = "archive-db"

// migrateLockTimeout — ожидание advisory lock, если миграции применяет другой экземпляр.
const migrateLockTimeout = 30 * time.Second

// Connect создаёт пул подключений к хранилищу журнала.
// Сессии работают в UTC: timestamp событий хранятся и сравниваются в UTC.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}
	poolCfg.ConnConfig.RuntimeParams["application_name"] = applicationName
	poolCfg.ConnConfig.RuntimeParams["timezone"] = "UTC"

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула подключений: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("хранилище журнала недоступно: %w", err)
	}

	logger.Info("Хранилище журнала архивов подключено",
		slog.String("host", cfg.DBHost),
		slog.Int("port", cfg.DBPort),
		slog.String("database", cfg.DBName),
		slog.Int("max_conns", int(poolCfg.MaxConns)),
	)

	return pool, nil
}

// Migrate приводит схему журнала (archives, uploads, verifications, removals)
// к последней версии из встроенных миграций.
func Migrate(cfg *config.Config, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ошибка создания источника миграций: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, cfg.MigrateURL())
	if err != nil {
		return fmt.Errorf("ошибка инициализации миграций: %w", err)
	}
	defer m.Close()
	m.LockTimeout = migrateLockTimeout

	before, _, _ := m.Version()

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Info("Схема журнала актуальна", slog.Uint64("version", uint64(before)))
		return nil
	case err != nil:
		return fmt.Errorf("ошибка применения миграций: %w", err)
	}

	after, dirty, _ := m.Version()
	logger.Info("Схема журнала обновлена",
		slog.Uint64("from_version", uint64(before)),
		slog.Uint64("to_version", uint64(after)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// journalTables возвращает таблицы, без которых журнал не работает.
func journalTables() []string {
	tables := []string{"archives"}
	for _, kind := range model.EventKinds {
		tables = append(tables, kind.Table())
	}
	return tables
}

// ReadinessChecker — проверка готовности хранилища для health endpoint:
// PostgreSQL отвечает и схема журнала применена.
// Реализует интерфейс handlers.ReadinessChecker.
type ReadinessChecker struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewReadinessChecker создаёт проверку готовности хранилища.
func NewReadinessChecker(pool *pgxpool.Pool) *ReadinessChecker {
	return &ReadinessChecker{pool: pool, timeout: 3 * time.Second}
}

// CheckReady возвращает статус ("ok", "fail") и сообщение.
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if err := c.pool.Ping(ctx); err != nil {
		return "fail", fmt.Sprintf("PostgreSQL недоступен: %v", err)
	}

	var missing []string
	for _, table := range journalTables() {
		var exists bool
		if err := c.pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, table).Scan(&exists); err != nil {
			return "fail", fmt.Sprintf("ошибка проверки схемы: %v", err)
		}
		if !exists {
			missing = append(missing, table)
		}
	}
	if len(missing) > 0 {
		return "fail", "схема журнала не применена, нет таблиц: " + strings.Join(missing, ", ")
	}

	stat := c.pool.Stat()
	return "ok", fmt.Sprintf("журнал доступен, соединений: %d/%d", stat.AcquiredConns(), stat.MaxConns())
}
