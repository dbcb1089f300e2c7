// Точка входа archive-db — журнал жизненного цикла архивов.
// Загружает конфигурацию, проверяет встроенный OpenAPI-контракт, применяет миграции,
// подключается к PostgreSQL, создаёт сервисный слой и API handlers,
// запускает topologymetrics и HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/johanherman/snpseq-archive-db/internal/api/handlers"
	"github.com/johanherman/snpseq-archive-db/internal/api/middleware"
	"github.com/johanherman/snpseq-archive-db/internal/api/openapi"
	"github.com/johanherman/snpseq-archive-db/internal/config"
	"github.com/johanherman/snpseq-archive-db/internal/database"
	"github.com/johanherman/snpseq-archive-db/internal/repository"
	"github.com/johanherman/snpseq-archive-db/internal/server"
	"github.com/johanherman/snpseq-archive-db/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("archive-db запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	ctx := context.Background()

	// 3. Проверка встроенного OpenAPI-контракта
	doc, err := openapi.Load(ctx)
	if err != nil {
		logger.Error("Некорректный OpenAPI-контракт", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Debug("OpenAPI-контракт загружен",
		slog.String("version", doc.Info.Version),
		slog.Int("paths", doc.Paths.Len()),
	)

	// 4. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 5. Подключение к PostgreSQL (pgxpool)
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 5.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 6. Repositories
	repos := repository.New(pool)
	txRunner := repository.NewTxRunner(pool)

	if count, countErr := repos.Archives.Count(ctx); countErr == nil {
		logger.Info("Журнал архивов открыт", slog.Int("archives", count))
	}

	// 7. Services
	archiveCache := service.NewArchiveCache(cfg.ArchiveCacheSize, cfg.ArchiveCacheTTL)
	recorder := service.NewEventRecorder(txRunner, archiveCache, cfg.ArchiveCreateRetries, logger)
	querySvc := service.NewEventQueryService(repos.Archives, repos.Events, archiveCache, logger)
	selector := service.NewCandidateSelector(repos.Events, cfg.MaxWindowDays, logger)

	// 8. Readiness checkers (PostgreSQL + JWKS при включённой аутентификации)
	var jwksChecker handlers.ReadinessChecker
	if cfg.AuthEnabled() {
		checker, checkerErr := middleware.NewJWKSReadinessChecker(cfg.JWTJWKSURL, cfg.JWTCACertPath, cfg.JWKSClientTimeout)
		if checkerErr != nil {
			logger.Error("Ошибка создания JWKS readiness checker", slog.String("error", checkerErr.Error()))
			os.Exit(1)
		}
		jwksChecker = checker
	}
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool), jwksChecker)

	// 9. API handler
	apiHandler := handlers.NewAPIHandler(healthHandler, recorder, querySvc, selector, logger)

	// 10. JWT middleware (только если задан AD_JWT_JWKS_URL)
	var auth []func(http.Handler) http.Handler
	if cfg.AuthEnabled() {
		jwtAuth, authErr := middleware.NewJWTAuth(
			cfg.JWTJWKSURL,
			cfg.JWTCACertPath,
			cfg.JWTIssuer,
			cfg.JWKSClientTimeout,
			cfg.JWKSRefreshInterval,
			cfg.JWTLeeway,
			logger,
		)
		if authErr != nil {
			logger.Error("Ошибка создания JWT middleware", slog.String("error", authErr.Error()))
			os.Exit(1)
		}
		auth = append(auth, jwtAuth.Middleware(), middleware.RequireScopes(cfg.JWTReadScope, cfg.JWTWriteScope))
		logger.Info("JWT middleware инициализирован",
			slog.String("jwks_url", cfg.JWTJWKSURL),
			slog.String("issuer", cfg.JWTIssuer),
		)
	} else {
		logger.Warn("AD_JWT_JWKS_URL не задан, API работает без аутентификации")
	}

	// 11. topologymetrics — мониторинг зависимостей (PostgreSQL + JWKS)
	var jwksURL string
	if cfg.AuthEnabled() {
		jwksURL = cfg.JWTJWKSURL
	}
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthParams{
		ServiceID:     "archive-db",
		Group:         cfg.DephealthGroup,
		DB:            pgDB,
		PostgresURL:   cfg.DatabaseURL(),
		JWKSURL:       jwksURL,
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
		dephealthSvc = nil
	}

	// 12. Создание и запуск HTTP-сервера
	middlewares := []func(http.Handler) http.Handler{
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	}
	srv := server.New(cfg, logger, apiHandler, middlewares, auth...)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 13. Остановка фоновых задач
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("archive-db остановлен")
}
