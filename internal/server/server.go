// Пакет server — HTTP-сервер журнала архивов с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	"github.com/johanherman/snpseq-archive-db/internal/api/handlers"
	"github.com/johanherman/snpseq-archive-db/internal/config"
	"github.com/johanherman/snpseq-archive-db/internal/domain/model"
)

// APIPrefix — базовый путь API.
const APIPrefix = "/api/1.0"

// Server — HTTP-сервер журнала архивов.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
// middlewares — глобальные middleware (metrics, logging), добавляются в порядке переданного среза.
// auth — middleware аутентификации для защищённых маршрутов API (пустой — без аутентификации).
func New(
	cfg *config.Config,
	logger *slog.Logger,
	handler *handlers.APIHandler,
	middlewares []func(http.Handler) http.Handler,
	auth ...func(http.Handler) http.Handler,
) *Server {
	router := chi.NewRouter()
	for _, mw := range middlewares {
		router.Use(mw)
	}
	Mount(router, handler, auth...)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// Mount регистрирует все маршруты сервиса на router.
// Health, metrics, version и OpenAPI-документ — публичные;
// остальные маршруты API проходят через auth.
func Mount(router chi.Router, h *handlers.APIHandler, auth ...func(http.Handler) http.Handler) {
	router.Get("/health/live", h.HealthLive)
	router.Get("/health/ready", h.HealthReady)
	router.Get("/metrics", h.GetMetrics)

	router.Route(APIPrefix, func(api chi.Router) {
		api.Get("/version", h.Version)
		api.Get("/openapi.yaml", h.OpenAPI)

		api.Group(func(protected chi.Router) {
			protected.Use(auth...)

			for _, kind := range model.EventKinds {
				base := "/" + kind.String()
				protected.Post(base, h.RecordEvent(kind))
				protected.Get(base, h.LatestEvent(kind))
				protected.Get(base+"/{description}", h.LatestEvent(kind))
			}

			protected.Get("/archive/{description}", h.ArchiveStatus)
			protected.Get("/randomarchive", h.RandomArchive)
			protected.Post("/randomarchive", h.RandomArchive)
		})
	})
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
