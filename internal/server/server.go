// Пакет server — HTTP-сервер Submission Module с graceful shutdown.
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

	"github.com/bigkaa/goartstore/submission-module/internal/api/handlers"
	"github.com/bigkaa/goartstore/submission-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/submission-module/internal/config"
)

// Server — HTTP-сервер Submission Module.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// Options — необязательные части маршрутизации.
type Options struct {
	// Auth — JWT middleware (nil — аутентификация выключена).
	Auth func(http.Handler) http.Handler
	// EventsScope — scope, которым защищён POST /events/commit (при включённой аутентификации).
	EventsScope string
	// Middlewares — общие middleware (request id, metrics, logging) в порядке применения.
	Middlewares []func(http.Handler) http.Handler
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, handler *handlers.APIHandler, opts Options) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(handler, opts),
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

// NewRouter объявляет маршруты API.
// Health endpoints и /metrics исключены из аутентификации.
func NewRouter(h *handlers.APIHandler, opts Options) http.Handler {
	router := chi.NewRouter()
	for _, mw := range opts.Middlewares {
		router.Use(mw)
	}

	router.Get("/health/live", h.HealthLive)
	router.Get("/health/ready", h.HealthReady)
	router.Get("/metrics", h.GetMetrics)

	router.Group(func(r chi.Router) {
		if opts.Auth != nil {
			r.Use(opts.Auth)
		}

		r.Post("/submission/category/{categoryId}/data", h.UploadData)
		r.Put("/submission/category/{categoryId}/data", h.EditData)
		r.Post("/submission/category/{categoryId}/commit/{submissionId}", h.CommitSubmission)
		r.Get("/submission/{submissionId}", h.GetSubmission)
		r.Get("/data/category/{categoryId}/id/{systemId}", h.GetSubmittedData)

		r.Group(func(r chi.Router) {
			if opts.Auth != nil && opts.EventsScope != "" {
				r.Use(middleware.RequireScope(opts.EventsScope))
			}
			r.Post("/events/commit", h.FinishCommit)
		})
	})

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM)
// или отмены ctx. Затем выполняется graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
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
	case <-ctx.Done():
		s.logger.Info("Контекст сервера отменён")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
