// Пакет server — HTTP-сервер AutoML Backend с graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ezahpizza/automl-backend/internal/api/handlers"
	"github.com/ezahpizza/automl-backend/internal/api/middleware"
	"github.com/ezahpizza/automl-backend/internal/config"
)

// Handlers — набор доменных handlers для монтирования маршрутов.
type Handlers struct {
	EDA     *handlers.EDAHandler
	Models  *handlers.ModelsHandler
	Cleanup *handlers.CleanupHandler
	Users   *handlers.UsersHandler
	Health  *handlers.HealthHandler
}

// Server — HTTP-сервер AutoML Backend.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными маршрутами и middleware.
// auth == nil — аутентификация выключена: все API endpoints доступны
// без токена, ownership-проверки в handlers пропускаются.
func New(cfg *config.Config, logger *slog.Logger, h *Handlers, auth *middleware.JWTAuth) *Server {
	router := chi.NewRouter()

	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.MetricsMiddleware())

	// Служебные endpoints всегда без аутентификации
	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		if auth != nil {
			r.Use(auth.Middleware())
		}

		r.Route("/eda", func(r chi.Router) {
			r.Post("/generate", h.EDA.Generate)
			r.Get("/view/{filename}", h.EDA.View)
			r.Get("/download/{filename}", h.EDA.Download)
			r.Get("/list/{userID}", h.EDA.List)
			r.Delete("/delete/{filename}", h.EDA.Delete)
		})

		r.Route("/models", func(r chi.Router) {
			r.Post("/train", h.Models.Train)
			r.Post("/predict", h.Models.Predict)
			r.Get("/list/{userID}", h.Models.List)
			r.Get("/download/{filename}", h.Models.Download)
			r.Get("/metrics/{filename}", h.Models.Metrics)
			r.Get("/predictions/{userID}", h.Models.Predictions)
			r.Delete("/delete/{filename}", h.Models.Delete)
		})

		r.Route("/plots", func(r chi.Router) {
			r.Get("/list/{userID}", h.Models.ListPlots)
			r.Get("/{filename}", h.Models.ServePlot)
		})

		r.Post("/users/init", h.Users.Init)

		r.Route("/cleanup", func(r chi.Router) {
			// Системные операции очистки затрагивают всех пользователей
			if auth != nil {
				r.With(middleware.RequireScope("cleanup:admin")).
					Post("/system", h.Cleanup.PurgeSystem)
				r.With(middleware.RequireScope("cleanup:admin")).
					Post("/orphaned", h.Cleanup.PurgeOrphaned)
			} else {
				r.Post("/system", h.Cleanup.PurgeSystem)
				r.Post("/orphaned", h.Cleanup.PurgeOrphaned)
			}
			r.Post("/user/{userID}", h.Cleanup.PurgeUser)
			r.Get("/status", h.Cleanup.Status)
			r.Get("/logs", h.Cleanup.Logs)
		})
	})

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		// Обучение — долгая синхронная операция
		WriteTimeout: cfg.WorkerTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown с настроенным таймаутом.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

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
