// Точка входа AutoML Backend — сервиса управления датасетами,
// моделями и их жизненным циклом.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ezahpizza/automl-backend/internal/api/handlers"
	"github.com/ezahpizza/automl-backend/internal/api/middleware"
	"github.com/ezahpizza/automl-backend/internal/config"
	"github.com/ezahpizza/automl-backend/internal/server"
	"github.com/ezahpizza/automl-backend/internal/service"
	"github.com/ezahpizza/automl-backend/internal/storage/filestore"
	"github.com/ezahpizza/automl-backend/internal/storage/metastore"
	"github.com/ezahpizza/automl-backend/internal/worker"
)

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("AutoML Backend запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("storage_dir", cfg.StorageDir),
		slog.String("worker_url", cfg.WorkerURL),
	)

	// --- Инициализация компонентов ---

	ctx := context.Background()

	// 1. Хранилище метаданных
	meta, err := metastore.Connect(ctx, cfg.MongoURL, cfg.MongoDBName, logger)
	if err != nil {
		logger.Error("Ошибка подключения к MongoDB", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		if closeErr := meta.Close(context.Background()); closeErr != nil {
			logger.Error("Ошибка отключения от MongoDB", slog.String("error", closeErr.Error()))
		}
	}()

	if err := meta.EnsureIndexes(ctx); err != nil {
		logger.Error("Ошибка создания индексов", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Файловое хранилище артефактов
	store, err := filestore.New(cfg.StorageDir, logger)
	if err != nil {
		logger.Error("Ошибка инициализации файлового хранилища", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 3. Клиент AutoML worker
	workerClient := worker.New(cfg.WorkerURL, cfg.WorkerTimeout, logger)

	// 4. Сервисы
	cleanupSvc := service.NewCleanupService(store, meta, cfg.RetentionHours, cfg.CleanupInterval, logger)
	edaSvc := service.NewEDAService(store, meta, workerClient, cfg.MaxDatasetRows, cfg.MaxDatasetColumns, logger)
	trainSvc := service.NewTrainService(store, meta, workerClient,
		cfg.AllowedModels, cfg.MaxDatasetRows, cfg.MaxDatasetColumns, logger)
	userSvc := service.NewUserService(meta, logger)

	// 5. Стартовая очистка: просроченные артефакты и осиротевшие документы
	if result, cleanErr := cleanupSvc.StartupCleanup(ctx); cleanErr != nil {
		logger.Warn("Стартовая очистка завершилась с ошибкой",
			slog.String("error", cleanErr.Error()),
		)
	} else {
		logger.Info("Стартовая очистка выполнена",
			slog.Int("files_deleted", result.TotalFilesDeleted),
			slog.Int64("records_deleted", result.TotalRecordsDeleted),
		)
	}

	// 6. Фоновые процессы

	// 6.1 Периодическая очистка по возрасту
	cleanupSvc.Start(ctx)

	// 6.2 topologymetrics — мониторинг зависимостей
	dephealthSvc, dephealthErr := service.NewDephealthService(
		dephealthName(cfg),
		cfg.DephealthGroup,
		cfg.DephealthDepName,
		cfg.WorkerURL,
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("worker_url", cfg.WorkerURL),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 6.3 Монитор дискового пространства для Prometheus
	stopUsage := startUsageMonitor(store, logger)

	// 7. Handlers
	h := &server.Handlers{
		EDA:     handlers.NewEDAHandler(edaSvc, cfg.MaxFileSize),
		Models:  handlers.NewModelsHandler(trainSvc, cfg.MaxFileSize),
		Cleanup: handlers.NewCleanupHandler(cleanupSvc, cfg.RetentionHours),
		Users:   handlers.NewUsersHandler(userSvc),
		Health:  handlers.NewHealthHandler(cfg.StorageDir, meta, workerClient),
	}

	// 8. JWT middleware (опционально)
	var jwtAuth *middleware.JWTAuth
	if cfg.JWKSUrl == "" {
		logger.Warn("AML_JWKS_URL не задан, запуск без аутентификации")
	} else {
		jwtAuth, err = middleware.NewJWTAuth(middleware.JWTAuthConfig{
			JWKSURL:         cfg.JWKSUrl,
			ClientTimeout:   10 * time.Second,
			RefreshInterval: time.Hour,
			JWTLeeway:       30 * time.Second,
		}, logger)
		if err != nil {
			logger.Warn("JWT JWKS недоступен, запуск без аутентификации",
				slog.String("jwks_url", cfg.JWKSUrl),
				slog.String("error", err.Error()),
			)
			jwtAuth = nil
		} else {
			logger.Info("JWT аутентификация настроена",
				slog.String("jwks_url", cfg.JWKSUrl),
			)
		}
	}

	// 9. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, h, jwtAuth)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// --- Graceful shutdown фоновых процессов ---
	logger.Info("Остановка фоновых процессов...")

	cleanupSvc.Stop()
	close(stopUsage)
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("AutoML Backend остановлен")
}

// dephealthName возвращает имя вершины графа зависимостей: явное из
// конфигурации или имя владельца пода из hostname.
func dephealthName(cfg *config.Config) string {
	if cfg.DephealthName != "" {
		return cfg.DephealthName
	}
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "automl-backend"
	}
	return parseOwnerName(hostname)
}

// parseOwnerName извлекает имя владельца пода из hostname.
// Deployment: {owner}-{pod-template-hash}-{suffix} → {owner}.
// StatefulSet: {owner}-{ordinal} → {owner}.
// Иначе hostname возвращается как есть.
func parseOwnerName(hostname string) string {
	parts := strings.Split(hostname, "-")

	if len(parts) >= 3 {
		hash := parts[len(parts)-2]
		suffix := parts[len(parts)-1]
		if isPodTemplateHash(hash) && isPodSuffix(suffix) {
			return strings.Join(parts[:len(parts)-2], "-")
		}
	}

	if len(parts) >= 2 && isOrdinal(parts[len(parts)-1]) {
		return strings.Join(parts[:len(parts)-1], "-")
	}

	return hostname
}

// isPodTemplateHash проверяет сегмент на соответствие pod-template-hash
// (8-10 строчных букв и цифр).
func isPodTemplateHash(s string) bool {
	if len(s) < 8 || len(s) > 10 {
		return false
	}
	return isLowerAlnum(s)
}

// isPodSuffix проверяет пятисимвольный суффикс имени пода.
func isPodSuffix(s string) bool {
	return len(s) == 5 && isLowerAlnum(s)
}

// isOrdinal проверяет ordinal StatefulSet (только цифры).
func isOrdinal(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func isLowerAlnum(s string) bool {
	for _, c := range s {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
