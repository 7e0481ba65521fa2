// Пакет config — загрузка и валидация конфигурации AutoML Backend
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Имена поддиректорий хранилища артефактов относительно StorageDir.
const (
	ModelsSubdir     = "models"
	PlotsSubdir      = "plots"
	EDAReportsSubdir = "eda_reports"
	TmpSubdir        = "tmp"
	BackupsSubdir    = "backups"
)

// Config содержит все параметры конфигурации AutoML Backend.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// URL подключения к MongoDB
	MongoURL string
	// Имя базы данных MongoDB
	MongoDBName string
	// Корневая директория хранилища артефактов
	StorageDir string
	// URL AutoML worker (обучение моделей + EDA-профилирование)
	WorkerURL string
	// Таймаут HTTP-запросов к worker (обучение — долгая операция)
	WorkerTimeout time.Duration
	// Максимальный размер загружаемого датасета в байтах
	MaxFileSize int64
	// Максимальное количество строк в датасете
	MaxDatasetRows int
	// Максимальное количество колонок в датасете
	MaxDatasetColumns int
	// Разрешённые типы моделей для обучения
	AllowedModels []string
	// Срок хранения артефактов в часах
	RetentionHours int
	// Интервал фоновой очистки по возрасту
	CleanupInterval time.Duration
	// URL JWKS endpoint для JWT-аутентификации (опционально)
	JWKSUrl string
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string
	// Имя зависимости (worker) в метриках topologymetrics
	DephealthDepName string
	// Имя владельца пода для метки name в topologymetrics
	DephealthName string
}

// ModelsDir возвращает путь к директории моделей.
func (c *Config) ModelsDir() string { return filepath.Join(c.StorageDir, ModelsSubdir) }

// PlotsDir возвращает путь к директории графиков.
func (c *Config) PlotsDir() string { return filepath.Join(c.StorageDir, PlotsSubdir) }

// EDAReportsDir возвращает путь к директории EDA-отчётов.
func (c *Config) EDAReportsDir() string { return filepath.Join(c.StorageDir, EDAReportsSubdir) }

// TmpDir возвращает путь к директории временных загрузок.
func (c *Config) TmpDir() string { return filepath.Join(c.StorageDir, TmpSubdir) }

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}

	// AML_PORT — порт HTTP-сервера (по умолчанию 8000)
	port, err := getEnvInt("AML_PORT", 8000)
	if err != nil {
		return nil, fmt.Errorf("AML_PORT: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("AML_PORT: значение %d вне допустимого диапазона 1-65535", port)
	}
	cfg.Port = port

	// AML_MONGODB_URL — обязательный
	cfg.MongoURL, err = getEnvRequired("AML_MONGODB_URL")
	if err != nil {
		return nil, err
	}

	// AML_MONGODB_DB_NAME — обязательный
	cfg.MongoDBName, err = getEnvRequired("AML_MONGODB_DB_NAME")
	if err != nil {
		return nil, err
	}

	// AML_STORAGE_DIR — обязательный
	cfg.StorageDir, err = getEnvRequired("AML_STORAGE_DIR")
	if err != nil {
		return nil, err
	}

	// AML_WORKER_URL — обязательный, URL AutoML worker
	cfg.WorkerURL, err = getEnvRequired("AML_WORKER_URL")
	if err != nil {
		return nil, err
	}

	// AML_WORKER_TIMEOUT — таймаут запросов к worker (по умолчанию 10m)
	cfg.WorkerTimeout, err = getEnvDuration("AML_WORKER_TIMEOUT", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("AML_WORKER_TIMEOUT: %w", err)
	}

	// AML_MAX_FILE_SIZE — максимальный размер датасета (по умолчанию 20 MB)
	maxFileSize, err := getEnvInt64("AML_MAX_FILE_SIZE", 20*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("AML_MAX_FILE_SIZE: %w", err)
	}
	if maxFileSize <= 0 {
		return nil, fmt.Errorf("AML_MAX_FILE_SIZE: значение должно быть положительным")
	}
	cfg.MaxFileSize = maxFileSize

	// AML_MAX_DATASET_ROWS — лимит строк датасета (по умолчанию 5000)
	cfg.MaxDatasetRows, err = getEnvInt("AML_MAX_DATASET_ROWS", 5000)
	if err != nil {
		return nil, fmt.Errorf("AML_MAX_DATASET_ROWS: %w", err)
	}
	if cfg.MaxDatasetRows <= 0 {
		return nil, fmt.Errorf("AML_MAX_DATASET_ROWS: значение должно быть положительным")
	}

	// AML_MAX_DATASET_COLUMNS — лимит колонок датасета (по умолчанию 50)
	cfg.MaxDatasetColumns, err = getEnvInt("AML_MAX_DATASET_COLUMNS", 50)
	if err != nil {
		return nil, fmt.Errorf("AML_MAX_DATASET_COLUMNS: %w", err)
	}
	if cfg.MaxDatasetColumns <= 0 {
		return nil, fmt.Errorf("AML_MAX_DATASET_COLUMNS: значение должно быть положительным")
	}

	// AML_ALLOWED_MODELS — разрешённые типы моделей (через запятую).
	// По умолчанию — облегчённый набор для деплоя с жёсткими лимитами памяти.
	cfg.AllowedModels = getEnvList("AML_ALLOWED_MODELS",
		[]string{"lr", "knn", "nb", "dt", "rf", "xgboost", "lightgbm"})

	// AML_FILE_RETENTION_HOURS — срок хранения артефактов (по умолчанию 24 часа)
	cfg.RetentionHours, err = getEnvInt("AML_FILE_RETENTION_HOURS", 24)
	if err != nil {
		return nil, fmt.Errorf("AML_FILE_RETENTION_HOURS: %w", err)
	}
	if cfg.RetentionHours <= 0 {
		return nil, fmt.Errorf("AML_FILE_RETENTION_HOURS: значение должно быть положительным")
	}

	// AML_CLEANUP_INTERVAL — интервал фоновой очистки (по умолчанию 6h)
	cfg.CleanupInterval, err = getEnvDuration("AML_CLEANUP_INTERVAL", 6*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("AML_CLEANUP_INTERVAL: %w", err)
	}

	// AML_JWKS_URL — JWKS endpoint (опционально; без него запуск без аутентификации)
	cfg.JWKSUrl = getEnvDefault("AML_JWKS_URL", "")

	// AML_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("AML_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("AML_LOG_LEVEL: %w", err)
	}

	// AML_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("AML_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("AML_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// AML_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("AML_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AML_SHUTDOWN_TIMEOUT: %w", err)
	}

	// AML_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("AML_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AML_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// AML_DEPHEALTH_GROUP — имя группы в метриках topologymetrics
	cfg.DephealthGroup = getEnvDefault("AML_DEPHEALTH_GROUP", "automl-backend")

	// AML_DEPHEALTH_DEP_NAME — имя зависимости в метриках topologymetrics
	cfg.DephealthDepName = getEnvDefault("AML_DEPHEALTH_DEP_NAME", "automl-worker")

	// DEPHEALTH_NAME — имя владельца пода для метки name (без префикса модуля)
	cfg.DephealthName = getEnvDefault("DEPHEALTH_NAME", "")

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", val)
	}
	return d, nil
}

// getEnvList возвращает список строк из переменной окружения (разделитель — запятая)
// или значение по умолчанию.
func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultVal
	}
	return result
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
