// usage_monitor.go — периодическое обновление Prometheus-метрик
// занятого места и количества артефактов по директориям хранилища.
package main

import (
	"log/slog"
	"time"

	"github.com/ezahpizza/automl-backend/internal/api/middleware"
	"github.com/ezahpizza/automl-backend/internal/config"
	"github.com/ezahpizza/automl-backend/internal/storage/filestore"
)

// usageInterval — период обновления метрик хранилища.
const usageInterval = time.Minute

// lowDiskThreshold — доля свободного места, ниже которой пишется warning.
const lowDiskThreshold = 0.1

// startUsageMonitor запускает фоновое обновление метрик хранилища.
// Возвращает канал: закрытие останавливает монитор.
func startUsageMonitor(store *filestore.Store, logger *slog.Logger) chan struct{} {
	stop := make(chan struct{})
	log := logger.With(slog.String("component", "usage_monitor"))

	updateStorageMetrics(store, log)

	go func() {
		ticker := time.NewTicker(usageInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				updateStorageMetrics(store, log)
			case <-stop:
				return
			}
		}
	}()

	return stop
}

// updateStorageMetrics снимает размеры и количество файлов по директориям.
func updateStorageMetrics(store *filestore.Store, logger *slog.Logger) {
	subdirs := []string{
		config.ModelsSubdir,
		config.PlotsSubdir,
		config.EDAReportsSubdir,
		config.TmpSubdir,
		config.BackupsSubdir,
	}
	for _, subdir := range subdirs {
		dir := store.Dir(subdir)
		middleware.StorageBytes.WithLabelValues(subdir).Set(float64(store.DirSize(dir)))
		middleware.FilesTotal.WithLabelValues(subdir).Set(float64(store.CountFiles(dir)))
	}

	usage, err := getDiskUsage(store.Root())
	if err != nil {
		logger.Warn("Не удалось получить ёмкость диска", slog.String("error", err.Error()))
		return
	}
	if usage.Total > 0 && usage.availableFraction() < lowDiskThreshold {
		logger.Warn("Мало свободного места в хранилище",
			slog.Int64("available_bytes", usage.Available),
			slog.Int64("total_bytes", usage.Total),
		)
	}
}
