// health.go — обработчики health endpoints для Kubernetes probes.
package handlers

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ezahpizza/automl-backend/internal/config"
)

// statusFail — строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

// MongoPinger — проверка доступности хранилища метаданных.
type MongoPinger interface {
	Ping(ctx context.Context) error
}

// WorkerPinger — проверка доступности AutoML worker.
type WorkerPinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	version string
	// storageDir — корень файлового хранилища (для проверки FS)
	storageDir string
	mongo      MongoPinger
	worker     WorkerPinger
}

// NewHealthHandler создаёт обработчик health endpoints.
// mongo и worker могут быть nil: соответствующие проверки пропускаются.
func NewHealthHandler(storageDir string, mongo MongoPinger, worker WorkerPinger) *HealthHandler {
	return &HealthHandler{
		version:    config.Version,
		storageDir: storageDir,
		mongo:      mongo,
		worker:     worker,
	}
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "automl-backend",
	})
}

// HealthReady обрабатывает GET /health/ready.
// Проверяет: файловое хранилище, MongoDB, AutoML worker.
// Недоступный worker даёт degraded, а не fail: остальные операции
// (списки, выдача артефактов, очистка) работают без него.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	overallStatus := "ok"
	httpStatus := http.StatusOK

	fsCheck := h.checkFilesystem()
	if fsCheck["status"] != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	mongoCheck := h.checkMongo(ctx)
	if mongoCheck["status"] != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	workerCheck := h.checkWorker(ctx)
	if workerCheck["status"] != "ok" && overallStatus != statusFail {
		overallStatus = "degraded"
	}

	writeJSON(w, httpStatus, map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "automl-backend",
		"checks": map[string]interface{}{
			"filesystem": fsCheck,
			"mongodb":    mongoCheck,
			"worker":     workerCheck,
		},
	})
}

// checkFilesystem проверяет доступность хранилища артефактов на запись.
func (h *HealthHandler) checkFilesystem() map[string]interface{} {
	if h.storageDir == "" {
		return map[string]interface{}{
			"status":  "ok",
			"message": "Проверка не настроена",
		}
	}

	testFile := filepath.Join(h.storageDir, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return map[string]interface{}{
			"status":  statusFail,
			"message": "Хранилище артефактов недоступно для записи: " + err.Error(),
		}
	}
	_ = os.Remove(testFile)

	return map[string]interface{}{
		"status": "ok",
	}
}

// checkMongo проверяет соединение с хранилищем метаданных.
func (h *HealthHandler) checkMongo(ctx context.Context) map[string]interface{} {
	if h.mongo == nil {
		return map[string]interface{}{
			"status":  "ok",
			"message": "Проверка не настроена",
		}
	}
	if err := h.mongo.Ping(ctx); err != nil {
		return map[string]interface{}{
			"status":  statusFail,
			"message": "MongoDB недоступна: " + err.Error(),
		}
	}
	return map[string]interface{}{
		"status": "ok",
	}
}

// checkWorker проверяет доступность AutoML worker.
func (h *HealthHandler) checkWorker(ctx context.Context) map[string]interface{} {
	if h.worker == nil {
		return map[string]interface{}{
			"status":  "ok",
			"message": "Проверка не настроена",
		}
	}
	if err := h.worker.Ping(ctx); err != nil {
		return map[string]interface{}{
			"status":  statusFail,
			"message": "Worker недоступен: " + err.Error(),
		}
	}
	return map[string]interface{}{
		"status": "ok",
	}
}
