// cleanup.go — обработчики endpoints управления очисткой.
// Полная очистка пользователя требует явного подтверждения confirm=true:
// операция необратима и удаляет все данные пользователя.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/ezahpizza/automl-backend/internal/api/errors"
	"github.com/ezahpizza/automl-backend/internal/domain/model"
	"github.com/ezahpizza/automl-backend/internal/service"
)

// CleanupRunner — операции движка очистки, используемые handler'ом.
// Позволяет тестировать handler без полного CleanupService.
type CleanupRunner interface {
	PurgeUser(ctx context.Context, userID string) (*service.CleanupResult, error)
	PurgeOlderThan(ctx context.Context, maxAgeHours int, dryRun bool) (*service.CleanupResult, error)
	ReconcileOrphans(ctx context.Context) (*service.CleanupResult, error)
	GetStatistics(ctx context.Context) (*service.Statistics, error)
	GetLogs(ctx context.Context, limit int64) ([]model.CleanupLog, error)
}

// CleanupHandler — обработчик endpoints очистки.
type CleanupHandler struct {
	cleanup CleanupRunner
	// defaultMaxAgeHours — окно очистки без параметра hours
	defaultMaxAgeHours int
}

// NewCleanupHandler создаёт обработчик cleanup endpoints.
func NewCleanupHandler(cleanup CleanupRunner, defaultMaxAgeHours int) *CleanupHandler {
	return &CleanupHandler{cleanup: cleanup, defaultMaxAgeHours: defaultMaxAgeHours}
}

// PurgeUser обрабатывает POST /api/v1/cleanup/user/{userID}.
// Без confirm=true возвращает 400 CONFIRMATION_REQUIRED.
func (h *CleanupHandler) PurgeUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		apierrors.ValidationError(w, "userID не может быть пустым")
		return
	}

	if r.URL.Query().Get("confirm") != "true" {
		apierrors.ConfirmationRequired(w,
			"Полная очистка пользователя необратима: повторите запрос с confirm=true")
		return
	}

	result, err := h.cleanup.PurgeUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// PurgeSystem обрабатывает POST /api/v1/cleanup/system.
// Параметры: hours (возраст, по умолчанию retention сервиса),
// dry_run=true — только подсчитать кандидатов.
func (h *CleanupHandler) PurgeSystem(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	hours := h.defaultMaxAgeHours
	if raw := q.Get("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			apierrors.ValidationError(w, "hours должен быть положительным целым числом")
			return
		}
		hours = parsed
	}

	dryRun := q.Get("dry_run") == "true"

	result, err := h.cleanup.PurgeOlderThan(r.Context(), hours, dryRun)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// PurgeOrphaned обрабатывает POST /api/v1/cleanup/orphaned.
// Удаляет документы, у которых нет файла на диске.
func (h *CleanupHandler) PurgeOrphaned(w http.ResponseWriter, r *http.Request) {
	result, err := h.cleanup.ReconcileOrphans(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Status обрабатывает GET /api/v1/cleanup/status.
// Возвращает статистику хранилища без побочных эффектов.
func (h *CleanupHandler) Status(w http.ResponseWriter, r *http.Request) {
	stats, err := h.cleanup.GetStatistics(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Logs обрабатывает GET /api/v1/cleanup/logs.
// Параметр limit ограничивает количество записей (по умолчанию 50).
func (h *CleanupHandler) Logs(w http.ResponseWriter, r *http.Request) {
	limit := int64(50)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			apierrors.ValidationError(w, "limit должен быть положительным целым числом")
			return
		}
		limit = parsed
	}

	logs, err := h.cleanup.GetLogs(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs":  logs,
		"count": len(logs),
	})
}
