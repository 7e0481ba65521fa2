// Пакет handlers — HTTP handlers AutoML Backend.
// handler.go — общие помощники записи ответов и проверки владельца.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	apierrors "github.com/ezahpizza/automl-backend/internal/api/errors"
	"github.com/ezahpizza/automl-backend/internal/api/middleware"
	"github.com/ezahpizza/automl-backend/internal/service"
)

// writeJSON пишет JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeServiceError транслирует ошибку сервисного слоя в HTTP-ответ.
func writeServiceError(w http.ResponseWriter, err error) {
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		apierrors.WriteError(w, svcErr.StatusCode, svcErr.Code, svcErr.Message)
		return
	}
	apierrors.InternalError(w, "Внутренняя ошибка сервера")
}

// requireOwner проверяет, что запрос выполняет владелец userID.
// Без аутентификации (sub отсутствует в контексте) проверка пропускается.
// Возвращает false и пишет 403, если sub не совпадает с userID.
func requireOwner(w http.ResponseWriter, r *http.Request, userID string) bool {
	subject := middleware.SubjectFromContext(r.Context())
	if subject == "" || subject == userID {
		return true
	}
	apierrors.Forbidden(w, "Доступ к данным другого пользователя запрещён")
	return false
}
