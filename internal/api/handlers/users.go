// users.go — обработчик регистрации пользователей.
package handlers

import (
	"encoding/json"
	"net/http"

	apierrors "github.com/ezahpizza/automl-backend/internal/api/errors"
	"github.com/ezahpizza/automl-backend/internal/api/middleware"
	"github.com/ezahpizza/automl-backend/internal/service"
)

// UsersHandler — обработчик user endpoints.
type UsersHandler struct {
	users *service.UserService
}

// NewUsersHandler создаёт обработчик user endpoints.
func NewUsersHandler(users *service.UserService) *UsersHandler {
	return &UsersHandler{users: users}
}

// initUserRequest — тело POST /api/v1/users/init.
type initUserRequest struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// Init обрабатывает POST /api/v1/users/init.
// Создаёт документ пользователя при первом обращении. Повторный вызов
// возвращает существующий документ с created=false.
// С включённой аутентификацией user_id берётся из JWT sub.
func (h *UsersHandler) Init(w http.ResponseWriter, r *http.Request) {
	var req initUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: "+err.Error())
		return
	}

	if subject := middleware.SubjectFromContext(r.Context()); subject != "" {
		req.UserID = subject
	}
	if req.UserID == "" {
		apierrors.ValidationError(w, "Поле 'user_id' обязательно")
		return
	}

	user, created, err := h.users.InitUser(r.Context(), req.UserID, req.Email, req.Name)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]interface{}{
		"user":    user,
		"created": created,
	})
}
