// Пакет errors — конструкторы стандартных ошибок HTTP API.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors //nolint:revive // TODO: переименовать пакет errors, конфликт со stdlib

import (
	"encoding/json"
	"net/http"
)

// Машиночитаемые коды ошибок API.
const (
	CodeValidationError      = "VALIDATION_ERROR"
	CodeNotFound             = "NOT_FOUND"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeConfirmationRequired = "CONFIRMATION_REQUIRED"
	CodeFileTooLarge         = "FILE_TOO_LARGE"
	CodeDatasetTooLarge      = "DATASET_TOO_LARGE"
	CodeDuplicate            = "DUPLICATE"
	CodeWorkerUnavailable    = "WORKER_UNAVAILABLE"
	CodePersistenceError     = "PERSISTENCE_ERROR"
	CodeInternalError        = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// ConfirmationRequired — 400 деструктивная операция без confirm=true.
func ConfirmationRequired(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeConfirmationRequired, message)
}

// FileTooLarge — 413 файл превышает лимит.
func FileTooLarge(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusRequestEntityTooLarge, CodeFileTooLarge, message)
}

// DatasetTooLarge — 413 датасет превышает лимит строк или колонок.
func DatasetTooLarge(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusRequestEntityTooLarge, CodeDatasetTooLarge, message)
}

// Duplicate — 409 нарушение уникальности.
func Duplicate(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeDuplicate, message)
}

// WorkerUnavailable — 502 AutoML worker недоступен.
func WorkerUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, CodeWorkerUnavailable, message)
}

// PersistenceError — 500 ошибка хранилища метаданных.
func PersistenceError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodePersistenceError, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
