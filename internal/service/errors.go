// Пакет service — бизнес-логика AutoML Backend.
// errors.go — типизированная ошибка сервисного слоя с HTTP-кодом.
package service

import (
	"fmt"
	"net/http"

	apierrors "github.com/ezahpizza/automl-backend/internal/api/errors"
)

// Error — ошибка сервисной операции с HTTP-кодом и машиночитаемым кодом.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewValidationError — 400 некорректные входные данные.
func NewValidationError(format string, args ...interface{}) *Error {
	return &Error{
		StatusCode: http.StatusBadRequest,
		Code:       apierrors.CodeValidationError,
		Message:    fmt.Sprintf(format, args...),
	}
}

// NewNotFoundError — 404 ресурс не найден.
func NewNotFoundError(format string, args ...interface{}) *Error {
	return &Error{
		StatusCode: http.StatusNotFound,
		Code:       apierrors.CodeNotFound,
		Message:    fmt.Sprintf(format, args...),
	}
}

// NewDatasetTooLargeError — 413 датасет превышает лимиты.
func NewDatasetTooLargeError(format string, args ...interface{}) *Error {
	return &Error{
		StatusCode: http.StatusRequestEntityTooLarge,
		Code:       apierrors.CodeDatasetTooLarge,
		Message:    fmt.Sprintf(format, args...),
	}
}

// NewDuplicateError — 409 нарушение уникальности.
func NewDuplicateError(format string, args ...interface{}) *Error {
	return &Error{
		StatusCode: http.StatusConflict,
		Code:       apierrors.CodeDuplicate,
		Message:    fmt.Sprintf(format, args...),
	}
}

// NewWorkerError — 502 AutoML worker недоступен или вернул ошибку.
func NewWorkerError(format string, args ...interface{}) *Error {
	return &Error{
		StatusCode: http.StatusBadGateway,
		Code:       apierrors.CodeWorkerUnavailable,
		Message:    fmt.Sprintf(format, args...),
	}
}

// NewPersistenceError — 500 ошибка хранилища метаданных.
func NewPersistenceError(format string, args ...interface{}) *Error {
	return &Error{
		StatusCode: http.StatusInternalServerError,
		Code:       apierrors.CodePersistenceError,
		Message:    fmt.Sprintf(format, args...),
	}
}

// NewInternalError — 500 внутренняя ошибка.
func NewInternalError(format string, args ...interface{}) *Error {
	return &Error{
		StatusCode: http.StatusInternalServerError,
		Code:       apierrors.CodeInternalError,
		Message:    fmt.Sprintf(format, args...),
	}
}
