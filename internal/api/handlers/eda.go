// eda.go — обработчики endpoints EDA-отчётов.
// Generate (multipart), View (HTML inline), Download, List, Delete.
package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/ezahpizza/automl-backend/internal/api/errors"
	"github.com/ezahpizza/automl-backend/internal/naming"
	"github.com/ezahpizza/automl-backend/internal/service"
)

// EDAHandler — обработчик endpoints EDA-отчётов.
type EDAHandler struct {
	eda *service.EDAService
	// maxFileSize — лимит размера загружаемого датасета в байтах
	maxFileSize int64
}

// NewEDAHandler создаёт обработчик EDA endpoints.
func NewEDAHandler(eda *service.EDAService, maxFileSize int64) *EDAHandler {
	return &EDAHandler{eda: eda, maxFileSize: maxFileSize}
}

// Generate обрабатывает POST /api/v1/eda/generate.
// Multipart form: file (обязательно, CSV), user_id (обязательно),
// dataset_name (опционально).
func (h *EDAHandler) Generate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		apierrors.FileTooLarge(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Поле 'file' обязательно")
		return
	}
	defer file.Close()

	userID := r.FormValue("user_id")
	if userID == "" {
		apierrors.ValidationError(w, "Поле 'user_id' обязательно")
		return
	}
	if !requireOwner(w, r, userID) {
		return
	}

	result, err := h.eda.GenerateReport(r.Context(), &service.EDAParams{
		Reader:           file,
		OriginalFilename: header.Filename,
		UserID:           userID,
		DatasetName:      r.FormValue("dataset_name"),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// View обрабатывает GET /api/v1/eda/view/{filename}.
// Отдаёт HTML-отчёт для отображения в браузере.
func (h *EDAHandler) View(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if !naming.IsValidFilename(filename) {
		apierrors.ValidationError(w, "Некорректное имя файла")
		return
	}

	path, err := h.eda.ReportPath(filename)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeFile(w, r, path)
}

// Download обрабатывает GET /api/v1/eda/download/{filename}.
// Отдаёт HTML-отчёт как attachment.
func (h *EDAHandler) Download(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if !naming.IsValidFilename(filename) {
		apierrors.ValidationError(w, "Некорректное имя файла")
		return
	}

	path, err := h.eda.ReportPath(filename)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeFile(w, r, path)
}

// List обрабатывает GET /api/v1/eda/list/{userID}.
// Параметр limit ограничивает выдачу.
func (h *EDAHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if !requireOwner(w, r, userID) {
		return
	}

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	reports, err := h.eda.ListReports(r.Context(), userID, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reports": reports,
		"count":   len(reports),
	})
}

// Delete обрабатывает DELETE /api/v1/eda/delete/{filename}.
// Удаляет файл отчёта и его документ.
func (h *EDAHandler) Delete(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if !naming.IsValidFilename(filename) {
		apierrors.ValidationError(w, "Некорректное имя файла")
		return
	}
	if !requireOwner(w, r, naming.ExtractUserID(filename)) {
		return
	}

	deleted, err := h.eda.DeleteReport(r.Context(), filename)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !deleted {
		apierrors.NotFound(w, "Отчёт не найден")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"deleted":  true,
		"filename": filename,
	})
}
