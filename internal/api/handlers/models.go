// models.go — обработчики endpoints обучения моделей и предсказаний.
// Train (multipart), Predict (JSON), List, Download, Metrics, Delete,
// выдача графиков оценки.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/ezahpizza/automl-backend/internal/api/errors"
	"github.com/ezahpizza/automl-backend/internal/naming"
	"github.com/ezahpizza/automl-backend/internal/service"
)

// ModelsHandler — обработчик endpoints моделей.
type ModelsHandler struct {
	train       *service.TrainService
	maxFileSize int64
}

// NewModelsHandler создаёт обработчик model endpoints.
func NewModelsHandler(train *service.TrainService, maxFileSize int64) *ModelsHandler {
	return &ModelsHandler{train: train, maxFileSize: maxFileSize}
}

// Train обрабатывает POST /api/v1/models/train.
// Multipart form: file (обязательно, CSV), user_id (обязательно),
// target_column (обязательно), dataset_name (опционально).
func (h *ModelsHandler) Train(w http.ResponseWriter, r *http.Request) {
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

	targetColumn := r.FormValue("target_column")
	if targetColumn == "" {
		apierrors.ValidationError(w, "Поле 'target_column' обязательно")
		return
	}

	datasetName := r.FormValue("dataset_name")
	if datasetName == "" {
		datasetName = header.Filename
	}

	outcome, err := h.train.Train(r.Context(), &service.TrainParams{
		Reader:           file,
		OriginalFilename: header.Filename,
		UserID:           userID,
		DatasetName:      datasetName,
		TargetColumn:     targetColumn,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// predictRequest — тело POST /api/v1/models/predict.
type predictRequest struct {
	UserID        string                 `json:"user_id"`
	ModelFilename string                 `json:"model_filename"`
	InputData     map[string]interface{} `json:"input_data"`
}

// Predict обрабатывает POST /api/v1/models/predict.
func (h *ModelsHandler) Predict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: "+err.Error())
		return
	}
	if req.UserID == "" || req.ModelFilename == "" {
		apierrors.ValidationError(w, "Поля 'user_id' и 'model_filename' обязательны")
		return
	}
	if len(req.InputData) == 0 {
		apierrors.ValidationError(w, "Поле 'input_data' не может быть пустым")
		return
	}
	if !requireOwner(w, r, req.UserID) {
		return
	}

	result, err := h.train.Predict(r.Context(), &service.PredictParams{
		UserID:        req.UserID,
		ModelFilename: req.ModelFilename,
		InputData:     req.InputData,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// List обрабатывает GET /api/v1/models/list/{userID}.
func (h *ModelsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if !requireOwner(w, r, userID) {
		return
	}

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	models, err := h.train.ListModels(r.Context(), userID, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"models": models,
		"count":  len(models),
	})
}

// Download обрабатывает GET /api/v1/models/download/{filename}.
// Отдаёт сериализованную модель как attachment.
func (h *ModelsHandler) Download(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if !naming.IsValidFilename(filename) {
		apierrors.ValidationError(w, "Некорректное имя файла")
		return
	}

	path, err := h.train.ModelPath(filename)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeFile(w, r, path)
}

// Metrics обрабатывает GET /api/v1/models/metrics/{filename}.
// Возвращает документ модели с метриками обучения.
func (h *ModelsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if !naming.IsValidFilename(filename) {
		apierrors.ValidationError(w, "Некорректное имя файла")
		return
	}

	job, err := h.train.GetMetrics(r.Context(), filename)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// Delete обрабатывает DELETE /api/v1/models/delete/{filename}.
// Удаляет модель, её графики и документ.
func (h *ModelsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if !naming.IsValidFilename(filename) {
		apierrors.ValidationError(w, "Некорректное имя файла")
		return
	}
	if !requireOwner(w, r, naming.ExtractUserID(filename)) {
		return
	}

	deleted, err := h.train.DeleteModel(r.Context(), filename)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !deleted {
		apierrors.NotFound(w, "Модель не найдена")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"deleted":  true,
		"filename": filename,
	})
}

// Predictions обрабатывает GET /api/v1/models/predictions/{userID}.
func (h *ModelsHandler) Predictions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if !requireOwner(w, r, userID) {
		return
	}

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	preds, err := h.train.ListPredictions(r.Context(), userID, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"predictions": preds,
		"count":       len(preds),
	})
}

// ServePlot обрабатывает GET /api/v1/plots/{filename}.
// Отдаёт PNG-график оценки модели.
func (h *ModelsHandler) ServePlot(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if !naming.IsValidFilename(filename) {
		apierrors.ValidationError(w, "Некорректное имя файла")
		return
	}

	path, err := h.train.PlotPath(filename)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, path)
}

// ListPlots обрабатывает GET /api/v1/plots/list/{userID}.
func (h *ModelsHandler) ListPlots(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if !requireOwner(w, r, userID) {
		return
	}

	plots := h.train.ListPlots(userID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"plots": plots,
		"count": len(plots),
	})
}

// parseLimit извлекает положительный limit из query string.
// Возвращает 0 (без ограничения), если параметр не задан.
func parseLimit(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || parsed <= 0 {
		apierrors.ValidationError(w, "limit должен быть положительным целым числом")
		return 0, false
	}
	return parsed, true
}
