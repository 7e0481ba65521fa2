// Пакет worker — HTTP-клиент AutoML worker.
// Worker выполняет тяжёлые операции (обучение моделей, EDA-профилирование,
// предсказания) и разделяет с backend том хранилища артефактов: в запросах
// передаются пути к файлам, worker читает и пишет артефакты сам.
// Операции: Profile (POST /profile), Train (POST /train),
// Predict (POST /predict), Ping (GET /health).
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ProfileRequest — запрос EDA-профилирования датасета.
type ProfileRequest struct {
	// DatasetPath — абсолютный путь к CSV-датасету на общем томе
	DatasetPath string `json:"dataset_path"`
	// ReportPath — путь, по которому worker запишет HTML-отчёт
	ReportPath string `json:"report_path"`
}

// ProfileResult — результат EDA-профилирования.
type ProfileResult struct {
	// ReportSize — размер записанного HTML-отчёта в байтах
	ReportSize int64 `json:"report_size"`
	// Rows — количество строк датасета
	Rows int `json:"rows"`
	// Columns — количество колонок датасета
	Columns int `json:"columns"`
}

// TrainRequest — запрос обучения модели.
type TrainRequest struct {
	// DatasetPath — абсолютный путь к CSV-датасету
	DatasetPath string `json:"dataset_path"`
	// ModelPath — путь, по которому worker сохранит сериализованную модель
	ModelPath string `json:"model_path"`
	// PlotsDir — директория для графиков оценки
	PlotsDir string `json:"plots_dir"`
	// TargetColumn — целевая колонка обучения
	TargetColumn string `json:"target_column"`
	// AllowedModels — типы моделей для сравнения
	AllowedModels []string `json:"allowed_models"`
	// UserID и DatasetName нужны worker для генерации имён графиков
	UserID      string `json:"user_id"`
	DatasetName string `json:"dataset_name"`
}

// TrainResult — результат обучения модели.
type TrainResult struct {
	// ModelType — тип задачи (classification/regression)
	ModelType string `json:"model_type"`
	// BestModel — имя лучшей модели
	BestModel string `json:"best_model"`
	// BestModelScore — метрика лучшей модели
	BestModelScore float64 `json:"best_model_score"`
	// Metrics — полная таблица метрик сравнения моделей
	Metrics map[string]interface{} `json:"metrics"`
	// PlotFilenames — имена записанных графиков оценки
	PlotFilenames []string `json:"plot_filenames"`
	// TrainingTime — длительность обучения в секундах
	TrainingTime float64 `json:"training_time"`
	// Rows, Columns — размер датасета
	Rows    int `json:"rows"`
	Columns int `json:"columns"`
}

// PredictRequest — запрос предсказания по обученной модели.
type PredictRequest struct {
	// ModelPath — путь к сериализованной модели
	ModelPath string `json:"model_path"`
	// InputData — входные признаки
	InputData map[string]interface{} `json:"input_data"`
}

// PredictResult — результат предсказания.
type PredictResult struct {
	Predictions   []interface{} `json:"predictions"`
	Probabilities [][]float64   `json:"prediction_probabilities,omitempty"`
}

// Client — HTTP-клиент AutoML worker.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиент worker. timeout задаёт общий лимит запроса:
// обучение — долгая операция, таймаут измеряется минутами.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(slog.String("component", "worker_client")),
	}
}

// Profile запускает EDA-профилирование датасета.
func (c *Client) Profile(ctx context.Context, req *ProfileRequest) (*ProfileResult, error) {
	var result ProfileResult
	if err := c.post(ctx, "/profile", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Train запускает обучение модели. Блокируется до завершения обучения.
func (c *Client) Train(ctx context.Context, req *TrainRequest) (*TrainResult, error) {
	var result TrainResult
	if err := c.post(ctx, "/train", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Predict выполняет предсказание по обученной модели.
func (c *Client) Predict(ctx context.Context, req *PredictRequest) (*PredictResult, error) {
	var result PredictResult
	if err := c.post(ctx, "/predict", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Ping проверяет доступность worker. GET /health.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("создание запроса health: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("worker недоступен: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("worker вернул статус %d", resp.StatusCode)
	}
	return nil
}

// post выполняет POST-запрос с JSON-телом и декодирует JSON-ответ.
func (c *Client) post(ctx context.Context, path string, body, result interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("сериализация запроса %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("создание запроса %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("запрос %s к worker: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("worker %s вернул статус %d: %s", path, resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("декодирование ответа %s: %w", path, err)
	}

	c.logger.Debug("Запрос к worker выполнен",
		slog.String("path", path),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}
