// train.go — сервис обучения моделей и предсказаний.
//
// Обучение выполняет worker: backend сохраняет датасет во временную
// директорию общего тома, минтует имя модели и передаёт worker пути
// для модели и графиков. После обучения создаётся документ model_jobs
// со списком имён графиков: графики живут и умирают вместе с моделью.
package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/ezahpizza/automl-backend/internal/config"
	"github.com/ezahpizza/automl-backend/internal/domain/model"
	"github.com/ezahpizza/automl-backend/internal/naming"
	"github.com/ezahpizza/automl-backend/internal/storage/filestore"
	"github.com/ezahpizza/automl-backend/internal/storage/metastore"
	"github.com/ezahpizza/automl-backend/internal/worker"
)

// Trainer — операции обучения и предсказания, выполняемые worker.
type Trainer interface {
	Train(ctx context.Context, req *worker.TrainRequest) (*worker.TrainResult, error)
	Predict(ctx context.Context, req *worker.PredictRequest) (*worker.PredictResult, error)
}

// TrainParams — параметры обучения модели.
type TrainParams struct {
	// Reader — поток CSV-датасета
	Reader io.Reader
	// OriginalFilename — имя загруженного файла
	OriginalFilename string
	// UserID — владелец модели
	UserID string
	// DatasetName — имя датасета
	DatasetName string
	// TargetColumn — целевая колонка обучения
	TargetColumn string
}

// TrainOutcome — результат обучения модели.
type TrainOutcome struct {
	Filename       string                 `json:"filename"`
	ModelType      string                 `json:"model_type"`
	BestModel      string                 `json:"best_model"`
	BestModelScore float64                `json:"best_model_score"`
	Metrics        map[string]interface{} `json:"metrics"`
	PlotFilenames  []string               `json:"plot_filenames"`
	DatasetRows    int                    `json:"dataset_rows"`
	DatasetColumns int                    `json:"dataset_columns"`
	TrainingTime   float64                `json:"training_time"`
}

// PredictParams — параметры предсказания.
type PredictParams struct {
	UserID        string
	ModelFilename string
	InputData     map[string]interface{}
}

// TrainService — сервис обучения моделей, предсказаний и управления
// обученными моделями.
type TrainService struct {
	store         *filestore.Store
	meta          MetaStore
	trainer       Trainer
	allowedModels []string
	maxRows       int
	maxColumns    int
	logger        *slog.Logger
}

// NewTrainService создаёт сервис обучения.
func NewTrainService(
	store *filestore.Store,
	meta MetaStore,
	trainer Trainer,
	allowedModels []string,
	maxRows, maxColumns int,
	logger *slog.Logger,
) *TrainService {
	return &TrainService{
		store:         store,
		meta:          meta,
		trainer:       trainer,
		allowedModels: allowedModels,
		maxRows:       maxRows,
		maxColumns:    maxColumns,
		logger:        logger.With(slog.String("component", "train")),
	}
}

// Train сохраняет датасет, запускает обучение на worker и создаёт
// документ model_jobs. Файл модели пишет worker до вставки документа.
func (s *TrainService) Train(ctx context.Context, params *TrainParams) (*TrainOutcome, error) {
	start := time.Now()

	tempName := naming.TempFilename(params.UserID, params.OriginalFilename)
	saved, err := s.store.SaveFile(params.Reader, config.TmpSubdir, tempName)
	if err != nil {
		return nil, NewInternalError("сохранение датасета: %v", err)
	}
	defer s.store.Delete(saved.FullPath)

	f, err := s.store.Open(config.TmpSubdir, tempName)
	if err != nil {
		return nil, NewInternalError("чтение датасета: %v", err)
	}
	shape, err := ValidateDataset(f, s.maxRows, s.maxColumns)
	f.Close()
	if err != nil {
		return nil, err
	}

	if !shape.HasColumn(params.TargetColumn) {
		return nil, NewValidationError(
			"целевая колонка %q отсутствует в датасете", params.TargetColumn)
	}

	modelName := naming.ModelFilename(params.UserID, params.DatasetName)
	modelPath := s.store.Path(config.ModelsSubdir, modelName)

	trained, err := s.trainer.Train(ctx, &worker.TrainRequest{
		DatasetPath:   saved.FullPath,
		ModelPath:     modelPath,
		PlotsDir:      s.store.Dir(config.PlotsSubdir),
		TargetColumn:  params.TargetColumn,
		AllowedModels: s.allowedModels,
		UserID:        params.UserID,
		DatasetName:   params.DatasetName,
	})
	if err != nil {
		return nil, NewWorkerError("обучение: %v", err)
	}

	job := model.ModelJob{
		UserID:         params.UserID,
		Filename:       modelName,
		ModelPath:      modelPath,
		DatasetName:    params.DatasetName,
		TargetColumn:   params.TargetColumn,
		ModelType:      trained.ModelType,
		BestModel:      trained.BestModel,
		BestModelScore: trained.BestModelScore,
		Metrics:        trained.Metrics,
		PlotFilenames:  trained.PlotFilenames,
		FileSize:       s.store.FileSize(modelPath),
		DatasetRows:    shape.Rows,
		DatasetColumns: shape.Columns,
		TrainingTime:   time.Since(start).Seconds(),
		Status:         model.StatusCompleted,
	}
	if err := s.meta.Insert(ctx, model.CollectionModelJobs, job); err != nil {
		if errors.Is(err, metastore.ErrDuplicateKey) {
			return nil, NewDuplicateError("модель %s уже существует", modelName)
		}
		return nil, NewPersistenceError("сохранение документа модели: %v", err)
	}

	s.logger.Info("Модель обучена",
		slog.String("user_id", params.UserID),
		slog.String("filename", modelName),
		slog.String("best_model", trained.BestModel),
		slog.Duration("duration", time.Since(start)),
	)

	return &TrainOutcome{
		Filename:       modelName,
		ModelType:      trained.ModelType,
		BestModel:      trained.BestModel,
		BestModelScore: trained.BestModelScore,
		Metrics:        trained.Metrics,
		PlotFilenames:  trained.PlotFilenames,
		DatasetRows:    shape.Rows,
		DatasetColumns: shape.Columns,
		TrainingTime:   job.TrainingTime,
	}, nil
}

// Predict выполняет предсказание по обученной модели и сохраняет
// документ predictions.
func (s *TrainService) Predict(ctx context.Context, params *PredictParams) (*worker.PredictResult, error) {
	modelPath := s.store.Path(config.ModelsSubdir, params.ModelFilename)
	if !s.store.Exists(modelPath) {
		return nil, NewNotFoundError("модель %s не найдена", params.ModelFilename)
	}

	result, err := s.trainer.Predict(ctx, &worker.PredictRequest{
		ModelPath: modelPath,
		InputData: params.InputData,
	})
	if err != nil {
		return nil, NewWorkerError("предсказание: %v", err)
	}

	doc := model.Prediction{
		UserID:        params.UserID,
		ModelFilename: params.ModelFilename,
		InputData:     params.InputData,
		Predictions:   result.Predictions,
		Probabilities: result.Probabilities,
	}
	if err := s.meta.Insert(ctx, model.CollectionPredictions, doc); err != nil {
		return nil, NewPersistenceError("сохранение предсказания: %v", err)
	}

	return result, nil
}

// ListModels возвращает модели пользователя, новые первыми.
func (s *TrainService) ListModels(ctx context.Context, userID string, limit int64) ([]model.ModelJob, error) {
	var jobs []model.ModelJob
	err := s.meta.Find(ctx, model.CollectionModelJobs, bson.M{"user_id": userID}, &jobs, &metastore.FindOpts{
		SortField: "created_at",
		SortDesc:  true,
		Limit:     limit,
	})
	if err != nil {
		return nil, NewPersistenceError("список моделей: %v", err)
	}
	if jobs == nil {
		jobs = []model.ModelJob{}
	}
	return jobs, nil
}

// GetMetrics возвращает метрики модели из её документа.
func (s *TrainService) GetMetrics(ctx context.Context, filename string) (*model.ModelJob, error) {
	var job model.ModelJob
	err := s.meta.FindOne(ctx, model.CollectionModelJobs, bson.M{"filename": filename}, &job)
	if errors.Is(err, metastore.ErrNotFound) {
		return nil, NewNotFoundError("модель %s не найдена", filename)
	}
	if err != nil {
		return nil, NewPersistenceError("метрики модели: %v", err)
	}
	return &job, nil
}

// ModelPath возвращает путь файла модели для выдачи.
func (s *TrainService) ModelPath(filename string) (string, error) {
	path := s.store.Path(config.ModelsSubdir, filename)
	if !s.store.Exists(path) {
		return "", NewNotFoundError("модель %s не найдена", filename)
	}
	return path, nil
}

// PlotPath возвращает путь файла графика для выдачи.
func (s *TrainService) PlotPath(filename string) (string, error) {
	path := s.store.Path(config.PlotsSubdir, filename)
	if !s.store.Exists(path) {
		return "", NewNotFoundError("график %s не найден", filename)
	}
	return path, nil
}

// DeleteModel удаляет модель, её графики и документ. Документ читается
// до удаления: список графиков хранится только в нём. Возвращает true,
// если хоть что-то было удалено.
func (s *TrainService) DeleteModel(ctx context.Context, filename string) (bool, error) {
	// Сначала документ: без него не узнать имена графиков
	var job model.ModelJob
	err := s.meta.FindOne(ctx, model.CollectionModelJobs, bson.M{"filename": filename}, &job)
	if err != nil && !errors.Is(err, metastore.ErrNotFound) {
		return false, NewPersistenceError("удаление модели: %v", err)
	}

	plotsDeleted := 0
	for _, plot := range job.PlotFilenames {
		if s.store.Delete(s.store.Path(config.PlotsSubdir, plot)) {
			plotsDeleted++
		}
	}

	// Копия перед необратимым удалением: операция инициирована
	// пользователем и не попадает в журнал очистки
	modelPath := s.store.Path(config.ModelsSubdir, filename)
	if s.store.Exists(modelPath) {
		s.store.CreateBackup(modelPath)
	}
	fileDeleted := s.store.Delete(modelPath)

	n, err := s.meta.DeleteOne(ctx, model.CollectionModelJobs, bson.M{"filename": filename})
	if err != nil {
		return false, NewPersistenceError("удаление документа модели: %v", err)
	}

	if n > 0 || fileDeleted {
		s.logger.Info("Модель удалена",
			slog.String("filename", filename),
			slog.Int("plots_deleted", plotsDeleted),
		)
		return true, nil
	}
	return false, nil
}

// ListPlots возвращает имена графиков пользователя в директории plots.
func (s *TrainService) ListPlots(userID string) []string {
	paths := s.store.FindByOwner(s.store.Dir(config.PlotsSubdir), userID)
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	return names
}

// ListPredictions возвращает предсказания пользователя, новые первыми.
func (s *TrainService) ListPredictions(ctx context.Context, userID string, limit int64) ([]model.Prediction, error) {
	var preds []model.Prediction
	err := s.meta.Find(ctx, model.CollectionPredictions, bson.M{"user_id": userID}, &preds, &metastore.FindOpts{
		SortField: "created_at",
		SortDesc:  true,
		Limit:     limit,
	})
	if err != nil {
		return nil, NewPersistenceError("список предсказаний: %v", err)
	}
	if preds == nil {
		preds = []model.Prediction{}
	}
	return preds, nil
}
