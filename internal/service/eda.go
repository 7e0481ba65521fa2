// eda.go — сервис EDA-профилирования датасетов.
//
// Датасет сохраняется во временную директорию общего тома, worker
// читает его и пишет HTML-отчёт в eda_reports. После профилирования
// создаётся документ eda_jobs, временный файл удаляется в любом случае.
package service

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/ezahpizza/automl-backend/internal/config"
	"github.com/ezahpizza/automl-backend/internal/domain/model"
	"github.com/ezahpizza/automl-backend/internal/naming"
	"github.com/ezahpizza/automl-backend/internal/storage/filestore"
	"github.com/ezahpizza/automl-backend/internal/storage/metastore"
	"github.com/ezahpizza/automl-backend/internal/worker"
)

// Profiler — операция EDA-профилирования, выполняемая worker.
type Profiler interface {
	Profile(ctx context.Context, req *worker.ProfileRequest) (*worker.ProfileResult, error)
}

// EDAParams — параметры генерации EDA-отчёта.
type EDAParams struct {
	// Reader — поток CSV-датасета
	Reader io.Reader
	// OriginalFilename — имя загруженного файла
	OriginalFilename string
	// UserID — владелец отчёта
	UserID string
	// DatasetName — имя датасета (пустое — берётся имя файла)
	DatasetName string
}

// EDAResult — результат генерации EDA-отчёта.
type EDAResult struct {
	Filename       string `json:"filename"`
	ReportURL      string `json:"report_url"`
	DatasetName    string `json:"dataset_name"`
	DatasetRows    int    `json:"dataset_rows"`
	DatasetColumns int    `json:"dataset_columns"`
	FileSize       int64  `json:"file_size"`
}

// EDAService — сервис генерации и выдачи EDA-отчётов.
type EDAService struct {
	store      *filestore.Store
	meta       MetaStore
	profiler   Profiler
	maxRows    int
	maxColumns int
	logger     *slog.Logger
}

// NewEDAService создаёт сервис EDA.
func NewEDAService(
	store *filestore.Store,
	meta MetaStore,
	profiler Profiler,
	maxRows, maxColumns int,
	logger *slog.Logger,
) *EDAService {
	return &EDAService{
		store:      store,
		meta:       meta,
		profiler:   profiler,
		maxRows:    maxRows,
		maxColumns: maxColumns,
		logger:     logger.With(slog.String("component", "eda")),
	}
}

// GenerateReport сохраняет датасет, запускает профилирование на worker
// и создаёт документ eda_jobs. Файл отчёта пишется до вставки документа:
// при падении между этими шагами остаётся осиротевший файл, который
// позже подберёт очистка по возрасту.
func (s *EDAService) GenerateReport(ctx context.Context, params *EDAParams) (*EDAResult, error) {
	datasetName := params.DatasetName
	if datasetName == "" {
		datasetName = params.OriginalFilename
	}

	// Сохраняем датасет во временную директорию
	tempName := naming.TempFilename(params.UserID, params.OriginalFilename)
	saved, err := s.store.SaveFile(params.Reader, config.TmpSubdir, tempName)
	if err != nil {
		return nil, NewInternalError("сохранение датасета: %v", err)
	}
	defer s.store.Delete(saved.FullPath)

	// Валидация формы датасета
	f, err := s.store.Open(config.TmpSubdir, tempName)
	if err != nil {
		return nil, NewInternalError("чтение датасета: %v", err)
	}
	shape, err := ValidateDataset(f, s.maxRows, s.maxColumns)
	f.Close()
	if err != nil {
		return nil, err
	}

	// Worker пишет отчёт по минтованному имени
	reportName := naming.EDAFilename(params.UserID, datasetName)
	reportPath := s.store.Path(config.EDAReportsSubdir, reportName)

	profile, err := s.profiler.Profile(ctx, &worker.ProfileRequest{
		DatasetPath: saved.FullPath,
		ReportPath:  reportPath,
	})
	if err != nil {
		return nil, NewWorkerError("профилирование: %v", err)
	}

	job := model.EDAJob{
		UserID:         params.UserID,
		Filename:       reportName,
		ReportPath:     reportPath,
		DatasetName:    datasetName,
		DatasetRows:    shape.Rows,
		DatasetColumns: shape.Columns,
		FileSize:       profile.ReportSize,
		Status:         model.StatusCompleted,
	}
	if err := s.meta.Insert(ctx, model.CollectionEDAJobs, job); err != nil {
		if errors.Is(err, metastore.ErrDuplicateKey) {
			return nil, NewDuplicateError("отчёт %s уже существует", reportName)
		}
		return nil, NewPersistenceError("сохранение документа отчёта: %v", err)
	}

	s.logger.Info("EDA-отчёт сгенерирован",
		slog.String("user_id", params.UserID),
		slog.String("filename", reportName),
		slog.Int("rows", shape.Rows),
		slog.Int("columns", shape.Columns),
	)

	return &EDAResult{
		Filename:       reportName,
		ReportURL:      "/api/v1/eda/view/" + reportName,
		DatasetName:    datasetName,
		DatasetRows:    shape.Rows,
		DatasetColumns: shape.Columns,
		FileSize:       profile.ReportSize,
	}, nil
}

// ListReports возвращает отчёты пользователя, новые первыми.
func (s *EDAService) ListReports(ctx context.Context, userID string, limit int64) ([]model.EDAJob, error) {
	var jobs []model.EDAJob
	err := s.meta.Find(ctx, model.CollectionEDAJobs, bson.M{"user_id": userID}, &jobs, &metastore.FindOpts{
		SortField: "created_at",
		SortDesc:  true,
		Limit:     limit,
	})
	if err != nil {
		return nil, NewPersistenceError("список отчётов: %v", err)
	}
	if jobs == nil {
		jobs = []model.EDAJob{}
	}
	return jobs, nil
}

// ReportPath возвращает путь HTML-отчёта для выдачи.
// Ошибка NotFound, если файла нет на диске.
func (s *EDAService) ReportPath(filename string) (string, error) {
	path := s.store.Path(config.EDAReportsSubdir, filename)
	if !s.store.Exists(path) {
		return "", NewNotFoundError("отчёт %s не найден", filename)
	}
	return path, nil
}

// DeleteReport удаляет отчёт и его документ. Возвращает true, если
// хоть что-то было удалено.
func (s *EDAService) DeleteReport(ctx context.Context, filename string) (bool, error) {
	n, err := s.meta.DeleteOne(ctx, model.CollectionEDAJobs, bson.M{"filename": filename})
	if err != nil {
		return false, NewPersistenceError("удаление документа отчёта: %v", err)
	}

	fileDeleted := s.store.Delete(s.store.Path(config.EDAReportsSubdir, filename))

	if n > 0 || fileDeleted {
		s.logger.Info("EDA-отчёт удалён", slog.String("filename", filename))
		return true, nil
	}
	return false, nil
}
