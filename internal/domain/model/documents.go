// Пакет model — доменные модели AutoML Backend.
// Документы MongoDB для коллекций пользователей, задач EDA,
// задач обучения, предсказаний и журнала очистки.
package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Имена коллекций MongoDB.
const (
	CollectionUsers       = "users"
	CollectionEDAJobs     = "eda_jobs"
	CollectionModelJobs   = "model_jobs"
	CollectionPredictions = "predictions"
	CollectionCleanupLogs = "cleanup_logs"
)

// Типы операций очистки в журнале.
const (
	// OpUserCleanup — очистка всех данных одного пользователя
	OpUserCleanup = "user_cleanup"
	// OpSystemCleanup — очистка артефактов по возрасту
	OpSystemCleanup = "system_cleanup"
	// OpOrphanedCleanup — удаление документов без файлов на диске
	OpOrphanedCleanup = "orphaned_cleanup"
)

// StatusCompleted — статус успешно завершённой задачи.
const StatusCompleted = "completed"

// User — документ пользователя. user_id приходит из внешней
// аутентификации (JWT sub) и уникален в коллекции.
type User struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	UserID    string             `bson:"user_id" json:"user_id"`
	Email     string             `bson:"email" json:"email"`
	Name      string             `bson:"name,omitempty" json:"name,omitempty"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

// EDAJob — документ задачи EDA-профилирования.
// Filename — имя сгенерированного HTML-отчёта, уникально в коллекции
// и служит ключом связи с файловым хранилищем.
type EDAJob struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	UserID         string             `bson:"user_id" json:"user_id"`
	Filename       string             `bson:"filename" json:"filename"`
	ReportPath     string             `bson:"report_path,omitempty" json:"report_path,omitempty"`
	DatasetName    string             `bson:"dataset_name" json:"dataset_name"`
	DatasetRows    int                `bson:"dataset_rows" json:"dataset_rows"`
	DatasetColumns int                `bson:"dataset_columns" json:"dataset_columns"`
	FileSize       int64              `bson:"file_size" json:"file_size"`
	Status         string             `bson:"status" json:"status"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
}

// ModelJob — документ задачи обучения модели.
// PlotFilenames — графики оценки, удаляются вместе с моделью.
type ModelJob struct {
	ID             primitive.ObjectID     `bson:"_id,omitempty" json:"id,omitempty"`
	UserID         string                 `bson:"user_id" json:"user_id"`
	Filename       string                 `bson:"filename" json:"filename"`
	ModelPath      string                 `bson:"model_path,omitempty" json:"model_path,omitempty"`
	DatasetName    string                 `bson:"dataset_name" json:"dataset_name"`
	TargetColumn   string                 `bson:"target_column" json:"target_column"`
	ModelType      string                 `bson:"model_type" json:"model_type"`
	BestModel      string                 `bson:"best_model" json:"best_model"`
	BestModelScore float64                `bson:"best_model_score" json:"best_model_score"`
	Metrics        map[string]interface{} `bson:"metrics" json:"metrics"`
	PlotFilenames  []string               `bson:"plot_filenames" json:"plot_filenames"`
	FileSize       int64                  `bson:"file_size,omitempty" json:"file_size,omitempty"`
	DatasetRows    int                    `bson:"dataset_rows" json:"dataset_rows"`
	DatasetColumns int                    `bson:"dataset_columns" json:"dataset_columns"`
	TrainingTime   float64                `bson:"training_time,omitempty" json:"training_time,omitempty"`
	Status         string                 `bson:"status" json:"status"`
	CreatedAt      time.Time              `bson:"created_at" json:"created_at"`
}

// Prediction — документ запроса предсказания.
type Prediction struct {
	ID            primitive.ObjectID     `bson:"_id,omitempty" json:"id,omitempty"`
	UserID        string                 `bson:"user_id" json:"user_id"`
	ModelFilename string                 `bson:"model_filename" json:"model_filename"`
	InputData     map[string]interface{} `bson:"input_data" json:"input_data"`
	Predictions   []interface{}          `bson:"predictions" json:"predictions"`
	Probabilities [][]float64            `bson:"prediction_probabilities,omitempty" json:"prediction_probabilities,omitempty"`
	CreatedAt     time.Time              `bson:"created_at" json:"created_at"`
}

// CleanupLog — запись журнала об одной операции очистки.
// Журнал append-only: записи не обновляются и не удаляются штатно.
type CleanupLog struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	OperationType  string             `bson:"operation_type" json:"operation_type"`
	UserID         string             `bson:"user_id,omitempty" json:"user_id,omitempty"`
	FilesDeleted   []string           `bson:"files_deleted" json:"files_deleted"`
	RecordsDeleted map[string]int64   `bson:"records_deleted" json:"records_deleted"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
}
