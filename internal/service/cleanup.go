// cleanup.go — движок очистки и удержания артефактов.
//
// Движок выполняет четыре идемпотентные операции:
//  1. Очистка по пользователю (все директории + все коллекции)
//  2. Очистка по возрасту (модели, EDA-отчёты, временные загрузки)
//  3. Сверка сирот (документы без файла на диске)
//  4. Стартовая очистка (возраст + сироты одним вызовом)
//
// Файловая и документная половины каждой операции не транзакционны:
// обе всегда выполняются до конца, расхождение счётчиков допустимо.
// Ошибки файловой системы глотаются на границе filestore, ошибки
// хранилища метаданных всегда прерывают операцию. Каждая операция
// (кроме dry-run) пишет ровно одну запись в журнал очистки,
// запись журнала best-effort.
//
// Периодическая очистка по возрасту запускается горутиной
// с тикером (AML_CLEANUP_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ezahpizza/automl-backend/internal/config"
	"github.com/ezahpizza/automl-backend/internal/domain/model"
	"github.com/ezahpizza/automl-backend/internal/storage/filestore"
	"github.com/ezahpizza/automl-backend/internal/storage/metastore"
)

// Prometheus метрики очистки
var (
	// cleanupRunsTotal — количество операций очистки по типам.
	cleanupRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aml_cleanup_runs_total",
		Help: "Общее количество операций очистки",
	}, []string{"operation"})

	// cleanupFilesDeletedTotal — количество удалённых файлов.
	cleanupFilesDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aml_cleanup_files_deleted_total",
		Help: "Общее количество файлов, удалённых очисткой",
	})

	// cleanupRecordsDeletedTotal — количество удалённых документов.
	cleanupRecordsDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aml_cleanup_records_deleted_total",
		Help: "Общее количество документов метаданных, удалённых очисткой",
	})

	// cleanupDurationSeconds — длительность операций очистки.
	cleanupDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "aml_cleanup_duration_seconds",
		Help:    "Длительность операций очистки в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// MetaStore — операции хранилища метаданных, используемые сервисами.
type MetaStore interface {
	Insert(ctx context.Context, collection string, doc interface{}) error
	DeleteMany(ctx context.Context, collection string, filter bson.M) (int64, error)
	DeleteOne(ctx context.Context, collection string, filter bson.M) (int64, error)
	Find(ctx context.Context, collection string, filter bson.M, result interface{}, opts *metastore.FindOpts) error
	FindOne(ctx context.Context, collection string, filter bson.M, result interface{}) error
	Count(ctx context.Context, collection string, filter bson.M) (int64, error)
}

// CleanupResult — результат одной операции очистки.
type CleanupResult struct {
	// FilesDeleted — имена удалённых файлов
	FilesDeleted []string `json:"files_deleted"`
	// RecordsDeleted — количество удалённых документов по коллекциям
	RecordsDeleted map[string]int64 `json:"records_deleted"`
	// TotalFilesDeleted — суммарное количество удалённых файлов
	TotalFilesDeleted int `json:"total_files_deleted"`
	// TotalRecordsDeleted — суммарное количество удалённых документов
	TotalRecordsDeleted int64 `json:"total_records_deleted"`
	// DryRun — операция выполнялась без изменений
	DryRun bool `json:"dry_run,omitempty"`
}

// DirectoryStats — статистика одной директории хранилища.
type DirectoryStats struct {
	FileCount int   `json:"file_count"`
	SizeBytes int64 `json:"size_bytes"`
}

// Statistics — наблюдаемое состояние хранилищ, без изменений.
type Statistics struct {
	// Directories — количество и размер файлов по поддиректориям
	Directories map[string]DirectoryStats `json:"directories"`
	// Collections — количество документов по коллекциям
	Collections map[string]int64 `json:"collections"`
	// FilesOlderThanRetention — файлы старше окна удержания
	// (кандидаты следующей очистки по возрасту)
	FilesOlderThanRetention int `json:"files_older_than_retention"`
	// RetentionHours — настроенное окно удержания
	RetentionHours int `json:"retention_hours"`
}

// CleanupService — движок очистки. Не хранит состояния между вызовами:
// единственное персистентное состояние — журнал очистки и сами хранилища.
type CleanupService struct {
	store          *filestore.Store
	meta           MetaStore
	retentionHours int
	interval       time.Duration
	logger         *slog.Logger

	cancel  context.CancelFunc
	nowFunc func() time.Time
}

// NewCleanupService создаёт движок очистки.
func NewCleanupService(
	store *filestore.Store,
	meta MetaStore,
	retentionHours int,
	interval time.Duration,
	logger *slog.Logger,
) *CleanupService {
	return &CleanupService{
		store:          store,
		meta:           meta,
		retentionHours: retentionHours,
		interval:       interval,
		logger:         logger.With(slog.String("component", "cleanup")),
		nowFunc:        time.Now,
	}
}

// artifactDirs — все директории артефактов (для очистки по пользователю).
// Резервные копии входят сюда: после полной очистки пользователя его
// данные не должны переживать операцию нигде, включая backups.
func (c *CleanupService) artifactDirs() []string {
	return []string{
		c.store.Dir(config.ModelsSubdir),
		c.store.Dir(config.PlotsSubdir),
		c.store.Dir(config.EDAReportsSubdir),
		c.store.Dir(config.TmpSubdir),
		c.store.Dir(config.BackupsSubdir),
	}
}

// ageDirs — директории, подлежащие очистке по возрасту. Графики
// исключены: они удаляются транзитивно вместе со своей моделью.
// Резервные копии стареют наравне с артефактами, иначе backups
// растёт неограниченно.
func (c *CleanupService) ageDirs() []string {
	return []string{
		c.store.Dir(config.ModelsSubdir),
		c.store.Dir(config.EDAReportsSubdir),
		c.store.Dir(config.TmpSubdir),
		c.store.Dir(config.BackupsSubdir),
	}
}

// Start запускает фоновую горутину периодической очистки по возрасту.
// Вызывается один раз при старте приложения.
func (c *CleanupService) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	go c.run(runCtx)

	c.logger.Info("Периодическая очистка запущена",
		slog.String("interval", c.interval.String()),
		slog.Int("retention_hours", c.retentionHours),
	)
}

// Stop останавливает фоновую горутину очистки.
func (c *CleanupService) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.logger.Info("Периодическая очистка остановлена")
}

// run — основной цикл фоновой горутины.
func (c *CleanupService) run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.PurgeOlderThan(ctx, c.retentionHours, false); err != nil {
				c.logger.Error("Периодическая очистка завершилась с ошибкой",
					slog.String("error", err.Error()))
			}
		}
	}
}

// PurgeUser удаляет все данные пользователя: файлы во всех директориях
// артефактов и документы во всех коллекциях, включая самого пользователя.
// Подтверждение (confirm=true) обязан проверить вызывающий код.
//
// Обе половины выполняются всегда: неудача удаления файла не блокирует
// удаление документов, результат отражает фактические счётчики даже
// при расхождении.
func (c *CleanupService) PurgeUser(ctx context.Context, userID string) (*CleanupResult, error) {
	start := time.Now()
	result := &CleanupResult{
		FilesDeleted:   []string{},
		RecordsDeleted: map[string]int64{},
	}

	// Половина 1: файлы. Ошибки отдельных файлов не прерывают обход.
	for _, dir := range c.artifactDirs() {
		for _, path := range c.store.FindByOwner(dir, userID) {
			if c.store.Delete(path) {
				result.FilesDeleted = append(result.FilesDeleted, filepath.Base(path))
			}
		}
	}

	// Половина 2: документы. Ошибка базы прерывает операцию.
	collections := []string{
		model.CollectionEDAJobs,
		model.CollectionModelJobs,
		model.CollectionPredictions,
		model.CollectionUsers,
	}
	for _, coll := range collections {
		n, err := c.meta.DeleteMany(ctx, coll, bson.M{"user_id": userID})
		if err != nil {
			return nil, NewPersistenceError("очистка пользователя %s: %v", userID, err)
		}
		result.RecordsDeleted[coll] = n
	}

	c.finalize(result)
	c.logOperation(ctx, model.OpUserCleanup, userID, result)
	c.observe(model.OpUserCleanup, result, time.Since(start))

	c.logger.Info("Очистка пользователя завершена",
		slog.String("user_id", userID),
		slog.Int("files", result.TotalFilesDeleted),
		slog.Int64("records", result.TotalRecordsDeleted),
	)
	return result, nil
}

// PurgeOlderThan удаляет артефакты старше maxAgeHours: файлы в models,
// eda_reports и tmp (графики умирают вместе со своей моделью) и документы
// с created_at раньше среза. Срез вычисляется один раз и разделяется
// всеми коллекциями, чтобы окно не уплывало на медленной операции.
//
// При dryRun возвращается список файлов-кандидатов, ничего не удаляется
// и запись в журнал не делается.
//
// Файл старше среза без документа метаданных (упавшая загрузка) тоже
// удаляется: незавершённые артефакты не должны накапливаться.
// maxAgeHours == 0 означает "срез прямо сейчас" — удаляются все артефакты.
// Значение по умолчанию подставляет вызывающая сторона.
func (c *CleanupService) PurgeOlderThan(ctx context.Context, maxAgeHours int, dryRun bool) (*CleanupResult, error) {
	start := time.Now()
	maxAge := time.Duration(maxAgeHours) * time.Hour
	cutoff := c.nowFunc().UTC().Add(-maxAge)

	result := &CleanupResult{
		FilesDeleted:   []string{},
		RecordsDeleted: map[string]int64{},
		DryRun:         dryRun,
	}

	var candidates []string
	for _, dir := range c.ageDirs() {
		candidates = append(candidates, c.store.FindOlderThan(dir, maxAge)...)
	}

	if dryRun {
		for _, path := range candidates {
			result.FilesDeleted = append(result.FilesDeleted, filepath.Base(path))
		}
		result.TotalFilesDeleted = len(result.FilesDeleted)
		return result, nil
	}

	for _, path := range candidates {
		if c.store.Delete(path) {
			result.FilesDeleted = append(result.FilesDeleted, filepath.Base(path))
		}
	}

	collections := []string{
		model.CollectionEDAJobs,
		model.CollectionModelJobs,
		model.CollectionPredictions,
	}
	for _, coll := range collections {
		n, err := c.meta.DeleteMany(ctx, coll, bson.M{"created_at": bson.M{"$lt": cutoff}})
		if err != nil {
			return nil, NewPersistenceError("очистка по возрасту: %v", err)
		}
		result.RecordsDeleted[coll] = n
	}

	c.finalize(result)
	c.logOperation(ctx, model.OpSystemCleanup, "", result)
	c.observe(model.OpSystemCleanup, result, time.Since(start))

	c.logger.Info("Очистка по возрасту завершена",
		slog.Int("max_age_hours", maxAgeHours),
		slog.Int("files", result.TotalFilesDeleted),
		slog.Int64("records", result.TotalRecordsDeleted),
	)
	return result, nil
}

// ReconcileOrphans удаляет документы eda_jobs и model_jobs, чей файл
// отсутствует на диске. Обратное направление намеренно не выполняется:
// файл без документа обычно свежий артефакт с ещё не записанными
// метаданными, его удалит очистка по возрасту, когда он состарится.
func (c *CleanupService) ReconcileOrphans(ctx context.Context) (*CleanupResult, error) {
	start := time.Now()
	result := &CleanupResult{
		FilesDeleted:   []string{},
		RecordsDeleted: map[string]int64{},
	}

	// EDA-отчёты
	var edaJobs []model.EDAJob
	if err := c.meta.Find(ctx, model.CollectionEDAJobs, bson.M{}, &edaJobs, nil); err != nil {
		return nil, NewPersistenceError("сверка сирот: %v", err)
	}
	var edaOrphans []primitive.ObjectID
	for _, job := range edaJobs {
		path := job.ReportPath
		if path == "" {
			path = c.store.Path(config.EDAReportsSubdir, job.Filename)
		}
		if !c.store.Exists(path) {
			edaOrphans = append(edaOrphans, job.ID)
		}
	}
	n, err := c.deleteByIDs(ctx, model.CollectionEDAJobs, edaOrphans)
	if err != nil {
		return nil, err
	}
	result.RecordsDeleted[model.CollectionEDAJobs] = n

	// Модели
	var modelJobs []model.ModelJob
	if err := c.meta.Find(ctx, model.CollectionModelJobs, bson.M{}, &modelJobs, nil); err != nil {
		return nil, NewPersistenceError("сверка сирот: %v", err)
	}
	var modelOrphans []primitive.ObjectID
	for _, job := range modelJobs {
		path := job.ModelPath
		if path == "" {
			path = c.store.Path(config.ModelsSubdir, job.Filename)
		}
		if !c.store.Exists(path) {
			modelOrphans = append(modelOrphans, job.ID)
		}
	}
	n, err = c.deleteByIDs(ctx, model.CollectionModelJobs, modelOrphans)
	if err != nil {
		return nil, err
	}
	result.RecordsDeleted[model.CollectionModelJobs] = n

	c.finalize(result)
	c.logOperation(ctx, model.OpOrphanedCleanup, "", result)
	c.observe(model.OpOrphanedCleanup, result, time.Since(start))

	c.logger.Info("Сверка сирот завершена",
		slog.Int64("records", result.TotalRecordsDeleted),
	)
	return result, nil
}

// deleteByIDs удаляет документы одним пакетным запросом по _id.
func (c *CleanupService) deleteByIDs(ctx context.Context, collection string, ids []primitive.ObjectID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := c.meta.DeleteMany(ctx, collection, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, NewPersistenceError("удаление сирот из %s: %v", collection, err)
	}
	return n, nil
}

// StartupCleanup объединяет очистку по возрасту (окно удержания из
// конфигурации) и сверку сирот. Вызывается один раз при старте процесса
// до приёма трафика. Счётчики сирот попадают в результат с префиксом
// orphaned_, чтобы не столкнуться со счётчиками очистки по возрасту
// для тех же коллекций.
func (c *CleanupService) StartupCleanup(ctx context.Context) (*CleanupResult, error) {
	aged, err := c.PurgeOlderThan(ctx, c.retentionHours, false)
	if err != nil {
		return nil, err
	}

	orphaned, err := c.ReconcileOrphans(ctx)
	if err != nil {
		return nil, err
	}

	merged := &CleanupResult{
		FilesDeleted:   append([]string{}, aged.FilesDeleted...),
		RecordsDeleted: map[string]int64{},
	}
	for coll, n := range aged.RecordsDeleted {
		merged.RecordsDeleted[coll] = n
	}
	for coll, n := range orphaned.RecordsDeleted {
		merged.RecordsDeleted["orphaned_"+coll] = n
	}
	c.finalize(merged)

	c.logger.Info("Стартовая очистка завершена",
		slog.Int("files", merged.TotalFilesDeleted),
		slog.Int64("records", merged.TotalRecordsDeleted),
	)
	return merged, nil
}

// GetStatistics возвращает наблюдаемое состояние хранилищ.
// Только чтение, ничего не изменяет.
func (c *CleanupService) GetStatistics(ctx context.Context) (*Statistics, error) {
	stats := &Statistics{
		Directories:    map[string]DirectoryStats{},
		Collections:    map[string]int64{},
		RetentionHours: c.retentionHours,
	}

	subdirs := []string{
		config.ModelsSubdir, config.PlotsSubdir,
		config.EDAReportsSubdir, config.TmpSubdir, config.BackupsSubdir,
	}
	for _, sub := range subdirs {
		dir := c.store.Dir(sub)
		stats.Directories[sub] = DirectoryStats{
			FileCount: c.store.CountFiles(dir),
			SizeBytes: c.store.DirSize(dir),
		}
	}

	collections := []string{
		model.CollectionUsers,
		model.CollectionEDAJobs,
		model.CollectionModelJobs,
		model.CollectionPredictions,
		model.CollectionCleanupLogs,
	}
	for _, coll := range collections {
		n, err := c.meta.Count(ctx, coll, bson.M{})
		if err != nil {
			return nil, NewPersistenceError("статистика: %v", err)
		}
		stats.Collections[coll] = n
	}

	retention := time.Duration(c.retentionHours) * time.Hour
	for _, dir := range c.ageDirs() {
		stats.FilesOlderThanRetention += len(c.store.FindOlderThan(dir, retention))
	}

	return stats, nil
}

// GetLogs возвращает последние записи журнала очистки, новые первыми.
func (c *CleanupService) GetLogs(ctx context.Context, limit int64) ([]model.CleanupLog, error) {
	var logs []model.CleanupLog
	err := c.meta.Find(ctx, model.CollectionCleanupLogs, bson.M{}, &logs, &metastore.FindOpts{
		SortField: "created_at",
		SortDesc:  true,
		Limit:     limit,
	})
	if err != nil {
		return nil, NewPersistenceError("журнал очистки: %v", err)
	}
	if logs == nil {
		logs = []model.CleanupLog{}
	}
	return logs, nil
}

// finalize пересчитывает суммарные счётчики результата.
func (c *CleanupService) finalize(result *CleanupResult) {
	result.TotalFilesDeleted = len(result.FilesDeleted)
	result.TotalRecordsDeleted = 0
	for _, n := range result.RecordsDeleted {
		result.TotalRecordsDeleted += n
	}
}

// logOperation пишет запись в журнал очистки. Best-effort: ошибка записи
// журнала логируется, но не отменяет успешную очистку.
func (c *CleanupService) logOperation(ctx context.Context, opType, userID string, result *CleanupResult) {
	entry := model.CleanupLog{
		OperationType:  opType,
		UserID:         userID,
		FilesDeleted:   result.FilesDeleted,
		RecordsDeleted: result.RecordsDeleted,
	}
	if err := c.meta.Insert(ctx, model.CollectionCleanupLogs, entry); err != nil {
		c.logger.Warn("Не удалось записать журнал очистки",
			slog.String("operation", opType),
			slog.String("error", err.Error()),
		)
	}
}

// observe обновляет Prometheus метрики операции.
func (c *CleanupService) observe(opType string, result *CleanupResult, duration time.Duration) {
	cleanupRunsTotal.WithLabelValues(opType).Inc()
	cleanupFilesDeletedTotal.Add(float64(result.TotalFilesDeleted))
	cleanupRecordsDeletedTotal.Add(float64(result.TotalRecordsDeleted))
	cleanupDurationSeconds.Observe(duration.Seconds())
}
