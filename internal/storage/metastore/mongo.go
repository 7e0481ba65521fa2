// Пакет metastore — документное хранилище метаданных поверх MongoDB.
// Одна логическая коллекция на класс артефакта плюс коллекция журнала
// очистки. Ошибки базы, в отличие от ошибок файловой системы,
// не глотаются: они всегда возвращаются вызывающему коду.
package metastore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ezahpizza/automl-backend/internal/domain/model"
)

// ErrNotFound — документ не найден.
var ErrNotFound = errors.New("документ не найден")

// ErrDuplicateKey — нарушение уникального индекса при вставке.
// Для имён файлов практически недостижимо из-за случайного суффикса,
// но обязано быть различимой ошибкой, а не тихой перезаписью.
var ErrDuplicateKey = errors.New("нарушение уникального индекса")

// FindOpts — параметры сортировки и ограничения выборки.
type FindOpts struct {
	// SortField — поле сортировки (пусто — без сортировки)
	SortField string
	// SortDesc — сортировать по убыванию
	SortDesc bool
	// Limit — максимум документов (0 — без ограничения)
	Limit int64
}

// Mongo — хранилище метаданных в MongoDB.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

// Connect подключается к MongoDB и проверяет соединение.
func Connect(ctx context.Context, uri, dbName string, logger *slog.Logger) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("MongoDB недоступна: %w", err)
	}

	logger.Info("Подключение к MongoDB установлено", "database", dbName)

	return &Mongo{
		client: client,
		db:     client.Database(dbName),
		logger: logger,
	}, nil
}

// Close закрывает соединение с MongoDB.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// Ping проверяет доступность базы.
func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

// EnsureIndexes создаёт индексы всех коллекций. Вызывается один раз
// при старте процесса.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)

	indexes := map[string][]mongo.IndexModel{
		model.CollectionUsers: {
			{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: unique},
		},
		model.CollectionEDAJobs: {
			{Keys: bson.D{{Key: "filename", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		model.CollectionModelJobs: {
			{Keys: bson.D{{Key: "filename", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		model.CollectionPredictions: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		model.CollectionCleanupLogs: {
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
	}

	for coll, models := range indexes {
		if _, err := m.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("ошибка создания индексов коллекции %s: %w", coll, err)
		}
	}

	m.logger.Info("Индексы MongoDB созданы")
	return nil
}

// Insert вставляет документ в коллекцию. Поле created_at всегда
// проставляется на стороне сервиса в момент вставки, клиентское
// значение игнорируется.
func (m *Mongo) Insert(ctx context.Context, collection string, doc interface{}) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("ошибка сериализации документа: %w", err)
	}

	var d bson.M
	if err := bson.Unmarshal(raw, &d); err != nil {
		return fmt.Errorf("ошибка десериализации документа: %w", err)
	}
	d["created_at"] = time.Now().UTC()
	delete(d, "_id") // _id генерирует база

	if _, err := m.db.Collection(collection).InsertOne(ctx, d); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: коллекция %s", ErrDuplicateKey, collection)
		}
		return fmt.Errorf("ошибка вставки в %s: %w", collection, err)
	}
	return nil
}

// DeleteMany удаляет все документы, подходящие под фильтр.
// Возвращает количество удалённых.
func (m *Mongo) DeleteMany(ctx context.Context, collection string, filter bson.M) (int64, error) {
	res, err := m.db.Collection(collection).DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления из %s: %w", collection, err)
	}
	return res.DeletedCount, nil
}

// DeleteOne удаляет один документ по фильтру. Возвращает количество
// удалённых (0 или 1).
func (m *Mongo) DeleteOne(ctx context.Context, collection string, filter bson.M) (int64, error) {
	res, err := m.db.Collection(collection).DeleteOne(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления из %s: %w", collection, err)
	}
	return res.DeletedCount, nil
}

// Find выбирает документы по фильтру и декодирует их в result
// (указатель на срез).
func (m *Mongo) Find(ctx context.Context, collection string, filter bson.M, result interface{}, opts *FindOpts) error {
	findOpts := options.Find()
	if opts != nil {
		if opts.SortField != "" {
			order := 1
			if opts.SortDesc {
				order = -1
			}
			findOpts.SetSort(bson.D{{Key: opts.SortField, Value: order}})
		}
		if opts.Limit > 0 {
			findOpts.SetLimit(opts.Limit)
		}
	}

	cursor, err := m.db.Collection(collection).Find(ctx, filter, findOpts)
	if err != nil {
		return fmt.Errorf("ошибка выборки из %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	if err := cursor.All(ctx, result); err != nil {
		return fmt.Errorf("ошибка декодирования документов %s: %w", collection, err)
	}
	return nil
}

// FindOne выбирает один документ по фильтру. Возвращает ErrNotFound,
// если документ отсутствует.
func (m *Mongo) FindOne(ctx context.Context, collection string, filter bson.M, result interface{}) error {
	err := m.db.Collection(collection).FindOne(ctx, filter).Decode(result)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("ошибка выборки из %s: %w", collection, err)
	}
	return nil
}

// Count возвращает количество документов по фильтру.
func (m *Mongo) Count(ctx context.Context, collection string, filter bson.M) (int64, error) {
	n, err := m.db.Collection(collection).CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта документов %s: %w", collection, err)
	}
	return n, nil
}
