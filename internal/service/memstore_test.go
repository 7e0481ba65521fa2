package service

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ezahpizza/automl-backend/internal/storage/metastore"
)

// memStore — хранилище метаданных в памяти для тестов.
// Поддерживает подмножество фильтров, используемое движком очистки:
// {}, {user_id: x}, {created_at: {$lt: t}}, {_id: {$in: [...]}}.
type memStore struct {
	collections map[string][]bson.M
	// failAll — все операции возвращают ошибку (имитация недоступной базы)
	failAll bool
	// failInsert — вставка возвращает ошибку (имитация отказа журнала)
	failInsert bool
}

var errMemStore = errors.New("хранилище метаданных недоступно")

func newMemStore() *memStore {
	return &memStore{collections: map[string][]bson.M{}}
}

// add кладёт документ в коллекцию напрямую, без Insert.
func (m *memStore) add(collection string, doc bson.M) {
	if _, ok := doc["_id"]; !ok {
		doc["_id"] = primitive.NewObjectID()
	}
	m.collections[collection] = append(m.collections[collection], doc)
}

func (m *memStore) Insert(ctx context.Context, collection string, doc interface{}) error {
	if m.failAll || m.failInsert {
		return errMemStore
	}

	raw, err := bson.Marshal(doc)
	if err != nil {
		return err
	}
	var d bson.M
	if err := bson.Unmarshal(raw, &d); err != nil {
		return err
	}
	d["created_at"] = time.Now().UTC()
	d["_id"] = primitive.NewObjectID()

	// Уникальные индексы как в EnsureIndexes
	uniqueKey := map[string]string{
		"users":      "user_id",
		"eda_jobs":   "filename",
		"model_jobs": "filename",
	}
	if key, ok := uniqueKey[collection]; ok {
		for _, existing := range m.collections[collection] {
			if existing[key] == d[key] {
				return metastore.ErrDuplicateKey
			}
		}
	}

	m.collections[collection] = append(m.collections[collection], d)
	return nil
}

func (m *memStore) DeleteMany(ctx context.Context, collection string, filter bson.M) (int64, error) {
	if m.failAll {
		return 0, errMemStore
	}

	var kept []bson.M
	var deleted int64
	for _, doc := range m.collections[collection] {
		if matches(doc, filter) {
			deleted++
		} else {
			kept = append(kept, doc)
		}
	}
	m.collections[collection] = kept
	return deleted, nil
}

func (m *memStore) DeleteOne(ctx context.Context, collection string, filter bson.M) (int64, error) {
	if m.failAll {
		return 0, errMemStore
	}

	for i, doc := range m.collections[collection] {
		if matches(doc, filter) {
			m.collections[collection] = append(
				m.collections[collection][:i], m.collections[collection][i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

func (m *memStore) FindOne(ctx context.Context, collection string, filter bson.M, result interface{}) error {
	if m.failAll {
		return errMemStore
	}

	for _, doc := range m.collections[collection] {
		if matches(doc, filter) {
			raw, err := bson.Marshal(doc)
			if err != nil {
				return err
			}
			return bson.Unmarshal(raw, result)
		}
	}
	return metastore.ErrNotFound
}

func (m *memStore) Find(ctx context.Context, collection string, filter bson.M, result interface{}, opts *metastore.FindOpts) error {
	if m.failAll {
		return errMemStore
	}

	var matched []bson.M
	for _, doc := range m.collections[collection] {
		if matches(doc, filter) {
			matched = append(matched, doc)
		}
	}

	if opts != nil && opts.SortField != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			ti := asTime(matched[i][opts.SortField])
			tj := asTime(matched[j][opts.SortField])
			if opts.SortDesc {
				return ti.After(tj)
			}
			return ti.Before(tj)
		})
	}
	if opts != nil && opts.Limit > 0 && int64(len(matched)) > opts.Limit {
		matched = matched[:opts.Limit]
	}

	return decodeAll(matched, result)
}

func (m *memStore) Count(ctx context.Context, collection string, filter bson.M) (int64, error) {
	if m.failAll {
		return 0, errMemStore
	}

	var n int64
	for _, doc := range m.collections[collection] {
		if matches(doc, filter) {
			n++
		}
	}
	return n, nil
}

// count — количество документов без возможной ошибки, для проверок.
func (m *memStore) count(collection string) int {
	return len(m.collections[collection])
}

// matches проверяет документ против фильтра.
func matches(doc, filter bson.M) bool {
	for key, cond := range filter {
		switch c := cond.(type) {
		case bson.M:
			for op, arg := range c {
				switch op {
				case "$lt":
					if !asTime(doc[key]).Before(asTime(arg)) {
						return false
					}
				case "$in":
					ids, ok := arg.([]primitive.ObjectID)
					if !ok {
						return false
					}
					id, ok := doc[key].(primitive.ObjectID)
					if !ok {
						return false
					}
					found := false
					for _, want := range ids {
						if want == id {
							found = true
							break
						}
					}
					if !found {
						return false
					}
				default:
					return false
				}
			}
		default:
			if doc[key] != cond {
				return false
			}
		}
	}
	return true
}

// asTime приводит значение к time.Time (bson хранит даты как DateTime).
func asTime(v interface{}) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case primitive.DateTime:
		return t.Time()
	default:
		return time.Time{}
	}
}

// decodeAll декодирует документы в result (указатель на срез структур).
func decodeAll(docs []bson.M, result interface{}) error {
	rv := reflect.ValueOf(result).Elem()
	slice := reflect.MakeSlice(rv.Type(), 0, len(docs))
	elemType := rv.Type().Elem()

	for _, doc := range docs {
		raw, err := bson.Marshal(doc)
		if err != nil {
			return err
		}
		elem := reflect.New(elemType)
		if err := bson.Unmarshal(raw, elem.Interface()); err != nil {
			return err
		}
		slice = reflect.Append(slice, elem.Elem())
	}

	rv.Set(slice)
	return nil
}
