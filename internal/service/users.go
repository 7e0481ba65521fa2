// users.go — регистрация пользователей.
// user_id приходит из внешней аутентификации и уникален в коллекции
// users. Повторная инициализация того же пользователя не ошибка:
// возвращается существующий документ.
package service

import (
	"context"
	"errors"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/ezahpizza/automl-backend/internal/domain/model"
	"github.com/ezahpizza/automl-backend/internal/storage/metastore"
)

// UserService — сервис регистрации пользователей.
type UserService struct {
	meta   MetaStore
	logger *slog.Logger
}

// NewUserService создаёт сервис пользователей.
func NewUserService(meta MetaStore, logger *slog.Logger) *UserService {
	return &UserService{
		meta:   meta,
		logger: logger.With(slog.String("component", "users")),
	}
}

// InitUser создаёт документ пользователя, если его ещё нет.
// Возвращает документ и признак created.
func (s *UserService) InitUser(ctx context.Context, userID, email, name string) (*model.User, bool, error) {
	if userID == "" {
		return nil, false, NewValidationError("user_id не может быть пустым")
	}

	user := model.User{UserID: userID, Email: email, Name: name}
	err := s.meta.Insert(ctx, model.CollectionUsers, user)
	if err == nil {
		s.logger.Info("Пользователь зарегистрирован", slog.String("user_id", userID))
		var created model.User
		if err := s.meta.FindOne(ctx, model.CollectionUsers, bson.M{"user_id": userID}, &created); err != nil {
			return nil, false, NewPersistenceError("чтение пользователя: %v", err)
		}
		return &created, true, nil
	}
	if !errors.Is(err, metastore.ErrDuplicateKey) {
		return nil, false, NewPersistenceError("создание пользователя: %v", err)
	}

	// Уже существует
	var existing model.User
	if err := s.meta.FindOne(ctx, model.CollectionUsers, bson.M{"user_id": userID}, &existing); err != nil {
		return nil, false, NewPersistenceError("чтение пользователя: %v", err)
	}
	return &existing, false, nil
}
