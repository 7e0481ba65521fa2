package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func newTestUsers(t *testing.T) (*UserService, *memStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	meta := newMemStore()
	return NewUserService(meta, logger), meta
}

func TestInitUser(t *testing.T) {
	svc, meta := newTestUsers(t)
	ctx := context.Background()

	user, created, err := svc.InitUser(ctx, "u1", "u1@example.com", "User One")
	if err != nil {
		t.Fatalf("InitUser: %v", err)
	}
	if !created {
		t.Error("ожидалось created=true для нового пользователя")
	}
	if user.UserID != "u1" || user.Email != "u1@example.com" {
		t.Errorf("неожиданный документ пользователя: %+v", user)
	}
	if user.CreatedAt.IsZero() {
		t.Error("ожидалось серверное created_at")
	}
	if n := meta.count("users"); n != 1 {
		t.Errorf("ожидался 1 документ users, получено %d", n)
	}
}

func TestInitUser_Existing(t *testing.T) {
	svc, meta := newTestUsers(t)
	ctx := context.Background()

	if _, _, err := svc.InitUser(ctx, "u1", "u1@example.com", ""); err != nil {
		t.Fatalf("первый InitUser: %v", err)
	}

	user, created, err := svc.InitUser(ctx, "u1", "other@example.com", "")
	if err != nil {
		t.Fatalf("повторный InitUser: %v", err)
	}
	if created {
		t.Error("ожидалось created=false для существующего пользователя")
	}
	// Документ не перезаписан
	if user.Email != "u1@example.com" {
		t.Errorf("ожидался исходный email, получено %s", user.Email)
	}
	if n := meta.count("users"); n != 1 {
		t.Errorf("ожидался 1 документ users, получено %d", n)
	}
}

func TestInitUser_EmptyID(t *testing.T) {
	svc, _ := newTestUsers(t)

	_, _, err := svc.InitUser(context.Background(), "", "", "")
	var svcErr *Error
	if !errors.As(err, &svcErr) || svcErr.StatusCode != 400 {
		t.Errorf("ожидался статус 400, получено %v", err)
	}
}

func TestInitUser_MetaError(t *testing.T) {
	svc, meta := newTestUsers(t)
	meta.failAll = true
	meta.failInsert = true

	_, _, err := svc.InitUser(context.Background(), "u1", "", "")
	var svcErr *Error
	if !errors.As(err, &svcErr) || svcErr.StatusCode != 500 {
		t.Errorf("ожидался статус 500, получено %v", err)
	}
}
