package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/ezahpizza/automl-backend/internal/domain/model"
	"github.com/ezahpizza/automl-backend/internal/service"
)

// fakeCleanupRunner — подмена движка очистки для тестов handler'а.
type fakeCleanupRunner struct {
	purgedUser     string
	lastHours      int
	lastDryRun     bool
	orphanedCalls  int
	lastLogsLimit  int64
	failWith       error
}

func (f *fakeCleanupRunner) PurgeUser(_ context.Context, userID string) (*service.CleanupResult, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.purgedUser = userID
	return &service.CleanupResult{
		FilesDeleted:   []string{"u1_sales_20240101_120000_ab12cd34.pkl"},
		RecordsDeleted: map[string]int64{"model_jobs": 1, "users": 1},
	}, nil
}

func (f *fakeCleanupRunner) PurgeOlderThan(_ context.Context, maxAgeHours int, dryRun bool) (*service.CleanupResult, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.lastHours = maxAgeHours
	f.lastDryRun = dryRun
	return &service.CleanupResult{
		FilesDeleted:   []string{},
		RecordsDeleted: map[string]int64{},
		DryRun:         dryRun,
	}, nil
}

func (f *fakeCleanupRunner) ReconcileOrphans(_ context.Context) (*service.CleanupResult, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.orphanedCalls++
	return &service.CleanupResult{
		FilesDeleted:   []string{},
		RecordsDeleted: map[string]int64{"model_jobs": 2},
	}, nil
}

func (f *fakeCleanupRunner) GetStatistics(_ context.Context) (*service.Statistics, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return &service.Statistics{RetentionHours: 24}, nil
}

func (f *fakeCleanupRunner) GetLogs(_ context.Context, limit int64) ([]model.CleanupLog, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.lastLogsLimit = limit
	return []model.CleanupLog{{OperationType: model.OpSystemCleanup}}, nil
}

// newCleanupRouter монтирует handler на chi-роутер как в server.
func newCleanupRouter(runner CleanupRunner) http.Handler {
	h := NewCleanupHandler(runner, 24)
	r := chi.NewRouter()
	r.Post("/api/v1/cleanup/user/{userID}", h.PurgeUser)
	r.Post("/api/v1/cleanup/system", h.PurgeSystem)
	r.Post("/api/v1/cleanup/orphaned", h.PurgeOrphaned)
	r.Get("/api/v1/cleanup/status", h.Status)
	r.Get("/api/v1/cleanup/logs", h.Logs)
	return r
}

func TestPurgeUserHandler_RequiresConfirmation(t *testing.T) {
	runner := &fakeCleanupRunner{}
	router := newCleanupRouter(runner)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cleanup/user/u1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("ожидался статус 400, получен %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "CONFIRMATION_REQUIRED") {
		t.Errorf("ожидался код CONFIRMATION_REQUIRED, тело: %s", rec.Body.String())
	}
	if runner.purgedUser != "" {
		t.Error("очистка не должна выполняться без confirm=true")
	}
}

func TestPurgeUserHandler_Confirmed(t *testing.T) {
	runner := &fakeCleanupRunner{}
	router := newCleanupRouter(runner)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cleanup/user/u1?confirm=true", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d, тело: %s", rec.Code, rec.Body.String())
	}
	if runner.purgedUser != "u1" {
		t.Errorf("ожидалась очистка u1, получено %q", runner.purgedUser)
	}

	var result service.CleanupResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("декодирование ответа: %v", err)
	}
	if result.RecordsDeleted["users"] != 1 {
		t.Errorf("неожиданный результат: %+v", result)
	}
}

func TestPurgeSystemHandler(t *testing.T) {
	runner := &fakeCleanupRunner{}
	router := newCleanupRouter(runner)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cleanup/system?hours=48&dry_run=true", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d", rec.Code)
	}
	if runner.lastHours != 48 {
		t.Errorf("ожидалось hours=48, получено %d", runner.lastHours)
	}
	if !runner.lastDryRun {
		t.Error("ожидался dry_run=true")
	}
}

func TestPurgeSystemHandler_DefaultHours(t *testing.T) {
	runner := &fakeCleanupRunner{}
	router := newCleanupRouter(runner)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cleanup/system", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d", rec.Code)
	}
	// Без параметра hours применяется настроенное окно хранения
	if runner.lastHours != 24 {
		t.Errorf("ожидалось hours=24, получено %d", runner.lastHours)
	}
	if runner.lastDryRun {
		t.Error("dry_run не должен включаться по умолчанию")
	}
}

func TestPurgeSystemHandler_InvalidHours(t *testing.T) {
	runner := &fakeCleanupRunner{}
	router := newCleanupRouter(runner)

	for _, raw := range []string{"abc", "-5", "0"} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/cleanup/system?hours="+raw, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("hours=%s: ожидался статус 400, получен %d", raw, rec.Code)
		}
	}
}

func TestPurgeOrphanedHandler(t *testing.T) {
	runner := &fakeCleanupRunner{}
	router := newCleanupRouter(runner)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cleanup/orphaned", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d", rec.Code)
	}
	if runner.orphanedCalls != 1 {
		t.Errorf("ожидался 1 вызов ReconcileOrphans, получено %d", runner.orphanedCalls)
	}
}

func TestCleanupStatusHandler(t *testing.T) {
	runner := &fakeCleanupRunner{}
	router := newCleanupRouter(runner)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cleanup/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d", rec.Code)
	}

	var stats service.Statistics
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("декодирование ответа: %v", err)
	}
	if stats.RetentionHours != 24 {
		t.Errorf("ожидался retention 24, получено %d", stats.RetentionHours)
	}
}

func TestCleanupLogsHandler(t *testing.T) {
	runner := &fakeCleanupRunner{}
	router := newCleanupRouter(runner)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cleanup/logs?limit=10", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d", rec.Code)
	}
	if runner.lastLogsLimit != 10 {
		t.Errorf("ожидался limit=10, получено %d", runner.lastLogsLimit)
	}
}

func TestCleanupLogsHandler_DefaultLimit(t *testing.T) {
	runner := &fakeCleanupRunner{}
	router := newCleanupRouter(runner)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cleanup/logs", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d", rec.Code)
	}
	if runner.lastLogsLimit != 50 {
		t.Errorf("ожидался limit=50 по умолчанию, получено %d", runner.lastLogsLimit)
	}
}

func TestCleanupHandler_ServiceError(t *testing.T) {
	runner := &fakeCleanupRunner{
		failWith: service.NewPersistenceError("база недоступна"),
	}
	router := newCleanupRouter(runner)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cleanup/user/u1?confirm=true", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("ожидался статус 500, получен %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "PERSISTENCE_ERROR") {
		t.Errorf("ожидался код PERSISTENCE_ERROR, тело: %s", rec.Body.String())
	}
}
