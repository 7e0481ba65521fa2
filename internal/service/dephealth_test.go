package service

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// newWorkerStub поднимает mock worker с /health endpoint.
func newWorkerStub(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
}

func TestNewDephealthService_ValidURL(t *testing.T) {
	worker := newWorkerStub(t)
	defer worker.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	// Используем изолированный Prometheus registry для тестов
	reg := prometheus.NewRegistry()

	ds, err := NewDephealthServiceWithRegisterer(
		"automl-backend-test",
		"automl-backend",
		"automl-worker",
		worker.URL,
		5*time.Second,
		logger,
		reg,
	)

	if err != nil {
		t.Fatalf("Ошибка создания DephealthService: %v", err)
	}
	if ds == nil {
		t.Fatal("DephealthService nil")
	}
}

func TestDephealthService_StartStop(t *testing.T) {
	worker := newWorkerStub(t)
	defer worker.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	reg := prometheus.NewRegistry()

	ds, err := NewDephealthServiceWithRegisterer(
		"automl-backend-test-2",
		"automl-backend",
		"automl-worker",
		worker.URL,
		1*time.Second,
		logger,
		reg,
	)
	if err != nil {
		t.Fatalf("Ошибка создания DephealthService: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start не должен блокировать
	if err := ds.Start(ctx); err != nil {
		t.Fatalf("Ошибка запуска DephealthService: %v", err)
	}

	ds.Stop()
}
