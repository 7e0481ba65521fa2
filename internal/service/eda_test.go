package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/ezahpizza/automl-backend/internal/storage/filestore"
	"github.com/ezahpizza/automl-backend/internal/worker"
)

const sampleCSV = "age,income,target\n25,50000,0\n34,72000,1\n41,61000,0\n"

// fakeProfiler имитирует worker: пишет HTML-отчёт по указанному пути.
type fakeProfiler struct {
	calls   int
	failErr error
}

func (p *fakeProfiler) Profile(_ context.Context, req *worker.ProfileRequest) (*worker.ProfileResult, error) {
	p.calls++
	if p.failErr != nil {
		return nil, p.failErr
	}
	report := []byte("<html><body>report</body></html>")
	if err := os.WriteFile(req.ReportPath, report, 0o640); err != nil {
		return nil, err
	}
	return &worker.ProfileResult{ReportSize: int64(len(report)), Rows: 3, Columns: 3}, nil
}

func newTestEDA(t *testing.T) (*EDAService, *filestore.Store, *memStore, *fakeProfiler) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	store, err := filestore.New(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("создание хранилища: %v", err)
	}
	meta := newMemStore()
	profiler := &fakeProfiler{}
	svc := NewEDAService(store, meta, profiler, 5000, 50, logger)
	return svc, store, meta, profiler
}

func TestGenerateReport(t *testing.T) {
	svc, store, meta, profiler := newTestEDA(t)

	result, err := svc.GenerateReport(context.Background(), &EDAParams{
		Reader:           strings.NewReader(sampleCSV),
		OriginalFilename: "sales.csv",
		UserID:           "u1",
		DatasetName:      "sales",
	})
	if err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}

	if profiler.calls != 1 {
		t.Errorf("ожидался 1 вызов worker, получено %d", profiler.calls)
	}
	if !strings.HasPrefix(result.Filename, "u1_sales_") {
		t.Errorf("неожиданное имя отчёта: %s", result.Filename)
	}
	if !strings.HasSuffix(result.Filename, ".html") {
		t.Errorf("ожидалось расширение .html, получено %s", result.Filename)
	}
	if result.DatasetRows != 3 || result.DatasetColumns != 3 {
		t.Errorf("ожидалась форма 3x3, получено %dx%d", result.DatasetRows, result.DatasetColumns)
	}
	if result.ReportURL != "/api/v1/eda/view/"+result.Filename {
		t.Errorf("неожиданный URL отчёта: %s", result.ReportURL)
	}

	// Документ создан
	if n := meta.count("eda_jobs"); n != 1 {
		t.Errorf("ожидался 1 документ eda_jobs, получено %d", n)
	}

	// Файл отчёта на месте, временный датасет удалён
	if !store.Exists(store.Path("eda_reports", result.Filename)) {
		t.Error("файл отчёта не найден")
	}
	if n := store.CountFiles(store.Dir("tmp")); n != 0 {
		t.Errorf("ожидалась пустая tmp, получено %d файлов", n)
	}
}

func TestGenerateReport_ValidationFailure(t *testing.T) {
	svc, store, meta, profiler := newTestEDA(t)

	tests := []struct {
		name string
		csv  string
	}{
		{"пустой датасет", ""},
		{"только заголовок", "a,b,c\n"},
		{"рваная строка", "a,b,c\n1,2\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.GenerateReport(context.Background(), &EDAParams{
				Reader:           strings.NewReader(tc.csv),
				OriginalFilename: "bad.csv",
				UserID:           "u1",
			})
			if err == nil {
				t.Fatal("ожидалась ошибка валидации")
			}
			var svcErr *Error
			if !errors.As(err, &svcErr) || svcErr.StatusCode != 400 {
				t.Errorf("ожидался статус 400, получено %v", err)
			}
		})
	}

	// Ни вызовов worker, ни документов, ни временных файлов
	if profiler.calls != 0 {
		t.Errorf("ожидалось 0 вызовов worker, получено %d", profiler.calls)
	}
	if n := meta.count("eda_jobs"); n != 0 {
		t.Errorf("ожидалось 0 документов, получено %d", n)
	}
	if n := store.CountFiles(store.Dir("tmp")); n != 0 {
		t.Errorf("ожидалась пустая tmp, получено %d файлов", n)
	}
}

func TestGenerateReport_TooManyColumns(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	store, err := filestore.New(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("создание хранилища: %v", err)
	}
	svc := NewEDAService(store, newMemStore(), &fakeProfiler{}, 5000, 2, logger)

	_, err = svc.GenerateReport(context.Background(), &EDAParams{
		Reader:           strings.NewReader(sampleCSV),
		OriginalFilename: "wide.csv",
		UserID:           "u1",
	})
	var svcErr *Error
	if !errors.As(err, &svcErr) || svcErr.Code != "DATASET_TOO_LARGE" {
		t.Errorf("ожидался код DATASET_TOO_LARGE, получено %v", err)
	}
}

func TestGenerateReport_WorkerFailure(t *testing.T) {
	svc, store, meta, profiler := newTestEDA(t)
	profiler.failErr = errors.New("worker упал")

	_, err := svc.GenerateReport(context.Background(), &EDAParams{
		Reader:           strings.NewReader(sampleCSV),
		OriginalFilename: "sales.csv",
		UserID:           "u1",
	})
	var svcErr *Error
	if !errors.As(err, &svcErr) || svcErr.StatusCode != 502 {
		t.Errorf("ожидался статус 502, получено %v", err)
	}
	if n := meta.count("eda_jobs"); n != 0 {
		t.Errorf("ожидалось 0 документов после ошибки worker, получено %d", n)
	}
	if n := store.CountFiles(store.Dir("tmp")); n != 0 {
		t.Errorf("временный датасет не удалён после ошибки worker")
	}
}

func TestListReports(t *testing.T) {
	svc, _, _, _ := newTestEDA(t)
	ctx := context.Background()

	for _, name := range []string{"first", "second", "third"} {
		if _, err := svc.GenerateReport(ctx, &EDAParams{
			Reader:           strings.NewReader(sampleCSV),
			OriginalFilename: name + ".csv",
			UserID:           "u1",
			DatasetName:      name,
		}); err != nil {
			t.Fatalf("GenerateReport %s: %v", name, err)
		}
	}
	if _, err := svc.GenerateReport(ctx, &EDAParams{
		Reader:           strings.NewReader(sampleCSV),
		OriginalFilename: "other.csv",
		UserID:           "u2",
	}); err != nil {
		t.Fatalf("GenerateReport u2: %v", err)
	}

	reports, err := svc.ListReports(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(reports) != 3 {
		t.Fatalf("ожидалось 3 отчёта, получено %d", len(reports))
	}
	for _, r := range reports {
		if r.UserID != "u1" {
			t.Errorf("чужой отчёт в выдаче: %s", r.Filename)
		}
	}

	limited, err := svc.ListReports(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("ListReports limit: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("ожидалось 2 отчёта с limit=2, получено %d", len(limited))
	}

	empty, err := svc.ListReports(ctx, "nobody", 0)
	if err != nil {
		t.Fatalf("ListReports nobody: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("ожидался пустой список, получено %v", empty)
	}
}

func TestReportPath(t *testing.T) {
	svc, _, _, _ := newTestEDA(t)

	result, err := svc.GenerateReport(context.Background(), &EDAParams{
		Reader:           strings.NewReader(sampleCSV),
		OriginalFilename: "sales.csv",
		UserID:           "u1",
	})
	if err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}

	path, err := svc.ReportPath(result.Filename)
	if err != nil {
		t.Fatalf("ReportPath: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("файл отчёта недоступен: %v", err)
	}

	_, err = svc.ReportPath("u1_missing_20240101_120000_ab12cd34.html")
	var svcErr *Error
	if !errors.As(err, &svcErr) || svcErr.StatusCode != 404 {
		t.Errorf("ожидался статус 404, получено %v", err)
	}
}

func TestDeleteReport(t *testing.T) {
	svc, store, meta, _ := newTestEDA(t)
	ctx := context.Background()

	result, err := svc.GenerateReport(ctx, &EDAParams{
		Reader:           strings.NewReader(sampleCSV),
		OriginalFilename: "sales.csv",
		UserID:           "u1",
	})
	if err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}

	deleted, err := svc.DeleteReport(ctx, result.Filename)
	if err != nil {
		t.Fatalf("DeleteReport: %v", err)
	}
	if !deleted {
		t.Error("ожидалось deleted=true")
	}
	if store.Exists(store.Path("eda_reports", result.Filename)) {
		t.Error("файл отчёта не удалён")
	}
	if n := meta.count("eda_jobs"); n != 0 {
		t.Errorf("документ отчёта не удалён, осталось %d", n)
	}

	// Повторное удаление безопасно
	deleted, err = svc.DeleteReport(ctx, result.Filename)
	if err != nil {
		t.Fatalf("повторный DeleteReport: %v", err)
	}
	if deleted {
		t.Error("ожидалось deleted=false при повторном удалении")
	}
}
