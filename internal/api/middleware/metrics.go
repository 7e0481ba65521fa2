// metrics.go — Prometheus HTTP метрики AutoML Backend.
// Регистрирует метрики: aml_http_requests_total, aml_http_request_duration_seconds.
// Метрики движка очистки регистрируются в сервисном слое.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aml_http_requests_total",
			Help: "Общее количество HTTP-запросов к AutoML Backend",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aml_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к AutoML Backend в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Метрики хранилища (обновляются монитором дискового пространства)
var (
	// StorageBytes — объём занятого дискового пространства по директориям (gauge).
	StorageBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aml_storage_bytes",
			Help: "Объём занятого дискового пространства по директориям в байтах",
		},
		[]string{"dir"},
	)

	// FilesTotal — текущее количество артефактов по директориям (gauge).
	FilesTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aml_files_total",
			Help: "Текущее количество артефактов по директориям",
		},
		[]string{"dir"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			// (заменяем переменные сегменты для предотвращения кардинальности)
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// pathParams — endpoints вида /api/v1/{group}/{action}/{param}:
// последний сегмент заменяется плейсхолдером.
var pathParams = map[string]string{
	"eda/view":           "{filename}",
	"eda/download":       "{filename}",
	"eda/list":           "{user_id}",
	"eda/delete":         "{filename}",
	"models/list":        "{user_id}",
	"models/download":    "{filename}",
	"models/metrics":     "{filename}",
	"models/delete":      "{filename}",
	"models/predictions": "{user_id}",
	"plots/list":         "{user_id}",
	"cleanup/user":       "{user_id}",
}

// normalizePath заменяет переменные сегменты пути на плейсхолдеры.
// /api/v1/eda/view/u1_sales_20240101_120000_ab12cd34.html → /api/v1/eda/view/{filename}
func normalizePath(path string) string {
	const prefix = "/api/v1/"
	if !strings.HasPrefix(path, prefix) {
		return path
	}
	rest := strings.TrimPrefix(path, prefix)
	parts := strings.SplitN(rest, "/", 3)

	// /api/v1/plots/{filename} — единственный endpoint с параметром
	// сразу после группы
	if len(parts) == 2 && parts[0] == "plots" && parts[1] != "list" {
		return prefix + "plots/{filename}"
	}

	if len(parts) >= 3 {
		if placeholder, ok := pathParams[parts[0]+"/"+parts[1]]; ok {
			return prefix + parts[0] + "/" + parts[1] + "/" + placeholder
		}
	}
	return path
}
