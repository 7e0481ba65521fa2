// JWKS Mock Server — вспомогательный сервис тестовой среды AutoML Backend.
// Имитирует JWKS endpoint провайдера аутентификации: генерирует RSA
// ключевую пару при старте, отдаёт JWKS по GET /jwks и подписывает JWT
// по POST /token. Токены совместимы с auth middleware бэкенда: claim
// "scopes" (массив) либо "scope" (пробело-разделённая строка).
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const keyID = "mock-key-1"

// config хранит конфигурацию сервиса из env-переменных.
type config struct {
	Port    string // MOCK_PORT — порт HTTP-сервера (default: 8080)
	KeySize int    // MOCK_KEY_SIZE — размер RSA ключа (default: 2048)
}

func loadConfig() config {
	cfg := config{
		Port:    "8080",
		KeySize: 2048,
	}

	if v := os.Getenv("MOCK_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("MOCK_KEY_SIZE"); v != "" {
		if size, err := strconv.Atoi(v); err == nil && size >= 1024 {
			cfg.KeySize = size
		}
	}

	return cfg
}

// jwksKey представляет один ключ в JWKS (RFC 7517).
type jwksKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwksResponse struct {
	Keys []jwksKey `json:"keys"`
}

// buildJWKS формирует JWKS из публичного RSA ключа.
func buildJWKS(pub *rsa.PublicKey) jwksResponse {
	return jwksResponse{
		Keys: []jwksKey{
			{
				Kty: "RSA",
				Kid: keyID,
				Use: "sig",
				Alg: "RS256",
				N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}
}

// tokenRequest — тело запроса POST /token.
type tokenRequest struct {
	Sub        string   `json:"sub"`          // Subject — user_id (обязательно)
	Scopes     []string `json:"scopes"`       // Список scope'ов
	AsString   bool     `json:"scope_string"` // Выдать scopes строковым claim "scope"
	TTLSeconds int      `json:"ttl_seconds"`  // Время жизни токена (default: 3600)
}

type tokenResponse struct {
	Token string `json:"token"`
}

// mockClaims — JWT claims в формате, который принимает auth middleware.
type mockClaims struct {
	jwt.RegisteredClaims
	Scope  string   `json:"scope,omitempty"`
	Scopes []string `json:"scopes,omitempty"`
}

// server объединяет состояние сервиса: RSA ключ и кэшированный JWKS.
type server struct {
	privateKey   *rsa.PrivateKey
	jwksResponse []byte
	logger       *slog.Logger
}

// handleJWKS обрабатывает GET /jwks.
func (s *server) handleJWKS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(s.jwksResponse)
}

// handleToken обрабатывает POST /token — возвращает подписанный JWT.
func (s *server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Невалидный JSON: "+err.Error())
		return
	}

	if req.Sub == "" {
		writeError(w, http.StatusBadRequest, "Поле 'sub' обязательно")
		return
	}

	ttl := req.TTLSeconds
	if ttl <= 0 {
		ttl = 3600
	}

	now := time.Now()
	claims := mockClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   req.Sub,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(ttl) * time.Second)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "automl-jwks-mock",
		},
	}
	if req.AsString {
		claims.Scope = strings.Join(req.Scopes, " ")
	} else {
		claims.Scopes = req.Scopes
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = keyID

	tokenString, err := token.SignedString(s.privateKey)
	if err != nil {
		s.logger.Error("Ошибка подписи JWT", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Ошибка генерации токена")
		return
	}

	s.logger.Info("Токен выдан",
		slog.String("sub", req.Sub),
		slog.Int("scopes_count", len(req.Scopes)),
		slog.Int("ttl_seconds", ttl),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(tokenResponse{Token: tokenString})
}

// handleHealth обрабатывает GET /health.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// writeError отправляет JSON-ошибку клиенту.
func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

func main() {
	cfg := loadConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Генерация RSA ключевой пары", slog.Int("key_size", cfg.KeySize))
	privateKey, err := rsa.GenerateKey(rand.Reader, cfg.KeySize)
	if err != nil {
		logger.Error("Ошибка генерации RSA ключа", slog.String("error", err.Error()))
		os.Exit(1)
	}

	jwksBytes, err := json.Marshal(buildJWKS(&privateKey.PublicKey))
	if err != nil {
		logger.Error("Ошибка сериализации JWKS", slog.String("error", err.Error()))
		os.Exit(1)
	}

	srv := &server{
		privateKey:   privateKey,
		jwksResponse: jwksBytes,
		logger:       logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/jwks", srv.handleJWKS)
	mux.HandleFunc("/token", srv.handleToken)
	mux.HandleFunc("/health", srv.handleHealth)

	addr := ":" + cfg.Port
	logger.Info("Запуск JWKS Mock Server", slog.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
