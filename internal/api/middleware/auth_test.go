package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// testKeyID — идентификатор ключа для тестов.
const testKeyID = "test-key"

// generateTestKey генерирует RSA ключ для тестов.
func generateTestKey() (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, 2048)
}

// generateTestToken генерирует JWT токен для тестов.
func generateTestToken(key *rsa.PrivateKey, claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	return token.SignedString(key)
}

// buildJWKSetJSON строит JWKS JSON из RSA публичного ключа.
func buildJWKSetJSON(pub *rsa.PublicKey, kid string) json.RawMessage {
	nB64 := base64.RawURLEncoding.EncodeToString(pub.N.Bytes())
	eB64 := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes())

	jwks := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": kid,
				"use": "sig",
				"alg": "RS256",
				"n":   nB64,
				"e":   eB64,
			},
		},
	}

	data, _ := json.Marshal(jwks)
	return data
}

// newTestJWTAuth создаёт JWTAuth с RSA ключом для тестов.
func newTestJWTAuth(key *rsa.PrivateKey) *JWTAuth {
	jwksJSON := buildJWKSetJSON(&key.PublicKey, testKeyID)
	kf, err := keyfunc.NewJWKSetJSON(jwksJSON)
	if err != nil {
		panic("не удалось создать keyfunc из JWKS JSON: " + err.Error())
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewJWTAuthWithKeyfunc(kf, 30*time.Second, logger)
}

// TestJWTAuth_ValidToken проверяет валидный JWT.
func TestJWTAuth_ValidToken(t *testing.T) {
	key, err := generateTestKey()
	if err != nil {
		t.Fatal(err)
	}

	auth := newTestJWTAuth(key)
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub := SubjectFromContext(r.Context())
		scopes := ScopesFromContext(r.Context())

		if sub != "u1" {
			t.Errorf("ожидался sub=u1, получен %s", sub)
		}
		if len(scopes) != 2 || scopes[0] != "models:read" {
			t.Errorf("неожиданные scopes: %v", scopes)
		}

		w.WriteHeader(http.StatusOK)
	}))

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			NotBefore: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		ScopeArray: []string{"models:read", "models:write"},
	}

	tokenString, err := generateTestToken(key, claims)
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/models/list/u1", nil)
	req.Header.Set("Authorization", "Bearer "+tokenString)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("ожидался статус 200, получен %d, тело: %s", rec.Code, rec.Body.String())
	}
}

// TestJWTAuth_MissingToken проверяет отсутствие Authorization header.
func TestJWTAuth_MissingToken(t *testing.T) {
	key, _ := generateTestKey()
	auth := newTestJWTAuth(key)
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler не должен быть вызван")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/models/list/u1", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("ожидался статус 401, получен %d", rec.Code)
	}
}

// TestJWTAuth_ExpiredToken проверяет просроченный токен.
func TestJWTAuth_ExpiredToken(t *testing.T) {
	key, _ := generateTestKey()
	auth := newTestJWTAuth(key)
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler не должен быть вызван")
	}))

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
		ScopeArray: []string{"models:read"},
	}

	tokenString, _ := generateTestToken(key, claims)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/models/list/u1", nil)
	req.Header.Set("Authorization", "Bearer "+tokenString)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("ожидался статус 401, получен %d", rec.Code)
	}
}

// TestJWTAuth_InvalidFormat проверяет некорректный формат Authorization.
func TestJWTAuth_InvalidFormat(t *testing.T) {
	key, _ := generateTestKey()
	auth := newTestJWTAuth(key)
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler не должен быть вызван")
	}))

	tests := []struct {
		name   string
		header string
	}{
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"no bearer prefix", "token123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/models/list/u1", nil)
			req.Header.Set("Authorization", tt.header)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("ожидался статус 401, получен %d", rec.Code)
			}
		})
	}
}

// TestJWTAuth_ScopeString проверяет scope в формате пробело-разделённой строки.
func TestJWTAuth_ScopeString(t *testing.T) {
	c := Claims{ScopeString: "models:read cleanup:admin"}
	scopes := c.Scopes()
	if len(scopes) != 2 || scopes[1] != "cleanup:admin" {
		t.Errorf("неожиданные scopes: %v", scopes)
	}
}

// TestRequireScope_HasScope проверяет наличие нужного scope.
func TestRequireScope_HasScope(t *testing.T) {
	handler := RequireScope("cleanup:admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	ctx := context.WithValue(context.Background(), ContextKeyScopes, []string{"models:read", "cleanup:admin"})
	req := httptest.NewRequest(http.MethodPost, "/", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("ожидался статус 200, получен %d", rec.Code)
	}
}

// TestRequireScope_MissingScope проверяет отсутствие нужного scope.
func TestRequireScope_MissingScope(t *testing.T) {
	handler := RequireScope("cleanup:admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler не должен быть вызван")
	}))

	ctx := context.WithValue(context.Background(), ContextKeyScopes, []string{"models:read"})
	req := httptest.NewRequest(http.MethodPost, "/", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("ожидался статус 403, получен %d", rec.Code)
	}
}

// TestRequireScope_NoScopes проверяет отсутствие scopes в контексте.
func TestRequireScope_NoScopes(t *testing.T) {
	handler := RequireScope("cleanup:admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler не должен быть вызван")
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("ожидался статус 403, получен %d", rec.Code)
	}
}

func TestSubjectFromContext_Empty(t *testing.T) {
	if sub := SubjectFromContext(context.Background()); sub != "" {
		t.Errorf("ожидалась пустая строка, получено %q", sub)
	}
}

func TestSubjectFromContext_WithValue(t *testing.T) {
	ctx := context.WithValue(context.Background(), ContextKeySubject, "u1")
	if sub := SubjectFromContext(ctx); sub != "u1" {
		t.Errorf("ожидалось u1, получено %q", sub)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health/live", "/health/live"},
		{"/metrics", "/metrics"},
		{"/api/v1/eda/generate", "/api/v1/eda/generate"},
		{"/api/v1/eda/view/u1_sales_20240101_120000_ab12cd34.html", "/api/v1/eda/view/{filename}"},
		{"/api/v1/eda/list/u1", "/api/v1/eda/list/{user_id}"},
		{"/api/v1/models/delete/u1_sales_20240101_120000_ab12cd34.pkl", "/api/v1/models/delete/{filename}"},
		{"/api/v1/plots/u1_sales_confusion_20240101_120000_ab12cd34.png", "/api/v1/plots/{filename}"},
		{"/api/v1/plots/list/u1", "/api/v1/plots/list/{user_id}"},
		{"/api/v1/cleanup/user/u1", "/api/v1/cleanup/user/{user_id}"},
		{"/api/v1/cleanup/system", "/api/v1/cleanup/system"},
	}
	for _, tt := range tests {
		if got := normalizePath(tt.path); got != tt.want {
			t.Errorf("normalizePath(%s): ожидалось %s, получено %s", tt.path, tt.want, got)
		}
	}
}
