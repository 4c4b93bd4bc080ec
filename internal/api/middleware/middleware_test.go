package middleware_test

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/xzax/axdns/internal/api/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func okHandler(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) }

func TestRequireAPIKey(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		sent     string
		want     int
	}{
		{"valid key", "test-secret", "test-secret", http.StatusOK},
		{"wrong key", "correct-key", "wrong-key", http.StatusUnauthorized},
		{"missing key", "expected-key", "", http.StatusUnauthorized},
		{"prefix of key", "expected-key", "expected", http.StatusUnauthorized},
		{"check disabled", "", "", http.StatusOK},
		{"check disabled with key sent", "", "some-key", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(middleware.RequireAPIKey(tt.expected))
			router.GET("/test", okHandler)

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.sent != "" {
				req.Header.Set(middleware.APIKeyHeader, tt.sent)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusUnauthorized {
				assert.JSONEq(t, `{"error":"unauthorized"}`, w.Body.String())
			}
		})
	}
}

func TestSlogRequestLogger_NilLogger(t *testing.T) {
	router := gin.New()
	router.Use(middleware.SlogRequestLogger(nil))
	router.GET("/test", okHandler)

	w := httptest.NewRecorder()
	assert.NotPanics(t, func() { router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil)) })
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMiddlewareChain(t *testing.T) {
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.SlogRequestLogger(nil), middleware.RequireAPIKey("secret"))
	router.GET("/protected", okHandler)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(middleware.APIKeyHeader, "secret")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/protected", nil))
	assert.Equal(t, http.StatusUnauthorized, w2.Code)
	assert.NotEmpty(t, w2.Header().Get(middleware.RequestIDHeader), "rejected requests still carry an ID")
}

// ============================================================================
// RequestID Middleware Tests
// ============================================================================

func TestRequestID_GeneratesID(t *testing.T) {
	router := gin.New()
	router.Use(middleware.RequestID())
	var seen string
	router.GET("/test", func(c *gin.Context) {
		seen = middleware.GetRequestID(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Len(t, seen, 36, "expected a UUID")
	assert.Equal(t, seen, w.Header().Get(middleware.RequestIDHeader))
}

func TestRequestID_KeepsCallerID(t *testing.T) {
	router := gin.New()
	router.Use(middleware.RequestID())
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(middleware.RequestIDHeader, "trace-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "trace-123", w.Header().Get(middleware.RequestIDHeader))
}

func TestSlogRequestLogger_IncludesRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	router := gin.New()
	router.Use(middleware.RequestID(), middleware.SlogRequestLogger(logger))
	router.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(middleware.RequestIDHeader, "abc")
	router.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "request_id=abc")
	assert.Contains(t, out, "status=500")
}
