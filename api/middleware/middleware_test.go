package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/flowmatic/harvester/config"
)

func middlewareEngine(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw)
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func get(r *gin.Engine, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestAuth_OpenWhenNoKeysConfigured(t *testing.T) {
	r := middlewareEngine(Auth(nil))
	if w := get(r, nil); w.Code != http.StatusOK {
		t.Errorf("expected open access, got %d", w.Code)
	}
}

func TestAuth_AcceptsHeaderAndBearer(t *testing.T) {
	r := middlewareEngine(Auth([]string{"k1"}))

	if w := get(r, map[string]string{"X-API-Key": "k1"}); w.Code != http.StatusOK {
		t.Errorf("X-API-Key rejected: %d", w.Code)
	}
	if w := get(r, map[string]string{"Authorization": "Bearer k1"}); w.Code != http.StatusOK {
		t.Errorf("bearer token rejected: %d", w.Code)
	}
}

func TestAuth_RejectsMissingAndWrongKeys(t *testing.T) {
	r := middlewareEngine(Auth([]string{"k1"}))

	if w := get(r, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("missing key: expected 401, got %d", w.Code)
	}
	if w := get(r, map[string]string{"X-API-Key": "wrong"}); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: expected 401, got %d", w.Code)
	}
}

func TestRateLimit_BlocksPastBurst(t *testing.T) {
	r := middlewareEngine(RateLimit(config.RateLimitConfig{RequestsPerSecond: 1, Burst: 2}))

	for i := 0; i < 2; i++ {
		if w := get(r, nil); w.Code != http.StatusOK {
			t.Fatalf("request %d within burst rejected: %d", i+1, w.Code)
		}
	}
	if w := get(r, nil); w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 past burst, got %d", w.Code)
	}
}
