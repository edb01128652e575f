package ratelimit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRateLimitedEcho(cfg *Config) *echo.Echo {
	e := echo.New()
	e.Use(Middleware(cfg))
	e.GET("/api/appointments", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.POST("/api/auth/login", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	return e
}

func doRequest(e *echo.Echo, method, path, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("X-Forwarded-For", ip)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_EnforcesPolicy(t *testing.T) {
	cfg := getTestRateLimitConfig()
	e := newRateLimitedEcho(&Config{
		Store:        NewMemoryStore(),
		SelectPolicy: DefaultPolicySelector(cfg),
	})

	t.Run("auth endpoints use the strict budget", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			rec := doRequest(e, "POST", "/api/auth/login", "203.0.113.9")
			assert.Equal(t, http.StatusOK, rec.Code)
		}

		rec := doRequest(e, "POST", "/api/auth/login", "203.0.113.9")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "RATE_LIMITED", body["code"])
	})

	t.Run("budgets are per client ip", func(t *testing.T) {
		rec := doRequest(e, "POST", "/api/auth/login", "198.51.100.2")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("general endpoints use the default budget", func(t *testing.T) {
		for i := 0; i < 6; i++ {
			rec := doRequest(e, "GET", "/api/appointments", "203.0.113.9")
			assert.Equal(t, http.StatusOK, rec.Code)
		}
	})
}

func TestMiddleware_Headers(t *testing.T) {
	cfg := getTestRateLimitConfig()
	e := newRateLimitedEcho(&Config{
		Store:        NewMemoryStore(),
		SelectPolicy: DefaultPolicySelector(cfg),
	})

	rec := doRequest(e, "POST", "/api/auth/login", "203.0.113.9")

	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
}

func TestMiddleware_BlockedIP(t *testing.T) {
	cfg := getTestRateLimitConfig()
	store := NewMemoryStore()
	tracker := NewTracker(store, cfg, nil, nil)

	require.NoError(t, store.Block(context.Background(), "203.0.113.9", time.Hour, "manual"))

	e := newRateLimitedEcho(&Config{
		Store:        store,
		Tracker:      tracker,
		SelectPolicy: DefaultPolicySelector(cfg),
	})

	rec := doRequest(e, "GET", "/api/appointments", "203.0.113.9")

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "IP_BLOCKED", body["code"])

	t.Run("other clients unaffected", func(t *testing.T) {
		rec := doRequest(e, "GET", "/api/appointments", "198.51.100.2")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestMiddleware_StoreFailureAllowsRequest(t *testing.T) {
	cfg := getTestRateLimitConfig()
	e := newRateLimitedEcho(&Config{
		Store:        brokenStore{},
		SelectPolicy: DefaultPolicySelector(cfg),
	})

	rec := doRequest(e, "GET", "/api/appointments", "203.0.113.9")
	assert.Equal(t, http.StatusOK, rec.Code)
}
