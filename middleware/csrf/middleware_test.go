package csrf

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/shield/config"
)

func newCSRFEcho() *echo.Echo {
	e := echo.New()
	e.Use(Middleware(&Config{
		CSRF: &config.CSRFConfig{
			Secret:     "test-csrf-secret",
			CookieName: "csrf_token",
			HeaderName: "x-csrf-token",
		},
	}))

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}
	e.GET("/api/patients", handler)
	e.POST("/api/patients", handler)
	e.DELETE("/api/patients/1", handler)
	e.POST("/api/auth/login", handler)
	e.POST("/api/webhooks/lab-results", handler)
	return e
}

func csrfCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["code"]
}

func TestMiddleware(t *testing.T) {
	e := newCSRFEcho()

	t.Run("reads pass without tokens", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/patients", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("mutation without header is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/patients", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "CSRF_MISSING", csrfCode(t, rec))
	})

	t.Run("mutation with header but no cookie is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/patients", nil)
		req.Header.Set("x-csrf-token", "token-value")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "CSRF_MISSING", csrfCode(t, rec))
	})

	t.Run("header and cookie mismatch is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/patients/1", nil)
		req.Header.Set("x-csrf-token", "token-value")
		req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "other-value"})
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "CSRF_INVALID", csrfCode(t, rec))
	})

	t.Run("matching device-bound pair passes", func(t *testing.T) {
		minter := NewMinter("test-csrf-secret")
		token, err := minter.Mint("device-1")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/api/patients", nil)
		req.Header.Set("x-csrf-token", token)
		req.AddCookie(&http.Cookie{Name: "csrf_token", Value: token})
		req.AddCookie(&http.Cookie{Name: "deviceId", Value: "device-1"})
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("matched pair minted for another device is rejected", func(t *testing.T) {
		minter := NewMinter("test-csrf-secret")
		token, err := minter.Mint("device-1")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/api/patients", nil)
		req.Header.Set("x-csrf-token", token)
		req.AddCookie(&http.Cookie{Name: "csrf_token", Value: token})
		req.AddCookie(&http.Cookie{Name: "deviceId", Value: "device-2"})
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "CSRF_INVALID", csrfCode(t, rec))
	})

	t.Run("matched pair without minter provenance is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/patients", nil)
		req.Header.Set("x-csrf-token", "token-value")
		req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "token-value"})
		req.AddCookie(&http.Cookie{Name: "deviceId", Value: "device-1"})
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "CSRF_INVALID", csrfCode(t, rec))
	})

	t.Run("login is exempt", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("webhooks are exempt", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/webhooks/lab-results", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
