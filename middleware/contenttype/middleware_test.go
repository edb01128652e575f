package contenttype

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestIsAllowed(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		method      string
		contentType string
		want        bool
	}{
		{"get bypasses the check", "/api/patients", http.MethodGet, "", true},
		{"head bypasses the check", "/api/patients", http.MethodHead, "", true},
		{"options bypasses the check", "/api/patients", http.MethodOptions, "", true},
		{"json on api", "/api/patients", http.MethodPost, "application/json", true},
		{"json with charset on api", "/api/patients", http.MethodPost, "application/json; charset=utf-8", true},
		{"uppercase mime normalized", "/api/patients", http.MethodPost, "Application/JSON", true},
		{"xml on api rejected", "/api/patients", http.MethodPost, "application/xml", false},
		{"form encoding on api rejected", "/api/patients", http.MethodPut, "application/x-www-form-urlencoded", false},
		{"empty type on mutation rejected", "/api/patients", http.MethodPost, "", false},
		{"multipart on documents", "/api/documents", http.MethodPost, "multipart/form-data; boundary=xyz", true},
		{"json on documents", "/api/documents", http.MethodPost, "application/json", true},
		{"multipart elsewhere rejected", "/api/patients", http.MethodPost, "multipart/form-data; boundary=xyz", false},
		{"form encoding outside api", "/login", http.MethodPost, "application/x-www-form-urlencoded", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAllowed(DefaultRules, tt.path, tt.method, tt.contentType))
		})
	}
}

func TestIsAllowed_MethodScopedRule(t *testing.T) {
	rules := []Rule{
		{PathPrefix: "/api/import", Methods: []string{http.MethodPut}, Allowed: []string{"text/csv"}},
		{PathPrefix: "/api/", Allowed: []string{"application/json"}},
	}

	assert.True(t, IsAllowed(rules, "/api/import", http.MethodPut, "text/csv"))
	assert.True(t, IsAllowed(rules, "/api/import", http.MethodPost, "application/json"))
	assert.False(t, IsAllowed(rules, "/api/import", http.MethodPut, "application/json"))
}

func TestMiddleware(t *testing.T) {
	e := echo.New()
	e.Use(Middleware(&Config{}))
	e.POST("/api/patients", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/api/patients", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	t.Run("allowed type passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/patients", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("rejected type gets 415", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/patients", strings.NewReader(`<xml/>`))
		req.Header.Set("Content-Type", "application/xml")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
		assert.Contains(t, rec.Body.String(), "CONTENT_TYPE_REJECTED")
	})

	t.Run("bodiless mutation passes untyped", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/patients", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("untyped mutation with a body gets 415", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/patients", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	})

	t.Run("reads pass untyped", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/patients", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
