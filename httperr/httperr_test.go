package httperr

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, accept string, handler echo.HandlerFunc) *httptest.ResponseRecorder {
	e := echo.New()
	e.GET("/api/patients/7", handler)

	req := httptest.NewRequest(http.MethodGet, "/api/patients/7?page=2", nil)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJSON(t *testing.T) {
	t.Run("writes the envelope", func(t *testing.T) {
		rec := serve(t, "application/json", func(c echo.Context) error {
			return JSON(c, http.StatusUnauthorized, CodeTokenInvalid, "token rejected")
		})

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"code":"TOKEN_INVALID_OR_EXPIRED","message":"token rejected"}`, rec.Body.String())
	})

	t.Run("redirects browser navigations to login", func(t *testing.T) {
		rec := serve(t, "text/html,application/xhtml+xml", func(c echo.Context) error {
			return JSON(c, http.StatusUnauthorized, CodeAuthenticationRequired, "authentication required")
		})

		require.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/login?redirect=%2Fapi%2Fpatients%2F7%3Fpage%3D2", rec.Header().Get("Location"))
	})

	t.Run("forbidden browser navigations also redirect", func(t *testing.T) {
		rec := serve(t, "text/html", func(c echo.Context) error {
			return JSON(c, http.StatusForbidden, CodeDeviceUntrusted, "device untrusted")
		})

		assert.Equal(t, http.StatusFound, rec.Code)
	})

	t.Run("non auth statuses never redirect", func(t *testing.T) {
		rec := serve(t, "text/html", func(c echo.Context) error {
			return JSON(c, http.StatusTooManyRequests, CodeRateLimited, "slow down")
		})

		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.JSONEq(t, `{"code":"RATE_LIMITED","message":"slow down"}`, rec.Body.String())
	})

	t.Run("missing accept header gets json", func(t *testing.T) {
		rec := serve(t, "", func(c echo.Context) error {
			return JSON(c, http.StatusUnauthorized, CodeTokenInvalid, "token rejected")
		})

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestJSONAction(t *testing.T) {
	t.Run("includes the action directive", func(t *testing.T) {
		rec := serve(t, "application/json", func(c echo.Context) error {
			return JSONAction(c, http.StatusForbidden, CodeTwoFactorSetup,
				"two-factor enrollment required", "setup_required")
		})

		require.Equal(t, http.StatusForbidden, rec.Code)
		assert.JSONEq(t, `{"code":"TWO_FACTOR_SETUP_REQUIRED","message":"two-factor enrollment required","action":"setup_required"}`, rec.Body.String())
	})

	t.Run("redirects browser navigations regardless of status", func(t *testing.T) {
		rec := serve(t, "text/html", func(c echo.Context) error {
			return JSONAction(c, http.StatusForbidden, CodeTwoFactorVerification,
				"two-factor verification required", "verification_required")
		})

		assert.Equal(t, http.StatusFound, rec.Code)
	})
}
