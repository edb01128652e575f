package authapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinicore/shield/config"
	"github.com/clinicore/shield/middleware/twofactor"
	"github.com/clinicore/shield/services/device"
)

const (
	accessCookie        = "accessToken"
	authenticatedCookie = "isAuthenticated"
)

type cookieWriter struct {
	config *config.Config
}

func (w cookieWriter) sameSite() http.SameSite {
	switch w.config.Cookies.SameSite {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func (w cookieWriter) set(c echo.Context, name, value string, maxAge time.Duration, httpOnly bool) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   w.config.Cookies.Domain,
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: httpOnly,
		Secure:   w.config.App.IsProduction(),
		SameSite: w.sameSite(),
	})
}

func (w cookieWriter) clear(c echo.Context, name string, httpOnly bool) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   w.config.Cookies.Domain,
		MaxAge:   -1,
		HttpOnly: httpOnly,
		Secure:   w.config.App.IsProduction(),
		SameSite: w.sameSite(),
	})
}

func (w cookieWriter) setSession(c echo.Context, accessToken, csrfToken string) {
	w.set(c, accessCookie, accessToken, w.config.Token.AccessExpiry, true)
	w.set(c, w.config.CSRF.CookieName, csrfToken, w.config.CSRF.MaxAge, true)
	// isAuthenticated is a UI hint only, deliberately readable by
	// client script.
	w.set(c, authenticatedCookie, "true", w.config.Refresh.Expiry, false)
}

func (w cookieWriter) setDevice(c echo.Context, deviceID string) {
	// Device identity outlives any one session.
	w.set(c, device.CookieName, deviceID, 365*24*time.Hour, true)
}

func (w cookieWriter) setStepUp(c echo.Context, tempToken string) {
	w.set(c, twofactor.StepUpCookie, tempToken, w.config.Token.TempExpiry, true)
}

func (w cookieWriter) clearSession(c echo.Context) {
	w.clear(c, accessCookie, true)
	w.clear(c, w.config.CSRF.CookieName, true)
	w.clear(c, authenticatedCookie, false)
	w.clear(c, twofactor.StepUpCookie, true)
}
