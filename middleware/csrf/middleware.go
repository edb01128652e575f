package csrf

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/clinicore/shield/config"
	"github.com/clinicore/shield/httperr"
	"github.com/clinicore/shield/services/audit"
	"github.com/clinicore/shield/services/device"
)

// ExemptPrefixes lists endpoints that either precede session
// establishment or sit on a different trust boundary.
var ExemptPrefixes = []string{
	"/api/auth/login",
	"/api/auth/logout",
	"/api/auth/refresh",
	"/api/auth/2fa/login-verify",
	"/api/webhooks/",
	"/api/callbacks/",
}

type Config struct {
	CSRF  *config.CSRFConfig
	Audit *audit.Logger
}

// Middleware enforces the double-submit check on state-changing
// requests: the x-csrf-token header must match the HttpOnly cookie,
// and the cookie token's MAC must bind it to the caller's device
// identity. A planted cookie pair minted elsewhere fails the second
// check.
func Middleware(cfg *Config) echo.MiddlewareFunc {
	minter := NewMinter(cfg.CSRF.Secret)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !stateChanging(c.Request().Method) || exempt(c.Request().URL.Path) {
				return next(c)
			}

			provided := c.Request().Header.Get(cfg.CSRF.HeaderName)
			if provided == "" {
				return reject(c, cfg, httperr.CodeCSRFMissing, "missing csrf token")
			}

			cookie, err := c.Cookie(cfg.CSRF.CookieName)
			if err != nil || cookie.Value == "" {
				return reject(c, cfg, httperr.CodeCSRFMissing, "missing csrf cookie")
			}

			if !Verify(provided, cookie.Value) {
				return reject(c, cfg, httperr.CodeCSRFInvalid, "csrf token mismatch")
			}

			if !minter.Validate(cookie.Value, sessionIDFrom(c)) {
				return reject(c, cfg, httperr.CodeCSRFInvalid, "csrf token not bound to session")
			}

			return next(c)
		}
	}
}

func reject(c echo.Context, cfg *Config, code, reason string) error {
	if cfg.Audit != nil {
		cfg.Audit.Log(c.Request().Context(),
			audit.CSRFRejected(reason, audit.RequestInfoFrom(c.Request())))
	}
	return httperr.JSON(c, http.StatusForbidden, code, reason)
}

func stateChanging(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

func sessionIDFrom(c echo.Context) string {
	if cookie, err := c.Cookie(device.CookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func exempt(path string) bool {
	for _, prefix := range ExemptPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
