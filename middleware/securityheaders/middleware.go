package securityheaders

import (
	"github.com/labstack/echo/v4"

	"github.com/clinicore/shield/config"
)

// Middleware stamps freshness-control and transport headers on the way
// out. Best-effort hygiene: it never blocks a request.
func Middleware(cfg *config.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Response().Header()

			header.Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
			header.Set("Pragma", "no-cache")
			header.Set("Expires", "0")
			header.Set("Vary", "Authorization, Cookie")
			header.Set("X-Content-Type-Options", "nosniff")
			header.Set("X-Frame-Options", "DENY")

			if cfg.App.IsProduction() {
				header.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			return next(c)
		}
	}
}
