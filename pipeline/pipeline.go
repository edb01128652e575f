// Package pipeline composes the security middleware into one
// fixed-order chain with per-stage failure policies.
package pipeline

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/clinicore/shield/config"
	"github.com/clinicore/shield/httperr"
	"github.com/clinicore/shield/middleware/contenttype"
	"github.com/clinicore/shield/middleware/csrf"
	"github.com/clinicore/shield/middleware/ratelimit"
	"github.com/clinicore/shield/middleware/sanitize"
	"github.com/clinicore/shield/middleware/securityheaders"
	"github.com/clinicore/shield/middleware/twofactor"
	"github.com/clinicore/shield/services/audit"
	"github.com/clinicore/shield/services/logging"
	tokensvc "github.com/clinicore/shield/services/token"
	twofactorsvc "github.com/clinicore/shield/services/twofactor"
)

type Deps struct {
	Config    *config.Config
	Logger    *logging.Service
	Audit     *audit.Logger
	Store     ratelimit.Store
	Tracker   *ratelimit.Tracker
	Tokens    *tokensvc.Service
	TwoFactor *twofactorsvc.Service
}

// Chain returns the security stages in their fixed order, outermost
// first. Token verification is not part of the shared chain; it is
// applied per route group so public endpoints stay reachable.
func Chain(deps Deps) []echo.MiddlewareFunc {
	return []echo.MiddlewareFunc{
		hygiene("security_headers", deps, securityheaders.Middleware(deps.Config)),
		hygiene("sanitize_response", deps, sanitize.ResponseMiddleware(&sanitize.Config{
			Logger: deps.Logger,
		})),
		critical("rate_limit", deps, ratelimit.Middleware(&ratelimit.Config{
			Store:        deps.Store,
			Tracker:      deps.Tracker,
			Audit:        deps.Audit,
			SelectPolicy: ratelimit.DefaultPolicySelector(deps.Config),
		})),
		critical("content_type", deps, contenttype.Middleware(&contenttype.Config{
			Audit: deps.Audit,
		})),
		critical("csrf", deps, csrf.Middleware(&csrf.Config{
			CSRF:  &deps.Config.CSRF,
			Audit: deps.Audit,
		})),
		critical("two_factor_gate", deps, twofactor.Middleware(&twofactor.Config{
			Policy:    twofactor.DefaultPolicy,
			Tokens:    deps.Tokens,
			TwoFactor: deps.TwoFactor,
			Audit:     deps.Audit,
		})),
		hygiene("sanitize_request", deps, sanitize.RequestMiddleware(&sanitize.Config{
			Logger: deps.Logger,
		})),
	}
}

// critical stages fail closed: an internal failure denies the request.
func critical(name string, deps Deps, mw echo.MiddlewareFunc) echo.MiddlewareFunc {
	return guard(name, deps, mw, true)
}

// hygiene stages fail open: an internal failure is logged and the
// request continues.
func hygiene(name string, deps Deps, mw echo.MiddlewareFunc) echo.MiddlewareFunc {
	return guard(name, deps, mw, false)
}

func guard(name string, deps Deps, mw echo.MiddlewareFunc, failClosed bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			entered := false
			tracked := func(c echo.Context) error {
				entered = true
				return next(c)
			}

			defer func() {
				recovered := recover()
				if recovered == nil {
					return
				}

				if deps.Logger != nil {
					deps.Logger.Error("security stage panicked",
						zap.String("stage", name),
						zap.Any("panic", recovered))
				}
				if deps.Audit != nil {
					deps.Audit.Log(c.Request().Context(),
						audit.StageFailure(name, recovered, audit.RequestInfoFrom(c.Request())))
				}

				if failClosed {
					err = httperr.JSON(c, http.StatusForbidden,
						httperr.CodeSecurityFailure, "request rejected")
					return
				}

				// Fail open: run the remainder of the chain unless the
				// stage already handed off before panicking.
				if !entered {
					err = next(c)
				} else {
					err = nil
				}
			}()

			return mw(tracked)(c)
		}
	}
}
