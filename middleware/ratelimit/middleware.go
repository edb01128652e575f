package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinicore/shield/config"
	"github.com/clinicore/shield/httperr"
	"github.com/clinicore/shield/services/audit"
	"github.com/clinicore/shield/services/fingerprint"
)

// Policy is the window budget applied to one route class.
type Policy struct {
	Max    int
	Period time.Duration
}

type Config struct {
	Store          Store
	Tracker        *Tracker
	Audit          *audit.Logger
	SelectPolicy   func(path string) Policy
	KeyGenerator   func(c echo.Context) string
	OnLimitReached func(c echo.Context) error
}

// DefaultPolicySelector applies the strict budget to authentication and
// step-up endpoints and the general budget elsewhere.
func DefaultPolicySelector(cfg *config.Config) func(path string) Policy {
	auth := Policy{Max: cfg.RateLimit.AuthMax, Period: cfg.RateLimit.AuthPeriod}
	general := Policy{Max: cfg.RateLimit.DefaultMax, Period: cfg.RateLimit.DefaultPeriod}

	return func(path string) Policy {
		if strings.HasPrefix(path, "/api/auth/") {
			return auth
		}
		return general
	}
}

func Middleware(cfg *Config) echo.MiddlewareFunc {
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}

	if cfg.SelectPolicy == nil {
		cfg.SelectPolicy = func(string) Policy {
			return Policy{Max: 100, Period: time.Minute}
		}
	}

	if cfg.KeyGenerator == nil {
		cfg.KeyGenerator = DefaultKeyGenerator
	}

	if cfg.OnLimitReached == nil {
		cfg.OnLimitReached = DefaultOnLimitReached
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			ip := fingerprint.ClientIP(c.Request())

			if cfg.Tracker != nil {
				if block := cfg.Tracker.IsBlocked(ctx, ip); block != nil {
					c.Response().Header().Set("Retry-After", strconv.Itoa(block.RetryAfter(time.Now())))
					return httperr.JSON(c, http.StatusForbidden, httperr.CodeIPBlocked,
						"requests from this address are temporarily blocked")
				}
			}

			policy := cfg.SelectPolicy(c.Request().URL.Path)
			key := cfg.KeyGenerator(c)

			count, resetTime, err := cfg.Store.Increment(ctx, key, policy.Period)
			if err != nil {
				// The store stack already degraded as far as it can;
				// a final failure here must not deny every request.
				return next(c)
			}

			remaining := max(policy.Max-count, 0)
			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(policy.Max))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			c.Response().Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

			if count > policy.Max {
				if cfg.Audit != nil {
					cfg.Audit.Log(ctx, audit.RateLimitExceeded(c.Request().URL.Path,
						audit.RequestInfoFrom(c.Request())))
				}
				return cfg.OnLimitReached(c)
			}

			return next(c)
		}
	}
}

// DefaultKeyGenerator scopes counters per (route, client IP).
func DefaultKeyGenerator(c echo.Context) string {
	ip := fingerprint.ClientIP(c.Request())
	if ip == "" {
		ip = "fallback"
	}

	return "rate_limit:" + c.Request().URL.Path + ":" + ip
}

func DefaultOnLimitReached(c echo.Context) error {
	return httperr.JSON(c, http.StatusTooManyRequests, httperr.CodeRateLimited,
		"too many requests")
}
