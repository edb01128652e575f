package twofactor

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/clinicore/shield/httperr"
	"github.com/clinicore/shield/services/audit"
	"github.com/clinicore/shield/services/fingerprint"
	"github.com/clinicore/shield/services/token"
	"github.com/clinicore/shield/services/twofactor"
)

// StepUpCookie holds the short-lived TEMP token proving a completed
// second-factor verification. It is session-scoped: one verification
// covers the session until the marker expires.
const StepUpCookie = "twoFactorToken"

// Policy decides which requests demand a verified second factor.
type Policy struct {
	Roles        []string
	PathPrefixes []string
}

// DefaultPolicy forces step-up for privileged clinic roles and for the
// administrative surface regardless of role.
var DefaultPolicy = Policy{
	Roles:        []string{"admin", "clinician"},
	PathPrefixes: []string{"/api/admin", "/api/prescriptions"},
}

// RequiresStepUp is role-based OR path-based.
func (p Policy) RequiresStepUp(path, role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	for _, prefix := range p.PathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

type Config struct {
	Policy    Policy
	Tokens    *token.Service
	TwoFactor *twofactor.Service
	Audit     *audit.Logger
}

// Middleware is the mandatory step-up gate. Unauthenticated requests
// pass through untouched; authentication itself is enforced downstream.
func Middleware(cfg *Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := accessClaims(cfg, c)
			if claims == nil {
				return next(c)
			}

			if !cfg.Policy.RequiresStepUp(c.Request().URL.Path, claims.Role) {
				return next(c)
			}

			if !cfg.TwoFactor.Enrolled(claims.UserID) {
				return httperr.JSONAction(c, http.StatusForbidden,
					httperr.CodeTwoFactorSetup,
					"two-factor enrollment required for this account",
					"setup_required")
			}

			if !stepUpVerified(cfg, c, claims.UserID) {
				if cfg.Audit != nil {
					cfg.Audit.Log(c.Request().Context(),
						audit.TwoFactorFailure(claims.UserID, claims.Email,
							audit.RequestInfoFrom(c.Request())))
				}
				return httperr.JSONAction(c, http.StatusForbidden,
					httperr.CodeTwoFactorVerification,
					"two-factor verification required",
					"verification_required")
			}

			return next(c)
		}
	}
}

func accessClaims(cfg *Config, c echo.Context) *token.Claims {
	tokenString := bearerToken(c)
	if tokenString == "" {
		if cookie, err := c.Cookie("accessToken"); err == nil {
			tokenString = cookie.Value
		}
	}
	if tokenString == "" {
		return nil
	}

	fp := fingerprint.FromRequest(c.Request())
	claims, err := cfg.Tokens.Verify(tokenString, token.KindAccess, fp.Hash())
	if err != nil {
		return nil
	}
	return claims
}

func stepUpVerified(cfg *Config, c echo.Context, userID uint) bool {
	cookie, err := c.Cookie(StepUpCookie)
	if err != nil || cookie.Value == "" {
		return false
	}

	fp := fingerprint.FromRequest(c.Request())
	claims, err := cfg.Tokens.Verify(cookie.Value, token.KindTemp, fp.Hash())
	if err != nil {
		return false
	}

	return claims.UserID == userID
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}
