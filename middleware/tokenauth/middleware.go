package tokenauth

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinicore/shield/httperr"
	"github.com/clinicore/shield/securitytier"
	"github.com/clinicore/shield/services/audit"
	"github.com/clinicore/shield/services/device"
	"github.com/clinicore/shield/services/fingerprint"
	"github.com/clinicore/shield/services/refreshtoken"
	"github.com/clinicore/shield/services/token"
)

const (
	IdentityKey = "_auth_identity"
	ClaimsKey   = "_auth_claims"
)

type Config struct {
	Tokens   *token.Service
	Refresh  *refreshtoken.Service
	Devices  *device.Service
	Resolver *securitytier.Resolver
	Audit    *audit.Logger
}

// RequireToken verifies the access token against the current request
// fingerprint and applies the security-tier session checks before the
// business handler runs.
func RequireToken(cfg *Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenString := extractToken(c)
			if tokenString == "" {
				return httperr.JSON(c, http.StatusUnauthorized,
					httperr.CodeAuthenticationRequired, "authentication required")
			}

			fp := fingerprint.FromRequest(c.Request())
			claims, err := cfg.Tokens.Verify(tokenString, token.KindAccess, fp.Hash())
			if err != nil {
				return httperr.JSON(c, http.StatusUnauthorized,
					httperr.CodeTokenInvalid, "invalid or expired token")
			}

			tier := cfg.Resolver.Resolve(c.Request().URL.Path)
			if tier.Level != securitytier.Low {
				if err := cfg.enforceTier(c, tier, claims); err != nil {
					return err
				}
			}

			identity := claims.Identity()
			c.Set(IdentityKey, identity)
			c.Set(ClaimsKey, claims)

			// Propagate verified identity to downstream collaborators.
			c.Request().Header.Set("x-user-id", strconv.FormatUint(uint64(identity.UserID), 10))
			c.Request().Header.Set("x-user-email", identity.Email)
			c.Request().Header.Set("x-user-role", identity.Role)

			return next(c)
		}
	}
}

func (cfg *Config) enforceTier(c echo.Context, tier securitytier.Tier, claims *token.Claims) error {
	deviceID := deviceID(c)
	now := time.Now()

	record, err := cfg.Refresh.ActiveForUserDevice(claims.UserID, deviceID)
	if err != nil {
		// MEDIUM tolerates a missing record (single short-lived token
		// use); HIGH does not.
		if tier.Level == securitytier.High {
			return httperr.JSON(c, http.StatusForbidden,
				httperr.CodeDeviceUntrusted, "no active session for this device")
		}
		return nil
	}

	if idle := now.Sub(record.LastUsed); idle > tier.IdleTimeout {
		if cfg.Audit != nil {
			cfg.Audit.Log(c.Request().Context(),
				audit.SessionExpired(claims.UserID, "idle timeout",
					audit.RequestInfoFrom(c.Request())))
		}
		return httperr.JSON(c, http.StatusUnauthorized,
			httperr.CodeSessionExpiredIdle, "session idle timeout exceeded")
	}

	if age := now.Sub(record.CreatedAt); age > tier.AbsoluteTimeout {
		if cfg.Audit != nil {
			cfg.Audit.Log(c.Request().Context(),
				audit.SessionExpired(claims.UserID, "absolute timeout",
					audit.RequestInfoFrom(c.Request())))
		}
		return httperr.JSON(c, http.StatusUnauthorized,
			httperr.CodeSessionExpiredAbsolute, "session lifetime exceeded")
	}

	if tier.RequireTrustedDevice && !cfg.Devices.IsTrusted(deviceID, claims.UserID) {
		return httperr.JSON(c, http.StatusForbidden,
			httperr.CodeDeviceUntrusted, "this device is not trusted for the requested resource")
	}

	_ = cfg.Refresh.TouchLastUsed(record.ID)

	return nil
}

func extractToken(c echo.Context) string {
	header := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		if tokenString := strings.TrimPrefix(header, "Bearer "); tokenString != "" {
			return tokenString
		}
	}

	if cookie, err := c.Cookie("accessToken"); err == nil {
		return cookie.Value
	}

	return ""
}

func deviceID(c echo.Context) string {
	if cookie, err := c.Cookie(device.CookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// GetIdentity returns the verified identity placed by RequireToken.
func GetIdentity(c echo.Context) (token.Identity, bool) {
	identity, ok := c.Get(IdentityKey).(token.Identity)
	return identity, ok
}

// GetClaims returns the full verified claims.
func GetClaims(c echo.Context) *token.Claims {
	if claims, ok := c.Get(ClaimsKey).(*token.Claims); ok {
		return claims
	}
	return nil
}
