// Package httperr renders security-gate failures as terminal JSON
// responses with stable machine-readable codes. Gate errors are
// resolved here and never propagate past the middleware boundary.
package httperr

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	CodeAuthenticationRequired = "AUTHENTICATION_REQUIRED"
	CodeTokenInvalid           = "TOKEN_INVALID_OR_EXPIRED"
	CodeDeviceUntrusted        = "DEVICE_UNTRUSTED"
	CodeRateLimited            = "RATE_LIMITED"
	CodeIPBlocked              = "IP_BLOCKED"
	CodeCSRFMissing            = "CSRF_MISSING"
	CodeCSRFInvalid            = "CSRF_INVALID"
	CodeContentTypeRejected    = "CONTENT_TYPE_REJECTED"
	CodeTwoFactorSetup         = "TWO_FACTOR_SETUP_REQUIRED"
	CodeTwoFactorVerification  = "TWO_FACTOR_VERIFICATION_REQUIRED"
	CodeTwoFactorInvalid       = "TWO_FACTOR_CODE_INVALID"
	CodeRefreshExhausted       = "REFRESH_EXHAUSTED"
	CodeSessionExpiredIdle     = "SESSION_EXPIRED_IDLE"
	CodeSessionExpiredAbsolute = "SESSION_EXPIRED_ABSOLUTE"
	// CodeSecurityFailure covers an internal failure inside a
	// fail-closed security stage.
	CodeSecurityFailure = "SECURITY_CHECK_FAILED"
)

type Envelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
}

// JSON writes the error envelope and terminates the request. Browser
// navigations are redirected to the login page instead, carrying the
// original destination so it can be resumed after re-authentication.
func JSON(c echo.Context, status int, code, message string) error {
	if wantsHTML(c) && (status == http.StatusUnauthorized || status == http.StatusForbidden) {
		return redirectToLogin(c)
	}

	return c.JSON(status, Envelope{Code: code, Message: message})
}

// JSONAction is JSON with a client directive, used by the step-up gate
// to tell the caller whether to start enrollment or verification.
func JSONAction(c echo.Context, status int, code, message, action string) error {
	if wantsHTML(c) {
		return redirectToLogin(c)
	}

	return c.JSON(status, Envelope{Code: code, Message: message, Action: action})
}

func wantsHTML(c echo.Context) bool {
	accept := c.Request().Header.Get("Accept")
	return strings.Contains(accept, "text/html")
}

func redirectToLogin(c echo.Context) error {
	target := "/login?redirect=" + url.QueryEscape(c.Request().URL.RequestURI())
	return c.Redirect(http.StatusFound, target)
}
