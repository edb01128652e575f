package audit

import (
	"fmt"
	"net/http"

	"github.com/clinicore/shield/services/fingerprint"
)

// RequestInfo carries the request-scoped fields shared by every event
// constructor.
type RequestInfo struct {
	IP        string
	UserAgent string
	Path      string
	Method    string
}

func RequestInfoFrom(r *http.Request) RequestInfo {
	if r == nil {
		return RequestInfo{}
	}
	return RequestInfo{
		IP:        fingerprint.ClientIP(r),
		UserAgent: r.Header.Get("User-Agent"),
		Path:      r.URL.Path,
		Method:    r.Method,
	}
}

func (ri RequestInfo) apply(event Event) Event {
	event.IP = ri.IP
	event.UserAgent = ri.UserAgent
	event.Path = ri.Path
	event.Method = ri.Method
	return event
}

func LoginSuccess(userID uint, username, role string, ri RequestInfo) Event {
	return ri.apply(Event{
		Type:        TypeLoginSuccess,
		Severity:    SeverityInfo,
		UserID:      userID,
		Username:    username,
		Role:        role,
		Description: fmt.Sprintf("user %s logged in", username),
	})
}

func LoginFailure(username string, reason string, ri RequestInfo) Event {
	return ri.apply(Event{
		Type:        TypeLoginFailure,
		Severity:    SeverityWarning,
		Username:    username,
		Description: fmt.Sprintf("login failed for %s: %s", username, reason),
	})
}

func Logout(userID uint, username string, ri RequestInfo) Event {
	return ri.apply(Event{
		Type:        TypeLogout,
		Severity:    SeverityInfo,
		UserID:      userID,
		Username:    username,
		Description: fmt.Sprintf("user %s logged out", username),
	})
}

func TwoFactorSetup(userID uint, username string, ri RequestInfo) Event {
	return ri.apply(Event{
		Type:        TypeTwoFactorSetup,
		Severity:    SeverityInfo,
		UserID:      userID,
		Username:    username,
		Description: fmt.Sprintf("two-factor enrollment started for %s", username),
	})
}

func TwoFactorSuccess(userID uint, username string, ri RequestInfo) Event {
	return ri.apply(Event{
		Type:        TypeTwoFactorSuccess,
		Severity:    SeverityInfo,
		UserID:      userID,
		Username:    username,
		Description: fmt.Sprintf("two-factor verification succeeded for %s", username),
	})
}

func TwoFactorFailure(userID uint, username string, ri RequestInfo) Event {
	return ri.apply(Event{
		Type:        TypeTwoFactorFailure,
		Severity:    SeverityWarning,
		UserID:      userID,
		Username:    username,
		Description: fmt.Sprintf("two-factor verification failed for %s", username),
	})
}

func PasswordResetRequested(username string, ri RequestInfo) Event {
	return ri.apply(Event{
		Type:        TypePasswordResetRequested,
		Severity:    SeverityInfo,
		Username:    username,
		Description: fmt.Sprintf("password reset requested for %s", username),
	})
}

func PasswordChanged(userID uint, username string, ri RequestInfo) Event {
	return ri.apply(Event{
		Type:        TypePasswordChanged,
		Severity:    SeverityInfo,
		UserID:      userID,
		Username:    username,
		Description: fmt.Sprintf("password changed for %s", username),
	})
}

func IPBlocked(ip string, reason string, ri RequestInfo) Event {
	return ri.apply(Event{
		Type:        TypeIPBlocked,
		Severity:    SeverityWarning,
		Description: fmt.Sprintf("IP %s blocked: %s", ip, reason),
	})
}

func RateLimitExceeded(route string, ri RequestInfo) Event {
	return ri.apply(Event{
		Type:        TypeRateLimitExceeded,
		Severity:    SeverityWarning,
		Description: fmt.Sprintf("rate limit exceeded on %s", route),
	})
}

func TokenReuseDetected(userID uint, ri RequestInfo) Event {
	return ri.apply(Event{
		Type:        TypeTokenReuseDetected,
		Severity:    SeverityCritical,
		UserID:      userID,
		Description: "invalidated refresh token presented, revoking all sessions",
	})
}

func CSRFRejected(reason string, ri RequestInfo) Event {
	return ri.apply(Event{
		Type:        TypeCSRFRejected,
		Severity:    SeverityWarning,
		Description: fmt.Sprintf("csrf check failed: %s", reason),
	})
}

func ContentTypeRejected(contentType string, ri RequestInfo) Event {
	return ri.apply(Event{
		Type:        TypeContentTypeRejected,
		Severity:    SeverityWarning,
		Description: fmt.Sprintf("content type %q rejected", contentType),
	})
}

func StageFailure(stage string, recovered any, ri RequestInfo) Event {
	return ri.apply(Event{
		Type:        TypeStageFailure,
		Severity:    SeverityCritical,
		Description: fmt.Sprintf("security stage %s failed: %v", stage, recovered),
	})
}

func DeviceRegistered(userID uint, deviceID string, ri RequestInfo) Event {
	return ri.apply(Event{
		Type:        TypeDeviceRegistered,
		Severity:    SeverityInfo,
		UserID:      userID,
		Description: fmt.Sprintf("new device %s registered", deviceID),
	})
}

func SessionExpired(userID uint, reason string, ri RequestInfo) Event {
	return ri.apply(Event{
		Type:        TypeSessionExpired,
		Severity:    SeverityInfo,
		UserID:      userID,
		Description: fmt.Sprintf("session expired: %s", reason),
	})
}
