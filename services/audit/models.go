package audit

import (
	"time"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is an append-only security audit record. Rows are never updated
// or deleted by the application; retention is handled externally.
type Event struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	CreatedAt   time.Time `json:"created_at" gorm:"not null;index"`
	Type        string    `json:"type" gorm:"size:64;not null;index"`
	Severity    Severity  `json:"severity" gorm:"size:16;not null"`
	UserID      uint      `json:"user_id,omitempty" gorm:"index"`
	Username    string    `json:"username,omitempty" gorm:"size:255"`
	Role        string    `json:"role,omitempty" gorm:"size:64"`
	IP          string    `json:"ip,omitempty" gorm:"size:64"`
	UserAgent   string    `json:"user_agent,omitempty" gorm:"size:500"`
	Path        string    `json:"path,omitempty" gorm:"size:255"`
	Method      string    `json:"method,omitempty" gorm:"size:16"`
	Description string    `json:"description" gorm:"size:1000"`
	Metadata    string    `json:"metadata,omitempty" gorm:"size:2000"`
}

func (Event) TableName() string {
	return "security_audit_events"
}

const (
	TypeLoginSuccess           = "login_success"
	TypeLoginFailure           = "login_failure"
	TypeLogout                 = "logout"
	TypeTwoFactorSetup         = "two_factor_setup"
	TypeTwoFactorSuccess       = "two_factor_success"
	TypeTwoFactorFailure       = "two_factor_failure"
	TypePasswordResetRequested = "password_reset_requested"
	TypePasswordChanged        = "password_changed"
	TypeIPBlocked              = "ip_blocked"
	TypeRateLimitExceeded      = "rate_limit_exceeded"
	TypeTokenReuseDetected     = "token_reuse_detected"
	TypeCSRFRejected           = "csrf_rejected"
	TypeContentTypeRejected    = "content_type_rejected"
	TypeStageFailure           = "pipeline_stage_failure"
	TypeDeviceRegistered       = "device_registered"
	TypeSessionExpired         = "session_expired"
)
