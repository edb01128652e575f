package device

import (
	"time"
)

type TrustStatus string

const (
	TrustPending TrustStatus = "pending"
	TrustActive  TrustStatus = "active"
	TrustRevoked TrustStatus = "revoked"
)

// Identity is the durable per-client identifier. It outlives tokens and
// is the anchor for trusted-device checks on high-security paths.
type Identity struct {
	ID        string      `json:"id" gorm:"primaryKey;size:36"`
	UserID    uint        `json:"user_id" gorm:"index"`
	Status    TrustStatus `json:"status" gorm:"size:16;not null;default:pending"`
	Summary   string      `json:"summary" gorm:"size:255"`
	FirstSeen time.Time   `json:"first_seen" gorm:"not null"`
	LastSeen  time.Time   `json:"last_seen" gorm:"not null"`
}

func (Identity) TableName() string {
	return "device_identities"
}
