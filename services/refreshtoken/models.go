package refreshtoken

import (
	"time"
)

// RefreshToken is the server-side record behind a long-lived refresh
// credential. The credential itself is never stored; only its hash and
// a short trailing hint used to narrow lookups.
type RefreshToken struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"user_id" gorm:"not null;index"`
	TokenHash string    `json:"-" gorm:"uniqueIndex;size:64;not null"`
	TokenHint string    `json:"-" gorm:"size:12;index"`
	DeviceID  string    `json:"device_id" gorm:"size:36;index"`
	Valid     bool      `json:"valid" gorm:"not null;default:true"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null;index"`
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`
}

func (RefreshToken) TableName() string {
	return "refresh_tokens"
}
