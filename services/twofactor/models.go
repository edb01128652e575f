package twofactor

import (
	"time"
)

type Secret struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"user_id" gorm:"uniqueIndex;not null"`
	Secret    string    `json:"-" gorm:"not null"`
	Enabled   bool      `json:"enabled" gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Secret) TableName() string {
	return "two_factor_secrets"
}

// UsedCode blocks replay of a TOTP code within its validity window.
type UsedCode struct {
	ID     uint   `gorm:"primaryKey"`
	UserID uint   `gorm:"index:idx_user_code,priority:1;not null"`
	Code   string `gorm:"index:idx_user_code,priority:2;not null"`
	UsedAt int64  `gorm:"index:idx_used_at;not null"`
}

func (UsedCode) TableName() string {
	return "two_factor_used_codes"
}
