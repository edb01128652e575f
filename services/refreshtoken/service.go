package refreshtoken

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/clinicore/shield/config"
	"github.com/clinicore/shield/services/audit"
	"github.com/clinicore/shield/services/logging"
)

var (
	ErrTokenNotFound = errors.New("refresh token not found")
	ErrTokenExpired  = errors.New("refresh token expired")
	ErrTokenReused   = errors.New("refresh token already invalidated")
)

type Service struct {
	db     *gorm.DB
	config *config.Config
	logger *logging.Service
	audit  *audit.Logger
	now    func() time.Time
}

func NewService(db *gorm.DB, cfg *config.Config, logger *logging.Service, auditLogger *audit.Logger) *Service {
	if logger != nil {
		logger.Info("initializing refresh token service",
			zap.Duration("token_expiry", cfg.Refresh.Expiry),
			zap.Duration("cleanup_interval", cfg.Refresh.CleanupInterval))
	}

	return &Service{
		db:     db,
		config: cfg,
		logger: logger,
		audit:  auditLogger,
		now:    time.Now,
	}
}

// Record persists the server-side row for an already-minted refresh
// credential. Multiple valid rows per user are tolerated (one per
// device); one per (user, device) is the expected steady state.
func (s *Service) Record(tokenString string, userID uint, deviceID string) (*RefreshToken, error) {
	record := RefreshToken{
		UserID:    userID,
		TokenHash: hashToken(tokenString),
		TokenHint: tokenHint(tokenString),
		DeviceID:  deviceID,
		Valid:     true,
		ExpiresAt: s.now().Add(s.config.Refresh.Expiry),
		CreatedAt: s.now(),
		LastUsed:  s.now(),
	}

	if err := s.db.Create(&record).Error; err != nil {
		if s.logger != nil {
			s.logger.Error("failed to store refresh token record", zap.Error(err))
		}
		return nil, fmt.Errorf("failed to store refresh token record: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("refresh token recorded",
			zap.Uint("user_id", userID),
			zap.String("device_id", deviceID),
			zap.Time("expires_at", record.ExpiresAt))
	}

	return &record, nil
}

// Validate resolves a presented credential to its record. Presenting an
// invalidated credential is a reuse signal: every record for that user
// is revoked and a critical audit event is written.
func (s *Service) Validate(ctx context.Context, tokenString string) (*RefreshToken, error) {
	var record RefreshToken
	err := s.db.Where("token_hash = ?", hashToken(tokenString)).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if s.logger != nil {
				s.logger.Warn("refresh token validation failed - record not found")
			}
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if !record.Valid {
		if s.logger != nil {
			s.logger.Warn("invalidated refresh token presented",
				zap.Uint("user_id", record.UserID),
				zap.Uint("token_id", record.ID))
		}
		if err := s.RevokeAllForUser(record.UserID); err != nil && s.logger != nil {
			s.logger.Error("failed to revoke sessions after token reuse", zap.Error(err))
		}
		if s.audit != nil {
			s.audit.Log(ctx, audit.TokenReuseDetected(record.UserID, audit.RequestInfo{}))
		}
		return nil, ErrTokenReused
	}

	if s.now().After(record.ExpiresAt) {
		if s.logger != nil {
			s.logger.Warn("refresh token validation failed - expired",
				zap.Uint("token_id", record.ID),
				zap.Uint("user_id", record.UserID))
		}
		return nil, ErrTokenExpired
	}

	return &record, nil
}

// Rotate invalidates the old record and persists a replacement for the
// newly minted credential in one transaction.
func (s *Service) Rotate(ctx context.Context, oldTokenString, newTokenString string) (*RefreshToken, error) {
	oldRecord, err := s.Validate(ctx, oldTokenString)
	if err != nil {
		return nil, err
	}

	var newRecord RefreshToken
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&RefreshToken{}).
			Where("id = ?", oldRecord.ID).
			Update("valid", false).Error; err != nil {
			return fmt.Errorf("failed to invalidate old refresh token: %w", err)
		}

		newRecord = RefreshToken{
			UserID:    oldRecord.UserID,
			TokenHash: hashToken(newTokenString),
			TokenHint: tokenHint(newTokenString),
			DeviceID:  oldRecord.DeviceID,
			Valid:     true,
			ExpiresAt: s.now().Add(s.config.Refresh.Expiry),
			CreatedAt: s.now(),
			LastUsed:  s.now(),
		}
		if err := tx.Create(&newRecord).Error; err != nil {
			return fmt.Errorf("failed to store rotated refresh token: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("refresh token rotated",
			zap.Uint("user_id", oldRecord.UserID),
			zap.Uint("old_token_id", oldRecord.ID),
			zap.Uint("new_token_id", newRecord.ID))
	}

	return &newRecord, nil
}

// Invalidate flags the record for a presented credential, e.g. on logout.
func (s *Service) Invalidate(tokenString string) error {
	result := s.db.Model(&RefreshToken{}).
		Where("token_hash = ?", hashToken(tokenString)).
		Update("valid", false)

	if result.Error != nil {
		return fmt.Errorf("failed to invalidate refresh token: %w", result.Error)
	}

	return nil
}

func (s *Service) RevokeAllForUser(userID uint) error {
	result := s.db.Model(&RefreshToken{}).
		Where("user_id = ? AND valid = ?", userID, true).
		Update("valid", false)

	if result.Error != nil {
		return fmt.Errorf("failed to revoke user refresh tokens: %w", result.Error)
	}

	if s.logger != nil {
		s.logger.Info("revoked all refresh tokens for user",
			zap.Uint("user_id", userID),
			zap.Int64("count", result.RowsAffected))
	}

	return nil
}

func (s *Service) RevokeByDevice(deviceID string) error {
	result := s.db.Model(&RefreshToken{}).
		Where("device_id = ? AND valid = ?", deviceID, true).
		Update("valid", false)

	if result.Error != nil {
		return fmt.Errorf("failed to revoke device refresh tokens: %w", result.Error)
	}

	return nil
}

// ActiveForUserDevice supports the high-tier invariant: an access token
// on a HIGH path is only honored while an active record exists for the
// same user and device.
func (s *Service) ActiveForUserDevice(userID uint, deviceID string) (*RefreshToken, error) {
	var record RefreshToken
	err := s.db.Where("user_id = ? AND device_id = ? AND valid = ? AND expires_at > ?",
		userID, deviceID, true, s.now()).
		Order("created_at DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &record, nil
}

func (s *Service) TouchLastUsed(tokenID uint) error {
	err := s.db.Model(&RefreshToken{}).
		Where("id = ?", tokenID).
		Update("last_used", s.now()).Error

	if err != nil && s.logger != nil {
		s.logger.Warn("failed to update refresh token last used time",
			zap.Error(err),
			zap.Uint("token_id", tokenID))
	}

	return err
}

func (s *Service) CleanupExpired() error {
	result := s.db.Where("expires_at < ?", s.now()).Delete(&RefreshToken{})
	if result.Error != nil {
		if s.logger != nil {
			s.logger.Error("failed to cleanup expired refresh tokens", zap.Error(result.Error))
		}
		return fmt.Errorf("failed to cleanup expired tokens: %w", result.Error)
	}

	if s.logger != nil && result.RowsAffected > 0 {
		s.logger.Info("cleaned up expired refresh tokens",
			zap.Int64("count", result.RowsAffected))
	}

	return nil
}

func (s *Service) StartCleanupWorker() {
	go func() {
		ticker := time.NewTicker(s.config.Refresh.CleanupInterval)
		defer ticker.Stop()

		for range ticker.C {
			if err := s.CleanupExpired(); err != nil && s.logger != nil {
				s.logger.Error("refresh token cleanup worker failed", zap.Error(err))
			}
		}
	}()

	if s.logger != nil {
		s.logger.Info("started refresh token cleanup worker",
			zap.Duration("interval", s.config.Refresh.CleanupInterval))
	}
}

func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// tokenHint keeps the trailing characters of the credential as a coarse
// secondary index for operational lookups.
func tokenHint(token string) string {
	if len(token) <= 12 {
		return token
	}
	return token[len(token)-12:]
}
