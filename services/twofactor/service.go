package twofactor

import (
	"errors"
	"fmt"
	"time"

	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/clinicore/shield/config"
	"github.com/clinicore/shield/services/logging"
)

var (
	ErrDisabled       = errors.New("two-factor authentication is disabled")
	ErrInvalidCode    = errors.New("invalid two-factor code")
	ErrCodeReplayed   = errors.New("two-factor code has already been used")
	ErrSecretExists   = errors.New("two-factor secret already exists for user")
	ErrSecretNotFound = errors.New("two-factor secret not found for user")
	ErrNotEnrolled    = errors.New("two-factor authentication not enrolled")
)

// usedCodeRetention keeps consumed codes long enough to outlive the
// TOTP validity window plus clock skew.
const usedCodeRetention = 5 * time.Minute

type Service struct {
	config *config.Config
	db     *gorm.DB
	logger *logging.Service
	now    func() time.Time
}

func NewService(cfg *config.Config, db *gorm.DB, logger *logging.Service) *Service {
	if logger != nil {
		logger.Info("initializing two-factor service",
			zap.Bool("enabled", cfg.TwoFactor.Enabled),
			zap.String("issuer", cfg.TwoFactor.Issuer))
	}

	return &Service{
		config: cfg,
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// GenerateSecret starts enrollment: a new secret row, disabled until
// the user proves possession with a first valid code.
func (s *Service) GenerateSecret(userID uint, accountName string) (*Secret, string, error) {
	if !s.config.TwoFactor.Enabled {
		return nil, "", ErrDisabled
	}

	var existing Secret
	err := s.db.Where("user_id = ?", userID).First(&existing).Error
	if err == nil && existing.Enabled {
		return nil, "", ErrSecretExists
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", fmt.Errorf("failed to check existing two-factor secret: %w", err)
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.config.TwoFactor.Issuer,
		AccountName: accountName,
	})
	if err != nil {
		if s.logger != nil {
			s.logger.Error("two-factor key generation failed",
				zap.Error(err),
				zap.Uint("user_id", userID))
		}
		return nil, "", fmt.Errorf("failed to generate two-factor key: %w", err)
	}

	// Re-enrollment before first verification replaces the pending
	// secret.
	if existing.ID != 0 {
		existing.Secret = key.Secret()
		existing.Enabled = false
		if err := s.db.Save(&existing).Error; err != nil {
			return nil, "", fmt.Errorf("failed to replace pending two-factor secret: %w", err)
		}
		return &existing, key.URL(), nil
	}

	secret := Secret{
		UserID:  userID,
		Secret:  key.Secret(),
		Enabled: false,
	}
	if err := s.db.Create(&secret).Error; err != nil {
		return nil, "", fmt.Errorf("failed to store two-factor secret: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("two-factor secret generated",
			zap.Uint("user_id", userID))
	}

	return &secret, key.URL(), nil
}

// Enable completes enrollment by validating the first code.
func (s *Service) Enable(userID uint, code string) error {
	if !s.config.TwoFactor.Enabled {
		return ErrDisabled
	}

	secret, err := s.getSecret(userID)
	if err != nil {
		return err
	}

	if !totp.Validate(code, secret.Secret) {
		if s.logger != nil {
			s.logger.Warn("two-factor enable failed - invalid code",
				zap.Uint("user_id", userID))
		}
		return ErrInvalidCode
	}

	secret.Enabled = true
	if err := s.db.Save(secret).Error; err != nil {
		return fmt.Errorf("failed to enable two-factor: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("two-factor enabled", zap.Uint("user_id", userID))
	}

	return nil
}

// Verify validates a code for an enrolled user and consumes it so the
// same code cannot be replayed within its window.
func (s *Service) Verify(userID uint, code string) error {
	if !s.config.TwoFactor.Enabled {
		return ErrDisabled
	}

	secret, err := s.getSecret(userID)
	if err != nil {
		return err
	}
	if !secret.Enabled {
		return ErrNotEnrolled
	}

	if !totp.Validate(code, secret.Secret) {
		return ErrInvalidCode
	}

	if err := s.consumeCode(userID, code); err != nil {
		return err
	}

	return nil
}

// Enrolled reports whether the user has a verified second factor.
func (s *Service) Enrolled(userID uint) bool {
	var count int64
	if err := s.db.Model(&Secret{}).
		Where("user_id = ? AND enabled = ?", userID, true).
		Count(&count).Error; err != nil {
		if s.logger != nil {
			s.logger.Error("two-factor enrollment check failed",
				zap.Error(err),
				zap.Uint("user_id", userID))
		}
		return false
	}

	return count > 0
}

func (s *Service) Disable(userID uint) error {
	result := s.db.Where("user_id = ?", userID).Delete(&Secret{})
	if result.Error != nil {
		return fmt.Errorf("failed to disable two-factor: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSecretNotFound
	}

	if s.logger != nil {
		s.logger.Info("two-factor disabled", zap.Uint("user_id", userID))
	}

	return nil
}

func (s *Service) getSecret(userID uint) (*Secret, error) {
	var secret Secret
	if err := s.db.Where("user_id = ?", userID).First(&secret).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSecretNotFound
		}
		return nil, fmt.Errorf("failed to retrieve two-factor secret: %w", err)
	}
	return &secret, nil
}

func (s *Service) consumeCode(userID uint, code string) error {
	var count int64
	if err := s.db.Model(&UsedCode{}).
		Where("user_id = ? AND code = ?", userID, code).
		Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check used code: %w", err)
	}
	if count > 0 {
		if s.logger != nil {
			s.logger.Warn("two-factor code replay rejected",
				zap.Uint("user_id", userID))
		}
		return ErrCodeReplayed
	}

	now := s.now()
	if err := s.db.Create(&UsedCode{UserID: userID, Code: code, UsedAt: now.Unix()}).Error; err != nil {
		return fmt.Errorf("failed to record used code: %w", err)
	}

	s.db.Where("used_at < ?", now.Add(-usedCodeRetention).Unix()).Delete(&UsedCode{})

	return nil
}
