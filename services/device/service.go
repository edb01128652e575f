package device

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/clinicore/shield/services/logging"
)

var (
	ErrDeviceNotFound = errors.New("device identity not found")
	ErrDeviceRevoked  = errors.New("device identity revoked")
)

// CookieName is the client-side storage location for the device id. The
// database row is the canonical source; the cookie is a cache of it.
const CookieName = "deviceId"

type Service struct {
	db     *gorm.DB
	logger *logging.Service
	now    func() time.Time
}

func NewService(db *gorm.DB, logger *logging.Service) *Service {
	return &Service{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// Initialize reconciles the candidate id presented by the client against
// the canonical store and returns the id the client should keep.
//
// A candidate known to the store wins outright. A well-formed candidate
// the store has never seen is adopted rather than discarded: the client
// may have registered against another instance before a store failover.
// Anything else is replaced with a freshly generated identity.
func (s *Service) Initialize(candidateID, summary string) (*Identity, error) {
	now := s.now()

	if candidateID != "" {
		if _, err := uuid.Parse(candidateID); err != nil {
			if s.logger != nil {
				s.logger.Warn("malformed device id presented, issuing new identity",
					zap.String("candidate", candidateID))
			}
			return s.create(summary, now)
		}

		var existing Identity
		err := s.db.Where("id = ?", candidateID).First(&existing).Error
		switch {
		case err == nil:
			existing.LastSeen = now
			if summary != "" && existing.Summary != summary {
				existing.Summary = summary
			}
			if err := s.db.Save(&existing).Error; err != nil {
				return nil, fmt.Errorf("failed to touch device identity: %w", err)
			}
			return &existing, nil
		case errors.Is(err, gorm.ErrRecordNotFound):
			adopted := Identity{
				ID:        candidateID,
				Status:    TrustPending,
				Summary:   summary,
				FirstSeen: now,
				LastSeen:  now,
			}
			if err := s.db.Create(&adopted).Error; err != nil {
				return nil, fmt.Errorf("failed to adopt device identity: %w", err)
			}
			if s.logger != nil {
				s.logger.Info("adopted client-presented device id",
					zap.String("device_id", candidateID))
			}
			return &adopted, nil
		default:
			return nil, fmt.Errorf("failed to look up device identity: %w", err)
		}
	}

	return s.create(summary, now)
}

func (s *Service) create(summary string, now time.Time) (*Identity, error) {
	identity := Identity{
		ID:        uuid.New().String(),
		Status:    TrustPending,
		Summary:   summary,
		FirstSeen: now,
		LastSeen:  now,
	}

	if err := s.db.Create(&identity).Error; err != nil {
		return nil, fmt.Errorf("failed to create device identity: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("created device identity", zap.String("device_id", identity.ID))
	}

	return &identity, nil
}

// Verify reports whether the candidate matches a known identity.
func (s *Service) Verify(candidateID string) bool {
	if candidateID == "" {
		return false
	}

	var count int64
	if err := s.db.Model(&Identity{}).Where("id = ?", candidateID).Count(&count).Error; err != nil {
		if s.logger != nil {
			s.logger.Error("device verification query failed", zap.Error(err))
		}
		return false
	}

	return count > 0
}

func (s *Service) Get(deviceID string) (*Identity, error) {
	var identity Identity
	err := s.db.Where("id = ?", deviceID).First(&identity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("failed to load device identity: %w", err)
	}
	return &identity, nil
}

// AttachUser records which account the device belongs to and marks it
// trusted. Called after a fully verified login on the device.
func (s *Service) AttachUser(deviceID string, userID uint) error {
	result := s.db.Model(&Identity{}).
		Where("id = ?", deviceID).
		Updates(map[string]any{"user_id": userID, "status": TrustActive, "last_seen": s.now()})

	if result.Error != nil {
		return fmt.Errorf("failed to attach device to user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrDeviceNotFound
	}

	if s.logger != nil {
		s.logger.Info("device attached to user",
			zap.String("device_id", deviceID),
			zap.Uint("user_id", userID))
	}

	return nil
}

func (s *Service) Revoke(deviceID string) error {
	result := s.db.Model(&Identity{}).
		Where("id = ?", deviceID).
		Update("status", TrustRevoked)

	if result.Error != nil {
		return fmt.Errorf("failed to revoke device: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

// IsTrusted reports whether the device exists, belongs to the user and
// carries ACTIVE trust. Used by the high-tier verification step.
func (s *Service) IsTrusted(deviceID string, userID uint) bool {
	identity, err := s.Get(deviceID)
	if err != nil {
		return false
	}

	return identity.Status == TrustActive && identity.UserID == userID
}
