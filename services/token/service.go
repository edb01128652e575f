package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicore/shield/config"
	"github.com/clinicore/shield/services/logging"
)

// ErrInvalidToken is the only verification error callers see. Signature,
// kind, expiry and fingerprint failures all collapse into it so a caller
// cannot learn which check rejected the token.
var ErrInvalidToken = errors.New("invalid token")

type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
	KindTemp    Kind = "temp"
)

// Identity is the subject a token is minted for.
type Identity struct {
	UserID   uint
	Email    string
	Role     string
	ClinicID uint
}

type Claims struct {
	UserID      uint   `json:"user_id"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role,omitempty"`
	ClinicID    uint   `json:"clinic_id,omitempty"`
	Kind        string `json:"kind"`
	Fingerprint string `json:"fp,omitempty"`
	JTI         string `json:"jti"`
	jwt.RegisteredClaims
}

func (c *Claims) Identity() Identity {
	return Identity{
		UserID:   c.UserID,
		Email:    c.Email,
		Role:     c.Role,
		ClinicID: c.ClinicID,
	}
}

// Signer abstracts the signing primitive so deployments can swap in a
// KMS-backed implementation without touching verification logic.
type Signer interface {
	Sign(claims jwt.Claims) (string, error)
	Parse(tokenString string, claims jwt.Claims) (*jwt.Token, error)
}

type HMACSigner struct {
	secret []byte
}

func NewHMACSigner(secret string) *HMACSigner {
	return &HMACSigner{secret: []byte(secret)}
}

func (s *HMACSigner) Sign(claims jwt.Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *HMACSigner) Parse(tokenString string, claims jwt.Claims) (*jwt.Token, error) {
	return jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() == "none" {
			return nil, errors.New("'none' algorithm is not allowed")
		}

		if token.Method.Alg() != "HS256" {
			return nil, fmt.Errorf("unexpected algorithm: expected HS256, got %s", token.Method.Alg())
		}

		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("invalid algorithm family: %v", token.Header["alg"])
		}

		return s.secret, nil
	})
}

type Service struct {
	config *config.Config
	signer Signer
	logger *logging.Service
	now    func() time.Time
}

func NewService(cfg *config.Config, signer Signer, logger *logging.Service) *Service {
	if signer == nil {
		signer = NewHMACSigner(cfg.Token.SecretKey)
	}

	return &Service{
		config: cfg,
		signer: signer,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Service) AccessExpirySeconds() int {
	return int(s.config.Token.AccessExpiry.Seconds())
}

// Issue mints a token of the given kind bound to the request fingerprint.
// An empty fingerprint leaves the token unbound.
func (s *Service) Issue(kind Kind, identity Identity, fingerprintHash string) (string, error) {
	now := s.now()
	jti := uuid.New().String()

	claims := Claims{
		UserID:      identity.UserID,
		Email:       identity.Email,
		Role:        identity.Role,
		ClinicID:    identity.ClinicID,
		Kind:        string(kind),
		Fingerprint: fingerprintHash,
		JTI:         jti,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.config.Token.Issuer,
			Subject:   fmt.Sprintf("%d", identity.UserID),
			Audience:  []string{s.config.Token.Issuer},
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiryFor(kind))),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	tokenString, err := s.signer.Sign(claims)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to sign token",
				zap.String("kind", string(kind)),
				zap.Error(err))
		}
		return "", fmt.Errorf("failed to issue %s token: %w", kind, err)
	}

	return tokenString, nil
}

// Verify checks signature, kind and expiry, and when fingerprintHash is
// non-empty, that the token was bound to the same fingerprint.
func (s *Service) Verify(tokenString string, kind Kind, fingerprintHash string) (*Claims, error) {
	parsed, err := s.signer.Parse(tokenString, &Claims{})
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("token validation failed", zap.Error(err))
		}
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Kind != string(kind) {
		if s.logger != nil {
			s.logger.Warn("token validation failed - kind mismatch",
				zap.String("expected", string(kind)),
				zap.String("got", claims.Kind))
		}
		return nil, ErrInvalidToken
	}

	if fingerprintHash != "" && claims.Fingerprint != fingerprintHash {
		if s.logger != nil {
			s.logger.Warn("token validation failed - fingerprint mismatch",
				zap.Uint("user_id", claims.UserID))
		}
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (s *Service) expiryFor(kind Kind) time.Duration {
	switch kind {
	case KindRefresh:
		return s.config.Refresh.Expiry
	case KindTemp:
		return s.config.Token.TempExpiry
	default:
		return s.config.Token.AccessExpiry
	}
}
