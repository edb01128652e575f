package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/clinicore/shield/config"
	"github.com/clinicore/shield/services/logging"
)

var (
	// ErrReauthRequired means the session cannot be refreshed and the
	// user must log in again.
	ErrReauthRequired = errors.New("re-authentication required")
	// ErrSessionExpired is the hard stop after repeated refresh
	// failures across the session's lifetime.
	ErrSessionExpired = errors.New("session expired")
)

type Trigger string

const (
	TriggerFocus        Trigger = "focus"
	TriggerIdle         Trigger = "idle"
	TriggerUnauthorized Trigger = "unauthorized"
	// TriggerResume fires when the hosting environment restores a
	// suspended session (e.g. a page revived from cache). Tokens may be
	// stale relative to wall-clock time, so a refresh is always forced.
	TriggerResume Trigger = "resume"
)

type Tokens struct {
	Access    string
	Refresh   string
	ExpiresAt time.Time
}

// TokenStore is the coordinator-controlled storage for the session's
// current token pair.
type TokenStore interface {
	Get() (Tokens, bool)
	Set(Tokens)
	Clear()
}

type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens Tokens
	set    bool
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Get() (Tokens, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens, s.set
}

func (s *MemoryTokenStore) Set(tokens Tokens) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = tokens
	s.set = true
}

func (s *MemoryTokenStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = Tokens{}
	s.set = false
}

// Invoker performs the actual network call to the refresh endpoint.
type Invoker interface {
	Refresh(ctx context.Context, refreshToken string) (Tokens, error)
}

// StatusError marks an invoker failure carrying an HTTP status. 5xx
// responses are retried; 4xx responses are definitive.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("refresh endpoint returned status %d", e.Code)
}

func retryableRefreshError(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500
	}
	// Anything without a status is a transport failure.
	return true
}

// Coordinator ensures at most one in-flight refresh call per session
// under concurrent triggers.
type Coordinator struct {
	sessionKey string
	grace      time.Duration
	policy     RetryPolicy
	// freshnessSkew is how much remaining validity a token needs to be
	// considered fresh enough to skip a refresh.
	freshnessSkew time.Duration
	maxFailures   int

	locks   LockStore
	tokens  TokenStore
	invoker Invoker
	logger  *logging.Service

	now   func() time.Time
	sleep SleepFunc

	mu                  sync.Mutex
	consecutiveFailures int
}

type CoordinatorConfig struct {
	SessionKey    string
	Grace         time.Duration
	Policy        RetryPolicy
	FreshnessSkew time.Duration
	MaxFailures   int
}

func NewCoordinator(cfg CoordinatorConfig, locks LockStore, tokens TokenStore, invoker Invoker, logger *logging.Service) *Coordinator {
	if cfg.Grace <= 0 {
		cfg.Grace = 2 * time.Second
	}
	if cfg.Policy.MaxAttempts <= 0 {
		cfg.Policy = RetryPolicy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second}
	}
	if cfg.FreshnessSkew <= 0 {
		cfg.FreshnessSkew = 30 * time.Second
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}

	return &Coordinator{
		sessionKey:    cfg.SessionKey,
		grace:         cfg.Grace,
		policy:        cfg.Policy,
		freshnessSkew: cfg.FreshnessSkew,
		maxFailures:   cfg.MaxFailures,
		locks:         locks,
		tokens:        tokens,
		invoker:       invoker,
		logger:        logger,
		now:           time.Now,
		sleep:         DefaultSleep,
	}
}

func NewCoordinatorFromConfig(cfg *config.Config, sessionKey string, locks LockStore, tokens TokenStore, invoker Invoker, logger *logging.Service) *Coordinator {
	return NewCoordinator(CoordinatorConfig{
		SessionKey: sessionKey,
		Grace:      cfg.Refresh.LockGracePeriod,
		Policy: RetryPolicy{
			MaxAttempts: cfg.Refresh.MaxAttempts,
			BaseDelay:   cfg.Refresh.BaseDelay,
			MaxDelay:    cfg.Refresh.MaxDelay,
		},
		MaxFailures: cfg.Refresh.MaxFailures,
	}, locks, tokens, invoker, logger)
}

// Fresh reports whether the stored access token still has comfortable
// validity left.
func (c *Coordinator) Fresh() bool {
	tokens, ok := c.tokens.Get()
	if !ok || tokens.Access == "" {
		return false
	}
	return tokens.ExpiresAt.After(c.now().Add(c.freshnessSkew))
}

// Refresh obtains a fresh token pair, coordinating with concurrent
// callers through the advisory lock marker.
func (c *Coordinator) Refresh(ctx context.Context, trigger Trigger) (Tokens, error) {
	if trigger != TriggerResume && c.Fresh() {
		tokens, _ := c.tokens.Get()
		return tokens, nil
	}

	acquired, err := c.locks.TryAcquire(ctx, c.sessionKey, c.grace)
	if err != nil {
		// Lock store outage: proceed without coordination rather than
		// blocking the session.
		if c.logger != nil {
			c.logger.Warn("refresh lock store unavailable, proceeding uncoordinated", zap.Error(err))
		}
		acquired = true
	}

	if !acquired {
		tokens, waitErr := c.waitForConcurrentRefresh(ctx, trigger)
		if waitErr == nil {
			return tokens, nil
		}
		// The concurrent holder did not finish within the grace period;
		// its marker has aged out, so take over.
		if _, err := c.locks.TryAcquire(ctx, c.sessionKey, c.grace); err != nil && c.logger != nil {
			c.logger.Warn("failed to take over stale refresh marker", zap.Error(err))
		}
	}

	return c.performRefresh(ctx, trigger)
}

// waitForConcurrentRefresh polls token freshness while another caller
// holds the marker, instead of issuing a duplicate network call.
func (c *Coordinator) waitForConcurrentRefresh(ctx context.Context, trigger Trigger) (Tokens, error) {
	interval := c.grace / 4
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	deadline := c.now().Add(c.grace)
	for c.now().Before(deadline) {
		if err := c.sleep(ctx, interval); err != nil {
			return Tokens{}, err
		}
		// Resume triggers force a real refresh, so only adopt the
		// concurrent result for ordinary triggers.
		if trigger != TriggerResume && c.Fresh() {
			tokens, _ := c.tokens.Get()
			return tokens, nil
		}
	}

	return Tokens{}, errors.New("concurrent refresh did not complete")
}

func (c *Coordinator) performRefresh(ctx context.Context, trigger Trigger) (Tokens, error) {
	defer func() {
		if err := c.locks.Release(context.WithoutCancel(ctx), c.sessionKey); err != nil && c.logger != nil {
			c.logger.Warn("failed to release refresh marker", zap.Error(err))
		}
	}()

	current, ok := c.tokens.Get()
	if !ok || current.Refresh == "" {
		return Tokens{}, c.recordFailure(ErrReauthRequired)
	}

	var refreshed Tokens
	err := retryDo(ctx, c.policy, c.sleep, retryableRefreshError, func(ctx context.Context) error {
		tokens, err := c.invoker.Refresh(ctx, current.Refresh)
		if err != nil {
			return err
		}
		refreshed = tokens
		return nil
	})

	if err != nil {
		if c.logger != nil {
			c.logger.Warn("refresh failed",
				zap.String("trigger", string(trigger)),
				zap.Error(err))
		}
		c.tokens.Clear()
		return Tokens{}, c.recordFailure(ErrReauthRequired)
	}

	c.tokens.Set(refreshed)
	c.resetFailures()

	if c.logger != nil {
		c.logger.Debug("refresh completed",
			zap.String("trigger", string(trigger)),
			zap.Time("expires_at", refreshed.ExpiresAt))
	}

	return refreshed, nil
}

// Resume is the session-resume hook. It always forces an immediate
// refresh attempt regardless of apparent token freshness.
func (c *Coordinator) Resume(ctx context.Context) (Tokens, error) {
	return c.Refresh(ctx, TriggerResume)
}

func (c *Coordinator) recordFailure(base error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveFailures++
	if c.consecutiveFailures >= c.maxFailures {
		return ErrSessionExpired
	}
	return base
}

func (c *Coordinator) resetFailures() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveFailures = 0
}

// ConsecutiveFailures exposes the failure count for diagnostics.
func (c *Coordinator) ConsecutiveFailures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consecutiveFailures
}
