package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clinicore/shield/config"
	"github.com/clinicore/shield/services/audit"
	"github.com/clinicore/shield/services/logging"
)

// Tracker escalates repeated failed logins to time-boxed IP bans.
type Tracker struct {
	store  Store
	config *config.Config
	logger *logging.Service
	audit  *audit.Logger
}

func NewTracker(store Store, cfg *config.Config, logger *logging.Service, auditLogger *audit.Logger) *Tracker {
	return &Tracker{
		store:  store,
		config: cfg,
		logger: logger,
		audit:  auditLogger,
	}
}

func failureKey(ip, username string) string {
	return "login_failures:" + ip + ":" + username
}

// TrackFailedLogin records one failure for the (ip, username) pair
// within the rolling window. Reaching the threshold blocks the IP for
// the configured duration and writes a critical audit event.
func (t *Tracker) TrackFailedLogin(ctx context.Context, ip, username string, ri audit.RequestInfo) {
	count, _, err := t.store.Increment(ctx, failureKey(ip, username), t.config.RateLimit.LoginFailureReset)
	if err != nil {
		if t.logger != nil {
			t.logger.Error("failed to track login failure", zap.Error(err))
		}
		return
	}

	if count < t.config.RateLimit.LoginFailureMax {
		return
	}

	reason := fmt.Sprintf("%d failed logins for %s within %s",
		count, username, t.config.RateLimit.LoginFailureReset)

	if err := t.store.Block(ctx, ip, t.config.RateLimit.BlockDuration, reason); err != nil {
		if t.logger != nil {
			t.logger.Error("failed to block IP", zap.String("ip", ip), zap.Error(err))
		}
		return
	}

	if t.logger != nil {
		t.logger.Warn("IP blocked after repeated failed logins",
			zap.String("ip", ip),
			zap.String("username", username),
			zap.Int("failures", count),
			zap.Duration("duration", t.config.RateLimit.BlockDuration))
	}

	if t.audit != nil {
		t.audit.Log(ctx, audit.IPBlocked(ip, reason, ri))
	}
}

// ClearFailedLogins resets the failure counter after a successful
// authentication.
func (t *Tracker) ClearFailedLogins(ctx context.Context, ip, username string) {
	if err := t.store.Reset(ctx, failureKey(ip, username)); err != nil && t.logger != nil {
		t.logger.Warn("failed to clear login failure counter",
			zap.String("ip", ip),
			zap.Error(err))
	}
}

// IsBlocked reports the active block for an IP, if any. Store errors
// resolve to unblocked: the fallback path inside the store already
// covers shared-store outages, and a total failure must not lock every
// caller out.
func (t *Tracker) IsBlocked(ctx context.Context, ip string) *BlockEntry {
	block, err := t.store.GetBlock(ctx, ip)
	if err != nil {
		if t.logger != nil {
			t.logger.Error("IP block lookup failed", zap.String("ip", ip), zap.Error(err))
		}
		return nil
	}
	return block
}

// RetryAfter estimates the seconds remaining on a block.
func (b *BlockEntry) RetryAfter(now time.Time) int {
	remaining := int(b.Until.Sub(now).Seconds())
	if remaining < 1 {
		return 1
	}
	return remaining
}
