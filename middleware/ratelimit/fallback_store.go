package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/clinicore/shield/services/logging"
)

// FallbackStore degrades to per-instance in-memory tracking when the
// shared store is unavailable, instead of failing closed. Counters
// accumulated locally during an outage are preserved locally and are
// not reconciled back once the shared store returns; windows are short
// enough that the worst case is under-counting for one window.
type FallbackStore struct {
	primary  Store
	fallback Store
	logger   *logging.Service
}

func NewFallbackStore(primary Store, fallback Store, logger *logging.Service) *FallbackStore {
	return &FallbackStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (s *FallbackStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	count, resetTime, err := s.primary.Increment(ctx, key, window)
	if err == nil {
		return count, resetTime, nil
	}

	s.warn("increment", err)
	return s.fallback.Increment(ctx, key, window)
}

func (s *FallbackStore) Get(ctx context.Context, key string) (int, time.Time, error) {
	count, resetTime, err := s.primary.Get(ctx, key)
	if err == nil {
		return count, resetTime, nil
	}

	s.warn("get", err)
	return s.fallback.Get(ctx, key)
}

func (s *FallbackStore) Reset(ctx context.Context, key string) error {
	err := s.primary.Reset(ctx, key)
	if err != nil {
		s.warn("reset", err)
	}
	// Always reset locally too; the key may have drifted there during
	// an outage.
	if fbErr := s.fallback.Reset(ctx, key); fbErr != nil {
		return fbErr
	}
	return nil
}

func (s *FallbackStore) Block(ctx context.Context, ip string, d time.Duration, reason string) error {
	err := s.primary.Block(ctx, ip, d, reason)
	if err == nil {
		return nil
	}

	s.warn("block", err)
	return s.fallback.Block(ctx, ip, d, reason)
}

func (s *FallbackStore) GetBlock(ctx context.Context, ip string) (*BlockEntry, error) {
	block, err := s.primary.GetBlock(ctx, ip)
	if err == nil {
		if block != nil {
			return block, nil
		}
		// A block placed during an outage only exists locally.
		return s.fallback.GetBlock(ctx, ip)
	}

	s.warn("block lookup", err)
	return s.fallback.GetBlock(ctx, ip)
}

func (s *FallbackStore) warn(op string, err error) {
	if s.logger != nil {
		s.logger.Warn("shared rate-limit store unavailable, using in-memory fallback",
			zap.String("op", op),
			zap.Error(err))
	}
}
