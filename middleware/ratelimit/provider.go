package ratelimit

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/clinicore/shield/config"
	"github.com/clinicore/shield/services/audit"
	"github.com/clinicore/shield/services/logging"
)

// ProvideStore wires the shared store with in-memory fallback when
// Redis is configured, and the plain in-memory store otherwise.
func ProvideStore(cfg *config.Config, logger *logging.Service) Store {
	if cfg.Redis.Addr == "" {
		if logger != nil {
			logger.Info("rate limiting using in-memory store")
		}
		return NewMemoryStore()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if logger != nil {
		logger.Info("rate limiting using redis store with in-memory fallback")
	}

	return NewFallbackStore(NewRedisStore(client), NewMemoryStore(), logger)
}

func ProvideTracker(store Store, cfg *config.Config, logger *logging.Service, auditLogger *audit.Logger) *Tracker {
	return NewTracker(store, cfg, logger, auditLogger)
}

var Options = fx.Options(
	fx.Provide(ProvideStore),
	fx.Provide(ProvideTracker),
)
