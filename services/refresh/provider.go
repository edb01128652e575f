package refresh

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/clinicore/shield/config"
	"github.com/clinicore/shield/services/logging"
)

// ProvideLockStore selects the shared marker store when Redis is
// configured and the per-process store otherwise.
func ProvideLockStore(cfg *config.Config, logger *logging.Service) LockStore {
	if cfg.Redis.Addr == "" {
		if logger != nil {
			logger.Info("refresh locks using in-memory store")
		}
		return NewMemoryLockStore()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if logger != nil {
		logger.Info("refresh locks using redis store")
	}

	return NewRedisLockStore(client)
}

var Options = fx.Options(
	fx.Provide(ProvideLockStore),
)
