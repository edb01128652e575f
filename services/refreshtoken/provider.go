package refreshtoken

import (
	"github.com/clinicore/shield/config"
	"github.com/clinicore/shield/services/audit"
	"github.com/clinicore/shield/services/logging"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideRefreshTokenService(db *gorm.DB, cfg *config.Config, logger *logging.Service, auditLogger *audit.Logger) *Service {
	service := NewService(db, cfg, logger, auditLogger)

	if cfg.Refresh.CleanupInterval > 0 {
		service.StartCleanupWorker()
	}

	return service
}

var Options = fx.Options(
	fx.Provide(ProvideRefreshTokenService),
)
