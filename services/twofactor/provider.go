package twofactor

import (
	"github.com/clinicore/shield/config"
	"github.com/clinicore/shield/services/logging"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideTwoFactorService(cfg *config.Config, db *gorm.DB, logger *logging.Service) *Service {
	return NewService(cfg, db, logger)
}

var Options = fx.Options(
	fx.Provide(ProvideTwoFactorService),
)
