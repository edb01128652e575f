package device

import (
	"github.com/clinicore/shield/services/logging"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideDeviceService(db *gorm.DB, logger *logging.Service) *Service {
	return NewService(db, logger)
}

var Options = fx.Options(
	fx.Provide(ProvideDeviceService),
)
