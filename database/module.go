package database

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/clinicore/shield/config"
	"github.com/clinicore/shield/services/logging"
)

var Module = fx.Options(
	fx.Provide(ProvideDatabaseFx),
)

func ProvideDatabaseFx(cfg *config.Config, modelsOpt *ModelsOption, logger *logging.Service) (*gorm.DB, error) {
	return ProvideDatabase(*cfg, modelsOpt, logger)
}
