package token

import (
	"github.com/clinicore/shield/config"
	"github.com/clinicore/shield/services/logging"
	"go.uber.org/fx"
)

func ProvideTokenService(cfg *config.Config, logger *logging.Service) *Service {
	return NewService(cfg, nil, logger)
}

var Options = fx.Options(
	fx.Provide(ProvideTokenService),
)
