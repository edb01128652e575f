package authapi

import (
	"go.uber.org/fx"

	"github.com/clinicore/shield/config"
	"github.com/clinicore/shield/middleware/ratelimit"
	"github.com/clinicore/shield/services/audit"
	"github.com/clinicore/shield/services/device"
	"github.com/clinicore/shield/services/logging"
	"github.com/clinicore/shield/services/refreshtoken"
	"github.com/clinicore/shield/services/token"
	twofactorsvc "github.com/clinicore/shield/services/twofactor"
)

func ProvideHandler(
	cfg *config.Config,
	logger *logging.Service,
	auditLogger *audit.Logger,
	tokens *token.Service,
	refresh *refreshtoken.Service,
	devices *device.Service,
	twoFactor *twofactorsvc.Service,
	tracker *ratelimit.Tracker,
	users UserDirectory,
) *Handler {
	return NewHandler(cfg, logger, auditLogger, tokens, refresh, devices, twoFactor, tracker, users)
}

func Options() fx.Option {
	return fx.Options(
		fx.Provide(ProvideHandler),
	)
}
