package logging

import (
	"github.com/clinicore/shield/config"
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(NewLoggingService),
)

func NewLoggingService(cfg *config.Config) (*Service, error) {
	return NewService(Config{
		Level:  LogLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
	})
}
