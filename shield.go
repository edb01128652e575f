package shield

import (
	"github.com/clinicore/shield/app"
	"github.com/clinicore/shield/config"
)

type App = app.App

type AppBuilder = app.AppBuilder

func New() *AppBuilder {
	return app.NewApp()
}

func WithConfig(cfg *config.Config) *AppBuilder {
	return app.NewApp().WithConfig(cfg)
}
