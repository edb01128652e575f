package app

import (
	"fmt"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/clinicore/shield/config"
	"github.com/clinicore/shield/database"
	"github.com/clinicore/shield/handlers/authapi"
	"github.com/clinicore/shield/middleware/ratelimit"
	"github.com/clinicore/shield/middleware/tokenauth"
	"github.com/clinicore/shield/pipeline"
	"github.com/clinicore/shield/securitytier"
	"github.com/clinicore/shield/server"
	"github.com/clinicore/shield/services/audit"
	"github.com/clinicore/shield/services/device"
	"github.com/clinicore/shield/services/logging"
	"github.com/clinicore/shield/services/refresh"
	"github.com/clinicore/shield/services/refreshtoken"
	"github.com/clinicore/shield/services/token"
	twofactorsvc "github.com/clinicore/shield/services/twofactor"
)

type AppBuilder struct {
	config    *config.Config
	services  map[string]bool
	models    []any
	fxOptions []fx.Option
	errors    []error
	users     authapi.UserDirectory
}

func NewApp() *AppBuilder {
	return &AppBuilder{
		services:  make(map[string]bool),
		models:    make([]any, 0),
		fxOptions: make([]fx.Option, 0),
		errors:    make([]error, 0),
	}
}

func (b *AppBuilder) WithConfig(cfg *config.Config) *AppBuilder {
	if cfg == nil {
		b.addError("config cannot be nil")
		return b
	}
	b.config = cfg
	return b
}

func (b *AppBuilder) WithAutoConfig() *AppBuilder {
	cfg := &config.Config{}
	if err := config.LoadConfig(cfg); err != nil {
		b.addError(fmt.Sprintf("failed to load config: %v", err))
		return b
	}
	b.config = cfg
	return b
}

func (b *AppBuilder) WithDatabase(models ...any) *AppBuilder {
	b.services["database"] = true
	b.models = append(b.models, models...)
	return b
}

func (b *AppBuilder) WithAudit() *AppBuilder {
	b.services["audit"] = true
	b.services["database"] = true
	b.models = append(b.models, &audit.Event{})
	return b
}

func (b *AppBuilder) WithTokens() *AppBuilder {
	b.services["tokens"] = true
	return b
}

func (b *AppBuilder) WithRefreshTokens() *AppBuilder {
	b.services["refresh_tokens"] = true
	b.services["tokens"] = true
	b.services["database"] = true
	b.models = append(b.models, &refreshtoken.RefreshToken{})
	return b
}

func (b *AppBuilder) WithDevices() *AppBuilder {
	b.services["devices"] = true
	b.services["database"] = true
	b.models = append(b.models, &device.Identity{})
	return b
}

func (b *AppBuilder) WithTwoFactor() *AppBuilder {
	b.services["two_factor"] = true
	b.services["database"] = true
	b.models = append(b.models, &twofactorsvc.Secret{}, &twofactorsvc.UsedCode{})
	return b
}

func (b *AppBuilder) WithRateLimit() *AppBuilder {
	b.services["rate_limit"] = true
	return b
}

func (b *AppBuilder) WithRefreshCoordination() *AppBuilder {
	b.services["refresh_coordination"] = true
	return b
}

// WithSecurityPipeline enables every stage the shared chain needs and
// installs the chain on the server.
func (b *AppBuilder) WithSecurityPipeline() *AppBuilder {
	b.services["pipeline"] = true
	b.WithAudit()
	b.WithTokens()
	b.WithRefreshTokens()
	b.WithDevices()
	b.WithTwoFactor()
	b.WithRateLimit()
	return b
}

// WithAuthAPI mounts the session endpoints backed by the given
// directory of user accounts.
func (b *AppBuilder) WithAuthAPI(users authapi.UserDirectory) *AppBuilder {
	if users == nil {
		b.addError("user directory cannot be nil")
		return b
	}
	b.services["auth_api"] = true
	b.users = users
	b.WithSecurityPipeline()
	return b
}

func (b *AppBuilder) WithFxOptions(opts ...fx.Option) *AppBuilder {
	b.fxOptions = append(b.fxOptions, opts...)
	return b
}

func (b *AppBuilder) Build() (*App, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	if b.config == nil {
		if err := b.WithAutoConfig().validate(); err != nil {
			return nil, err
		}
	}

	logger, err := b.createLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	services, err := b.buildServices(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build services: %w", err)
	}

	fxOptions := b.buildFxOptions(services, logger)

	app := &App{
		config: b.config,
		logger: logger,
		db:     services.database,
	}

	fxOptions = append(fxOptions, fx.Invoke(func(srv *server.Server) {
		app.server = srv
	}))

	app.fx = fx.New(fxOptions...)

	return app, nil
}

func (b *AppBuilder) addError(msg string) {
	b.errors = append(b.errors, fmt.Errorf("%s", msg))
}

func (b *AppBuilder) validate() error {
	if len(b.errors) > 0 {
		return fmt.Errorf("configuration errors: %v", b.errors)
	}

	if b.services["refresh_tokens"] && !b.services["database"] {
		return fmt.Errorf("refresh tokens require database support")
	}

	if b.services["two_factor"] && !b.services["database"] {
		b.services["database"] = true
	}

	return nil
}

func (b *AppBuilder) createLogger() (*logging.Service, error) {
	if b.config == nil {
		return nil, fmt.Errorf("config required for logger creation")
	}

	return logging.NewService(logging.Config{
		Level:  logging.LogLevel(b.config.Log.Level),
		Format: b.config.Log.Format,
	})
}

type ServiceContainer struct {
	database *gorm.DB
}

func (b *AppBuilder) buildServices(logger *logging.Service) (*ServiceContainer, error) {
	services := &ServiceContainer{}

	if b.services["database"] {
		modelsOpt := &database.ModelsOption{}
		if len(b.models) > 0 {
			modelsOpt = database.WithModels(b.models...)
		}

		db, err := database.ProvideDatabase(*b.config, modelsOpt, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		services.database = db
	}

	return services, nil
}

func (b *AppBuilder) buildFxOptions(services *ServiceContainer, logger *logging.Service) []fx.Option {
	var options []fx.Option

	options = append(options,
		fx.Supply(b.config),
		fx.Supply(logger),
		fx.NopLogger,
	)

	if services.database != nil {
		options = append(options, fx.Supply(services.database))
	}

	options = append(options, server.NewProvider())

	if b.services["audit"] {
		options = append(options, audit.Options)
	}
	if b.services["tokens"] {
		options = append(options, token.Options)
	}
	if b.services["refresh_tokens"] {
		options = append(options, refreshtoken.Options)
	}
	if b.services["devices"] {
		options = append(options, device.Options)
	}
	if b.services["two_factor"] {
		options = append(options, twofactorsvc.Options)
	}
	if b.services["rate_limit"] {
		options = append(options, ratelimit.Options)
	}
	if b.services["refresh_coordination"] {
		options = append(options, refresh.Options)
	}

	if b.services["pipeline"] {
		options = append(options, fx.Provide(securitytier.NewDefaultResolver))
		options = append(options, b.pipelineHook())
	}

	if b.services["auth_api"] {
		options = append(options, fx.Supply(fx.Annotate(b.users, fx.As(new(authapi.UserDirectory)))))
		options = append(options, authapi.Options())
		options = append(options, b.authAPIHook())
	}

	options = append(options, b.fxOptions...)

	return options
}

func (b *AppBuilder) pipelineHook() fx.Option {
	return fx.Invoke(func(
		srv *server.Server,
		cfg *config.Config,
		logger *logging.Service,
		auditLogger *audit.Logger,
		store ratelimit.Store,
		tracker *ratelimit.Tracker,
		tokens *token.Service,
		twoFactor *twofactorsvc.Service,
	) {
		srv.Use(pipeline.Chain(pipeline.Deps{
			Config:    cfg,
			Logger:    logger,
			Audit:     auditLogger,
			Store:     store,
			Tracker:   tracker,
			Tokens:    tokens,
			TwoFactor: twoFactor,
		})...)
	})
}

func (b *AppBuilder) authAPIHook() fx.Option {
	return fx.Invoke(func(
		srv *server.Server,
		handler *authapi.Handler,
		tokens *token.Service,
		refreshTokens *refreshtoken.Service,
		devices *device.Service,
		resolver *securitytier.Resolver,
		auditLogger *audit.Logger,
	) {
		requireToken := tokenauth.RequireToken(&tokenauth.Config{
			Tokens:   tokens,
			Refresh:  refreshTokens,
			Devices:  devices,
			Resolver: resolver,
			Audit:    auditLogger,
		})
		handler.RegisterRoutes(srv.Echo(), requireToken)
	})
}
