package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig       `envPrefix:"SHIELD_APP_"`
	Server    ServerConfig    `envPrefix:"SHIELD_SERVER_"`
	Log       LogConfig       `envPrefix:"SHIELD_LOG_"`
	Database  DatabaseConfig  `envPrefix:"SHIELD_DB_"`
	Redis     RedisConfig     `envPrefix:"SHIELD_REDIS_"`
	Token     TokenConfig     `envPrefix:"SHIELD_TOKEN_"`
	CSRF      CSRFConfig      `envPrefix:"SHIELD_CSRF_"`
	RateLimit RateLimitConfig `envPrefix:"SHIELD_RATELIMIT_"`
	Refresh   RefreshConfig   `envPrefix:"SHIELD_REFRESH_"`
	TwoFactor TwoFactorConfig `envPrefix:"SHIELD_2FA_"`
	Cookies   CookieConfig    `envPrefix:"SHIELD_COOKIE_"`
}

type AppConfig struct {
	Name        string `env:"NAME" envDefault:"shield"`
	Environment string `env:"ENV" envDefault:"development"`
}

func (a AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

type ServerConfig struct {
	Port string `env:"PORT" envDefault:"8080"`
	Host string `env:"HOST" envDefault:"localhost"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

type DatabaseConfig struct {
	Driver      string `env:"DRIVER" envDefault:"sqlite"`
	DSN         string `env:"DSN" envDefault:"shield.db"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
}

// RedisConfig points at the shared store backing rate-limit counters,
// IP blocks and refresh locks. An empty Addr selects the in-memory
// fallback for all three.
type RedisConfig struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

type TokenConfig struct {
	SecretKey    string        `env:"SECRET_KEY,required"`
	Issuer       string        `env:"ISSUER" envDefault:"shield"`
	AccessExpiry time.Duration `env:"ACCESS_EXPIRY" envDefault:"15m"`
	TempExpiry   time.Duration `env:"TEMP_EXPIRY" envDefault:"10m"`
}

type CSRFConfig struct {
	Secret     string        `env:"SECRET,required"`
	CookieName string        `env:"COOKIE_NAME" envDefault:"csrf_token"`
	HeaderName string        `env:"HEADER_NAME" envDefault:"x-csrf-token"`
	MaxAge     time.Duration `env:"MAX_AGE" envDefault:"12h"`
}

type RateLimitConfig struct {
	AuthMax           int           `env:"AUTH_MAX" envDefault:"5"`
	AuthPeriod        time.Duration `env:"AUTH_PERIOD" envDefault:"1m"`
	DefaultMax        int           `env:"DEFAULT_MAX" envDefault:"100"`
	DefaultPeriod     time.Duration `env:"DEFAULT_PERIOD" envDefault:"1m"`
	LoginFailureMax   int           `env:"LOGIN_FAILURE_MAX" envDefault:"10"`
	LoginFailureReset time.Duration `env:"LOGIN_FAILURE_RESET" envDefault:"30m"`
	BlockDuration     time.Duration `env:"BLOCK_DURATION" envDefault:"1h"`
}

type RefreshConfig struct {
	TokenLength     int           `env:"TOKEN_LENGTH" envDefault:"32"`
	Expiry          time.Duration `env:"EXPIRY" envDefault:"168h"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1h"`
	LockGracePeriod time.Duration `env:"LOCK_GRACE_PERIOD" envDefault:"2s"`
	MaxAttempts     int           `env:"MAX_ATTEMPTS" envDefault:"3"`
	BaseDelay       time.Duration `env:"BASE_DELAY" envDefault:"500ms"`
	MaxDelay        time.Duration `env:"MAX_DELAY" envDefault:"5s"`
	MaxFailures     int           `env:"MAX_FAILURES" envDefault:"3"`
}

type TwoFactorConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"true"`
	Issuer  string `env:"ISSUER" envDefault:"shield"`
}

type CookieConfig struct {
	Domain   string `env:"DOMAIN"`
	SameSite string `env:"SAMESITE" envDefault:"lax"`
}

func LoadConfig(cfg any) error {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	return env.Parse(cfg)
}
