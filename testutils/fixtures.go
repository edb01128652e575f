package testutils

import (
	"time"

	"github.com/clinicore/shield/config"
)

func GetTestConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name:        "Test App",
			Environment: "test",
		},
		Server: config.ServerConfig{
			Host: "localhost",
			Port: "8080",
		},
		Log: config.LogConfig{
			Level:  "error",
			Format: "console",
		},
		Database: config.DatabaseConfig{
			Driver:      "sqlite",
			DSN:         ":memory:",
			AutoMigrate: true,
		},
		Token: config.TokenConfig{
			SecretKey:    "test-secret-key-32-chars-long!!",
			Issuer:       "test-issuer",
			AccessExpiry: 15 * time.Minute,
			TempExpiry:   10 * time.Minute,
		},
		CSRF: config.CSRFConfig{
			Secret:     "test-csrf-secret-32-chars-long!",
			CookieName: "csrf_token",
			HeaderName: "x-csrf-token",
			MaxAge:     12 * time.Hour,
		},
		RateLimit: config.RateLimitConfig{
			AuthMax:           5,
			AuthPeriod:        time.Minute,
			DefaultMax:        100,
			DefaultPeriod:     time.Minute,
			LoginFailureMax:   10,
			LoginFailureReset: 30 * time.Minute,
			BlockDuration:     time.Hour,
		},
		Refresh: config.RefreshConfig{
			TokenLength:     32,
			Expiry:          168 * time.Hour,
			CleanupInterval: 0,
			LockGracePeriod: 2 * time.Second,
			MaxAttempts:     3,
			BaseDelay:       500 * time.Millisecond,
			MaxDelay:        5 * time.Second,
			MaxFailures:     3,
		},
		TwoFactor: config.TwoFactorConfig{
			Enabled: true,
			Issuer:  "Test App",
		},
		Cookies: config.CookieConfig{
			SameSite: "lax",
		},
	}
}

var TestUsers = struct {
	Clinician struct {
		Email    string
		Password string
		Role     string
		ClinicID uint
	}
	Admin struct {
		Email    string
		Password string
		Role     string
		ClinicID uint
	}
}{
	Clinician: struct {
		Email    string
		Password string
		Role     string
		ClinicID uint
	}{
		Email:    "clinician@example.com",
		Password: "Password123",
		Role:     "clinician",
		ClinicID: 1,
	},
	Admin: struct {
		Email    string
		Password string
		Role     string
		ClinicID uint
	}{
		Email:    "admin@example.com",
		Password: "Password123",
		Role:     "admin",
		ClinicID: 1,
	},
}
