// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// MinSigningSecretBytes is the minimum length for the access-token signing secret.
const MinSigningSecretBytes = 32

// ErrWeakSigningSecret is returned by Load when the signing secret is missing or
// shorter than MinSigningSecretBytes. It is fatal: the service must not start.
var ErrWeakSigningSecret = fmt.Errorf("config: JWT_SIGNING_SECRET must be at least %d bytes", MinSigningSecretBytes)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN; empty runs the server on in-memory stores (dev only).
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTSigningSecret is the HMAC secret for access tokens; required, >= 32 bytes.
	JWTSigningSecret string `mapstructure:"JWT_SIGNING_SECRET"`
	// JWTIssuer is the iss claim set on and required of every access token.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim set on and required of every access token.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// AccessTTLMinutes is the access-token lifetime in minutes (default 15).
	AccessTTLMinutes int `mapstructure:"JWT_ACCESS_TTL_MINUTES"`
	// RefreshTTLDays is the refresh-token lifetime in days (default 7).
	RefreshTTLDays int `mapstructure:"REFRESH_TTL_DAYS"`
	// BcryptCost is the bcrypt cost factor (4-31) for directory passwords; default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// RedisAddr is the optional redis address for the login rate limiter
	// (e.g. localhost:6379). Empty selects the in-process window limiter.
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// LoginAttemptsPerMinute caps login attempts per email+IP window (default 10).
	LoginAttemptsPerMinute int `mapstructure:"LOGIN_ATTEMPTS_PER_MINUTE"`
	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// LogFormat is json or text.
	LogFormat string `mapstructure:"LOG_FORMAT"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required
// fields are invalid; a missing or weak signing secret returns ErrWeakSigningSecret.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_SIGNING_SECRET", "")
	v.SetDefault("JWT_ISSUER", "devicehub-auth")
	v.SetDefault("JWT_AUDIENCE", "devicehub-api")
	v.SetDefault("JWT_ACCESS_TTL_MINUTES", 15)
	v.SetDefault("REFRESH_TTL_DAYS", 7)
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("LOGIN_ATTEMPTS_PER_MINUTE", 10)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if len(cfg.JWTSigningSecret) < MinSigningSecretBytes {
		return nil, ErrWeakSigningSecret
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if cfg.AccessTTLMinutes <= 0 {
		cfg.AccessTTLMinutes = 15
	}
	if cfg.RefreshTTLDays <= 0 {
		cfg.RefreshTTLDays = 7
	}
	if cfg.LoginAttemptsPerMinute <= 0 {
		cfg.LoginAttemptsPerMinute = 10
	}

	return &cfg, nil
}

// AccessTTL returns the access-token lifetime as a duration.
func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.AccessTTLMinutes) * time.Minute
}

// RefreshTTL returns the refresh-token lifetime as a duration.
func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTTLDays) * 24 * time.Hour
}
