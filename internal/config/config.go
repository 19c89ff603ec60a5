// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config is the full runtime configuration of the SatsJar backend.
type Config struct {
	Environment string `env:"SATSJAR_ENV,default=development"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`

	HTTP struct {
		Addr            string        `env:"HTTP_ADDR,default=:8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT,default=10s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT,default=20s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT,default=15s"`
	}

	// DatabaseURL selects the postgres store; empty keeps the in-memory
	// store, which is only suitable for development.
	DatabaseURL string `env:"DATABASE_URL,default="`
	RedisAddr   string `env:"REDIS_ADDR,default="`

	JWT struct {
		Secret string        `env:"JWT_SECRET,default="`
		TTL    time.Duration `env:"JWT_TTL,default=24h"`
	}

	RateLimit struct {
		AuthRequests int           `env:"RATE_LIMIT_AUTH_REQUESTS,default=10"`
		AuthWindow   time.Duration `env:"RATE_LIMIT_AUTH_WINDOW,default=15m"`
		APIRequests  int           `env:"RATE_LIMIT_API_REQUESTS,default=60"`
		APIWindow    time.Duration `env:"RATE_LIMIT_API_WINDOW,default=1m"`
	}

	Mpesa struct {
		BaseURL        string `env:"MPESA_BASE_URL,default=https://sandbox.safaricom.co.ke"`
		ConsumerKey    string `env:"MPESA_CONSUMER_KEY,default="`
		ConsumerSecret string `env:"MPESA_CONSUMER_SECRET,default="`
		ShortCode      string `env:"MPESA_SHORT_CODE,default=174379"`
		Passkey        string `env:"MPESA_PASSKEY,default="`
		CallbackURL    string `env:"MPESA_CALLBACK_URL,default="`
		// PendingTimeout is how long an STK push may stay pending before
		// the reconciler fails it.
		PendingTimeout time.Duration `env:"MPESA_PENDING_TIMEOUT,default=5m"`
	}

	Lightning struct {
		BaseURL string `env:"LNBITS_BASE_URL,default="`
		APIKey  string `env:"LNBITS_API_KEY,default="`
	}

	SMS struct {
		BaseURL string `env:"SMS_BASE_URL,default="`
		APIKey  string `env:"SMS_API_KEY,default="`
		From    string `env:"SMS_FROM,default=SatsJar"`
	}

	// SatsPerKES converts mobile-money deposits into the sats ledger.
	SatsPerKES int64 `env:"SATS_PER_KES,default=35"`

	// AchievementsPath optionally overrides the built-in achievement rule
	// table with a YAML file.
	AchievementsPath string `env:"ACHIEVEMENTS_CONFIG,default="`
}

// Load reads .env (when present) and decodes the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if cfg.IsProduction() && strings.TrimSpace(cfg.JWT.Secret) == "" {
		return nil, fmt.Errorf("JWT_SECRET is required in production")
	}
	if cfg.JWT.Secret == "" {
		cfg.JWT.Secret = "satsjar-dev-secret"
	}

	return &cfg, nil
}

// IsProduction reports whether the service runs in production mode. Stack
// traces are only returned to clients outside production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}
