// Package config loads server configuration from the environment so main
// stays lean.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures everything the server needs at startup. Empty DatabaseURL
// or RedisURL selects the in-memory implementations, which keeps local
// development dependency-free.
type Config struct {
	Addr             string        `env:"SANDOOG_ADDR" envDefault:":8080"`
	DatabaseURL      string        `env:"SANDOOG_DATABASE_URL"`
	RedisURL         string        `env:"SANDOOG_REDIS_URL"`
	JWTSigningKey    string        `env:"SANDOOG_JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	PrivilegedDomain string        `env:"SANDOOG_PRIVILEGED_DOMAIN" envDefault:"sandoog.com"`
	TokenTTL         time.Duration `env:"SANDOOG_TOKEN_TTL" envDefault:"1h"`
	SessionTTL       time.Duration `env:"SANDOOG_SESSION_TTL" envDefault:"24h"`
	ShutdownTimeout  time.Duration `env:"SANDOOG_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// FromEnv parses configuration from environment variables.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
