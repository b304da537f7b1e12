package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "secret", "admin", "password", "api-key",
}

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`
	// APIKey guards the control plane and doubles as the fallback webhook signing key.
	APIKey   string `env:"API_KEY,required"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	WebhookUserAgent      string `env:"WEBHOOK_USER_AGENT" envDefault:"Whatsapp/1.0.0 (Calabary.com)"`
	WebhookTimeoutSeconds int    `env:"WEBHOOK_TIMEOUT_SECONDS" envDefault:"10"`
	WebhookWorkers        int    `env:"WEBHOOK_WORKERS" envDefault:"4"`
	WebhookQueueSize      int    `env:"WEBHOOK_QUEUE_SIZE" envDefault:"1024"`

	RateLimitPerMin int `env:"RATE_LIMIT_PER_MIN" envDefault:"120"`

	// FlushInactiveIntervalSeconds enables the periodic inactive-session sweep when > 0.
	FlushInactiveIntervalSeconds int `env:"FLUSH_INACTIVE_INTERVAL_SECONDS" envDefault:"0"`

	ClientDriver              string `env:"CLIENT_DRIVER" envDefault:"simulator"`
	SimulatorPairAfterSeconds int    `env:"SIMULATOR_PAIR_AFTER_SECONDS" envDefault:"0"`
	SimulatorMaxSessions      int    `env:"SIMULATOR_MAX_SESSIONS" envDefault:"100"`
}

func (c *Config) WebhookTimeout() time.Duration {
	return time.Duration(c.WebhookTimeoutSeconds) * time.Second
}

func (c *Config) FlushInactiveInterval() time.Duration {
	return time.Duration(c.FlushInactiveIntervalSeconds) * time.Second
}

func (c *Config) SimulatorPairAfter() time.Duration {
	return time.Duration(c.SimulatorPairAfterSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate(isProduction bool) error {
	if c.ClientDriver != "simulator" {
		return fmt.Errorf("CLIENT_DRIVER %q is not supported (available: simulator)", c.ClientDriver)
	}
	if c.WebhookWorkers <= 0 {
		return fmt.Errorf("WEBHOOK_WORKERS must be positive")
	}
	if c.WebhookQueueSize <= 0 {
		return fmt.Errorf("WEBHOOK_QUEUE_SIZE must be positive")
	}

	if isProduction {
		if err := validateSecret("API_KEY", c.APIKey); err != nil {
			return err
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if strings.HasPrefix(c.DatabaseURL, "sqlite://") {
			log.Warn().Msg("DATABASE_URL points at sqlite in production: session records are local to this host")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
