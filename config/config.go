package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env      string `env:"ENV"       envDefault:"local" validate:"required,oneof=local staging production"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"  validate:"oneof=debug info warn error"`
	Port     string `env:"PORT"      envDefault:"8080"  validate:"required"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres" validate:"oneof=postgres sqlite"`
	DatabaseURL string `env:"DATABASE_URL"                       validate:"required_if=StoreDriver postgres"`
	SQLitePath  string `env:"SQLITE_PATH"  envDefault:"data/triggerd.db"`

	PollIntervalMS   int    `env:"POLL_INTERVAL_MS"   envDefault:"1000"    validate:"min=10,max=60000"`
	BatchSize        int    `env:"BATCH_SIZE"         envDefault:"100"     validate:"min=1,max=1000"`
	Concurrency      int    `env:"CONCURRENCY"        envDefault:"10"      validate:"min=1,max=1000"`
	ClaimTimeoutSec  int    `env:"CLAIM_TIMEOUT_SEC"  envDefault:"300"     validate:"min=1"`
	ReapIntervalSec  int    `env:"REAP_INTERVAL_SEC"  envDefault:"30"      validate:"min=1"`
	ActionTimeoutSec int    `env:"ACTION_TIMEOUT_SEC" envDefault:"60"      validate:"min=1,ltfield=ClaimTimeoutSec"`
	IntervalPolicy   string `env:"INTERVAL_POLICY"    envDefault:"advance" validate:"oneof=advance step"`
	BackoffBaseSec   int    `env:"BACKOFF_BASE_SEC"   envDefault:"30"      validate:"min=1"`
	BackoffMaxSec    int    `env:"BACKOFF_MAX_SEC"    envDefault:"3600"    validate:"gtefield=BackoffBaseSec"`

	// JWTSecret is only needed by the API server; it checks for it at startup.
	JWTSecret string `env:"JWT_SECRET" validate:"omitempty,min=32"`

	RedisURL       string `env:"REDIS_URL"        validate:"omitempty,url"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"triggerd:"`
	AMQPURL        string `env:"AMQP_URL"         validate:"omitempty,url"`

	ResendAPIKey string `env:"RESEND_API_KEY"`
	ResendFrom   string `env:"RESEND_FROM" validate:"required_with=ResendAPIKey"`

	WebhookRatePerSec      float64 `env:"WEBHOOK_RATE_PER_SEC"      envDefault:"50" validate:"min=0"`
	WebhookBreakerFailures uint32  `env:"WEBHOOK_BREAKER_FAILURES"  envDefault:"5"  validate:"min=1"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

func (c *Config) ClaimTimeout() time.Duration {
	return time.Duration(c.ClaimTimeoutSec) * time.Second
}

func (c *Config) ReapInterval() time.Duration {
	return time.Duration(c.ReapIntervalSec) * time.Second
}

func (c *Config) ActionTimeout() time.Duration {
	return time.Duration(c.ActionTimeoutSec) * time.Second
}

func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseSec) * time.Second
}

func (c *Config) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxSec) * time.Second
}
