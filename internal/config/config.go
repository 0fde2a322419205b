package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the application configuration, read from the environment.
type Config struct {
	Port            string        `envconfig:"APP_PORT" default:"8080"`
	DatabaseURL     string        `envconfig:"DATABASE_URL"`
	StorageDriver   string        `envconfig:"STORAGE_DRIVER" default:"postgres"`
	RedisAddr       string        `envconfig:"REDIS_ADDR"`
	AMQPURL         string        `envconfig:"AMQP_URL"`
	EventExchange   string        `envconfig:"EVENT_EXCHANGE" default:"shop.events"`
	JWTSecret       string        `envconfig:"JWT_SECRET"`
	JWTTTL          time.Duration `envconfig:"JWT_TTL" default:"24h"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat       string        `envconfig:"LOG_FORMAT" default:"text"`
	DefaultCurrency string        `envconfig:"DEFAULT_CURRENCY" default:"SEK"`
	IdempotencyTTL  time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// Load reads an optional .env file and decodes the environment into a Config.
func Load() (*Config, error) {
	// A missing .env is fine; the real environment still applies.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "decode environment")
	}
	cfg.StorageDriver = strings.ToLower(cfg.StorageDriver)
	cfg.DefaultCurrency = strings.ToUpper(cfg.DefaultCurrency)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres storage driver")
		}
	case DriverMemory:
	default:
		return errors.Errorf("unknown STORAGE_DRIVER %q (allowed: postgres, memory)", c.StorageDriver)
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if len(c.DefaultCurrency) != 3 {
		return errors.Errorf("DEFAULT_CURRENCY must be an ISO 4217 code, got %q", c.DefaultCurrency)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}
