package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Env      string   `yaml:"env" env:"ENV" env-default:"local"`
	LogLevel string   `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	HTTP     HTTP     `yaml:"http"`
	DB       DB       `yaml:"db"`
	Redis    Redis    `yaml:"redis"`
	Kafka    Kafka    `yaml:"kafka"`
	Shipping Shipping `yaml:"shipping"`
}

type HTTP struct {
	Port               string        `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	RequestTimeout     time.Duration `yaml:"request_timeout" env:"HTTP_REQUEST_TIMEOUT" env-default:"30s"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
	MaxRequestBodySize int64         `yaml:"max_request_body_size" env:"HTTP_MAX_BODY" env-default:"1048576"`
}

// DB selects the backend: "postgres" uses the credentials, "sqlite" uses Path.
type DB struct {
	Driver          string `yaml:"driver" env:"DB_DRIVER" env-default:"sqlite"`
	Host            string `yaml:"host" env:"DB_HOST" env-default:"localhost"`
	Port            int    `yaml:"port" env:"DB_PORT" env-default:"5432"`
	User            string `yaml:"user" env:"DB_USER" env-default:"storefront"`
	Password        string `yaml:"password" env:"DB_PASSWORD"`
	Name            string `yaml:"name" env:"DB_NAME" env-default:"storefront"`
	Path            string `yaml:"path" env:"DB_PATH" env-default:"storefront.db"`
	MigrationsTable string `yaml:"migrations_table" env:"MIGRATIONS_TABLE" env-default:"schema_migrations"`
	Seed            bool   `yaml:"seed" env:"DB_SEED" env-default:"false"`
}

// Redis is optional; an empty Addr disables the cart cache.
type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// Kafka is optional; no brokers disables the outbox relay.
type Kafka struct {
	Brokers        []string      `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:","`
	Topic          string        `yaml:"topic" env:"KAFKA_TOPIC" env-default:"storefront-orders"`
	PollInterval   time.Duration `yaml:"poll_interval" env:"OUTBOX_POLL_INTERVAL" env-default:"1s"`
	CleanupEvery   time.Duration `yaml:"cleanup_every" env:"OUTBOX_CLEANUP_EVERY" env-default:"1h"`
	Retention      time.Duration `yaml:"retention" env:"OUTBOX_RETENTION" env-default:"168h"`
	BreakerTimeout time.Duration `yaml:"breaker_timeout" env:"KAFKA_BREAKER_TIMEOUT" env-default:"10s"`
}

type Shipping struct {
	LocalCity    string `yaml:"local_city" env:"LOCAL_CITY" env-default:"Dhaka"`
	LocalRate    string `yaml:"local_rate" env:"LOCAL_SHIPPING_RATE" env-default:"60.00"`
	StandardRate string `yaml:"standard_rate" env:"STANDARD_SHIPPING_RATE" env-default:"120.00"`
}

// Rates parses the configured shipping rates.
func (s Shipping) Rates() (local, standard decimal.Decimal, err error) {
	local, err = decimal.NewFromString(s.LocalRate)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("parse local shipping rate: %w", err)
	}
	standard, err = decimal.NewFromString(s.StandardRate)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("parse standard shipping rate: %w", err)
	}
	return local, standard, nil
}

// Load reads the YAML file at CONFIG_PATH when it exists and applies env
// overrides; without a file only env and defaults are used.
func Load() (*Config, error) {
	var cfg Config

	configPath := os.Getenv("CONFIG_PATH")
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("config file does not exist: %w", err)
		}
		if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
		return &cfg, nil
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("error reading env: %w", err)
	}
	return &cfg, nil
}
