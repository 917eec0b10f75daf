package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const minJWTSecretLength = 32

var ErrWeakJWTSecret = fmt.Errorf("JWT_SECRET must be at least %d characters", minJWTSecretLength)

type Config struct {
	Env      string `env:"ENV" env-default:"local"`
	LogLevel string `env:"LOG_LEVEL" env-default:"info"`
	HTTP     HTTP
	Postgres Postgres
	JWT      JWT
	Redis    Redis
	Kafka    Kafka
	Stock    Stock
	Orders   Orders
	Relay    Relay
}

type HTTP struct {
	Addr            string        `env:"HTTP_ADDR" env-default:":8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" env-default:"10s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"5s"`
}

type Postgres struct {
	URL           string `env:"DATABASE_URL" env-required:"true"`
	MigrationsDir string `env:"MIGRATIONS_DIR"`
}

type JWT struct {
	Secret    string        `env:"JWT_SECRET"`
	AccessTTL time.Duration `env:"JWT_ACCESS_TTL" env-default:"15m"`
}

type Redis struct {
	Addr     string        `env:"REDIS_ADDR"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB" env-default:"0"`
	PriceTTL time.Duration `env:"PRICE_CACHE_TTL" env-default:"1m"`
}

type Kafka struct {
	Brokers []string `env:"KAFKA_BROKERS" env-separator:"," env-default:"localhost:9092"`
}

// Stock configures the reservation protocol on the inventory side.
type Stock struct {
	ReservationTTL     time.Duration `env:"RESERVATION_DEFAULT_TTL" env-default:"300s"`
	SweepInterval      time.Duration `env:"SWEEP_INTERVAL" env-default:"30s"`
	SweepBatchSize     int           `env:"SWEEP_BATCH_SIZE" env-default:"100"`
	ConfirmMaxAttempts int           `env:"CONFIRM_MAX_ATTEMPTS" env-default:"3"`
}

type Orders struct {
	InventoryURL     string        `env:"INVENTORY_URL" env-default:"http://localhost:8080"`
	InventoryTimeout time.Duration `env:"INVENTORY_TIMEOUT" env-default:"5s"`
	ReservationTTL   time.Duration `env:"ORDER_RESERVATION_TTL" env-default:"0s"`
}

type Relay struct {
	BatchSize int           `env:"RELAY_BATCH_SIZE" env-default:"100"`
	Interval  time.Duration `env:"RELAY_INTERVAL" env-default:"500ms"`
	Lease     time.Duration `env:"RELAY_LEASE" env-default:"1m"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return &cfg, nil
}

// RequireJWTSecret fails for binaries that verify tokens but were started
// without a usable secret.
func (c *Config) RequireJWTSecret() error {
	if len(c.JWT.Secret) < minJWTSecretLength {
		return ErrWeakJWTSecret
	}
	return nil
}
