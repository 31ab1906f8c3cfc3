package dbconfig

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds Postgres connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewConfigFromEnv reads DB_* environment variables (with defaults).
func NewConfigFromEnv() Config {
	port, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		port = 5432
	}

	return Config{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     port,
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", "postgres"),
		Database: getEnv("DB_NAME", "registry"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}
}

// DSN returns the Postgres connection URL.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// PublisherConfig holds the outbox publisher tuning knobs.
type PublisherConfig struct {
	PollInterval      time.Duration
	BatchSize         int32
	MaxAttempts       int
	BackoffBase       time.Duration
	BackoffMultiplier float64
	DispatchTimeout   time.Duration
}

// NewPublisherConfigFromEnv reads OUTBOX_* environment variables (with
// defaults).
func NewPublisherConfigFromEnv() PublisherConfig {
	return PublisherConfig{
		PollInterval:      getEnvDuration("OUTBOX_POLL_INTERVAL", 5*time.Second),
		BatchSize:         int32(getEnvInt("OUTBOX_BATCH_SIZE", 100)),
		MaxAttempts:       getEnvInt("OUTBOX_MAX_ATTEMPTS", 5),
		BackoffBase:       getEnvDuration("OUTBOX_BACKOFF_BASE", time.Second),
		BackoffMultiplier: getEnvFloat("OUTBOX_BACKOFF_MULTIPLIER", 2.0),
		DispatchTimeout:   getEnvDuration("OUTBOX_DISPATCH_TIMEOUT", 10*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
