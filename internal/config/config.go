// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/nasermirzaei89/env"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// MinSecretLength is the shortest JWT secret accepted for HMAC-SHA256.
const MinSecretLength = 32

type Config struct {
	Port     string
	LogLevel slog.Level

	StoreDriver   string
	DatabasePath  string
	PostgresDSN   string
	MongoURI      string
	MongoDatabase string

	Auth AuthConfig

	CommitRetries      int
	RateLimitPerMinute int
}

// AuthConfig configures credential verification.
type AuthConfig struct {
	Secret string
	Issuer string
	Header string
	Leeway time.Duration
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	leeway, err := time.ParseDuration(env.GetString("TOKEN_LEEWAY", "30s"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid TOKEN_LEEWAY: %w", err)
	}

	retries, err := strconv.Atoi(env.GetString("COMMIT_RETRIES", "3"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid COMMIT_RETRIES: %w", err)
	}

	rate, err := strconv.Atoi(env.GetString("RATE_LIMIT_PER_MINUTE", "120"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE: %w", err)
	}

	cfg := Config{
		Port:          env.GetString("PORT", "8080"),
		LogLevel:      ParseLogLevel(env.GetString("LOG_LEVEL", "info")),
		StoreDriver:   strings.ToLower(env.GetString("STORE_DRIVER", DriverSQLite)),
		DatabasePath:  env.GetString("DATABASE_PATH", "postwall.db"),
		PostgresDSN:   env.GetString("POSTGRES_DSN", ""),
		MongoURI:      env.GetString("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: env.GetString("MONGO_DATABASE", "postwall"),
		Auth: AuthConfig{
			Secret: env.GetString("JWT_SECRET", ""),
			Issuer: env.GetString("JWT_ISSUER", ""),
			Header: env.GetString("TOKEN_HEADER", "x-auth-token"),
			Leeway: leeway,
		},
		CommitRetries:      retries,
		RateLimitPerMinute: rate,
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks invariants that Load cannot express as defaults.
func (c Config) Validate() error {
	if c.Auth.Secret == "" {
		return errors.New("JWT_SECRET environment variable is required")
	}
	if len(c.Auth.Secret) < MinSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters for HMAC-SHA256 security", MinSecretLength)
	}
	if c.Auth.Header == "" {
		return errors.New("TOKEN_HEADER must not be empty")
	}
	if c.Auth.Leeway < 0 {
		return errors.New("TOKEN_LEEWAY must not be negative")
	}
	if c.CommitRetries < 1 {
		return errors.New("COMMIT_RETRIES must be at least 1")
	}
	if c.RateLimitPerMinute < 1 {
		return errors.New("RATE_LIMIT_PER_MINUTE must be at least 1")
	}

	switch c.StoreDriver {
	case DriverSQLite, DriverMemory, DriverMongo:
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return errors.New("POSTGRES_DSN is required when STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	return nil
}

// ParseLogLevel maps a level name to a slog level, defaulting to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		slog.Warn("unknown log level, defaulting to info", "level", level)
		return slog.LevelInfo
	}
}
