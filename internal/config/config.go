package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName          = "wallet-ledger"
	defaultAppEnv           = "development"
	defaultPort             = "8080"
	defaultLogLevel         = "info"
	defaultShutdownDelay    = 10 * time.Second
	defaultIdempotencyTTL   = 24 * time.Hour
	defaultIdempotencyLease = 5 * time.Minute
	idemTTLSecondsEnvVar    = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar        = "IDEMPOTENCY_TTL"
	idemLeaseEnvVar         = "IDEMPOTENCY_LEASE"
	shutdownSecondsEnvVar   = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar  = "SHUTDOWN_TIMEOUT"
)

// Idempotency backends.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName            string
	AppEnv             string
	Port               string
	LogLevel           string
	DatabaseURL        string
	DBMaxConns         int32
	RedisURL           string
	ShutdownPeriod     time.Duration
	IdempotencyBackend string
	// IdempotencyTTL is the Redis expiry of idempotency records.
	IdempotencyTTL time.Duration
	// IdempotencyLease is how long a pending key blocks retries. Zero disables reclaiming.
	IdempotencyLease   time.Duration
	RateLimitPerMinute int
	OperatorKeyHash    string
	// MigrateOnStart applies the embedded schema before serving.
	MigrateOnStart bool
}

// Load reads an optional .env file and then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv populates a Config from environment variables only.
func FromEnv() (Config, error) {
	cfg := Config{
		AppName:            getEnv("APP_NAME", defaultAppName),
		AppEnv:             getEnv("APP_ENV", defaultAppEnv),
		Port:               getEnv("PORT", defaultPort),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		ShutdownPeriod:     defaultShutdownDelay,
		IdempotencyBackend: strings.ToLower(getEnv("IDEMPOTENCY_BACKEND", BackendPostgres)),
		IdempotencyTTL:     defaultIdempotencyTTL,
		IdempotencyLease:   defaultIdempotencyLease,
		OperatorKeyHash:    os.Getenv("OPERATOR_KEY_HASH"),
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv(idemTTLSecondsEnvVar, idemTTLDurEnvVar, cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyLease, err = durationEnv("", idemLeaseEnvVar, cfg.IdempotencyLease); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("DB_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("invalid DB_MAX_CONNS: %q", v)
		}
		cfg.DBMaxConns = int32(n)
	}
	if v := os.Getenv("MIGRATE_ON_START"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid MIGRATE_ON_START: %q", v)
		}
		cfg.MigrateOnStart = b
	}
	if v := os.Getenv("RATE_LIMIT_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE: %q", v)
		}
		cfg.RateLimitPerMinute = n
	}

	if cfg.DatabaseURL == "" && !cfg.IsDev() {
		return Config{}, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", cfg.AppEnv)
	}
	switch cfg.IdempotencyBackend {
	case BackendPostgres, BackendRedis:
	default:
		return Config{}, fmt.Errorf("invalid IDEMPOTENCY_BACKEND %q: want %s or %s", cfg.IdempotencyBackend, BackendPostgres, BackendRedis)
	}
	if cfg.RedisURL == "" && cfg.NeedsRedis() {
		return Config{}, fmt.Errorf("REDIS_URL must be set when IDEMPOTENCY_BACKEND=redis or RATE_LIMIT_PER_MINUTE>0")
	}

	return cfg, nil
}

// NeedsRedis reports whether any configured feature depends on Redis.
func (c Config) NeedsRedis() bool {
	return c.IdempotencyBackend == BackendRedis || c.RateLimitPerMinute > 0
}

// IsDev reports whether AppEnv is a development or test environment. Only
// these may run without a database.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// durationEnv reads an integer seconds variable, falling back to a Go
// duration variable, then to fallback.
func durationEnv(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if secondsKey != "" {
		if v := os.Getenv(secondsKey); v != "" {
			seconds, err := strconv.Atoi(v)
			if err != nil {
				return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
			}
			return time.Duration(seconds) * time.Second, nil
		}
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}
