// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds everything the lobby service reads from the environment.
// Mains load .env first through godotenv/autoload.
type Config struct {
	Addr     string
	LogLevel string

	RedisAddr  string // empty disables the Redis event sink
	RedisDB    int
	EventQueue string

	PostgresUser     string
	PostgresPassword string
	PostgresHost     string // empty disables channel lookups and the event log
	PostgresPort     string
	PostgresDatabase string

	SweepInterval time.Duration

	// TokenExpire is the lifetime of issued session tokens (0 => never).
	TokenExpire time.Duration

	EventLogBatchSize     int
	EventLogFlushInterval time.Duration
}

// Load reads the environment. Unset or malformed values fall back to defaults,
// except TOKEN_EXPIRE_TIME and LOBBY_SWEEP_INTERVAL which fail loudly.
func Load() (Config, error) {
	cfg := Config{
		Addr:                  ":" + getEnv("PORT", "8080"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisDB:               getEnvInt("REDIS_DB", 0),
		EventQueue:            getEnv("LOBBY_EVENT_QUEUE", "lobby_events"),
		PostgresUser:          os.Getenv("POSTGRES_USER"),
		PostgresPassword:      os.Getenv("POSTGRES_PASSWORD"),
		PostgresHost:          os.Getenv("PG_HOST"),
		PostgresPort:          getEnv("PG_PORT", "5432"),
		PostgresDatabase:      os.Getenv("PG_DATABASE"),
		EventLogBatchSize:     getEnvInt("EVENTLOG_BATCH_SIZE", 20),
		EventLogFlushInterval: time.Duration(getEnvInt("EVENTLOG_FLUSH_MS", 500)) * time.Millisecond,
	}

	var err error
	if cfg.SweepInterval, err = getEnvDuration("LOBBY_SWEEP_INTERVAL", 60*time.Second); err != nil {
		return Config{}, err
	}

	switch expire := os.Getenv("TOKEN_EXPIRE_TIME"); expire {
	case "", "0", "never":
		cfg.TokenExpire = 0
	default:
		d, err := time.ParseDuration(expire)
		if err != nil {
			return Config{}, fmt.Errorf("failed to parse TOKEN_EXPIRE_TIME: %w", err)
		}
		cfg.TokenExpire = d
	}

	return cfg, nil
}

// PostgresURL builds the connection string from the PG_* variables.
func (c Config) PostgresURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		c.PostgresUser,
		c.PostgresPassword,
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresDatabase,
	)
}

// getEnv reads an environment variable or returns a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt parses an environment variable as integer, else the default.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}
