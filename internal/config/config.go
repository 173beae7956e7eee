// Package config binds the service's environment variables to a typed
// struct via spf13/viper, optionally seeded from a local .env through
// joho/godotenv.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full set of environment-driven knobs for one replica.
type Config struct {
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	RedisURL string

	Port int

	NodeEnv  string
	LogLevel string

	SimulatePayments bool

	P99ThresholdMs int
	CacheTTL       time.Duration

	DefaultProcessorURL  string
	FallbackProcessorURL string

	AuditDBPath string
}

// Load reads a .env file if present (missing is not an error) and binds
// viper to the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !isNotExist(err) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("PORT", 3000)
	v.SetDefault("NODE_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SIMULATE_PAYMENTS", false)
	v.SetDefault("P99_THRESHOLD", 1000)
	v.SetDefault("CACHE_TTL", 300)
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_SSL", "disable")
	v.SetDefault("REDIS_URL", "redis://localhost:6379")
	v.SetDefault("DEFAULT_PROCESSOR_URL", "http://payment-processor-default:8080")
	v.SetDefault("FALLBACK_PROCESSOR_URL", "http://payment-processor-fallback:8080")
	v.SetDefault("AUDIT_DB_PATH", "audit.db")

	cfg := Config{
		DBHost:               v.GetString("DB_HOST"),
		DBPort:               v.GetInt("DB_PORT"),
		DBName:               v.GetString("DB_NAME"),
		DBUser:               v.GetString("DB_USER"),
		DBPassword:           v.GetString("DB_PASSWORD"),
		DBSSLMode:            v.GetString("DB_SSL"),
		RedisURL:             v.GetString("REDIS_URL"),
		Port:                 v.GetInt("PORT"),
		NodeEnv:              v.GetString("NODE_ENV"),
		LogLevel:             v.GetString("LOG_LEVEL"),
		SimulatePayments:     v.GetBool("SIMULATE_PAYMENTS"),
		P99ThresholdMs:       v.GetInt("P99_THRESHOLD"),
		CacheTTL:             time.Duration(v.GetInt("CACHE_TTL")) * time.Second,
		DefaultProcessorURL:  v.GetString("DEFAULT_PROCESSOR_URL"),
		FallbackProcessorURL: v.GetString("FALLBACK_PROCESSOR_URL"),
		AuditDBPath:          v.GetString("AUDIT_DB_PATH"),
	}
	return cfg, nil
}

// DSN builds a libpq-style connection string for pgxpool.
func (c Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode)
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
