package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the application configuration, read from the environment and an
// optional .env file.
type Config struct {
	AppPort int

	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	CacheTTL           time.Duration
	CacheBackend       string
	CachePrefix        string
	CacheShards        int
	SensitivityRefresh time.Duration
	AutoMigrate        bool
	AuditLogging       bool

	LogFile  string
	LogLevel string
}

var defaults = map[string]any{
	"APP_PORT":                 8080,
	"POSTGRES_HOST":            "localhost",
	"POSTGRES_PORT":            5432,
	"POSTGRES_USER":            "rbac_user",
	"POSTGRES_PASSWORD":        "",
	"POSTGRES_DB":              "rbac_db",
	"POSTGRES_SSLMODE":         "disable",
	"REDIS_HOST":               "localhost",
	"REDIS_PORT":               6379,
	"REDIS_PASSWORD":           "",
	"REDIS_DB":                 0,
	"RBAC_CACHE_TTL":           "5m",
	"RBAC_CACHE_BACKEND":       "memory",
	"RBAC_CACHE_PREFIX":        "rbac:",
	"RBAC_CACHE_SHARDS":        16,
	"RBAC_SENSITIVITY_REFRESH": "1m",
	"RBAC_AUTO_MIGRATE":        true,
	"RBAC_AUDIT_LOGGING":       false,
	"LOG_FILE":                 "app.log",
	"LOG_LEVEL":                "info",
}

// LoadConfig loads .env (when present) into the environment and reads the
// configuration from it.
func LoadConfig(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		AppPort:            v.GetInt("APP_PORT"),
		PostgresHost:       v.GetString("POSTGRES_HOST"),
		PostgresPort:       v.GetInt("POSTGRES_PORT"),
		PostgresUser:       v.GetString("POSTGRES_USER"),
		PostgresPassword:   v.GetString("POSTGRES_PASSWORD"),
		PostgresDB:         v.GetString("POSTGRES_DB"),
		PostgresSSLMode:    v.GetString("POSTGRES_SSLMODE"),
		RedisHost:          v.GetString("REDIS_HOST"),
		RedisPort:          v.GetInt("REDIS_PORT"),
		RedisPassword:      v.GetString("REDIS_PASSWORD"),
		RedisDB:            v.GetInt("REDIS_DB"),
		CacheTTL:           v.GetDuration("RBAC_CACHE_TTL"),
		CacheBackend:       v.GetString("RBAC_CACHE_BACKEND"),
		CachePrefix:        v.GetString("RBAC_CACHE_PREFIX"),
		CacheShards:        v.GetInt("RBAC_CACHE_SHARDS"),
		SensitivityRefresh: v.GetDuration("RBAC_SENSITIVITY_REFRESH"),
		AutoMigrate:        v.GetBool("RBAC_AUTO_MIGRATE"),
		AuditLogging:       v.GetBool("RBAC_AUDIT_LOGGING"),
		LogFile:            v.GetString("LOG_FILE"),
		LogLevel:           v.GetString("LOG_LEVEL"),
	}

	switch cfg.CacheBackend {
	case "memory", "redis":
	default:
		return nil, fmt.Errorf("RBAC_CACHE_BACKEND must be memory or redis, got %q", cfg.CacheBackend)
	}
	if cfg.CacheTTL <= 0 {
		return nil, fmt.Errorf("RBAC_CACHE_TTL must be positive, got %s", cfg.CacheTTL)
	}
	return cfg, nil
}

// PostgresDSN renders the libpq connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode)
}

// RedisAddr is the host:port of the Redis server.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}
