package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.AppPort)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, "memory", cfg.CacheBackend)
	assert.Equal(t, "rbac:", cfg.CachePrefix)
	assert.Equal(t, 16, cfg.CacheShards)
	assert.Equal(t, time.Minute, cfg.SensitivityRefresh)
	assert.True(t, cfg.AutoMigrate)
	assert.False(t, cfg.AuditLogging)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr())
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("RBAC_CACHE_TTL", "90s")
	t.Setenv("RBAC_CACHE_BACKEND", "redis")
	t.Setenv("RBAC_AUDIT_LOGGING", "true")
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("POSTGRES_PASSWORD", "s3cret")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.AppPort)
	assert.Equal(t, 90*time.Second, cfg.CacheTTL)
	assert.Equal(t, "redis", cfg.CacheBackend)
	assert.True(t, cfg.AuditLogging)
	assert.Equal(t, "host=db.internal port=5432 user=rbac_user password=s3cret dbname=rbac_db sslmode=disable", cfg.PostgresDSN())
}

func TestLoadConfig_EnvFile(t *testing.T) {
	// register restoration, then clear so the file can supply the value
	t.Setenv("LOG_LEVEL", "")
	require.NoError(t, os.Unsetenv("LOG_LEVEL"))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("LOG_LEVEL=debug\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"unknown backend": {"RBAC_CACHE_BACKEND": "disk"},
		"zero ttl":        {"RBAC_CACHE_TTL": "0s"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
			require.Error(t, err)
		})
	}
}
