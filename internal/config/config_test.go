package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CONFIG_FILE", "HTTP_ADDR", "LOG_DEV", "DATABASE_URL", "DATABASE_TIMEZONE",
		"DATABASE_CLIENT_ENCODING", "AUTH_TOKEN_SECRET", "AUTH_TOKEN_TTL", "AUTH_TOKEN_ISSUER",
		"AUTH_TOKEN_AUDIENCE", "REDIS_ADDR", "REDIS_PASSWORD", "SNOWFLAKE_NODE", "BCRYPT_COST",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("AUTH_TOKEN_SECRET", "s3cret")
	t.Setenv("AUTH_TOKEN_TTL", "90m")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("BCRYPT_COST", "4")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTPAddr)
	assert.Equal(t, "s3cret", cfg.TokenSecret)
	assert.Equal(t, 90*time.Minute, cfg.TokenTTL)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 4, cfg.BcryptCost)
	assert.Equal(t, "pitchfork-library", cfg.TokenIssuer)
}

func TestLoadFileThenEnvOverride(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
httpAddr: "0.0.0.0:7000"
databaseURL: "postgres://file/db"
tokenSecret: "from-file"
tokenTTL: 1h
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("DATABASE_URL", "postgres://env/db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:7000", cfg.HTTPAddr)
	assert.Equal(t, "postgres://env/db", cfg.DatabaseURL)
	assert.Equal(t, "from-file", cfg.TokenSecret)
	assert.Equal(t, time.Hour, cfg.TokenTTL)
}

func TestLoadRejectsMissingSecret(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tokenSecret")
}

func TestLoadAllowsMissingSecretInDev(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("LOG_DEV", "1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Dev)
	assert.Empty(t, cfg.TokenSecret)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("AUTH_TOKEN_SECRET", "x")
	t.Setenv("AUTH_TOKEN_TTL", "soon")

	_, err := Load()
	require.Error(t, err)
}

func TestDatabaseConfig(t *testing.T) {
	cfg := Default()
	cfg.DatabaseTimeZone = "UTC"
	db := cfg.Database()
	assert.Equal(t, cfg.DatabaseURL, db.DSN)
	assert.Equal(t, "UTC", db.TimeZone)
	assert.Equal(t, 5, db.MaxConns)
}
