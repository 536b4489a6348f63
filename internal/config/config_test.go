package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetEnv clears keys for the duration of the test.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

var managedKeys = []string{
	"ENV", "REFRESH_TOKEN_TTL", "TICKET_TTL",
	"REDIRECT_URL_SUCCESS", "REDIRECT_URL_ERROR",
	"STORAGE_DRIVER", "STORAGE_PATH", "POSTGRES_DSN", "MONGO_URI", "MONGO_DATABASE",
	"HTTP_ADDRESS", "GRPC_PORT",
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_EnvOnly(t *testing.T) {
	unsetEnv(t, managedKeys...)
	t.Setenv("REDIRECT_URL_SUCCESS", "https://app.example/cb")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, "https://app.example/cb", cfg.Redirect.Success)
	assert.Empty(t, cfg.Redirect.Error)
	assert.Equal(t, StorageSQLite, cfg.Storage.Driver)
	assert.Equal(t, "./storage/magiclink.db", cfg.Storage.Path)
	assert.Equal(t, 720*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, ":8080", cfg.HTTP.Address)
	assert.Equal(t, 44044, cfg.Grpc.Port)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ShutdownTimeout)
}

func TestLoad_SuccessURLRequired(t *testing.T) {
	unsetEnv(t, managedKeys...)

	_, err := Load("")
	require.Error(t, err)
}

func TestLoad_FileWithEnvOverrides(t *testing.T) {
	unsetEnv(t, managedKeys...)
	path := writeConfig(t, `
env: prod
refresh_token_ttl: 48h
redirect:
  success: "https://app.example/cb"
  error: "https://app.example/err"
storage:
  driver: sqlite
  path: /var/lib/magiclink.db
http:
  address: ":9000"
grpc:
  port: 5000
`)
	t.Setenv("STORAGE_DRIVER", StoragePostgres)
	t.Setenv("POSTGRES_DSN", "postgres://u:p@db:5432/app")
	t.Setenv("REDIRECT_URL_ERROR", "https://other.example/err")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, 48*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, "https://app.example/cb", cfg.Redirect.Success)
	assert.Equal(t, "https://other.example/err", cfg.Redirect.Error)
	assert.Equal(t, StoragePostgres, cfg.Storage.Driver)
	assert.Equal(t, "postgres://u:p@db:5432/app", cfg.Storage.PostgresDSN)
	assert.Equal(t, ":9000", cfg.HTTP.Address)
	assert.Equal(t, 5000, cfg.Grpc.Port)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "unknown driver",
			env:  map[string]string{"REDIRECT_URL_SUCCESS": "https://app.example/cb", "STORAGE_DRIVER": "redis"},
		},
		{
			name: "postgres without dsn",
			env:  map[string]string{"REDIRECT_URL_SUCCESS": "https://app.example/cb", "STORAGE_DRIVER": StoragePostgres},
		},
		{
			name: "mongodb without uri",
			env:  map[string]string{"REDIRECT_URL_SUCCESS": "https://app.example/cb", "STORAGE_DRIVER": StorageMongoDB},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unsetEnv(t, managedKeys...)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load("")
			require.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadConfig_Panics(t *testing.T) {
	assert.Panics(t, func() {
		LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	})
}
