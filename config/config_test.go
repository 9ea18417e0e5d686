package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "memory", cfg.Storage.Adapter)
	assert.Equal(t, "async", cfg.Engine.DispatchMode)
	assert.True(t, cfg.Realtime.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Webhooks.Timeout)
}

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, "questkit.json", `{
		"environment": "testing",
		"server": {"address": ":9191", "path_prefix": "/v1"},
		"storage": {"adapter": "file", "file": {"path": "/var/lib/questkit/state.json"}},
		"engine": {"dispatch_mode": "sync"},
		"webhooks": {"urls": ["https://hooks.example/q"], "events": ["goal_completed"]}
	}`)
	t.Setenv("QUESTKIT_SERVER_ADDR", ":7070")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, EnvTesting, cfg.Environment)
	assert.Equal(t, ":7070", cfg.Server.Address, "env wins over file")
	assert.Equal(t, "/v1", cfg.Server.PathPrefix)
	assert.Equal(t, "/var/lib/questkit/state.json", cfg.Storage.File.Path)
	assert.Equal(t, "sync", cfg.Engine.DispatchMode)
	assert.Equal(t, []string{"goal_completed"}, cfg.Webhooks.Events)
	assert.Equal(t, 5*time.Second, cfg.Webhooks.Timeout, "defaults survive partial files")
}

func TestLoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile(writeConfig(t, "broken.json", `{"server":`))
	assert.ErrorContains(t, err, "parse config file")

	_, err = LoadFromFile(writeConfig(t, "invalid.json", `{"engine":{"dispatch_mode":"parallel"}}`))
	assert.ErrorContains(t, err, "engine config")
}

func validConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Server: ServerConfig{
			Address:           ":8080",
			ReadTimeout:       time.Second,
			WriteTimeout:      time.Second,
			IdleTimeout:       time.Second,
			ReadHeaderTimeout: time.Second,
			ShutdownTimeout:   time.Second,
		},
		Storage: StorageConfig{Adapter: "memory"},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		Engine:  EngineConfig{DispatchMode: "sync"},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{"valid config", func(*Config) {}, false},
		{"invalid environment", func(c *Config) { c.Environment = "" }, true},
		{"invalid server timeout", func(c *Config) { c.Server.ReadTimeout = 0 }, true},
		{"unknown adapter", func(c *Config) { c.Storage.Adapter = "cassandra" }, true},
		{"sql without dsn", func(c *Config) { c.Storage.Adapter = "sql"; c.Storage.SQL.Driver = "postgres" }, true},
		{"sql with dsn", func(c *Config) {
			c.Storage.Adapter = "sql"
			c.Storage.SQL.Driver = "sqlite"
			c.Storage.SQL.DSN = "file:q.db"
		}, false},
		{"redis without addr", func(c *Config) { c.Storage.Adapter = "redis" }, true},
		{"bad dispatch mode", func(c *Config) { c.Engine.DispatchMode = "parallel" }, true},
		{"relative webhook url", func(c *Config) {
			c.Webhooks.URLs = []string{"/hooks"}
			c.Webhooks.Timeout = time.Second
		}, true},
		{"webhook without timeout", func(c *Config) { c.Webhooks.URLs = []string{"https://example.com/h"} }, true},
		{"blank api key", func(c *Config) { c.Security.APIKeys = []string{" "} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("QUESTKIT_STORAGE_ADAPTER", "file")
	t.Setenv("QUESTKIT_STORAGE_FILE_PATH", "/tmp/q.json")
	t.Setenv("QUESTKIT_SERVER_READ_TIMEOUT", "3s")
	t.Setenv("QUESTKIT_WEBHOOK_URLS", "https://a.example/h, https://b.example/h")
	t.Setenv("QUESTKIT_REDIS_DB", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.Storage.Adapter)
	assert.Equal(t, "/tmp/q.json", cfg.Storage.File.Path)
	assert.Equal(t, 3*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"https://a.example/h", "https://b.example/h"}, cfg.Webhooks.URLs)
	assert.Equal(t, 2, cfg.Storage.Redis.DB)
}

func TestLoadRejectsBadEnvValue(t *testing.T) {
	t.Setenv("QUESTKIT_SERVER_READ_TIMEOUT", "soon")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadWithProfile(t *testing.T) {
	t.Setenv("QUESTKIT_PROFILE", "production")
	_, err := Load()
	require.Error(t, err, "production uses sql and needs a DSN")

	t.Setenv(SecretSQLDSN, "postgres://q@localhost/q")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvProduction, cfg.Environment)
	assert.Equal(t, "postgres://q@localhost/q", cfg.Storage.SQL.DSN)
	assert.NotContains(t, cfg.String(), "localhost/q")
}

func TestProfiles(t *testing.T) {
	tests := []struct {
		name         string
		profileName  string
		expectConfig bool
		environment  Environment
	}{
		{"development", "development", true, EnvDevelopment},
		{"testing", "testing", true, EnvTesting},
		{"staging", "staging", true, EnvStaging},
		{"production", "production", true, EnvProduction},
		{"unknown", "unknown", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadProfile(tt.profileName)
			if tt.expectConfig {
				require.NoError(t, err)
				require.NotNil(t, cfg)
				assert.Equal(t, tt.environment, cfg.Environment)
			} else {
				assert.Error(t, err)
				assert.Nil(t, cfg)
			}
		})
	}
}

func TestSecrets(t *testing.T) {
	// Test environment secret store
	store := NewEnvironmentSecretStore()

	// Set test environment variable
	testKey := "TEST_SECRET_KEY"
	testValue := "test_secret_value"
	os.Setenv(testKey, testValue)
	defer os.Unsetenv(testKey)

	ctx := context.Background()

	// Test Get
	value, err := store.Get(ctx, testKey)
	assert.NoError(t, err)
	assert.Equal(t, testValue, value)

	// Test GetWithDefault
	defaultValue := "default"
	value = store.GetWithDefault(ctx, "NONEXISTENT_KEY", defaultValue)
	assert.Equal(t, defaultValue, value)

	value = store.GetWithDefault(ctx, testKey, defaultValue)
	assert.Equal(t, testValue, value)

	_, err = store.Get(ctx, "NONEXISTENT_KEY")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

type mapSecrets map[string]string

func (m mapSecrets) Get(_ context.Context, key string) (string, error) {
	if v, ok := m[key]; ok {
		return v, nil
	}
	return "", ErrSecretNotFound
}

type brokenSecrets struct{}

func (brokenSecrets) Get(context.Context, string) (string, error) {
	return "", errors.New("vault sealed")
}

func TestApplySecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Redis.Password = "keep"
	err := cfg.ApplySecrets(context.Background(), mapSecrets{
		SecretSQLDSN:        "file:q.db",
		SecretWebhookSecret: "whsec",
		SecretAPIKeys:       "a, b,,",
	})
	require.NoError(t, err)
	assert.Equal(t, "file:q.db", cfg.Storage.SQL.DSN)
	assert.Equal(t, "keep", cfg.Storage.Redis.Password)
	assert.Equal(t, "whsec", cfg.Webhooks.Secret)
	assert.Equal(t, []string{"a", "b"}, cfg.Security.APIKeys)

	assert.Error(t, DefaultConfig().ApplySecrets(context.Background(), brokenSecrets{}))
}

func TestValidateConfigPath(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "questkit.JSON")
	txtPath := filepath.Join(dir, "questkit.txt")
	require.NoError(t, os.WriteFile(jsonPath, []byte("{}"), 0o600))
	require.NoError(t, os.WriteFile(txtPath, []byte("{}"), 0o600))

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"json file", jsonPath, false},
		{"empty path", "", true},
		{"traversal", "../../../etc/passwd", true},
		{"wrong extension", txtPath, true},
		{"missing file", filepath.Join(dir, "missing.json"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateConfigPath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
