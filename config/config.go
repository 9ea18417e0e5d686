package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"questkit/adapters/redis"
	"questkit/adapters/sqlx"
)

// Environment names the deployment stage.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config is the server configuration. Every scalar field can be overridden
// through the environment variable named in its env tag.
type Config struct {
	Environment Environment `json:"environment" env:"QUESTKIT_ENV"`
	Profile     string      `json:"profile" env:"QUESTKIT_PROFILE"`

	Server ServerConfig `json:"server"`

	Storage StorageConfig `json:"storage"`

	Logging LoggingConfig `json:"logging"`

	Metrics MetricsConfig `json:"metrics"`

	Security SecurityConfig `json:"security"`

	Engine   EngineConfig   `json:"engine"`
	Webhooks WebhookConfig  `json:"webhooks"`
	Realtime RealtimeConfig `json:"realtime"`
}

// EngineConfig controls event dispatch.
type EngineConfig struct {
	// DispatchMode is "sync" or "async". Async keeps webhook and hook latency
	// off the request path.
	DispatchMode string `json:"dispatch_mode" env:"QUESTKIT_ENGINE_DISPATCH"`
}

// WebhookConfig lists endpoints notified of engine events.
type WebhookConfig struct {
	URLs    []string      `json:"urls,omitempty" env:"QUESTKIT_WEBHOOK_URLS"`
	Secret  string        `json:"secret,omitempty" env:"QUESTKIT_WEBHOOK_SECRET"`
	Timeout time.Duration `json:"timeout" env:"QUESTKIT_WEBHOOK_TIMEOUT"`
	Events  []string      `json:"events,omitempty" env:"QUESTKIT_WEBHOOK_EVENTS"`
}

// RealtimeConfig toggles the WebSocket event stream.
type RealtimeConfig struct {
	Enabled bool `json:"enabled" env:"QUESTKIT_REALTIME_ENABLED"`
}

type ServerConfig struct {
	Address           string        `json:"address" env:"QUESTKIT_SERVER_ADDR"`
	PathPrefix        string        `json:"path_prefix" env:"QUESTKIT_SERVER_PATH_PREFIX"`
	CORSOrigin        string        `json:"cors_origin" env:"QUESTKIT_SERVER_CORS_ORIGIN"`
	ReadTimeout       time.Duration `json:"read_timeout" env:"QUESTKIT_SERVER_READ_TIMEOUT"`
	WriteTimeout      time.Duration `json:"write_timeout" env:"QUESTKIT_SERVER_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `json:"idle_timeout" env:"QUESTKIT_SERVER_IDLE_TIMEOUT"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" env:"QUESTKIT_SERVER_READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" env:"QUESTKIT_SERVER_SHUTDOWN_TIMEOUT"`
}

// StorageConfig selects the persistence adapter: memory, file, redis or sql.
type StorageConfig struct {
	Adapter string       `json:"adapter" env:"QUESTKIT_STORAGE_ADAPTER"`
	Redis   redis.Config `json:"redis,omitempty"`
	SQL     sqlx.Config  `json:"sql,omitempty"`
	File    FileConfig   `json:"file,omitempty"`
}

type FileConfig struct {
	Path string `json:"path" env:"QUESTKIT_STORAGE_FILE_PATH"`
}

type LoggingConfig struct {
	Level      string            `json:"level" env:"QUESTKIT_LOG_LEVEL"`
	Format     string            `json:"format" env:"QUESTKIT_LOG_FORMAT"`
	Output     string            `json:"output" env:"QUESTKIT_LOG_OUTPUT"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// MetricsConfig controls the analytics snapshot endpoint and periodic rollups.
type MetricsConfig struct {
	Enabled   bool          `json:"enabled" env:"QUESTKIT_METRICS_ENABLED"`
	Address   string        `json:"address" env:"QUESTKIT_METRICS_ADDR"`
	Path      string        `json:"path" env:"QUESTKIT_METRICS_PATH"`
	Interval  time.Duration `json:"interval" env:"QUESTKIT_METRICS_INTERVAL"`
	ExportURL string        `json:"export_url,omitempty" env:"QUESTKIT_METRICS_EXPORT_URL"`
}

type SecurityConfig struct {
	EnableRateLimit bool            `json:"enable_rate_limit" env:"QUESTKIT_SECURITY_RATE_LIMIT_ENABLED"`
	RateLimit       RateLimitConfig `json:"rate_limit,omitempty"`
	APIKeys         []string        `json:"api_keys,omitempty" env:"QUESTKIT_SECURITY_API_KEYS"`
}

type RateLimitConfig struct {
	RequestsPerMinute int           `json:"requests_per_minute" env:"QUESTKIT_SECURITY_RATE_LIMIT_RPM"`
	BurstSize         int           `json:"burst_size" env:"QUESTKIT_SECURITY_RATE_LIMIT_BURST"`
	CleanupInterval   time.Duration `json:"cleanup_interval" env:"QUESTKIT_SECURITY_RATE_LIMIT_CLEANUP"`
}

// Load builds the configuration from defaults, or the profile named by
// QUESTKIT_PROFILE, overlaid with QUESTKIT_* environment variables.
func Load() (*Config, error) {
	base := DefaultConfig()
	if name := os.Getenv("QUESTKIT_PROFILE"); name != "" {
		p, err := LoadProfile(name)
		if err != nil {
			return nil, err
		}
		base = p
	}
	return build(base)
}

// LoadFromFile decodes a JSON file over the defaults; environment variables
// still take precedence over file values.
func LoadFromFile(path string) (*Config, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("invalid config file path: %w", err)
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return build(cfg)
}

func build(cfg *Config) (*Config, error) {
	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("load config from environment: %w", err)
	}
	if err := cfg.ApplySecrets(context.Background(), NewEnvironmentSecretStore()); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func validateConfigPath(path string) error {
	if path == "" {
		return errors.New("config file path cannot be empty")
	}
	clean := filepath.Clean(path)
	if !strings.EqualFold(filepath.Ext(clean), ".json") {
		return errors.New("config file must have .json extension")
	}
	if _, err := os.Stat(clean); err != nil {
		return fmt.Errorf("config file not accessible: %w", err)
	}
	return nil
}

// DefaultConfig returns the development defaults.
func DefaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Profile:     "default",
		Server: ServerConfig{
			Address:           ":8080",
			PathPrefix:        "/api",
			CORSOrigin:        "*",
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Storage: StorageConfig{
			Adapter: "memory",
			Redis:   redis.DefaultConfig(),
			SQL:     sqlx.DefaultConfig(sqlx.DriverPostgres),
			File: FileConfig{
				Path: "./data/questkit.json",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Address:  ":9090",
			Path:     "/metrics",
			Interval: time.Hour,
		},
		Security: SecurityConfig{
			EnableRateLimit: false,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 60,
				BurstSize:         10,
				CleanupInterval:   5 * time.Minute,
			},
			APIKeys: []string{},
		},
		Engine: EngineConfig{
			DispatchMode: "async",
		},
		Webhooks: WebhookConfig{
			Timeout: 5 * time.Second,
		},
		Realtime: RealtimeConfig{
			Enabled: true,
		},
	}
}

type validator interface{ Validate() error }

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []string
	if c.Environment == "" {
		errs = append(errs, "environment cannot be empty")
	}
	sections := []struct {
		name string
		v    validator
	}{
		{"server", &c.Server},
		{"storage", &c.Storage},
		{"logging", &c.Logging},
		{"metrics", &c.Metrics},
		{"security", c.Security},
		{"engine", &c.Engine},
		{"webhooks", &c.Webhooks},
	}
	for _, sec := range sections {
		if err := sec.v.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("%s config: %v", sec.name, err))
		}
	}
	return joinErrs(errs)
}

const redacted = "[REDACTED]"

// String renders the configuration as JSON with credentials masked.
func (c *Config) String() string {
	cfg := *c
	for _, field := range []*string{&cfg.Storage.SQL.DSN, &cfg.Storage.Redis.Password, &cfg.Webhooks.Secret} {
		if *field != "" {
			*field = redacted
		}
	}
	if len(cfg.Security.APIKeys) > 0 {
		cfg.Security.APIKeys = []string{redacted}
	}
	data, _ := json.MarshalIndent(cfg, "", "  ")
	return string(data)
}
