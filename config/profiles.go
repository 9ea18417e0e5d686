package config

import (
	"fmt"
	"time"
)

// LoadProfile returns the defaults tuned for a named deployment environment.
// Environment variables are not applied; Load does that on top.
func LoadProfile(name string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.Profile = name

	switch Environment(name) {
	case EnvDevelopment:
		cfg.Environment = EnvDevelopment
		cfg.Logging.Level = "debug"
		cfg.Logging.Format = "text"
	case EnvTesting:
		cfg.Environment = EnvTesting
		cfg.Server.Address = "127.0.0.1:0"
		cfg.Logging.Level = "warn"
		cfg.Engine.DispatchMode = "sync"
	case EnvStaging:
		cfg.Environment = EnvStaging
		cfg.Storage.Adapter = "file"
		cfg.Security.EnableRateLimit = true
	case EnvProduction:
		cfg.Environment = EnvProduction
		cfg.Storage.Adapter = "sql"
		cfg.Server.CORSOrigin = ""
		cfg.Server.ShutdownTimeout = 15 * time.Second
		cfg.Metrics.Enabled = true
		cfg.Security.EnableRateLimit = true
		cfg.Security.RateLimit.RequestsPerMinute = 600
		cfg.Security.RateLimit.BurstSize = 50
	default:
		return nil, fmt.Errorf("unknown profile %q", name)
	}
	return cfg, nil
}
