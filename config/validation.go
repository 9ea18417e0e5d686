package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

func oneOf(field, value string, allowed ...string) string {
	if slices.Contains(allowed, value) {
		return ""
	}
	return fmt.Sprintf("%s must be one of: %s", field, strings.Join(allowed, ", "))
}

func joinErrs(errs []string) error {
	var kept []string
	for _, e := range errs {
		if e != "" {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return errors.New(strings.Join(kept, "; "))
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	var errs []string
	if s.Address == "" {
		errs = append(errs, "address cannot be empty")
	}
	durations := []struct {
		name  string
		value int64
	}{
		{"read_timeout", int64(s.ReadTimeout)},
		{"write_timeout", int64(s.WriteTimeout)},
		{"idle_timeout", int64(s.IdleTimeout)},
		{"read_header_timeout", int64(s.ReadHeaderTimeout)},
		{"shutdown_timeout", int64(s.ShutdownTimeout)},
	}
	for _, d := range durations {
		if d.value <= 0 {
			errs = append(errs, d.name+" must be positive")
		}
	}
	return joinErrs(errs)
}

// Validate validates storage configuration and the selected adapter's settings.
func (s *StorageConfig) Validate() error {
	errs := []string{oneOf("adapter", s.Adapter, "memory", "redis", "sql", "file")}

	switch s.Adapter {
	case "file":
		if err := s.File.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("file config: %v", err))
		}
	case "sql":
		if err := s.SQL.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("sql config: %v", err))
		}
	case "redis":
		if s.Redis.Addr == "" {
			errs = append(errs, "redis config: addr cannot be empty")
		}
		if s.Redis.DB < 0 {
			errs = append(errs, "redis config: db cannot be negative")
		}
	}
	return joinErrs(errs)
}

// Validate validates file storage configuration
func (f *FileConfig) Validate() error {
	if f.Path == "" {
		return errors.New("path cannot be empty")
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	return joinErrs([]string{
		oneOf("level", l.Level, "debug", "info", "warn", "error"),
		oneOf("format", l.Format, "json", "text"),
		oneOf("output", l.Output, "stdout", "stderr"),
	})
}

// Validate validates metrics configuration
func (m *MetricsConfig) Validate() error {
	if !m.Enabled {
		return nil
	}
	var errs []string
	if m.Address == "" {
		errs = append(errs, "address cannot be empty when metrics are enabled")
	}
	if m.Path == "" || !strings.HasPrefix(m.Path, "/") {
		errs = append(errs, "path must start with / when metrics are enabled")
	}
	return joinErrs(errs)
}

// Validate validates the dispatch mode.
func (e *EngineConfig) Validate() error {
	return joinErrs([]string{oneOf("dispatch_mode", e.DispatchMode, "sync", "async")})
}

// Validate checks every webhook URL is absolute http(s).
func (w *WebhookConfig) Validate() error {
	var errs []string
	for i, raw := range w.URLs {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Sprintf("urls[%d] must be an absolute http(s) URL", i))
		}
	}
	if len(w.URLs) > 0 && w.Timeout <= 0 {
		errs = append(errs, "timeout must be positive when webhooks are configured")
	}
	return joinErrs(errs)
}

func (s SecurityConfig) Validate() error {
	var errs []string
	if s.EnableRateLimit {
		if s.RateLimit.RequestsPerMinute <= 0 {
			errs = append(errs, "rate_limit.requests_per_minute must be > 0 when rate limiting is enabled")
		}
		if s.RateLimit.BurstSize <= 0 {
			errs = append(errs, "rate_limit.burst_size must be > 0 when rate limiting is enabled")
		}
	}
	for i, key := range s.APIKeys {
		if strings.TrimSpace(key) == "" {
			errs = append(errs, fmt.Sprintf("api_keys[%d] is empty", i))
		}
	}
	return joinErrs(errs)
}
