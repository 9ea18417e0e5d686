package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"

	"questkit/adapters/jsonfile"
	mem "questkit/adapters/memory"
	redisAdapter "questkit/adapters/redis"
	sqlxAdapter "questkit/adapters/sqlx"
	"questkit/analytics"
	"questkit/api/httpapi"
	"questkit/config"
	"questkit/core"
	"questkit/engine"
	"questkit/integrations/webhook"
	"questkit/kit"
	"questkit/realtime"
)

// App aggregates the assembled server components.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Hub       *realtime.Hub
	Analytics *analytics.Service
	Service   *engine.Service
	Handler   http.Handler
	Server    *http.Server
	Metrics   *MetricsServer
}

// MetricsServer serves the analytics snapshot on its own listener. Nil when disabled.
type MetricsServer struct {
	*http.Server
}

func provideConfig() (*config.Config, error) {
	if path := os.Getenv("QUESTKIT_CONFIG_FILE"); path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return setupLogging(cfg, os.Stdout, os.Stderr)
}

func provideHub(cfg *config.Config) *realtime.Hub {
	if !cfg.Realtime.Enabled {
		return nil
	}
	return realtime.NewHub()
}

func provideStorage(cfg *config.Config, log *slog.Logger) (engine.Storage, func(), error) {
	store, err := setupStorage(cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if c, ok := store.(io.Closer); ok {
			if err := c.Close(); err != nil {
				log.Warn("closing storage", "error", err)
			}
		}
	}
	return store, cleanup, nil
}

func provideWebhooks(cfg *config.Config, log *slog.Logger) *webhook.Sink {
	if len(cfg.Webhooks.URLs) == 0 {
		return nil
	}
	types := make([]core.EventType, 0, len(cfg.Webhooks.Events))
	for _, t := range cfg.Webhooks.Events {
		types = append(types, core.EventType(t))
	}
	return webhook.New(cfg.Webhooks.URLs,
		webhook.WithTimeout(cfg.Webhooks.Timeout),
		webhook.WithSecret(cfg.Webhooks.Secret),
		webhook.WithEventTypes(types...),
		webhook.WithLogger(log),
	)
}

func provideAnalytics(ctx context.Context, cfg *config.Config, log *slog.Logger) (*analytics.Service, func()) {
	svc := analytics.NewService(analytics.Config{
		Interval:  cfg.Metrics.Interval,
		ExportURL: cfg.Metrics.ExportURL,
	}, log, nil)
	if cfg.Metrics.Enabled {
		svc.Start(ctx)
	}
	return svc, func() {
		if err := svc.Close(); err != nil {
			log.Warn("flushing analytics", "error", err)
		}
	}
}

func provideService(cfg *config.Config, log *slog.Logger, hub *realtime.Hub, storage engine.Storage, sink *webhook.Sink, stats *analytics.Service) (*engine.Service, func()) {
	mode, _ := engine.ParseDispatchMode(cfg.Engine.DispatchMode)
	hooks := []kit.Hook{stats}
	if sink != nil {
		hooks = append(hooks, sink)
	}
	opts := []kit.Option{
		kit.WithStorage(storage),
		kit.WithDispatchMode(mode),
		kit.WithLogger(log),
		kit.WithHooks(hooks...),
	}
	if hub != nil {
		opts = append(opts, kit.WithRealtime(hub))
	}
	svc := kit.New(opts...)
	return svc, svc.Close
}

func provideHandler(svc *engine.Service, hub *realtime.Hub, cfg *config.Config) http.Handler {
	return httpapi.NewMux(svc, hub, httpapi.Options{
		PathPrefix:       cfg.Server.PathPrefix,
		AllowCORSOrigin:  cfg.Server.CORSOrigin,
		APIKeys:          cfg.Security.APIKeys,
		RateLimitEnabled: cfg.Security.EnableRateLimit,
		RateLimitRPM:     cfg.Security.RateLimit.RequestsPerMinute,
		RateLimitBurst:   cfg.Security.RateLimit.BurstSize,
	})
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

func provideMetricsServer(cfg *config.Config, stats *analytics.Service) *MetricsServer {
	if !cfg.Metrics.Enabled {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, stats.Handler())
	return &MetricsServer{&http.Server{
		Addr:              cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}}
}

// setupLogging installs the configured slog handler as the default logger.
func setupLogging(cfg *config.Config, stdout, stderr io.Writer) *slog.Logger {
	out := stdout
	if cfg.Logging.Output == "stderr" {
		out = stderr
	}
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	if len(cfg.Logging.Attributes) > 0 {
		handler = handler.WithAttrs(convertAttributes(cfg.Logging.Attributes))
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLogLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// convertAttributes turns static attributes into slog attrs in key order.
func convertAttributes(attrs map[string]string) []slog.Attr {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	result := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		result = append(result, slog.String(k, attrs[k]))
	}
	return result
}

// setupStorage creates the storage adapter selected by configuration.
func setupStorage(cfg *config.Config) (engine.Storage, error) {
	switch cfg.Storage.Adapter {
	case "memory":
		return mem.New(), nil
	case "file":
		return jsonfile.New(cfg.Storage.File.Path)
	case "redis":
		return redisAdapter.New(cfg.Storage.Redis)
	case "sql":
		return sqlxAdapter.New(cfg.Storage.SQL)
	default:
		return nil, fmt.Errorf("unknown storage adapter: %s", cfg.Storage.Adapter)
	}
}
