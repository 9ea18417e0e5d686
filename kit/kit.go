// Package kit assembles a ready-to-use quest engine from optional parts.
package kit

import (
	"context"
	"log/slog"
	"time"

	mem "questkit/adapters/memory"
	"questkit/core"
	"questkit/engine"
	"questkit/realtime"
)

// Hook is anything that consumes engine events, such as a webhook sink or an
// analytics service.
type Hook interface {
	OnEvent(ctx context.Context, e core.Event)
}

// Option configures the builder.
type Option func(*config)

type config struct {
	storage engine.Storage
	mode    engine.DispatchMode
	hub     *realtime.Hub
	hooks   []Hook
	log     *slog.Logger
	clock   func() time.Time
	newID   func() string
}

// WithStorage sets the persistence adapter.
func WithStorage(s engine.Storage) Option { return func(c *config) { c.storage = s } }

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(c *config) { c.mode = m } }

// WithRealtime wires a realtime hub to receive all engine events.
func WithRealtime(h *realtime.Hub) Option { return func(c *config) { c.hub = h } }

// WithHooks subscribes each hook to every engine event.
func WithHooks(hooks ...Hook) Option {
	return func(c *config) { c.hooks = append(c.hooks, hooks...) }
}

func WithLogger(l *slog.Logger) Option { return func(c *config) { c.log = l } }

func WithClock(clock func() time.Time) Option { return func(c *config) { c.clock = clock } }

func WithIDGenerator(gen func() string) Option { return func(c *config) { c.newID = gen } }

// New builds a Service. Defaults: in-memory storage, async dispatch.
func New(opts ...Option) *engine.Service {
	cfg := &config{mode: engine.DispatchAsync}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.storage == nil {
		cfg.storage = mem.New()
	}
	var busOpts []engine.BusOption
	if cfg.log != nil {
		busOpts = append(busOpts, engine.WithBusLogger(cfg.log))
	}
	bus := engine.NewEventBus(cfg.mode, busOpts...)
	if cfg.hub != nil {
		bus.SubscribeAll(core.AllEventTypes, cfg.hub.Broadcast)
	}
	for _, h := range cfg.hooks {
		bus.SubscribeAll(core.AllEventTypes, h.OnEvent)
	}
	return engine.NewService(cfg.storage, bus,
		engine.WithLogger(cfg.log),
		engine.WithClock(cfg.clock),
		engine.WithIDGenerator(cfg.newID),
	)
}
