package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"questkit/core"
)

type DispatchMode int

const (
	DispatchSync DispatchMode = iota
	DispatchAsync
)

// ParseDispatchMode maps the configuration names "sync" and "async".
func ParseDispatchMode(s string) (DispatchMode, error) {
	switch s {
	case "", "sync":
		return DispatchSync, nil
	case "async":
		return DispatchAsync, nil
	}
	return DispatchSync, fmt.Errorf("unknown dispatch mode %q", s)
}

func (m DispatchMode) String() string {
	if m == DispatchAsync {
		return "async"
	}
	return "sync"
}

type Handler func(context.Context, core.Event)

// BusOption tunes an EventBus.
type BusOption func(*EventBus)

// WithQueueSize sets the async queue capacity.
func WithQueueSize(n int) BusOption {
	return func(e *EventBus) {
		if n > 0 {
			e.queueSize = n
		}
	}
}

// WithWorkers sets the number of async dispatch goroutines.
func WithWorkers(n int) BusOption {
	return func(e *EventBus) {
		if n > 0 {
			e.workers = n
		}
	}
}

func WithBusLogger(l *slog.Logger) BusOption {
	return func(e *EventBus) {
		if l != nil {
			e.log = l
		}
	}
}

// EventBus fans engine events out to handlers keyed by event type. In async
// mode Publish never blocks: events beyond the queue capacity are dropped and
// counted.
type EventBus struct {
	mode      DispatchMode
	queueSize int
	workers   int
	log       *slog.Logger

	mu       sync.RWMutex
	handlers map[core.EventType]map[uint64]Handler
	seq      uint64

	queue     chan core.Event
	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    atomic.Bool
	dropped   atomic.Uint64
}

func NewEventBus(mode DispatchMode, opts ...BusOption) *EventBus {
	e := &EventBus{
		mode:      mode,
		queueSize: 2048,
		workers:   4,
		log:       slog.Default(),
		handlers:  make(map[core.EventType]map[uint64]Handler),
	}
	for _, o := range opts {
		o(e)
	}
	if mode == DispatchAsync {
		e.queue = make(chan core.Event, e.queueSize)
		e.wg.Add(e.workers)
		for i := 0; i < e.workers; i++ {
			go e.work()
		}
	}
	return e
}

func (e *EventBus) work() {
	defer e.wg.Done()
	for ev := range e.queue {
		e.dispatch(context.Background(), ev)
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (e *EventBus) Close() {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed.Store(true)
		if e.queue != nil {
			close(e.queue)
		}
		e.mu.Unlock()
		e.wg.Wait()
	})
}

// Dropped reports how many async events were discarded on a full queue.
func (e *EventBus) Dropped() uint64 { return e.dropped.Load() }

// Subscribe registers h for one event type and returns its unsubscribe func.
func (e *EventBus) Subscribe(typ core.EventType, h Handler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	id := e.seq
	if e.handlers[typ] == nil {
		e.handlers[typ] = make(map[uint64]Handler)
	}
	e.handlers[typ][id] = h
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.handlers[typ], id)
	}
}

// SubscribeAll registers h for every listed type; the returned func removes
// all of the registrations.
func (e *EventBus) SubscribeAll(types []core.EventType, h Handler) func() {
	unsubs := make([]func(), 0, len(types))
	for _, typ := range types {
		unsubs = append(unsubs, e.Subscribe(typ, h))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Publish delivers ev inline (sync) or enqueues it (async). Events published
// after Close are discarded.
func (e *EventBus) Publish(ctx context.Context, ev core.Event) {
	if e.mode != DispatchAsync {
		e.dispatch(ctx, ev)
		return
	}
	// the read lock keeps Close from closing the queue mid-send
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed.Load() {
		return
	}
	select {
	case e.queue <- ev:
	default:
		e.dropped.Add(1)
		e.log.Warn("event bus queue full, dropping event", "type", ev.Type, "goal_id", ev.GoalID, "actor", ev.Actor)
	}
}

func (e *EventBus) dispatch(ctx context.Context, ev core.Event) {
	e.mu.RLock()
	hs := make([]Handler, 0, len(e.handlers[ev.Type]))
	for _, h := range e.handlers[ev.Type] {
		hs = append(hs, h)
	}
	e.mu.RUnlock()
	for _, h := range hs {
		e.call(ctx, h, ev)
	}
}

func (e *EventBus) call(ctx context.Context, h Handler, ev core.Event) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("event handler panicked", "type", ev.Type, "panic", r)
		}
	}()
	h(ctx, ev)
}
