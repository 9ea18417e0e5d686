package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"questkit/core"
)

// AggregatedData is a rollup of one calendar bucket.
type AggregatedData struct {
	Period    AggregationPeriod `json:"period"`
	Key       string            `json:"key"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time"`
	Counts
	CreatedAt time.Time `json:"created_at"`
}

// Aggregator periodically rolls Metrics into per-period snapshots and hands
// them to an Exporter.
type Aggregator struct {
	mu       sync.RWMutex
	metrics  *Metrics
	rollups  map[AggregationPeriod]map[string]AggregatedData
	exporter Exporter
	interval time.Duration
	clock    func() time.Time
	log      *slog.Logger
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

func WithExporter(e Exporter) AggregatorOption {
	return func(a *Aggregator) { a.exporter = e }
}

func WithClock(clock func() time.Time) AggregatorOption {
	return func(a *Aggregator) {
		if clock != nil {
			a.clock = clock
		}
	}
}

func WithLogger(l *slog.Logger) AggregatorOption {
	return func(a *Aggregator) {
		if l != nil {
			a.log = l
		}
	}
}

func NewAggregator(metrics *Metrics, interval time.Duration, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		metrics:  metrics,
		rollups:  map[AggregationPeriod]map[string]AggregatedData{},
		interval: interval,
		clock:    func() time.Time { return time.Now().UTC() },
		log:      slog.Default(),
	}
	for _, p := range periods {
		a.rollups[p] = map[string]AggregatedData{}
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// OnEvent forwards to the underlying metrics.
func (a *Aggregator) OnEvent(ctx context.Context, e core.Event) {
	a.metrics.OnEvent(ctx, e)
}

// Rollup computes the snapshot of the bucket of period p containing at.
func (a *Aggregator) Rollup(p AggregationPeriod, at time.Time) AggregatedData {
	start, end := periodBounds(p, at)
	key := periodKey(p, at)
	return AggregatedData{
		Period:    p,
		Key:       key,
		StartTime: start,
		EndTime:   end,
		Counts:    a.metrics.Bucket(p, key),
		CreatedAt: a.clock(),
	}
}

// AggregateNow snapshots the current day, week and month and exports them.
func (a *Aggregator) AggregateNow(ctx context.Context) error {
	now := a.clock()
	batch := make([]AggregatedData, 0, len(periods))
	a.mu.Lock()
	for _, p := range periods {
		r := a.Rollup(p, now)
		a.rollups[p][r.Key] = r
		batch = append(batch, r)
	}
	a.mu.Unlock()

	if a.exporter == nil {
		return nil
	}
	for i := range batch {
		if err := a.exporter.Export(ctx, &batch[i]); err != nil {
			return err
		}
	}
	return a.exporter.Flush(ctx)
}

// Get returns a stored rollup.
func (a *Aggregator) Get(p AggregationPeriod, key string) (AggregatedData, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	r, ok := a.rollups[p][key]
	return r, ok
}

// All returns the stored rollups of a period ordered by key.
func (a *Aggregator) All(p AggregationPeriod) []AggregatedData {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]AggregatedData, 0, len(a.rollups[p]))
	for _, r := range a.rollups[p] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Start aggregates immediately and then on every interval until ctx ends.
func (a *Aggregator) Start(ctx context.Context) {
	if err := a.AggregateNow(ctx); err != nil {
		a.log.Warn("initial aggregation failed", "error", err)
	}
	if a.interval <= 0 {
		return
	}
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.AggregateNow(ctx); err != nil {
				a.log.Warn("periodic aggregation failed", "error", err)
			}
		}
	}
}
