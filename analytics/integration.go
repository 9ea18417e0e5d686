package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"questkit/core"
)

// Config assembles an analytics Service.
type Config struct {
	Interval     time.Duration
	ExportURL    string
	ExportAPIKey string
	BatchSize    int
	RecentEvents int
}

// Service bundles metrics, periodic rollups, exporters and a recent event
// buffer behind a single OnEvent handler.
type Service struct {
	metrics    *Metrics
	aggregator *Aggregator
	exporter   Exporter

	mu     sync.Mutex
	recent []core.Event
	max    int
}

func NewService(cfg Config, log *slog.Logger, clock func() time.Time) *Service {
	if log == nil {
		log = slog.Default()
	}
	exporters := []Exporter{NewLogExporter(log)}
	if cfg.ExportURL != "" {
		exporters = append(exporters, NewHTTPExporter(cfg.ExportURL, cfg.ExportAPIKey, cfg.BatchSize))
	}
	exporter := NewMultiExporter(exporters...)
	metrics := NewMetrics()
	max := cfg.RecentEvents
	if max <= 0 {
		max = 50
	}
	return &Service{
		metrics:    metrics,
		aggregator: NewAggregator(metrics, cfg.Interval, WithExporter(exporter), WithLogger(log), WithClock(clock)),
		exporter:   exporter,
		max:        max,
	}
}

// OnEvent makes the Service itself usable as an event bus handler.
func (s *Service) OnEvent(ctx context.Context, e core.Event) {
	s.metrics.OnEvent(ctx, e)
	s.mu.Lock()
	s.recent = append(s.recent, e)
	if len(s.recent) > s.max {
		s.recent = s.recent[len(s.recent)-s.max:]
	}
	s.mu.Unlock()
}

func (s *Service) Metrics() *Metrics       { return s.metrics }
func (s *Service) Aggregator() *Aggregator { return s.aggregator }

// Start runs the aggregation loop in the background.
func (s *Service) Start(ctx context.Context) { go s.aggregator.Start(ctx) }

func (s *Service) Close() error { return s.exporter.Close() }

// Snapshot is the dashboard view served by Handler.
type Snapshot struct {
	Totals  Counts           `json:"totals"`
	Day     AggregatedData   `json:"day"`
	Week    AggregatedData   `json:"week"`
	Month   AggregatedData   `json:"month"`
	History []AggregatedData `json:"history"`
	Recent  []core.Event     `json:"recent"`
}

func (s *Service) Snapshot() Snapshot {
	now := s.aggregator.clock()
	s.mu.Lock()
	recent := append([]core.Event(nil), s.recent...)
	s.mu.Unlock()
	return Snapshot{
		Totals:  s.metrics.Totals(),
		Day:     s.aggregator.Rollup(PeriodDaily, now),
		Week:    s.aggregator.Rollup(PeriodWeekly, now),
		Month:   s.aggregator.Rollup(PeriodMonthly, now),
		History: s.aggregator.All(PeriodDaily),
		Recent:  recent,
	}
}

// Handler serves the Snapshot as JSON.
func (s *Service) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.Snapshot())
	})
}
