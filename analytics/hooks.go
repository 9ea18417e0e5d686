package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"questkit/core"
)

// AggregationPeriod names a calendar bucket. Buckets are computed in UTC.
type AggregationPeriod string

const (
	PeriodDaily   AggregationPeriod = "daily"
	PeriodWeekly  AggregationPeriod = "weekly"
	PeriodMonthly AggregationPeriod = "monthly"
)

var periods = []AggregationPeriod{PeriodDaily, PeriodWeekly, PeriodMonthly}

// Counts are the quest KPIs tracked per bucket.
type Counts struct {
	GoalsCreated      int64 `json:"goals_created"`
	Completions       int64 `json:"completions"`
	Revivals          int64 `json:"revivals"`
	ManualAdjustments int64 `json:"manual_adjustments"`
	ScoreEvents       int64 `json:"score_events"`
	PointsAwarded     int64 `json:"points_awarded"`
	Penalties         int64 `json:"penalties"`
	PenaltyPoints     int64 `json:"penalty_points"`
	ActiveActors      int   `json:"active_actors"`
}

type tally struct {
	Counts
	actors map[core.ActorID]struct{}
}

func (t *tally) snapshot() Counts {
	c := t.Counts
	c.ActiveActors = len(t.actors)
	return c
}

// Metrics buckets quest events by day, ISO week and month.
type Metrics struct {
	mu      sync.RWMutex
	buckets map[AggregationPeriod]map[string]*tally
	total   tally
}

func NewMetrics() *Metrics {
	m := &Metrics{buckets: map[AggregationPeriod]map[string]*tally{}}
	for _, p := range periods {
		m.buckets[p] = map[string]*tally{}
	}
	m.total.actors = map[core.ActorID]struct{}{}
	return m
}

func (m *Metrics) OnEvent(_ context.Context, e core.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	targets := []*tally{&m.total}
	for _, p := range periods {
		key := periodKey(p, e.Time)
		t := m.buckets[p][key]
		if t == nil {
			t = &tally{actors: map[core.ActorID]struct{}{}}
			m.buckets[p][key] = t
		}
		targets = append(targets, t)
	}
	for _, t := range targets {
		apply(t, e)
	}
}

func apply(t *tally, e core.Event) {
	switch e.Type {
	case core.EventGoalCreated:
		t.GoalsCreated++
	case core.EventGoalCompleted:
		t.Completions++
	case core.EventGoalRevived:
		t.Revivals++
	case core.EventManualProgressChanged:
		t.ManualAdjustments++
	case core.EventScoreRecorded:
		t.ScoreEvents++
		if e.Category == core.CategoryPenalty {
			t.Penalties++
		}
		if e.Delta > 0 {
			t.PointsAwarded += e.Delta
		} else {
			t.PenaltyPoints -= e.Delta
		}
	}
	if e.Actor != "" {
		t.actors[e.Actor] = struct{}{}
	}
}

// Bucket returns the counts for a period key such as "2024-03-06", "2024-W10" or "2024-03".
func (m *Metrics) Bucket(p AggregationPeriod, key string) Counts {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t := m.buckets[p][key]; t != nil {
		return t.snapshot()
	}
	return Counts{}
}

// Keys lists the populated bucket keys for a period.
func (m *Metrics) Keys(p AggregationPeriod) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.buckets[p]))
	for k := range m.buckets[p] {
		keys = append(keys, k)
	}
	return keys
}

func (m *Metrics) Totals() Counts {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.total.snapshot()
}

func periodKey(p AggregationPeriod, t time.Time) string {
	t = t.UTC()
	switch p {
	case PeriodWeekly:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	case PeriodMonthly:
		return t.Format("2006-01")
	default:
		return t.Format(time.DateOnly)
	}
}

// periodBounds returns the half-open UTC range of the bucket containing t.
func periodBounds(p AggregationPeriod, t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch p {
	case PeriodWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		start := day.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7)
	case PeriodMonthly:
		start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	default:
		return day, day.AddDate(0, 0, 1)
	}
}
