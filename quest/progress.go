package quest

import (
	"errors"
	"fmt"
	"math"
	"time"

	"questkit/core"
)

// ErrNotFailed is returned when reviving a goal that has not failed.
var ErrNotFailed = errors.New("only failed goals can be revived")

// Progress is the derived completion state of a goal.
type Progress struct {
	Count     int64 `json:"count"`
	Percent   int   `json:"percent"`
	Completed bool  `json:"completed"`
}

// ComputeProgress derives count and percentage from already matched records,
// or from the manual counter for manual goals.
func ComputeProgress(g core.Goal, matched []core.Record) Progress {
	var count int64
	if g.Mode == core.ModeManual {
		count = g.ManualProgress
		if count < 0 {
			count = 0
		}
	} else {
		count = int64(len(matched))
	}
	return progressFor(count, g.TargetCount)
}

func progressFor(count, target int64) Progress {
	pct := 100
	if target > 0 {
		pct = int(math.Min(100, math.Round(100*float64(count)/float64(target))))
	}
	return Progress{Count: count, Percent: pct, Completed: pct >= 100}
}

// Temporal is the time-derived state of a goal at a given instant.
type Temporal struct {
	Expired       bool   `json:"expired"`
	DaysRemaining int    `json:"days_remaining"`
	Label         string `json:"label"`
}

// Classify compares calendar dates in the location of the goal window.
// The end day itself is still live.
func Classify(g core.Goal, now time.Time) Temporal {
	loc := g.WindowStart.Location()
	days := civilDays(g.WindowEnd.In(loc)) - civilDays(now.In(loc))
	t := Temporal{Expired: days < 0, DaysRemaining: days}
	switch {
	case t.Expired:
		t.Label = "ended"
	case days == 0:
		t.Label = "last day"
	case days == 1:
		t.Label = "1 day left"
	default:
		t.Label = fmt.Sprintf("%d days left", days)
	}
	return t
}

// civilDays counts days since the Unix epoch for t's calendar date.
func civilDays(t time.Time) int {
	y, m, d := t.Date()
	return int(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

// Failed combines the temporal and progress results.
func Failed(t Temporal, p Progress) bool {
	return t.Expired && !p.Completed
}

// State summarizes a goal for display.
type State string

const (
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Status is the full evaluation of a goal at one instant.
type Status struct {
	Goal     core.Goal `json:"goal"`
	Progress Progress  `json:"progress"`
	Temporal Temporal  `json:"temporal"`
	Failed   bool      `json:"failed"`
	State    State     `json:"state"`
	Matched  []string  `json:"matched,omitempty"`
}

// Evaluate runs the matcher, progress calculator and classifier for one goal.
func Evaluate(g core.Goal, records []core.Record, now time.Time) Status {
	matched := Match(g, records)
	p := ComputeProgress(g, matched)
	t := Classify(g, now)
	st := Status{Goal: g, Progress: p, Temporal: t, Failed: Failed(t, p)}
	switch {
	case p.Completed:
		st.State = StateCompleted
	case st.Failed:
		st.State = StateFailed
	default:
		st.State = StateActive
	}
	for _, r := range matched {
		st.Matched = append(st.Matched, r.ID)
	}
	return st
}

// Revive clones the rule of a failed goal into a new goal whose window starts
// on the day of now and keeps the original length. The original is not modified.
func Revive(st Status, id string, now time.Time) (core.Goal, error) {
	if !st.Failed {
		return core.Goal{}, ErrNotFailed
	}
	g := st.Goal
	loc := g.WindowStart.Location()
	length := civilDays(g.WindowEnd.In(loc)) - civilDays(g.WindowStart)
	start := StartOfDay(now.In(loc))
	revived := g.Clone()
	revived.ID = id
	revived.WindowStart = start
	revived.WindowEnd = start.AddDate(0, 0, length)
	revived.ManualProgress = 0
	revived.CreatedAt = now
	revived.RevivedFrom = g.ID
	return revived, nil
}
