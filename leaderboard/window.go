package leaderboard

import (
	"fmt"
	"time"
)

// Period names a leaderboard window.
type Period string

const (
	PeriodWeek    Period = "week"
	PeriodMonth   Period = "month"
	PeriodAllTime Period = "all"
	PeriodCustom  Period = "custom"
)

// Window is a half-open time range [From, To), or every instant when AllTime is set.
type Window struct {
	Period  Period    `json:"period"`
	From    time.Time `json:"from,omitempty"`
	To      time.Time `json:"to,omitempty"`
	AllTime bool      `json:"all_time,omitempty"`
}

// AllTime matches every event.
func AllTime() Window { return Window{Period: PeriodAllTime, AllTime: true} }

// Between returns the window [from, to).
func Between(from, to time.Time) Window {
	return Window{Period: PeriodCustom, From: from, To: to}
}

// Week returns the ISO week (Monday 00:00 to the next Monday) containing now.
func Week(now time.Time) Window {
	y, m, d := now.Date()
	offset := (int(now.Weekday()) + 6) % 7
	start := time.Date(y, m, d-offset, 0, 0, 0, 0, now.Location())
	return Window{Period: PeriodWeek, From: start, To: start.AddDate(0, 0, 7)}
}

// Month returns the calendar month containing now.
func Month(now time.Time) Window {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return Window{Period: PeriodMonth, From: start, To: start.AddDate(0, 1, 0)}
}

// ParsePeriod resolves a named period relative to now. Custom windows are built with Between.
func ParsePeriod(p string, now time.Time) (Window, error) {
	switch Period(p) {
	case PeriodWeek, "":
		return Week(now), nil
	case PeriodMonth:
		return Month(now), nil
	case PeriodAllTime:
		return AllTime(), nil
	default:
		return Window{}, fmt.Errorf("unknown period %q", p)
	}
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if w.AllTime {
		return true
	}
	return !t.Before(w.From) && t.Before(w.To)
}
