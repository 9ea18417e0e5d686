// Package quest evaluates goals against work records. Every function is pure:
// callers pass the full input snapshot, including the current time.
package quest

import (
	"time"

	"questkit/core"
)

// StartOfDay returns midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last representable instant of t's calendar day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// Bounds returns the goal window normalized to whole days in the location of WindowStart.
func Bounds(g core.Goal) (from, to time.Time) {
	loc := g.WindowStart.Location()
	return StartOfDay(g.WindowStart), EndOfDay(g.WindowEnd.In(loc))
}

// Match returns the records that count toward g, preserving input order.
// Manual goals have no automatic basis and always match nothing.
func Match(g core.Goal, records []core.Record) []core.Record {
	if g.Mode != core.ModeAutomatic {
		return nil
	}
	from, to := Bounds(g)
	var out []core.Record
	for _, r := range records {
		if r.RelevantDate == nil {
			continue
		}
		at := *r.RelevantDate
		if at.Before(from) || at.After(to) {
			continue
		}
		if !MatchesRule(g.Rule, r) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// MatchesRule reports whether r satisfies every constraint of rule.
func MatchesRule(rule core.Rule, r core.Record) bool {
	hasStatus := false
	for _, c := range rule {
		switch v := c.(type) {
		case core.StatusEquals:
			hasStatus = true
			if r.Status != v.Status {
				return false
			}
		case core.GroupEquals:
			if r.Group != v.Group {
				return false
			}
		case core.PlatformIn:
			if !matchPlatform(v.Platform, r.Platforms) {
				return false
			}
		case core.FormatIn:
			if !matchFormat(v.Formats, r.Format) {
				return false
			}
		}
	}
	if !hasStatus && r.Status != core.StatusDone {
		return false
	}
	return true
}

func matchPlatform(want string, tags []string) bool {
	if want == core.PlatformAny {
		return len(tags) > 0
	}
	for _, t := range tags {
		if t == want || t == core.PlatformAll {
			return true
		}
	}
	return false
}

func matchFormat(allowed []string, format string) bool {
	if len(allowed) == 0 {
		return true
	}
	if format == "" {
		return false
	}
	for _, f := range allowed {
		if f == format {
			return true
		}
	}
	return false
}
