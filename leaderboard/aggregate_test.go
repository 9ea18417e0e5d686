package leaderboard

import (
	"testing"
	"time"

	"questkit/core"
)

var t0 = time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)

func directory(ids ...core.ActorID) []core.Actor {
	out := make([]core.Actor, len(ids))
	for i, id := range ids {
		out[i] = core.Actor{ID: id, DisplayName: string(id), Active: true}
	}
	return out
}

func hasBadge(e core.RankEntry, b core.Badge) bool {
	for _, x := range e.Badges {
		if x == b {
			return true
		}
	}
	return false
}

func TestAggregateScenario(t *testing.T) {
	events := []core.ScoreEvent{
		{Actor: "a", Time: t0, Magnitude: 100, Category: core.CategoryCompletion},
		{Actor: "a", Time: t0, Magnitude: 50, Category: core.CategoryCompletion},
		{Actor: "b", Time: t0, Magnitude: 20, Category: core.CategoryCompletion},
	}
	got := Aggregate(events, directory("a", "b", "c"), Week(t0))
	want := []struct {
		actor core.ActorID
		score int64
		pos   int64
	}{{"a", 150, 2}, {"b", 20, 1}, {"c", 0, 0}}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	for i, w := range want {
		if got[i].Actor != w.actor || got[i].Score != w.score || got[i].PositiveCount != w.pos || got[i].Rank != i+1 {
			t.Fatalf("entry %d: got %+v", i, got[i])
		}
	}
	if !hasBadge(got[2], core.BadgeIdle) {
		t.Fatalf("c should be idle: %+v", got[2])
	}
	if !hasBadge(got[0], core.BadgeTopTier) || hasBadge(got[1], core.BadgeTopTier) {
		t.Fatalf("unexpected top tier badges: %+v", got)
	}
}

func TestAggregateNoEventsKeepsDirectoryOrder(t *testing.T) {
	got := Aggregate(nil, directory("x", "m", "a", "q"), AllTime())
	for i, id := range []core.ActorID{"x", "m", "a", "q"} {
		if got[i].Actor != id || got[i].Rank != i+1 || got[i].Score != 0 {
			t.Fatalf("entry %d: %+v", i, got[i])
		}
	}
}

func TestAggregateWindowAndOrphans(t *testing.T) {
	events := []core.ScoreEvent{
		{Actor: "a", Time: t0.AddDate(0, 0, -30), Magnitude: 500, Category: core.CategoryCompletion},
		{Actor: "ghost", Time: t0, Magnitude: 999, Category: core.CategoryCompletion},
		{Actor: "b", Time: t0, Magnitude: 10, Category: core.CategoryCompletion},
	}
	got := Aggregate(events, directory("a", "b"), Week(t0))
	if len(got) != 2 || got[0].Actor != "b" || got[1].Score != 0 {
		t.Fatalf("unexpected ranking %+v", got)
	}
}

func TestAggregatePenaltiesCountByCategory(t *testing.T) {
	events := []core.ScoreEvent{
		{Actor: "a", Time: t0, Magnitude: -10, Category: core.CategoryPenalty},
		{Actor: "a", Time: t0, Magnitude: 0, Category: core.CategoryPenalty},
		{Actor: "a", Time: t0, Magnitude: 5, Category: core.CategoryPenalty},
	}
	got := Aggregate(events, directory("a"), AllTime())
	if got[0].Score != 5 || got[0].NegativeCount != 3 || got[0].PositiveCount != 0 {
		t.Fatalf("unexpected entry %+v", got[0])
	}
	if !hasBadge(got[0], core.BadgeAtRisk) {
		t.Fatalf("expected at-risk badge: %+v", got[0])
	}
}

func TestFlawlessBadge(t *testing.T) {
	var events []core.ScoreEvent
	for i := 0; i < 3; i++ {
		events = append(events, core.ScoreEvent{Actor: "a", Time: t0, Magnitude: 1, Category: core.CategoryCompletion})
	}
	got := Aggregate(events, directory("a"), AllTime())
	if !hasBadge(got[0], core.BadgeFlawless) {
		t.Fatalf("expected flawless: %+v", got[0])
	}
}

func TestAggregateAllTimeMatchesWindowedOrder(t *testing.T) {
	actors := directory("a", "b", "c")
	standings := map[core.ActorID]core.Standing{
		"a": {Actor: "a", Score: 20, PositiveCount: 1},
		"b": {Actor: "b", Score: 150, PositiveCount: 2},
		"c": {Actor: "c", Score: 20, PositiveCount: 1},
	}
	got := AggregateAllTime(standings, actors)
	if got[0].Actor != "b" || got[1].Actor != "a" || got[2].Actor != "c" {
		t.Fatalf("unexpected order %+v", got)
	}
	if got[2].Rank != 3 || got[0].PositiveCount != 2 {
		t.Fatalf("unexpected entries %+v", got)
	}
}

func TestWeekWindow(t *testing.T) {
	w := Week(time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC)) // Sunday
	if !w.From.Equal(time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)) || !w.To.Equal(time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected week %v..%v", w.From, w.To)
	}
	if _, err := ParsePeriod("decade", t0); err == nil {
		t.Fatal("expected error for unknown period")
	}
}
