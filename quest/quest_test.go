package quest

import (
	"testing"
	"time"

	"questkit/core"
)

func day(y int, m time.Month, d, h, mi int) *time.Time {
	t := time.Date(y, m, d, h, mi, 0, 0, time.UTC)
	return &t
}

func weeklyGoal(rule core.Rule) core.Goal {
	return core.Goal{
		ID:          "g1",
		Title:       "TikTok week",
		Mode:        core.ModeAutomatic,
		WindowStart: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		WindowEnd:   time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC),
		TargetCount: 3,
		Rule:        rule,
	}
}

func TestMatchWindowInclusive(t *testing.T) {
	g := weeklyGoal(nil)
	records := []core.Record{
		{ID: "first-midnight", RelevantDate: day(2024, 3, 1, 0, 0), Status: core.StatusDone},
		{ID: "last-late", RelevantDate: day(2024, 3, 7, 23, 59), Status: core.StatusDone},
		{ID: "before", RelevantDate: day(2024, 2, 29, 23, 59), Status: core.StatusDone},
		{ID: "after", RelevantDate: day(2024, 3, 8, 0, 0), Status: core.StatusDone},
		{ID: "undated", Status: core.StatusDone},
	}
	got := Match(g, records)
	if len(got) != 2 || got[0].ID != "first-midnight" || got[1].ID != "last-late" {
		t.Fatalf("unexpected match set: %#v", got)
	}
}

func TestMatchDefaultsToDoneStatus(t *testing.T) {
	g := weeklyGoal(nil)
	records := []core.Record{
		{ID: "draft", RelevantDate: day(2024, 3, 2, 9, 0), Status: "DRAFT"},
		{ID: "done", RelevantDate: day(2024, 3, 2, 9, 0), Status: core.StatusDone},
	}
	got := Match(g, records)
	if len(got) != 1 || got[0].ID != "done" {
		t.Fatalf("unexpected match set: %#v", got)
	}
}

func TestMatchPlatformWildcard(t *testing.T) {
	specific := core.Record{Status: core.StatusDone, Platforms: []string{"ALL"}}
	if !MatchesRule(core.Rule{core.PlatformIn{Platform: "YOUTUBE"}}, specific) {
		t.Fatal("ALL tag should satisfy a specific platform")
	}
	none := core.Record{Status: core.StatusDone}
	if MatchesRule(core.Rule{core.PlatformIn{Platform: core.PlatformAny}}, none) {
		t.Fatal("ANY requires at least one platform tag")
	}
	other := core.Record{Status: core.StatusDone, Platforms: []string{"INSTAGRAM"}}
	if MatchesRule(core.Rule{core.PlatformIn{Platform: "TIKTOK"}}, other) {
		t.Fatal("different platform should not match")
	}
}

func TestMatchFormatAndGroup(t *testing.T) {
	rule := core.Rule{core.GroupEquals{Group: "marketing"}, core.FormatIn{Formats: []string{"reel", "short"}}}
	ok := core.Record{Status: core.StatusDone, Group: "marketing", Format: "reel"}
	noFormat := core.Record{Status: core.StatusDone, Group: "marketing"}
	wrongGroup := core.Record{Status: core.StatusDone, Group: "sales", Format: "reel"}
	if !MatchesRule(rule, ok) {
		t.Fatal("expected match")
	}
	if MatchesRule(rule, noFormat) {
		t.Fatal("missing format must not match a non-empty allow-list")
	}
	if MatchesRule(rule, wrongGroup) {
		t.Fatal("group mismatch must not match")
	}
	if !MatchesRule(core.Rule{core.FormatIn{}}, noFormat) {
		t.Fatal("empty allow-list matches anything")
	}
}

func TestConcreteScenario(t *testing.T) {
	g := weeklyGoal(core.Rule{core.StatusEquals{Status: "DONE"}, core.PlatformIn{Platform: "TIKTOK"}})
	records := []core.Record{
		{ID: "a", RelevantDate: day(2024, 3, 3, 10, 0), Status: "DONE", Platforms: []string{"TIKTOK"}},
		{ID: "b", RelevantDate: day(2024, 3, 3, 11, 0), Status: "DONE", Platforms: []string{"ALL"}},
		{ID: "c", RelevantDate: day(2024, 3, 8, 10, 0), Status: "DONE", Platforms: []string{"TIKTOK"}},
		{ID: "d", RelevantDate: day(2024, 3, 4, 10, 0), Status: "DRAFT", Platforms: []string{"TIKTOK"}},
	}
	p := ComputeProgress(g, Match(g, records))
	if p.Count != 2 || p.Percent != 67 || p.Completed {
		t.Fatalf("unexpected progress %+v", p)
	}
}

func TestManualIgnoresRecords(t *testing.T) {
	g := weeklyGoal(nil)
	g.Mode = core.ModeManual
	g.ManualProgress = 1
	records := []core.Record{{ID: "a", RelevantDate: day(2024, 3, 3, 10, 0), Status: core.StatusDone}}
	if len(Match(g, records)) != 0 {
		t.Fatal("manual goals never match records")
	}
	with := ComputeProgress(g, records)
	without := ComputeProgress(g, nil)
	if with != without || with.Count != 1 {
		t.Fatalf("manual count changed with records: %+v vs %+v", with, without)
	}
	g.ManualProgress = -4
	if ComputeProgress(g, nil).Count != 0 {
		t.Fatal("display count should clamp at zero")
	}
}

func TestProgressMonotonic(t *testing.T) {
	prev := -1
	completed := false
	for count := int64(0); count <= 10; count++ {
		p := progressFor(count, 7)
		if p.Percent < prev || p.Percent > 100 {
			t.Fatalf("percent regressed or overflowed at %d: %d", count, p.Percent)
		}
		if completed && !p.Completed {
			t.Fatalf("completion reverted at %d", count)
		}
		completed = p.Completed
		prev = p.Percent
	}
	if !completed {
		t.Fatal("expected completion")
	}
}

func TestClassifyLabels(t *testing.T) {
	g := weeklyGoal(nil)
	cases := []struct {
		now     time.Time
		label   string
		expired bool
	}{
		{time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC), "2 days left", false},
		{time.Date(2024, 3, 6, 8, 0, 0, 0, time.UTC), "1 day left", false},
		{time.Date(2024, 3, 7, 23, 59, 0, 0, time.UTC), "last day", false},
		{time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), "ended", true},
	}
	for _, c := range cases {
		got := Classify(g, c.now)
		if got.Label != c.label || got.Expired != c.expired {
			t.Fatalf("now=%v: got %+v", c.now, got)
		}
	}
}

func TestFailedAndCompletedExclusive(t *testing.T) {
	g := weeklyGoal(nil)
	g.TargetCount = 1
	after := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	done := []core.Record{{ID: "a", RelevantDate: day(2024, 3, 2, 0, 0), Status: core.StatusDone}}

	st := Evaluate(g, done, after)
	if st.Failed || !st.Progress.Completed || st.State != StateCompleted {
		t.Fatalf("expected completed, got %+v", st)
	}
	st = Evaluate(g, nil, after)
	if !st.Failed || st.Progress.Completed || st.State != StateFailed {
		t.Fatalf("expected failed, got %+v", st)
	}
}

func TestRevive(t *testing.T) {
	g := weeklyGoal(core.Rule{core.PlatformIn{Platform: "TIKTOK"}})
	now := time.Date(2024, 3, 20, 15, 30, 0, 0, time.UTC)

	if _, err := Revive(Evaluate(g, nil, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)), "g2", now); err != ErrNotFailed {
		t.Fatalf("expected ErrNotFailed for live goal, got %v", err)
	}

	st := Evaluate(g, nil, now)
	revived, err := Revive(st, "g2", now)
	if err != nil {
		t.Fatal(err)
	}
	if revived.ID != "g2" || revived.RevivedFrom != "g1" {
		t.Fatalf("unexpected ids %+v", revived)
	}
	if !revived.WindowStart.Equal(time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)) ||
		!revived.WindowEnd.Equal(time.Date(2024, 3, 26, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected window %v..%v", revived.WindowStart, revived.WindowEnd)
	}
	if revived.TargetCount != g.TargetCount || revived.Mode != g.Mode || len(revived.Rule) != 1 {
		t.Fatalf("rule not preserved: %+v", revived)
	}
	if ComputeProgress(revived, Match(revived, nil)).Count != 0 {
		t.Fatal("revived goal should start at zero")
	}
	if g.ID != "g1" || !g.WindowStart.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatal("original goal modified")
	}
}
