package core

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

func TestAddSafe(t *testing.T) {
	if v, err := AddSafe(10, 5); err != nil || v != 15 {
		t.Fatalf("got %v %v", v, err)
	}
	if _, err := AddSafe(math.MaxInt64, 1); err == nil {
		t.Fatalf("expected overflow")
	}
}

func TestNormalizeActorID(t *testing.T) {
	id, err := NormalizeActorID(" Alice ")
	if err != nil || id != "alice" {
		t.Fatalf("got %v %v", id, err)
	}
	if _, err := NormalizeActorID("   "); err == nil {
		t.Fatalf("expected empty error")
	}
}

func TestNewGoalDefaultWindow(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	g, err := NewGoal(GoalSpec{Title: "Ship posts", WindowStart: start, TargetCount: 3}, start)
	if err != nil {
		t.Fatal(err)
	}
	if !g.WindowEnd.Equal(time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected window end %v", g.WindowEnd)
	}
	if g.Mode != ModeAutomatic {
		t.Fatalf("expected automatic default, got %s", g.Mode)
	}
}

func TestNewGoalRejectsMalformed(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	cases := []GoalSpec{
		{Title: "zero target", WindowStart: start, TargetCount: 0},
		{Title: "reversed", WindowStart: start, WindowEnd: start.AddDate(0, 0, -1), TargetCount: 1},
		{Title: "", WindowStart: start, TargetCount: 1},
		{Title: "bad mode", Mode: "sometimes", WindowStart: start, TargetCount: 1},
		{Title: "dup", WindowStart: start, TargetCount: 1, Rule: Rule{StatusEquals{"DONE"}, StatusEquals{"DRAFT"}}},
	}
	for _, spec := range cases {
		if _, err := NewGoal(spec, start); !errors.Is(err, ErrInvalidGoal) {
			t.Fatalf("%q: expected ErrInvalidGoal, got %v", spec.Title, err)
		}
	}
}

func TestRuleJSONRoundTrip(t *testing.T) {
	r := Rule{StatusEquals{"DONE"}, PlatformIn{"TIKTOK"}, FormatIn{[]string{"reel", "short"}}}
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	var out Rule
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 || out[1] != (PlatformIn{"TIKTOK"}) {
		t.Fatalf("unexpected rule %#v", out)
	}
	if err := json.Unmarshal([]byte(`[{"kind":"color"}]`), &out); err == nil {
		t.Fatal("expected unknown kind error")
	}
}

func TestStandingApply(t *testing.T) {
	s := Standing{Actor: "a"}
	s, _ = s.Apply(ScoreEvent{Magnitude: 100, Category: CategoryCompletion})
	s, _ = s.Apply(ScoreEvent{Magnitude: -20, Category: CategoryPenalty})
	s, _ = s.Apply(ScoreEvent{Magnitude: 5, Category: "bonus"})
	if s.Score != 105 || s.PositiveCount != 1 || s.NegativeCount != 1 {
		t.Fatalf("unexpected standing %+v", s)
	}
}
