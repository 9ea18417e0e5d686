package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"questkit/core"
)

func TestMemoryStoreProgressNeverNegative(t *testing.T) {
	s := New()
	ctx := context.Background()
	c, err := s.AdjustProgress(ctx, "g1", 2)
	if err != nil || c.Value != 2 || c.Version != 1 {
		t.Fatalf("got %+v %v", c, err)
	}
	if _, err := s.AdjustProgress(ctx, "g1", -3); !errors.Is(err, core.ErrNegativeProgress) {
		t.Fatalf("expected ErrNegativeProgress, got %v", err)
	}
	c, _ = s.GetProgress(ctx, "g1")
	if c.Value != 2 || c.Version != 1 {
		t.Fatalf("state changed after refused decrement: %+v", c)
	}
}

func TestMemoryStoreRecordsBetween(t *testing.T) {
	s := New()
	ctx := context.Background()
	in := time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)
	out := time.Date(2024, 4, 3, 0, 0, 0, 0, time.UTC)
	_ = s.PutRecord(ctx, core.Record{ID: "in", RelevantDate: &in})
	_ = s.PutRecord(ctx, core.Record{ID: "out", RelevantDate: &out})
	_ = s.PutRecord(ctx, core.Record{ID: "undated"})

	got, err := s.RecordsBetween(ctx, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 7, 23, 59, 59, 0, time.UTC))
	if err != nil || len(got) != 1 || got[0].ID != "in" {
		t.Fatalf("got %+v %v", got, err)
	}
}

func TestMemoryStoreStandingsAndActors(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.PutActor(ctx, core.Actor{ID: "b", Active: true})
	_ = s.PutActor(ctx, core.Actor{ID: "a", Active: true})
	_, _ = s.AppendScore(ctx, core.ScoreEvent{Actor: "a", Magnitude: 10, Category: core.CategoryCompletion, Time: time.Now()})
	st, err := s.AppendScore(ctx, core.ScoreEvent{Actor: "a", Magnitude: -5, Category: core.CategoryPenalty, Time: time.Now()})
	if err != nil || st.Score != 10 || st.NegativeCount != 1 {
		t.Fatalf("got %+v %v", st, err)
	}
	actors, _ := s.ListActors(ctx)
	if len(actors) != 2 || actors[0].ID != "b" {
		t.Fatalf("directory order lost: %+v", actors)
	}
	all, _ := s.AllScores(ctx)
	if len(all) != 2 {
		t.Fatalf("expected 2 events, got %d", len(all))
	}
}

func TestMemoryStoreSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	src := New()
	_ = src.SaveGoal(ctx, core.Goal{ID: "g2", Title: "two"})
	_ = src.SaveGoal(ctx, core.Goal{ID: "g1", Title: "one"})
	_, _ = src.AdjustProgress(ctx, "g1", 4)
	_ = src.PutActor(ctx, core.Actor{ID: "z"})
	_, _ = src.AppendScore(ctx, core.ScoreEvent{Actor: "z", Magnitude: 3, Category: core.CategoryCompletion})

	dst := New()
	dst.Restore(src.Snapshot())

	goals, _ := dst.ListGoals(ctx)
	if len(goals) != 2 || goals[0].ID != "g2" {
		t.Fatalf("goal order lost: %+v", goals)
	}
	c, err := dst.GetProgress(ctx, "g1")
	if err != nil || c.Value != 4 || c.Version != 1 {
		t.Fatalf("counter not restored: %+v %v", c, err)
	}
	st, _ := dst.Standings(ctx)
	if st["z"].Score != 3 {
		t.Fatalf("standing not restored: %+v", st)
	}
}
