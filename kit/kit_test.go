package kit

import (
	"context"
	"sync"
	"testing"
	"time"

	mem "questkit/adapters/memory"
	"questkit/analytics"
	"questkit/core"
	"questkit/engine"
	"questkit/realtime"
)

type captureHook struct {
	mu     sync.Mutex
	events []core.Event
}

func (c *captureHook) OnEvent(_ context.Context, e core.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func TestNewWiresRealtimeAndHooks(t *testing.T) {
	now := time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)
	hub := realtime.NewHub()
	hook := &captureHook{}
	stats := analytics.NewMetrics()
	svc := New(
		WithRealtime(hub),
		WithStorage(mem.New()),
		WithDispatchMode(engine.DispatchSync),
		WithHooks(hook, stats),
		WithClock(func() time.Time { return now }),
		WithIDGenerator(func() string { return "fixed" }),
	)
	defer svc.Close()

	_, ch := hub.Subscribe(4)
	g, err := svc.CreateGoal(context.Background(), core.GoalSpec{Title: "Docs", WindowStart: now, TargetCount: 1})
	if err != nil {
		t.Fatalf("create goal: %v", err)
	}
	if g.ID != "fixed" {
		t.Fatalf("expected injected id, got %q", g.ID)
	}

	ev := <-ch
	if ev.Type != core.EventGoalCreated || ev.GoalID != "fixed" {
		t.Fatalf("unexpected realtime event: %+v", ev)
	}
	if len(hook.events) != 1 {
		t.Fatalf("expected hook to see 1 event, got %d", len(hook.events))
	}
	if stats.Totals().GoalsCreated != 1 {
		t.Fatalf("expected analytics to count the goal")
	}
}

func TestNewDefaults(t *testing.T) {
	svc := New()
	defer svc.Close()
	if err := svc.PutActor(context.Background(), core.Actor{ID: "bob", Active: true}); err != nil {
		t.Fatalf("default storage put actor: %v", err)
	}
	board, err := svc.AllTimeLeaderboard(context.Background())
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board) != 1 || board[0].Actor != "bob" {
		t.Fatalf("unexpected board %+v", board)
	}
}
