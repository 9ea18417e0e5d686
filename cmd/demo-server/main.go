package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"questkit/api/httpapi"
	"questkit/core"
	"questkit/engine"
	"questkit/kit"
	"questkit/leaderboard"
	"questkit/realtime"
)

func main() {
	// readable text logging for the demo
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	hub := realtime.NewHub()
	svc := kit.New(kit.WithRealtime(hub), kit.WithDispatchMode(engine.DispatchAsync))
	defer svc.Close()

	if err := seed(context.Background(), svc, time.Now()); err != nil {
		slog.Error("seeding demo data", "error", err)
		os.Exit(1)
	}

	addr := ":8080"
	if v := os.Getenv("DEMO_ADDR"); v != "" {
		addr = v
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpapi.NewMux(svc, hub, httpapi.Options{AllowCORSOrigin: "*"}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("demo server listening", "addr", addr, "ws", "/ws", "leaderboard", "/leaderboard?period=week")
	if err := srv.ListenAndServe(); err != nil {
		slog.Error("server stopped", "error", err)
	}
}

// seed creates a week of sample quests, records, actors and score events.
func seed(ctx context.Context, svc *engine.Service, now time.Time) error {
	week := leaderboard.Week(now)
	goals := []core.GoalSpec{
		{ID: "ship-docs", Title: "Ship three docs pages", WindowStart: week.From, TargetCount: 3,
			Rule: core.Rule{core.GroupEquals{Group: "docs"}}},
		{ID: "ios-bugs", Title: "Close five iOS bugs", WindowStart: week.From, TargetCount: 5,
			Rule: core.Rule{core.PlatformIn{Platform: "IOS"}, core.FormatIn{Formats: []string{"BUG"}}}},
		{ID: "reviews", Title: "Review four pull requests", Mode: core.ModeManual, WindowStart: week.From, TargetCount: 4},
	}
	for _, g := range goals {
		if _, err := svc.CreateGoal(ctx, g); err != nil {
			return err
		}
	}

	day := week.From.Add(10 * time.Hour)
	records := []core.Record{
		{ID: "r1", RelevantDate: &day, Status: core.StatusDone, Group: "docs"},
		{ID: "r2", RelevantDate: &day, Status: core.StatusDone, Group: "docs"},
		{ID: "r3", RelevantDate: &day, Status: core.StatusDone, Platforms: []string{"ALL"}, Format: "BUG"},
	}
	for _, r := range records {
		if err := svc.PutRecord(ctx, r); err != nil {
			return err
		}
	}
	if _, err := svc.AdjustManualProgress(ctx, "reviews", 1); err != nil {
		return err
	}

	for _, a := range []core.Actor{
		{ID: "ada", DisplayName: "Ada", Active: true},
		{ID: "linus", DisplayName: "Linus", Active: true},
		{ID: "grace", DisplayName: "Grace", Active: true},
	} {
		if err := svc.PutActor(ctx, a); err != nil {
			return err
		}
	}
	events := []core.ScoreEvent{
		{Actor: "ada", Time: day, Magnitude: 100, Category: core.CategoryCompletion},
		{Actor: "ada", Time: day, Magnitude: 50, Category: core.CategoryCompletion},
		{Actor: "linus", Time: day, Magnitude: 20, Category: core.CategoryCompletion},
		{Actor: "linus", Time: day, Magnitude: -5, Category: core.CategoryPenalty},
	}
	for _, ev := range events {
		if _, err := svc.RecordScore(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}
