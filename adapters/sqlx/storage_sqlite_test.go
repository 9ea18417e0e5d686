package sqlx_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	storage "questkit/adapters/sqlx"
	"questkit/core"
)

func newSQLiteStore(t *testing.T) *storage.Store {
	t.Helper()
	cfg := storage.DefaultConfig(storage.DriverSQLite)
	cfg.DSN = "file:" + filepath.Join(t.TempDir(), "quests.db")
	cfg.MaxOpenConns = 1
	store, err := storage.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLite_RoundTrip(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	loc := time.FixedZone("UTC+2", 2*3600)
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, loc)
	g := core.Goal{ID: "g1", Title: "Reviews", Mode: core.ModeManual, WindowStart: start, WindowEnd: start.AddDate(0, 0, 6), TargetCount: 2, CreatedAt: start}
	require.NoError(t, store.SaveGoal(ctx, g))
	g.Title = "Code reviews"
	require.NoError(t, store.SaveGoal(ctx, g))

	goals, err := store.ListGoals(ctx)
	require.NoError(t, err)
	require.Len(t, goals, 1)
	require.Equal(t, "Code reviews", goals[0].Title)
	require.True(t, goals[0].WindowStart.Equal(start))

	_, err = store.AdjustProgress(ctx, "g1", 2)
	require.NoError(t, err)
	_, err = store.AdjustProgress(ctx, "g1", -3)
	require.ErrorIs(t, err, core.ErrNegativeProgress)
	c, err := store.GetProgress(ctx, "g1")
	require.NoError(t, err)
	require.Equal(t, int64(2), c.Value)
	require.Equal(t, int64(1), c.Version)

	when := start.Add(30 * time.Hour)
	require.NoError(t, store.PutRecord(ctx, core.Record{ID: "r1", RelevantDate: &when, Status: core.StatusDone, Platforms: []string{"IOS"}}))
	require.NoError(t, store.PutRecord(ctx, core.Record{ID: "r2"}))
	records, err := store.RecordsBetween(ctx, start, start.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, []string{"IOS"}, records[0].Platforms)

	require.NoError(t, store.PutActor(ctx, core.Actor{ID: "zed", Active: true}))
	require.NoError(t, store.PutActor(ctx, core.Actor{ID: "amy", Active: true}))
	require.NoError(t, store.PutActor(ctx, core.Actor{ID: "zed", DisplayName: "Zed", Active: false}))
	actors, err := store.ListActors(ctx)
	require.NoError(t, err)
	require.Equal(t, []core.Actor{{ID: "zed", DisplayName: "Zed"}, {ID: "amy", Active: true}}, actors)

	_, err = store.AppendScore(ctx, core.ScoreEvent{ID: "e1", Actor: "amy", Time: when, Magnitude: 30, Category: core.CategoryCompletion})
	require.NoError(t, err)
	st, err := store.AppendScore(ctx, core.ScoreEvent{ID: "e2", Actor: "amy", Time: when.AddDate(0, 0, 30), Magnitude: -4, Category: core.CategoryPenalty})
	require.NoError(t, err)
	require.Equal(t, core.Standing{Actor: "amy", Score: 30, PositiveCount: 1, NegativeCount: 1}, st)

	windowed, err := store.ScoresBetween(ctx, start, start.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Len(t, windowed, 1)
	all, err := store.AllScores(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestSQLite_MigrateIsIdempotent(t *testing.T) {
	store := newSQLiteStore(t)
	require.NoError(t, store.Migrate(context.Background()))
}
