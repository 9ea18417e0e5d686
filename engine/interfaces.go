package engine

import (
	"context"
	"time"

	"questkit/core"
)

// GoalStore persists validated goals.
type GoalStore interface {
	SaveGoal(ctx context.Context, g core.Goal) error
	GetGoal(ctx context.Context, id string) (core.Goal, error)
	ListGoals(ctx context.Context) ([]core.Goal, error)
}

// ProgressStore owns the versioned manual counters. AdjustProgress must refuse,
// with core.ErrNegativeProgress and no state change, any delta that would drop
// the value below zero.
type ProgressStore interface {
	AdjustProgress(ctx context.Context, goalID string, delta int64) (core.Counter, error)
	GetProgress(ctx context.Context, goalID string) (core.Counter, error)
}

// RecordSource supplies work records. RecordsBetween returns records whose
// relevant date falls in [from, to]; undated records are never returned.
type RecordSource interface {
	PutRecord(ctx context.Context, r core.Record) error
	RecordsBetween(ctx context.Context, from, to time.Time) ([]core.Record, error)
}

// EventLog is the append-only score event log. Append also folds the event
// into the actor's cumulative standing.
type EventLog interface {
	AppendScore(ctx context.Context, ev core.ScoreEvent) (core.Standing, error)
	ScoresBetween(ctx context.Context, from, to time.Time) ([]core.ScoreEvent, error)
	AllScores(ctx context.Context) ([]core.ScoreEvent, error)
	Standings(ctx context.Context) (map[core.ActorID]core.Standing, error)
}

// ActorDirectory lists actors in a stable order.
type ActorDirectory interface {
	PutActor(ctx context.Context, a core.Actor) error
	ListActors(ctx context.Context) ([]core.Actor, error)
}

// Storage abstracts persistence for quest and leaderboard state.
type Storage interface {
	GoalStore
	ProgressStore
	RecordSource
	EventLog
	ActorDirectory
}
