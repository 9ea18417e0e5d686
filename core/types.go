package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ActorID uniquely identifies a team member in the quest domain.
type ActorID string

// Badge represents a named badge identifier.
type Badge string

const (
	BadgeTopTier  Badge = "top-tier"
	BadgeFlawless Badge = "flawless"
	BadgeAtRisk   Badge = "at-risk"
	BadgeIdle     Badge = "idle"
)

// Mode selects how a goal accumulates progress.
type Mode string

const (
	ModeAutomatic Mode = "automatic"
	ModeManual    Mode = "manual"
)

// DefaultWindowDays is the number of days added to WindowStart when no end is given.
const DefaultWindowDays = 6

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidGoal      = errors.New("invalid goal")
	ErrNegativeProgress = errors.New("manual progress cannot go below zero")
)

// Goal is one trackable, time-boxed objective (a quest).
type Goal struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Mode           Mode      `json:"mode"`
	WindowStart    time.Time `json:"window_start"`
	WindowEnd      time.Time `json:"window_end"`
	TargetCount    int64     `json:"target_count"`
	ManualProgress int64     `json:"manual_progress"`
	Rule           Rule      `json:"rule,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	RevivedFrom    string    `json:"revived_from,omitempty"`
}

// GoalSpec is the unvalidated input used to build a Goal.
type GoalSpec struct {
	ID          string    `json:"id,omitempty"`
	Title       string    `json:"title"`
	Mode        Mode      `json:"mode"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end,omitempty"`
	TargetCount int64     `json:"target_count"`
	Rule        Rule      `json:"rule,omitempty"`
}

// NewGoal validates spec and resolves the default window end once.
func NewGoal(spec GoalSpec, createdAt time.Time) (Goal, error) {
	var errs []string
	if strings.TrimSpace(spec.Title) == "" {
		errs = append(errs, "title cannot be empty")
	}
	switch spec.Mode {
	case ModeAutomatic, ModeManual:
	case "":
		spec.Mode = ModeAutomatic
	default:
		errs = append(errs, fmt.Sprintf("unknown mode %q", spec.Mode))
	}
	if spec.TargetCount <= 0 {
		errs = append(errs, "target_count must be > 0")
	}
	if spec.WindowStart.IsZero() {
		errs = append(errs, "window_start is required")
	}
	end := spec.WindowEnd
	if end.IsZero() {
		end = spec.WindowStart.AddDate(0, 0, DefaultWindowDays)
	}
	if end.Before(spec.WindowStart) {
		errs = append(errs, "window_end must not be before window_start")
	}
	if err := spec.Rule.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return Goal{}, fmt.Errorf("%w: %s", ErrInvalidGoal, strings.Join(errs, "; "))
	}
	return Goal{
		ID:          spec.ID,
		Title:       strings.TrimSpace(spec.Title),
		Mode:        spec.Mode,
		WindowStart: spec.WindowStart,
		WindowEnd:   end,
		TargetCount: spec.TargetCount,
		Rule:        spec.Rule.Clone(),
		CreatedAt:   createdAt,
	}, nil
}

// Clone returns a deep copy of the goal.
func (g Goal) Clone() Goal {
	cp := g
	cp.Rule = g.Rule.Clone()
	return cp
}

// Record is a dated, tagged unit of work owned by the external task tracker.
type Record struct {
	ID           string     `json:"id"`
	RelevantDate *time.Time `json:"relevant_date,omitempty"`
	Status       string     `json:"status"`
	Group        string     `json:"group,omitempty"`
	Platforms    []string   `json:"platforms,omitempty"`
	Format       string     `json:"format,omitempty"`
}

// Category tags a score event.
type Category string

const (
	CategoryCompletion Category = "completion"
	CategoryPenalty    Category = "penalty"
)

// ScoreEvent is an immutable, actor-attributed scoring record.
type ScoreEvent struct {
	ID        string    `json:"id"`
	Actor     ActorID   `json:"actor"`
	Time      time.Time `json:"time"`
	Magnitude int64     `json:"magnitude"`
	Category  Category  `json:"category"`
}

// Actor is an entry of the actor directory.
type Actor struct {
	ID          ActorID `json:"id"`
	DisplayName string  `json:"display_name"`
	Active      bool    `json:"active"`
}

// Standing is an actor's cumulative all-time score kept alongside the event log.
type Standing struct {
	Actor         ActorID `json:"actor"`
	Score         int64   `json:"score"`
	PositiveCount int64   `json:"positive_count"`
	NegativeCount int64   `json:"negative_count"`
}

// Apply folds a score event into the standing using the leaderboard scoring rules.
func (s Standing) Apply(ev ScoreEvent) (Standing, error) {
	if ev.Magnitude > 0 {
		next, err := AddSafe(s.Score, ev.Magnitude)
		if err != nil {
			return s, err
		}
		s.Score = next
		if ev.Category == CategoryCompletion {
			s.PositiveCount++
		}
	}
	if ev.Category == CategoryPenalty {
		s.NegativeCount++
	}
	return s, nil
}

// Counter is the versioned manual progress of a goal.
type Counter struct {
	GoalID  string `json:"goal_id"`
	Value   int64  `json:"value"`
	Version int64  `json:"version"`
}

// RankEntry is one actor's computed position on a leaderboard.
type RankEntry struct {
	Actor         ActorID `json:"actor"`
	DisplayName   string  `json:"display_name,omitempty"`
	Rank          int     `json:"rank"`
	Score         int64   `json:"score"`
	PositiveCount int64   `json:"positive_count"`
	NegativeCount int64   `json:"negative_count"`
	Badges        []Badge `json:"badges"`
}

// AddSafe adds delta to base ensuring no signed overflow occurs.
func AddSafe(base int64, delta int64) (int64, error) {
	if (delta > 0 && base > math.MaxInt64-delta) || (delta < 0 && base < math.MinInt64-delta) {
		return 0, errors.New("integer overflow in AddSafe")
	}
	return base + delta, nil
}

// NormalizeActorID trims and lowercases actor identifiers.
func NormalizeActorID(id ActorID) (ActorID, error) {
	s := strings.TrimSpace(string(id))
	if s == "" {
		return "", errors.New("empty actor id")
	}
	return ActorID(strings.ToLower(s)), nil
}
