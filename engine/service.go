package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"questkit/core"
	"questkit/leaderboard"
	"questkit/quest"
)

var (
	ErrNotManual  = errors.New("goal is not manual")
	ErrZeroDelta  = errors.New("delta cannot be zero")
	ErrGoalClosed = errors.New("goal window has ended")
	ErrInvalid    = errors.New("invalid input")
)

// Service wires storage, the event bus and a clock into the quest API.
type Service struct {
	storage Storage
	bus     *EventBus
	clock   func() time.Time
	newID   func() string
	log     *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock overrides the time source used to evaluate goals.
func WithClock(clock func() time.Time) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithIDGenerator overrides how goal and event ids are minted.
func WithIDGenerator(gen func() string) ServiceOption {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func NewService(storage Storage, bus *EventBus, opts ...ServiceOption) *Service {
	if storage == nil || bus == nil {
		panic("NewService requires non-nil storage and bus")
	}
	s := &Service{
		storage: storage,
		bus:     bus,
		clock:   func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.New().String() },
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Subscribe convenience method.
func (s *Service) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	return s.bus.Subscribe(typ, handler)
}

func (s *Service) Publish(ctx context.Context, ev core.Event) {
	s.bus.Publish(ctx, ev)
}

// Now returns the service clock reading.
func (s *Service) Now() time.Time { return s.clock() }

// CreateGoal validates spec, resolves its default window and stores the goal.
func (s *Service) CreateGoal(ctx context.Context, spec core.GoalSpec) (core.Goal, error) {
	if strings.TrimSpace(spec.ID) == "" {
		spec.ID = s.newID()
	}
	now := s.clock()
	g, err := core.NewGoal(spec, now)
	if err != nil {
		return core.Goal{}, err
	}
	if err := s.storage.SaveGoal(ctx, g); err != nil {
		return core.Goal{}, fmt.Errorf("save goal: %w", err)
	}
	s.bus.Publish(ctx, core.NewGoalCreated(now, g))
	return g, nil
}

// GetGoal loads a goal and, for manual goals, its current counter value.
func (s *Service) GetGoal(ctx context.Context, id string) (core.Goal, error) {
	g, err := s.storage.GetGoal(ctx, id)
	if err != nil {
		return core.Goal{}, err
	}
	if g.Mode != core.ModeManual {
		return g, nil
	}
	c, err := s.storage.GetProgress(ctx, id)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return core.Goal{}, fmt.Errorf("load progress: %w", err)
	}
	g.ManualProgress = c.Value
	return g, nil
}

// ListGoals returns every stored goal.
func (s *Service) ListGoals(ctx context.Context) ([]core.Goal, error) {
	return s.storage.ListGoals(ctx)
}

// GoalStatus evaluates one goal at the service clock.
func (s *Service) GoalStatus(ctx context.Context, id string) (quest.Status, error) {
	g, err := s.GetGoal(ctx, id)
	if err != nil {
		return quest.Status{}, err
	}
	return s.evaluate(ctx, g, s.clock())
}

// GoalStatuses evaluates every goal at the service clock.
func (s *Service) GoalStatuses(ctx context.Context) ([]quest.Status, error) {
	goals, err := s.storage.ListGoals(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	out := make([]quest.Status, 0, len(goals))
	for _, g := range goals {
		if g.Mode == core.ModeManual {
			if g, err = s.GetGoal(ctx, g.ID); err != nil {
				return nil, err
			}
		}
		st, err := s.evaluate(ctx, g, now)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *Service) evaluate(ctx context.Context, g core.Goal, now time.Time) (quest.Status, error) {
	var records []core.Record
	if g.Mode == core.ModeAutomatic {
		from, to := quest.Bounds(g)
		var err error
		records, err = s.storage.RecordsBetween(ctx, from, to)
		if err != nil {
			return quest.Status{}, fmt.Errorf("load records: %w", err)
		}
	}
	return quest.Evaluate(g, records, now), nil
}

// AdjustManualProgress increments or decrements a manual goal's counter.
// Goals whose window has ended are immutable.
func (s *Service) AdjustManualProgress(ctx context.Context, id string, delta int64) (quest.Status, error) {
	if delta == 0 {
		return quest.Status{}, ErrZeroDelta
	}
	g, err := s.GetGoal(ctx, id)
	if err != nil {
		return quest.Status{}, err
	}
	if g.Mode != core.ModeManual {
		return quest.Status{}, ErrNotManual
	}
	now := s.clock()
	before := quest.Evaluate(g, nil, now)
	if before.Temporal.Expired {
		return quest.Status{}, ErrGoalClosed
	}
	c, err := s.storage.AdjustProgress(ctx, id, delta)
	if err != nil {
		return quest.Status{}, err
	}
	g.ManualProgress = c.Value
	after := quest.Evaluate(g, nil, now)
	s.bus.Publish(ctx, core.NewManualProgressChanged(now, c, delta))
	if !before.Progress.Completed && after.Progress.Completed {
		s.bus.Publish(ctx, core.NewGoalCompleted(now, g.ID, after.Progress.Count))
	}
	return after, nil
}

// ReviveGoal clones a failed goal into a new goal with a fresh window.
func (s *Service) ReviveGoal(ctx context.Context, id string) (core.Goal, error) {
	st, err := s.GoalStatus(ctx, id)
	if err != nil {
		return core.Goal{}, err
	}
	now := s.clock()
	revived, err := quest.Revive(st, s.newID(), now)
	if err != nil {
		return core.Goal{}, err
	}
	if err := s.storage.SaveGoal(ctx, revived); err != nil {
		return core.Goal{}, fmt.Errorf("save revived goal: %w", err)
	}
	s.bus.Publish(ctx, core.NewGoalRevived(now, revived))
	return revived, nil
}

// PutRecord stores a work record and announces automatic goals it completes.
func (s *Service) PutRecord(ctx context.Context, r core.Record) error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: record id is required", ErrInvalid)
	}
	now := s.clock()
	affected := s.affectedGoals(ctx, r, now)
	if err := s.storage.PutRecord(ctx, r); err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	for _, before := range affected {
		after, err := s.evaluate(ctx, before.Goal, now)
		if err != nil {
			s.log.Warn("re-evaluating goal after record update failed", "goal_id", before.Goal.ID, "error", err)
			continue
		}
		if !before.Progress.Completed && after.Progress.Completed {
			s.bus.Publish(ctx, core.NewGoalCompleted(now, after.Goal.ID, after.Progress.Count))
		}
	}
	return nil
}

// affectedGoals evaluates live automatic goals whose window covers r. Failures
// only cost the completion announcement, so they are logged and skipped.
func (s *Service) affectedGoals(ctx context.Context, r core.Record, now time.Time) []quest.Status {
	if r.RelevantDate == nil {
		return nil
	}
	goals, err := s.storage.ListGoals(ctx)
	if err != nil {
		s.log.Warn("listing goals for record update failed", "record_id", r.ID, "error", err)
		return nil
	}
	var out []quest.Status
	for _, g := range goals {
		if g.Mode != core.ModeAutomatic {
			continue
		}
		from, to := quest.Bounds(g)
		if r.RelevantDate.Before(from) || r.RelevantDate.After(to) {
			continue
		}
		st, err := s.evaluate(ctx, g, now)
		if err != nil {
			s.log.Warn("evaluating goal for record update failed", "goal_id", g.ID, "error", err)
			continue
		}
		if !st.Temporal.Expired {
			out = append(out, st)
		}
	}
	return out
}

// PutActor adds or updates a directory entry.
func (s *Service) PutActor(ctx context.Context, a core.Actor) error {
	id, err := core.NormalizeActorID(a.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	a.ID = id
	return s.storage.PutActor(ctx, a)
}

// RecordScore appends a score event. Events for actors outside the directory
// are kept in the log but never ranked.
func (s *Service) RecordScore(ctx context.Context, ev core.ScoreEvent) (core.Standing, error) {
	actor, err := core.NormalizeActorID(ev.Actor)
	if err != nil {
		return core.Standing{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if strings.TrimSpace(string(ev.Category)) == "" {
		return core.Standing{}, fmt.Errorf("%w: category is required", ErrInvalid)
	}
	ev.Actor = actor
	if ev.ID == "" {
		ev.ID = s.newID()
	}
	if ev.Time.IsZero() {
		ev.Time = s.clock()
	}
	standing, err := s.storage.AppendScore(ctx, ev)
	if err != nil {
		return core.Standing{}, fmt.Errorf("append score: %w", err)
	}
	s.bus.Publish(ctx, core.NewScoreRecorded(ev, standing))
	return standing, nil
}

// Leaderboard replays the event log inside w against the active directory.
func (s *Service) Leaderboard(ctx context.Context, w leaderboard.Window) ([]core.RankEntry, error) {
	actors, err := s.activeActors(ctx)
	if err != nil {
		return nil, err
	}
	var events []core.ScoreEvent
	if w.AllTime {
		events, err = s.storage.AllScores(ctx)
	} else {
		events, err = s.storage.ScoresBetween(ctx, w.From, w.To)
	}
	if err != nil {
		return nil, fmt.Errorf("load scores: %w", err)
	}
	return leaderboard.Aggregate(events, actors, w), nil
}

// AllTimeLeaderboard ranks from stored cumulative standings, so it stays
// stable when old events are pruned from the log.
func (s *Service) AllTimeLeaderboard(ctx context.Context) ([]core.RankEntry, error) {
	actors, err := s.activeActors(ctx)
	if err != nil {
		return nil, err
	}
	standings, err := s.storage.Standings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load standings: %w", err)
	}
	return leaderboard.AggregateAllTime(standings, actors), nil
}

func (s *Service) activeActors(ctx context.Context) ([]core.Actor, error) {
	all, err := s.storage.ListActors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list actors: %w", err)
	}
	out := all[:0:0]
	for _, a := range all {
		if a.Active {
			out = append(out, a)
		}
	}
	return out, nil
}

// Ping verifies the storage answers.
func (s *Service) Ping(ctx context.Context) error {
	_, err := s.storage.ListActors(ctx)
	return err
}

func (s *Service) Close() { s.bus.Close() }
