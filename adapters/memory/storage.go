package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"questkit/core"
)

// Store is a concurrent in-memory Storage implementation.
type Store struct {
	mu        sync.RWMutex
	goals     map[string]core.Goal
	goalOrder []string
	counters  map[string]core.Counter
	records   map[string]core.Record
	events    []core.ScoreEvent
	standings map[core.ActorID]core.Standing
	actors    map[core.ActorID]core.Actor
	order     []core.ActorID
}

func New() *Store {
	return &Store{
		goals:     map[string]core.Goal{},
		counters:  map[string]core.Counter{},
		records:   map[string]core.Record{},
		standings: map[core.ActorID]core.Standing{},
		actors:    map[core.ActorID]core.Actor{},
	}
}

func (s *Store) SaveGoal(_ context.Context, g core.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.goals[g.ID]; !ok {
		s.goalOrder = append(s.goalOrder, g.ID)
	}
	s.goals[g.ID] = g.Clone()
	return nil
}

func (s *Store) GetGoal(_ context.Context, id string) (core.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.goals[id]
	if !ok {
		return core.Goal{}, core.ErrNotFound
	}
	return g.Clone(), nil
}

func (s *Store) ListGoals(_ context.Context) ([]core.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Goal, 0, len(s.goalOrder))
	for _, id := range s.goalOrder {
		out = append(out, s.goals[id].Clone())
	}
	return out, nil
}

func (s *Store) AdjustProgress(_ context.Context, goalID string, delta int64) (core.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[goalID]
	if !ok {
		c = core.Counter{GoalID: goalID}
	}
	next, err := core.AddSafe(c.Value, delta)
	if err != nil {
		return core.Counter{}, err
	}
	if next < 0 {
		return core.Counter{}, core.ErrNegativeProgress
	}
	c.Value = next
	c.Version++
	s.counters[goalID] = c
	return c, nil
}

func (s *Store) GetProgress(_ context.Context, goalID string) (core.Counter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.counters[goalID]
	if !ok {
		return core.Counter{GoalID: goalID}, core.ErrNotFound
	}
	return c, nil
}

func (s *Store) PutRecord(_ context.Context, r core.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.Platforms = append([]string(nil), r.Platforms...)
	s.records[r.ID] = r
	return nil
}

func (s *Store) RecordsBetween(_ context.Context, from, to time.Time) ([]core.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Record
	for _, r := range s.records {
		if r.RelevantDate == nil || r.RelevantDate.Before(from) || r.RelevantDate.After(to) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) AppendScore(_ context.Context, ev core.ScoreEvent) (core.Standing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.standings[ev.Actor]
	st.Actor = ev.Actor
	next, err := st.Apply(ev)
	if err != nil {
		return core.Standing{}, err
	}
	s.events = append(s.events, ev)
	s.standings[ev.Actor] = next
	return next, nil
}

func (s *Store) ScoresBetween(_ context.Context, from, to time.Time) ([]core.ScoreEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.ScoreEvent
	for _, ev := range s.events {
		if ev.Time.Before(from) || ev.Time.After(to) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *Store) AllScores(_ context.Context) ([]core.ScoreEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.ScoreEvent(nil), s.events...), nil
}

func (s *Store) Standings(_ context.Context) (map[core.ActorID]core.Standing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[core.ActorID]core.Standing, len(s.standings))
	for k, v := range s.standings {
		out[k] = v
	}
	return out, nil
}

func (s *Store) PutActor(_ context.Context, a core.Actor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.actors[a.ID]; !ok {
		s.order = append(s.order, a.ID)
	}
	s.actors[a.ID] = a
	return nil
}

func (s *Store) ListActors(_ context.Context) ([]core.Actor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Actor, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.actors[id])
	}
	return out, nil
}

// Snapshot is the full contents of a Store in a serializable form.
type Snapshot struct {
	Goals     []core.Goal       `json:"goals"`
	Counters  []core.Counter    `json:"counters"`
	Records   []core.Record     `json:"records"`
	Events    []core.ScoreEvent `json:"events"`
	Standings []core.Standing   `json:"standings"`
	Actors    []core.Actor      `json:"actors"`
}

// Snapshot copies the store contents. Goals and actors keep insertion order.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Goals:     make([]core.Goal, 0, len(s.goalOrder)),
		Counters:  make([]core.Counter, 0, len(s.counters)),
		Records:   make([]core.Record, 0, len(s.records)),
		Events:    append([]core.ScoreEvent{}, s.events...),
		Standings: make([]core.Standing, 0, len(s.standings)),
		Actors:    make([]core.Actor, 0, len(s.order)),
	}
	for _, id := range s.goalOrder {
		snap.Goals = append(snap.Goals, s.goals[id].Clone())
	}
	for _, c := range s.counters {
		snap.Counters = append(snap.Counters, c)
	}
	sort.Slice(snap.Counters, func(i, j int) bool { return snap.Counters[i].GoalID < snap.Counters[j].GoalID })
	for _, r := range s.records {
		snap.Records = append(snap.Records, r)
	}
	sort.Slice(snap.Records, func(i, j int) bool { return snap.Records[i].ID < snap.Records[j].ID })
	for _, st := range s.standings {
		snap.Standings = append(snap.Standings, st)
	}
	sort.Slice(snap.Standings, func(i, j int) bool { return snap.Standings[i].Actor < snap.Standings[j].Actor })
	for _, id := range s.order {
		snap.Actors = append(snap.Actors, s.actors[id])
	}
	return snap
}

// Restore replaces the store contents with snap.
func (s *Store) Restore(snap Snapshot) {
	fresh := New()
	for _, g := range snap.Goals {
		if _, ok := fresh.goals[g.ID]; !ok {
			fresh.goalOrder = append(fresh.goalOrder, g.ID)
		}
		fresh.goals[g.ID] = g.Clone()
	}
	for _, c := range snap.Counters {
		fresh.counters[c.GoalID] = c
	}
	for _, r := range snap.Records {
		fresh.records[r.ID] = r
	}
	fresh.events = append(fresh.events, snap.Events...)
	for _, st := range snap.Standings {
		fresh.standings[st.Actor] = st
	}
	for _, a := range snap.Actors {
		if _, ok := fresh.actors[a.ID]; !ok {
			fresh.order = append(fresh.order, a.ID)
		}
		fresh.actors[a.ID] = a
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.goals, s.goalOrder = fresh.goals, fresh.goalOrder
	s.counters = fresh.counters
	s.records = fresh.records
	s.events = fresh.events
	s.standings = fresh.standings
	s.actors, s.order = fresh.actors, fresh.order
}
