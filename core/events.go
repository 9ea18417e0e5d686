package core

import "time"

// EventType enumerates domain events.
type EventType string

const (
	EventGoalCreated           EventType = "goal_created"
	EventGoalCompleted         EventType = "goal_completed"
	EventGoalRevived           EventType = "goal_revived"
	EventManualProgressChanged EventType = "manual_progress_changed"
	EventScoreRecorded         EventType = "score_recorded"
)

// AllEventTypes lists every event type the engine publishes.
var AllEventTypes = []EventType{
	EventGoalCreated,
	EventGoalCompleted,
	EventGoalRevived,
	EventManualProgressChanged,
	EventScoreRecorded,
}

// Event represents an immutable domain event.
type Event struct {
	Type     EventType      `json:"type"`
	Time     time.Time      `json:"time"`
	Actor    ActorID        `json:"actor,omitempty"`
	GoalID   string         `json:"goal_id,omitempty"`
	Delta    int64          `json:"delta,omitempty"`
	Total    int64          `json:"total,omitempty"`
	Category Category       `json:"category,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func NewGoalCreated(at time.Time, g Goal) Event {
	return Event{Type: EventGoalCreated, Time: at.UTC(), GoalID: g.ID, Metadata: map[string]any{"title": g.Title}}
}

func NewGoalCompleted(at time.Time, goalID string, total int64) Event {
	return Event{Type: EventGoalCompleted, Time: at.UTC(), GoalID: goalID, Total: total}
}

func NewGoalRevived(at time.Time, revived Goal) Event {
	return Event{Type: EventGoalRevived, Time: at.UTC(), GoalID: revived.ID, Metadata: map[string]any{"revived_from": revived.RevivedFrom}}
}

func NewManualProgressChanged(at time.Time, c Counter, delta int64) Event {
	return Event{Type: EventManualProgressChanged, Time: at.UTC(), GoalID: c.GoalID, Delta: delta, Total: c.Value}
}

func NewScoreRecorded(ev ScoreEvent, standing Standing) Event {
	return Event{Type: EventScoreRecorded, Time: ev.Time.UTC(), Actor: ev.Actor, Delta: ev.Magnitude, Total: standing.Score, Category: ev.Category}
}
