package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"questkit/core"
)

func TestHubSubscribeBroadcastUnsubscribe(t *testing.T) {
	h := NewHub()
	id, ch := h.Subscribe(1)

	ev := core.NewGoalCompleted(time.Now(), "g1", 3)
	h.Broadcast(context.Background(), ev)

	received := <-ch
	if received.GoalID != "g1" || received.Type != core.EventGoalCompleted {
		t.Fatalf("unexpected event: %+v", received)
	}

	h.Unsubscribe(id)
	_, ok := <-ch
	if ok {
		t.Fatal("expected channel closed after unsubscribe")
	}
	if h.Subscribers() != 0 {
		t.Fatalf("expected no subscribers, got %d", h.Subscribers())
	}
}

func TestHubTypeFilterAndDrops(t *testing.T) {
	h := NewHub()
	_, ch := h.Subscribe(1, core.EventScoreRecorded)

	h.Broadcast(context.Background(), core.NewGoalCompleted(time.Now(), "g1", 1))
	h.Broadcast(context.Background(), core.NewScoreRecorded(core.ScoreEvent{Actor: "a", Magnitude: 5}, core.Standing{Score: 5}))
	h.Broadcast(context.Background(), core.NewScoreRecorded(core.ScoreEvent{Actor: "b", Magnitude: 5}, core.Standing{Score: 5}))

	got := <-ch
	if got.Type != core.EventScoreRecorded || got.Actor != "a" {
		t.Fatalf("unexpected event: %+v", got)
	}
	if h.Dropped() != 1 {
		t.Fatalf("expected 1 dropped delivery, got %d", h.Dropped())
	}
}

func TestMarshalJSON(t *testing.T) {
	ev := core.NewManualProgressChanged(time.Now(), core.Counter{GoalID: "g2", Value: 4, Version: 2}, 1)
	b := MarshalJSON(ev)
	var out core.Event
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.GoalID != "g2" || out.Total != 4 || out.Delta != 1 {
		t.Fatalf("unexpected event: %+v", out)
	}
}
