package orchestrator

import (
	"testing"
	"time"
)

func TestEmitterDeliversAndStamps(t *testing.T) {
	e := NewEventEmitter(4)
	e.Emit(Event{Type: EventTaskPlanned, TaskID: "t1"})

	select {
	case got := <-e.Events():
		if got.Type != EventTaskPlanned || got.TaskID != "t1" {
			t.Errorf("event = %+v", got)
		}
		if got.Time.IsZero() {
			t.Error("event not timestamped")
		}
	default:
		t.Fatal("no event buffered")
	}
}

func TestEmitterDropsWhenFull(t *testing.T) {
	e := NewEventEmitter(1)
	e.Emit(Event{Type: EventTaskPlanned})

	start := time.Now()
	e.Emit(Event{Type: EventTaskDispatched})
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("second emit returned after %v, expected the retry window to elapse", elapsed)
	}
	if e.DroppedCount() != 1 {
		t.Errorf("dropped = %d, want 1", e.DroppedCount())
	}

	// The buffered event is still intact.
	got := <-e.Events()
	if got.Type != EventTaskPlanned {
		t.Errorf("buffered event = %s", got.Type)
	}
}

func TestTierAbove(t *testing.T) {
	hops := []struct {
		from Tier
		want Tier
	}{
		{TierSpecialist, TierSupervisor},
		{TierSupervisor, TierPlanner},
		{TierPlanner, TierCoordinator},
	}
	for _, hop := range hops {
		got, ok := hop.from.Above()
		if !ok || got != hop.want {
			t.Errorf("Above(%s) = %s, %v; want %s", hop.from, got, ok, hop.want)
		}
	}
	if _, ok := TierCoordinator.Above(); ok {
		t.Error("coordinator must be the top of the chain")
	}
}
