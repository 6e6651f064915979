// Package orchestrator drives projects through their lifecycle: it
// plans phase tasks, dispatches them to specialists over the message
// bus, collects results, and runs the phase exit gates.
package orchestrator

import (
	"log"
	"sync/atomic"
	"time"
)

// EventType labels an orchestrator event.
type EventType string

const (
	EventProjectStarted EventType = "project_started"
	EventPhaseStarted   EventType = "phase_started"
	EventTaskPlanned    EventType = "task_planned"
	EventTaskDispatched EventType = "task_dispatched"
	EventTaskSucceeded  EventType = "task_succeeded"
	EventTaskRetrying   EventType = "task_retrying"
	EventTaskEscalated  EventType = "task_escalated"
	EventGateEvaluated  EventType = "gate_evaluated"
	EventProjectDone    EventType = "project_done"
	EventProjectHalted  EventType = "project_halted"
)

// Event is a progress notification subscribers (the watch dashboard,
// logs) consume.
type Event struct {
	Type      EventType
	ProjectID string
	TaskID    string
	Phase     string
	Message   string
	Time      time.Time
}

// EventEmitter provides a thread-safe, bounded channel of events.
// Slow consumers lose events rather than stalling orchestration.
type EventEmitter struct {
	events       chan Event
	droppedCount atomic.Uint64
}

// NewEventEmitter creates an EventEmitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	return &EventEmitter{events: make(chan Event, bufferSize)}
}

// Emit sends an event. If the channel is full it retries briefly, then
// drops the event and counts the drop.
func (e *EventEmitter) Emit(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	select {
	case e.events <- event:
		return
	default:
	}

	select {
	case e.events <- event:
		return
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 {
			log.Printf("[orchestrator] WARNING: event channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
		}
	}
}

// DroppedCount returns the total number of dropped events.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns the read-only event channel for subscribers.
func (e *EventEmitter) Events() <-chan Event {
	return e.events
}

// Close closes the event channel. Call once orchestration has stopped.
func (e *EventEmitter) Close() {
	close(e.events)
}
