package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/agentmesh/conductor/internal/orchestrator"
)

func event(t orchestrator.EventType, taskID, message string) WatchEventMsg {
	return WatchEventMsg{Event: orchestrator.Event{
		Type:    t,
		TaskID:  taskID,
		Phase:   "initiation",
		Message: message,
		Time:    time.Now(),
	}}
}

func TestWatchTracksTaskStates(t *testing.T) {
	app := NewWatchApp("demo")

	app.Update(event(orchestrator.EventPhaseStarted, "", ""))
	app.Update(event(orchestrator.EventTaskPlanned, "t1", "assess feasibility (project_management)"))
	app.Update(event(orchestrator.EventTaskDispatched, "t1", ""))

	if len(app.tasks) != 1 || app.tasks[0].state != "dispatched" {
		t.Fatalf("tasks = %+v", app.tasks)
	}

	app.Update(event(orchestrator.EventTaskSucceeded, "t1", ""))
	if app.tasks[0].state != "succeeded" {
		t.Errorf("state = %q, want succeeded", app.tasks[0].state)
	}

	view := app.View()
	if !strings.Contains(view, "assess feasibility") {
		t.Errorf("view missing task description:\n%s", view)
	}
	if !strings.Contains(view, "initiation") {
		t.Errorf("view missing phase:\n%s", view)
	}
}

func TestWatchPhaseResetClearsTasks(t *testing.T) {
	app := NewWatchApp("demo")
	app.Update(event(orchestrator.EventPhaseStarted, "", ""))
	app.Update(event(orchestrator.EventTaskPlanned, "t1", "task one"))
	app.Update(event(orchestrator.EventPhaseStarted, "", ""))

	if len(app.tasks) != 0 {
		t.Errorf("tasks survived phase change: %+v", app.tasks)
	}
}

func TestWatchDoneRendersOutcome(t *testing.T) {
	app := NewWatchApp("demo")
	app.Update(WatchDoneMsg{Outcome: "completed"})

	if !app.done {
		t.Fatal("app not marked done")
	}
	if !strings.Contains(app.View(), "completed") {
		t.Errorf("view missing outcome:\n%s", app.View())
	}

	halted := NewWatchApp("demo")
	halted.Update(WatchDoneMsg{Outcome: "NO_GO"})
	if !strings.Contains(halted.View(), "NO_GO") {
		t.Errorf("view missing halt outcome:\n%s", halted.View())
	}
}

func TestWatchLogRing(t *testing.T) {
	app := NewWatchApp("demo")
	for i := 0; i < 250; i++ {
		app.Update(event(orchestrator.EventTaskRetrying, "t1", "retrying"))
	}
	if len(app.logLines) != 200 {
		t.Errorf("log lines = %d, want capped at 200", len(app.logLines))
	}
}
