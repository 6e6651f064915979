package models

import "testing"

func TestTaskStatusValid(t *testing.T) {
	valid := []TaskStatus{TaskQueued, TaskInProgress, TaskCompleted, TaskFailed, TaskPaused}
	for _, s := range valid {
		if !s.Valid() {
			t.Errorf("expected %q to be valid", s)
		}
	}

	if TaskStatus("pending").Valid() {
		t.Error("expected 'pending' to be invalid")
	}
	if TaskStatus("").Valid() {
		t.Error("expected empty status to be invalid")
	}
}

func TestTaskStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to TaskStatus
		allowed  bool
	}{
		{TaskQueued, TaskInProgress, true},
		{TaskQueued, TaskCompleted, false},
		{TaskQueued, TaskFailed, false},
		{TaskQueued, TaskPaused, false},
		{TaskInProgress, TaskCompleted, true},
		{TaskInProgress, TaskFailed, true},
		{TaskInProgress, TaskPaused, true},
		{TaskInProgress, TaskQueued, false},
		{TaskPaused, TaskQueued, true},
		{TaskPaused, TaskInProgress, false},
		{TaskPaused, TaskCompleted, false},
		{TaskCompleted, TaskQueued, false},
		{TaskCompleted, TaskInProgress, false},
		{TaskFailed, TaskQueued, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.allowed {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
		}
	}
}

func TestTaskStatusTerminal(t *testing.T) {
	if !TaskCompleted.Terminal() || !TaskFailed.Terminal() {
		t.Error("expected completed and failed to be terminal")
	}
	if TaskQueued.Terminal() || TaskInProgress.Terminal() || TaskPaused.Terminal() {
		t.Error("expected queued, in_progress, paused to be non-terminal")
	}
}
