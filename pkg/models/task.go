package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskQueued indicates the task is waiting to be dispatched.
	TaskQueued TaskStatus = "queued"
	// TaskInProgress indicates an agent is working on the task.
	TaskInProgress TaskStatus = "in_progress"
	// TaskCompleted indicates the task finished successfully.
	TaskCompleted TaskStatus = "completed"
	// TaskFailed indicates the task failed terminally.
	TaskFailed TaskStatus = "failed"
	// TaskPaused indicates the task was suspended mid-flight. It must pass
	// back through queued before it can run again.
	TaskPaused TaskStatus = "paused"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskQueued, TaskInProgress, TaskCompleted, TaskFailed, TaskPaused:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transitions are allowed from the status.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// CanTransition reports whether a task may move from s to the target status.
// The transition graph is queued -> in_progress -> {completed, failed},
// with paused reachable from in_progress and returning only to queued.
func (s TaskStatus) CanTransition(to TaskStatus) bool {
	switch s {
	case TaskQueued:
		return to == TaskInProgress
	case TaskInProgress:
		return to == TaskCompleted || to == TaskFailed || to == TaskPaused
	case TaskPaused:
		return to == TaskQueued
	default:
		return false
	}
}

// Task represents a unit of delegated work.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// ProjectID is the project this task belongs to.
	ProjectID string `json:"project_id"`
	// ParentID is the ID of the parent task, if this is a subtask.
	ParentID string `json:"parent_id,omitempty"`
	// Capability is the logical agent type required to execute the task.
	Capability string `json:"capability"`
	// Description explains what the task should accomplish.
	Description string `json:"description"`
	// Priority controls dispatch ordering for the task's messages.
	Priority Priority `json:"priority"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// ProgressPercent is 0-100 and never decreases while in progress.
	ProgressPercent int `json:"progress_percent"`
	// RetryCount is the number of times this task has been re-dispatched.
	RetryCount int `json:"retry_count"`
	// MaxRetries bounds RetryCount before the task escalates.
	MaxRetries int `json:"max_retries"`
	// AssignedAgentID is set only while the task is in progress.
	AssignedAgentID string `json:"assigned_agent_id,omitempty"`
	// DependsOn lists task IDs that must complete before this task runs.
	DependsOn []string `json:"depends_on,omitempty"`
	// Deadline is the latest time by which the task must finish.
	Deadline *time.Time `json:"deadline,omitempty"`
	// Metadata carries free-form task inputs.
	Metadata map[string]string `json:"metadata,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when the task reached a terminal status, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// Error holds the last failure message for a failed task.
	Error string `json:"error,omitempty"`
}
