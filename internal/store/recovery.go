package store

import (
	"fmt"

	"github.com/agentmesh/conductor/pkg/models"
)

// recoveryProgressThreshold is the progress percentage below which an
// interrupted task restarts from scratch instead of being inspected
// for salvageable work.
const recoveryProgressThreshold = 10

// RecoveryReport summarizes what startup recovery did.
type RecoveryReport struct {
	// Requeued lists tasks reset to queued for a fresh attempt.
	Requeued []string
	// Failed lists tasks marked failed because retries were exhausted.
	Failed []string
}

// RecoveryManager resets tasks left in_progress by an interrupted run.
type RecoveryManager struct {
	db *DB
}

// NewRecoveryManager creates a RecoveryManager backed by the given
// database.
func NewRecoveryManager(db *DB) *RecoveryManager {
	return &RecoveryManager{db: db}
}

// Recover scans every in_progress task and applies the restart policy:
// exhausted retries fail the task; anything else requeues it. Work is
// assumed lost unless a deliverable proves otherwise, so requeue is
// the conservative default. The pause detour is used to reach queued
// because the transition graph has no direct in_progress -> queued
// edge.
func (rm *RecoveryManager) Recover() (*RecoveryReport, error) {
	interrupted, err := rm.db.ListTasksByStatus(models.TaskInProgress)
	if err != nil {
		return nil, fmt.Errorf("list interrupted tasks: %w", err)
	}

	report := &RecoveryReport{}
	for _, t := range interrupted {
		if t.RetryCount >= t.MaxRetries {
			if err := rm.db.TransitionTask(t.ID, models.TaskFailed, "",
				"retries exhausted during interrupted run"); err != nil {
				return nil, fmt.Errorf("fail task %s: %w", t.ID, err)
			}
			report.Failed = append(report.Failed, t.ID)
			continue
		}

		if err := rm.requeue(t); err != nil {
			return nil, err
		}
		report.Requeued = append(report.Requeued, t.ID)
	}
	return report, nil
}

func (rm *RecoveryManager) requeue(t models.Task) error {
	detail := "requeued after interruption"
	if t.ProgressPercent < recoveryProgressThreshold {
		detail = "requeued after interruption, progress discarded"
	}
	if err := rm.db.TransitionTask(t.ID, models.TaskPaused, "", "interrupted"); err != nil {
		return fmt.Errorf("pause task %s: %w", t.ID, err)
	}
	if err := rm.db.TransitionTask(t.ID, models.TaskQueued, "", detail); err != nil {
		return fmt.Errorf("requeue task %s: %w", t.ID, err)
	}
	if err := rm.db.AssignTask(t.ID, "", ""); err != nil {
		return fmt.Errorf("clear assignment for task %s: %w", t.ID, err)
	}
	if t.ProgressPercent < recoveryProgressThreshold {
		if err := rm.db.UpdateTaskProgress(t.ID, 0); err != nil {
			return fmt.Errorf("reset progress for task %s: %w", t.ID, err)
		}
	}
	if _, err := rm.db.IncrementTaskRetry(t.ID); err != nil {
		return fmt.Errorf("count recovery attempt for task %s: %w", t.ID, err)
	}
	return rm.db.AppendEvent(Event{
		ProjectID:     t.ProjectID,
		TaskID:        t.ID,
		CorrelationID: t.ID,
		Kind:          EventTaskRecovered,
		Detail:        detail,
	})
}
