package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentmesh/conductor/internal/errs"
	"github.com/agentmesh/conductor/internal/graph"
	"github.com/agentmesh/conductor/pkg/models"
)

// CreateTask inserts a task and its dependency edges. Dependencies
// must reference existing tasks in the same project, and the insert is
// rejected if the new edges would make the project's dependency graph
// cyclic.
func (db *DB) CreateTask(t *models.Task) error {
	if t.ID == "" || t.ProjectID == "" || t.Capability == "" {
		return errs.New(errs.ClassValidation, "INVALID_TASK", "task requires id, project_id, and capability")
	}
	if t.Status == "" {
		t.Status = models.TaskQueued
	}
	if !t.Status.Valid() {
		return errs.Newf(errs.ClassValidation, "INVALID_TASK_STATUS", "unknown task status %q", t.Status)
	}
	if t.Priority == "" {
		t.Priority = models.PriorityNormal
	}
	if t.MaxRetries == 0 {
		t.MaxRetries = 3
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	existing, err := db.ListTasksByProject(t.ProjectID)
	if err != nil {
		return err
	}
	g := graph.New()
	if err := g.Build(existing); err != nil {
		return fmt.Errorf("load dependency graph: %w", err)
	}
	if err := g.AddTask(*t); err != nil {
		return err
	}

	meta, err := marshalMetadata(t.Metadata)
	if err != nil {
		return err
	}
	return db.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO tasks (id, project_id, parent_id, capability, description, priority, status,
				progress_percent, retry_count, max_retries, assigned_agent_id, deadline, metadata, error,
				created_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, t.ID, t.ProjectID, t.ParentID, t.Capability, t.Description, string(t.Priority), string(t.Status),
			t.ProgressPercent, t.RetryCount, t.MaxRetries, t.AssignedAgentID,
			formatNullableTime(t.Deadline), meta, t.Error,
			formatTime(t.CreatedAt), formatNullableTime(t.CompletedAt))
		if err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		for _, dep := range t.DependsOn {
			if _, err := tx.Exec(`
				INSERT INTO task_dependencies (task_id, depends_on_id) VALUES (?, ?)
			`, t.ID, dep); err != nil {
				return fmt.Errorf("create task dependency: %w", err)
			}
		}
		return appendEventTx(tx, Event{
			ProjectID:     t.ProjectID,
			TaskID:        t.ID,
			CorrelationID: t.ID,
			Kind:          EventTaskCreated,
			Detail:        fmt.Sprintf("capability=%s priority=%s", t.Capability, t.Priority),
		})
	})
}

// GetTask retrieves a task by ID, including its dependency list.
func (db *DB) GetTask(id string) (*models.Task, error) {
	row := db.QueryRow(`
		SELECT id, project_id, parent_id, capability, description, priority, status,
			progress_percent, retry_count, max_retries, assigned_agent_id, deadline, metadata, error,
			created_at, completed_at
		FROM tasks WHERE id = ?
	`, id)
	t, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if err := db.loadDependencies(t); err != nil {
		return nil, err
	}
	return t, nil
}

// ListTasksByProject returns a project's tasks in creation order with
// dependencies populated.
func (db *DB) ListTasksByProject(projectID string) ([]models.Task, error) {
	return db.listTasks(`
		SELECT id, project_id, parent_id, capability, description, priority, status,
			progress_percent, retry_count, max_retries, assigned_agent_id, deadline, metadata, error,
			created_at, completed_at
		FROM tasks WHERE project_id = ? ORDER BY created_at, id
	`, projectID)
}

// ListTasksByStatus returns all tasks in the given status across
// projects.
func (db *DB) ListTasksByStatus(status models.TaskStatus) ([]models.Task, error) {
	return db.listTasks(`
		SELECT id, project_id, parent_id, capability, description, priority, status,
			progress_percent, retry_count, max_retries, assigned_agent_id, deadline, metadata, error,
			created_at, completed_at
		FROM tasks WHERE status = ? ORDER BY created_at, id
	`, string(status))
}

// TransitionTask moves a task along the status graph. Transitions the
// graph forbids fail with ErrInvalidTransition and leave the row
// untouched. A transition event is appended in the same transaction.
func (db *DB) TransitionTask(taskID string, to models.TaskStatus, correlationID, detail string) error {
	if !to.Valid() {
		return errs.Newf(errs.ClassValidation, "INVALID_TASK_STATUS", "unknown task status %q", to)
	}
	return db.Transaction(func(tx *sql.Tx) error {
		var projectID string
		var from models.TaskStatus
		row := tx.QueryRow(`SELECT project_id, status FROM tasks WHERE id = ?`, taskID)
		if err := row.Scan(&projectID, &from); err == sql.ErrNoRows {
			return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
		} else if err != nil {
			return fmt.Errorf("read task status: %w", err)
		}
		if !from.CanTransition(to) {
			return fmt.Errorf("task %s: %s -> %s: %w", taskID, from, to, errs.ErrInvalidTransition)
		}

		var completedAt any
		if to.Terminal() {
			completedAt = formatTime(time.Now())
			// Assignment only exists while the task is being worked.
			if _, err := tx.Exec(`
				UPDATE tasks SET assigned_agent_id = '' WHERE id = ?
			`, taskID); err != nil {
				return fmt.Errorf("clear assignment: %w", err)
			}
		}
		if _, err := tx.Exec(`
			UPDATE tasks SET status = ?, error = ?, completed_at = ? WHERE id = ?
		`, string(to), detail, completedAt, taskID); err != nil {
			return fmt.Errorf("transition task: %w", err)
		}
		if correlationID == "" {
			correlationID = taskID
		}
		return appendEventTx(tx, Event{
			ProjectID:     projectID,
			TaskID:        taskID,
			CorrelationID: correlationID,
			Kind:          EventTaskTransition,
			Detail:        fmt.Sprintf("%s -> %s", from, to),
		})
	})
}

// AssignTask sets the agent working a task and records the
// assignment. A non-empty assignment is only legal while the task is
// in_progress; an empty agentID clears the assignment in any status.
func (db *DB) AssignTask(taskID, agentID, correlationID string) error {
	return db.Transaction(func(tx *sql.Tx) error {
		var projectID string
		var status models.TaskStatus
		row := tx.QueryRow(`SELECT project_id, status FROM tasks WHERE id = ?`, taskID)
		if err := row.Scan(&projectID, &status); err == sql.ErrNoRows {
			return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
		} else if err != nil {
			return fmt.Errorf("read task: %w", err)
		}
		if agentID != "" && status != models.TaskInProgress {
			return fmt.Errorf("task %s: assign while %s: %w", taskID, status, errs.ErrInvalidTransition)
		}
		if _, err := tx.Exec(`
			UPDATE tasks SET assigned_agent_id = ? WHERE id = ?
		`, agentID, taskID); err != nil {
			return fmt.Errorf("assign task: %w", err)
		}
		if correlationID == "" {
			correlationID = taskID
		}
		return appendEventTx(tx, Event{
			ProjectID:     projectID,
			TaskID:        taskID,
			CorrelationID: correlationID,
			Kind:          EventTaskAssigned,
			Detail:        "agent=" + agentID,
		})
	})
}

// UpdateTaskProgress records a task's progress percentage, clamped to
// 0-100. While a task is in_progress its progress may only grow;
// resets to zero are reserved for requeued tasks.
func (db *DB) UpdateTaskProgress(taskID string, percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return db.Transaction(func(tx *sql.Tx) error {
		var projectID string
		var status models.TaskStatus
		var current int
		row := tx.QueryRow(`SELECT project_id, status, progress_percent FROM tasks WHERE id = ?`, taskID)
		if err := row.Scan(&projectID, &status, &current); err == sql.ErrNoRows {
			return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
		} else if err != nil {
			return fmt.Errorf("read task: %w", err)
		}
		if status == models.TaskInProgress && percent < current {
			return fmt.Errorf("task %s: progress %d -> %d: %w", taskID, current, percent, errs.ErrInvalidTransition)
		}
		if _, err := tx.Exec(`
			UPDATE tasks SET progress_percent = ? WHERE id = ?
		`, percent, taskID); err != nil {
			return fmt.Errorf("update task progress: %w", err)
		}
		return appendEventTx(tx, Event{
			ProjectID:     projectID,
			TaskID:        taskID,
			CorrelationID: taskID,
			Kind:          EventTaskProgress,
			Detail:        fmt.Sprintf("progress=%d", percent),
		})
	})
}

// IncrementTaskRetry bumps a task's retry count and returns the new
// value.
func (db *DB) IncrementTaskRetry(taskID string) (int, error) {
	var count int
	err := db.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			UPDATE tasks SET retry_count = retry_count + 1 WHERE id = ?
		`, taskID); err != nil {
			return fmt.Errorf("increment retry: %w", err)
		}
		row := tx.QueryRow(`SELECT retry_count FROM tasks WHERE id = ?`, taskID)
		if err := row.Scan(&count); err == sql.ErrNoRows {
			return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
		} else if err != nil {
			return err
		}
		return nil
	})
	return count, err
}

// ReadyTasks returns a project's queued tasks whose dependencies have
// all completed, in deterministic order.
func (db *DB) ReadyTasks(projectID string) ([]models.Task, error) {
	tasks, err := db.ListTasksByProject(projectID)
	if err != nil {
		return nil, err
	}
	g := graph.New()
	if err := g.Build(tasks); err != nil {
		return nil, fmt.Errorf("load dependency graph: %w", err)
	}
	var ready []models.Task
	for _, id := range g.Ready() {
		if t, ok := g.Task(id); ok {
			ready = append(ready, t)
		}
	}
	return ready, nil
}

func (db *DB) listTasks(query string, args ...any) ([]models.Task, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range tasks {
		if err := db.loadDependencies(&tasks[i]); err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

func (db *DB) loadDependencies(t *models.Task) error {
	rows, err := db.Query(`
		SELECT depends_on_id FROM task_dependencies WHERE task_id = ? ORDER BY depends_on_id
	`, t.ID)
	if err != nil {
		return fmt.Errorf("load task dependencies: %w", err)
	}
	defer rows.Close()
	t.DependsOn = nil
	for rows.Next() {
		var dep string
		if err := rows.Scan(&dep); err != nil {
			return fmt.Errorf("scan dependency: %w", err)
		}
		t.DependsOn = append(t.DependsOn, dep)
	}
	return rows.Err()
}

func scanTask(scan func(dest ...any) error) (*models.Task, error) {
	var t models.Task
	var parentID, description, assigned, meta, errMsg sql.NullString
	var deadline, completedAt sql.NullString
	var createdAt string
	err := scan(&t.ID, &t.ProjectID, &parentID, &t.Capability, &description, &t.Priority, &t.Status,
		&t.ProgressPercent, &t.RetryCount, &t.MaxRetries, &assigned, &deadline, &meta, &errMsg,
		&createdAt, &completedAt)
	if err != nil {
		return nil, err
	}
	t.ParentID = parentID.String
	t.Description = description.String
	t.AssignedAgentID = assigned.String
	t.Error = errMsg.String
	t.Deadline = parseNullableTime(deadline)
	t.CompletedAt = parseNullableTime(completedAt)
	t.CreatedAt, _ = parseTime(createdAt)
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &t.Metadata); err != nil {
			return nil, fmt.Errorf("decode task metadata: %w", err)
		}
	}
	return &t, nil
}
