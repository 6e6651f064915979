package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Event is one row of the append-only project event log. Every state
// mutation appends an event in the same transaction, so the log is a
// complete, correlated audit trail.
type Event struct {
	ID            int64     `json:"id"`
	ProjectID     string    `json:"project_id"`
	TaskID        string    `json:"task_id,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Kind          string    `json:"kind"`
	Detail        string    `json:"detail,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Event kinds appended by the store.
const (
	EventProjectCreated  = "project_created"
	EventProjectUpdated  = "project_updated"
	EventTaskCreated     = "task_created"
	EventTaskTransition  = "task_transition"
	EventTaskAssigned    = "task_assigned"
	EventTaskProgress    = "task_progress"
	EventTaskRecovered   = "task_recovered"
	EventDeliverableSaved = "deliverable_saved"
	EventGateDecided     = "gate_decided"
	EventRiskRaised      = "risk_raised"
	EventIssueRaised     = "issue_raised"
	EventBlockerRaised   = "blocker_raised"
)

// appendEventTx writes an event inside an open transaction. The store
// never writes events outside the transaction of the mutation they
// describe.
func appendEventTx(tx *sql.Tx, e Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := tx.Exec(`
		INSERT INTO events (project_id, task_id, correlation_id, kind, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ProjectID, e.TaskID, e.CorrelationID, e.Kind, e.Detail, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("append event %s: %w", e.Kind, err)
	}
	return nil
}

// AppendEvent writes a standalone event outside any other mutation,
// for occurrences that are not themselves row changes.
func (db *DB) AppendEvent(e Event) error {
	return db.Transaction(func(tx *sql.Tx) error {
		return appendEventTx(tx, e)
	})
}

// ListEvents returns a project's events in append order.
func (db *DB) ListEvents(projectID string) ([]Event, error) {
	rows, err := db.Query(`
		SELECT id, project_id, task_id, correlation_id, kind, detail, created_at
		FROM events WHERE project_id = ? ORDER BY id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var taskID, correlationID, detail sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.ProjectID, &taskID, &correlationID, &e.Kind, &detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.TaskID = taskID.String
		e.CorrelationID = correlationID.String
		e.Detail = detail.String
		e.CreatedAt, _ = parseTime(createdAt)
		events = append(events, e)
	}
	return events, rows.Err()
}

// ListEventsByCorrelation returns every event sharing a correlation
// ID, across projects, in append order.
func (db *DB) ListEventsByCorrelation(correlationID string) ([]Event, error) {
	rows, err := db.Query(`
		SELECT id, project_id, task_id, correlation_id, kind, detail, created_at
		FROM events WHERE correlation_id = ? ORDER BY id
	`, correlationID)
	if err != nil {
		return nil, fmt.Errorf("list events by correlation: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var taskID, correlation, detail sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.ProjectID, &taskID, &correlation, &e.Kind, &detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.TaskID = taskID.String
		e.CorrelationID = correlation.String
		e.Detail = detail.String
		e.CreatedAt, _ = parseTime(createdAt)
		events = append(events, e)
	}
	return events, rows.Err()
}
