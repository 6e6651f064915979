package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentmesh/conductor/internal/errs"
	"github.com/agentmesh/conductor/pkg/models"
)

// RecordGateDecision persists a gate decision and, on GO, advances the
// project to the decision's target phase. Both writes and the audit
// event commit in one transaction so a decision can never exist
// without its phase effect or vice versa. A GO out of the final phase
// marks the project completed.
func (db *DB) RecordGateDecision(d *models.GateDecision) error {
	if d.ID == "" || d.ProjectID == "" {
		return errs.New(errs.ClassValidation, "INVALID_DECISION", "decision requires id and project_id")
	}
	if !d.Outcome.Valid() {
		return errs.Newf(errs.ClassValidation, "INVALID_OUTCOME", "unknown gate outcome %q", d.Outcome)
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}

	criteria, err := json.Marshal(d.Criteria)
	if err != nil {
		return fmt.Errorf("encode criteria: %w", err)
	}
	blocking, err := json.Marshal(d.BlockingIssues)
	if err != nil {
		return fmt.Errorf("encode blocking issues: %w", err)
	}
	actions, err := json.Marshal(d.RequiredActions)
	if err != nil {
		return fmt.Errorf("encode required actions: %w", err)
	}

	return db.Transaction(func(tx *sql.Tx) error {
		var currentPhase models.Phase
		row := tx.QueryRow(`SELECT current_phase FROM projects WHERE id = ?`, d.ProjectID)
		if err := row.Scan(&currentPhase); err == sql.ErrNoRows {
			return fmt.Errorf("project %s: %w", d.ProjectID, ErrNotFound)
		} else if err != nil {
			return fmt.Errorf("read project phase: %w", err)
		}
		if currentPhase != d.FromPhase {
			return errs.Newf(errs.ClassValidation, "PHASE_MISMATCH",
				"decision evaluates phase %s but project is in %s", d.FromPhase, currentPhase)
		}

		_, err := tx.Exec(`
			INSERT INTO gate_decisions (id, project_id, gate_number, from_phase, to_phase, outcome,
				overall_score, criteria, blocking_issues, required_actions, evaluated_by, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, d.ID, d.ProjectID, d.GateNumber, string(d.FromPhase), string(d.ToPhase), string(d.Outcome),
			d.OverallScore, string(criteria), string(blocking), string(actions), d.EvaluatedBy,
			formatTime(d.CreatedAt))
		if err != nil {
			return fmt.Errorf("record gate decision: %w", err)
		}

		if d.Outcome == models.GateGo {
			next, ok := d.FromPhase.Next()
			if ok {
				if _, err := tx.Exec(`
					UPDATE projects SET current_phase = ?, updated_at = ? WHERE id = ?
				`, string(next), formatTime(time.Now()), d.ProjectID); err != nil {
					return fmt.Errorf("advance project phase: %w", err)
				}
			} else {
				if _, err := tx.Exec(`
					UPDATE projects SET status = ?, updated_at = ? WHERE id = ?
				`, string(models.ProjectCompleted), formatTime(time.Now()), d.ProjectID); err != nil {
					return fmt.Errorf("complete project: %w", err)
				}
			}
		}

		return appendEventTx(tx, Event{
			ProjectID:     d.ProjectID,
			CorrelationID: d.ID,
			Kind:          EventGateDecided,
			Detail: fmt.Sprintf("gate=%d outcome=%s score=%.2f from=%s",
				d.GateNumber, d.Outcome, d.OverallScore, d.FromPhase),
		})
	})
}

// GetGateDecision retrieves a decision by ID.
func (db *DB) GetGateDecision(id string) (*models.GateDecision, error) {
	row := db.QueryRow(`
		SELECT id, project_id, gate_number, from_phase, to_phase, outcome,
			overall_score, criteria, blocking_issues, required_actions, evaluated_by, created_at
		FROM gate_decisions WHERE id = ?
	`, id)
	d, err := scanDecision(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("gate decision %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get gate decision: %w", err)
	}
	return d, nil
}

// ListGateDecisions returns a project's decisions in evaluation order.
func (db *DB) ListGateDecisions(projectID string) ([]models.GateDecision, error) {
	rows, err := db.Query(`
		SELECT id, project_id, gate_number, from_phase, to_phase, outcome,
			overall_score, criteria, blocking_issues, required_actions, evaluated_by, created_at
		FROM gate_decisions WHERE project_id = ? ORDER BY created_at, id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list gate decisions: %w", err)
	}
	defer rows.Close()

	var out []models.GateDecision
	for rows.Next() {
		d, err := scanDecision(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan gate decision: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func scanDecision(scan func(dest ...any) error) (*models.GateDecision, error) {
	var d models.GateDecision
	var criteria, blocking, actions sql.NullString
	var createdAt string
	err := scan(&d.ID, &d.ProjectID, &d.GateNumber, &d.FromPhase, &d.ToPhase, &d.Outcome,
		&d.OverallScore, &criteria, &blocking, &actions, &d.EvaluatedBy, &createdAt)
	if err != nil {
		return nil, err
	}
	if criteria.Valid && criteria.String != "" {
		if err := json.Unmarshal([]byte(criteria.String), &d.Criteria); err != nil {
			return nil, fmt.Errorf("decode criteria: %w", err)
		}
	}
	if blocking.Valid && blocking.String != "" && blocking.String != "null" {
		if err := json.Unmarshal([]byte(blocking.String), &d.BlockingIssues); err != nil {
			return nil, fmt.Errorf("decode blocking issues: %w", err)
		}
	}
	if actions.Valid && actions.String != "" && actions.String != "null" {
		if err := json.Unmarshal([]byte(actions.String), &d.RequiredActions); err != nil {
			return nil, fmt.Errorf("decode required actions: %w", err)
		}
	}
	d.CreatedAt, _ = parseTime(createdAt)
	return &d, nil
}
