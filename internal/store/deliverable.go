package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/agentmesh/conductor/internal/errs"
	"github.com/agentmesh/conductor/pkg/models"
)

// CreateDeliverable stores an immutable deliverable. The content hash
// is computed here so a stored hash always matches the stored content.
// Revisions supersede rather than replace: pass the prior deliverable
// ID in SupersedesID.
func (db *DB) CreateDeliverable(d *models.Deliverable) error {
	if d.ID == "" || d.ProjectID == "" || d.TaskID == "" {
		return errs.New(errs.ClassValidation, "INVALID_DELIVERABLE", "deliverable requires id, project_id, and task_id")
	}
	if d.Content == "" {
		return errs.New(errs.ClassValidation, "EMPTY_DELIVERABLE", "deliverable content is empty")
	}
	d.ContentHash = models.HashContent(d.Content)
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	return db.Transaction(func(tx *sql.Tx) error {
		if d.SupersedesID != "" {
			var exists int
			row := tx.QueryRow(`SELECT COUNT(1) FROM deliverables WHERE id = ?`, d.SupersedesID)
			if err := row.Scan(&exists); err != nil {
				return fmt.Errorf("check superseded deliverable: %w", err)
			}
			if exists == 0 {
				return fmt.Errorf("superseded deliverable %s: %w", d.SupersedesID, ErrNotFound)
			}
		}
		_, err := tx.Exec(`
			INSERT INTO deliverables (id, project_id, task_id, type, content, content_hash, created_by, supersedes_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, d.ID, d.ProjectID, d.TaskID, d.Type, d.Content, d.ContentHash, d.CreatedBy,
			nullableString(d.SupersedesID), formatTime(d.CreatedAt))
		if err != nil {
			return fmt.Errorf("create deliverable: %w", err)
		}
		return appendEventTx(tx, Event{
			ProjectID:     d.ProjectID,
			TaskID:        d.TaskID,
			CorrelationID: d.TaskID,
			Kind:          EventDeliverableSaved,
			Detail:        fmt.Sprintf("type=%s hash=%s", d.Type, d.ContentHash[:12]),
		})
	})
}

// GetDeliverable retrieves a deliverable by ID.
func (db *DB) GetDeliverable(id string) (*models.Deliverable, error) {
	row := db.QueryRow(`
		SELECT id, project_id, task_id, type, content, content_hash, created_by, supersedes_id, created_at
		FROM deliverables WHERE id = ?
	`, id)
	d, err := scanDeliverable(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("deliverable %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get deliverable: %w", err)
	}
	return d, nil
}

// ListDeliverablesByProject returns a project's deliverables in
// creation order, superseded revisions included.
func (db *DB) ListDeliverablesByProject(projectID string) ([]models.Deliverable, error) {
	return db.listDeliverables(`
		SELECT id, project_id, task_id, type, content, content_hash, created_by, supersedes_id, created_at
		FROM deliverables WHERE project_id = ? ORDER BY created_at, id
	`, projectID)
}

// ListCurrentDeliverables returns a project's deliverables with
// superseded revisions filtered out.
func (db *DB) ListCurrentDeliverables(projectID string) ([]models.Deliverable, error) {
	return db.listDeliverables(`
		SELECT id, project_id, task_id, type, content, content_hash, created_by, supersedes_id, created_at
		FROM deliverables
		WHERE project_id = ?
		  AND id NOT IN (SELECT supersedes_id FROM deliverables WHERE supersedes_id IS NOT NULL)
		ORDER BY created_at, id
	`, projectID)
}

// ListDeliverablesByTask returns the deliverables a task produced.
func (db *DB) ListDeliverablesByTask(taskID string) ([]models.Deliverable, error) {
	return db.listDeliverables(`
		SELECT id, project_id, task_id, type, content, content_hash, created_by, supersedes_id, created_at
		FROM deliverables WHERE task_id = ? ORDER BY created_at, id
	`, taskID)
}

func (db *DB) listDeliverables(query string, args ...any) ([]models.Deliverable, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list deliverables: %w", err)
	}
	defer rows.Close()

	var out []models.Deliverable
	for rows.Next() {
		d, err := scanDeliverable(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan deliverable: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func scanDeliverable(scan func(dest ...any) error) (*models.Deliverable, error) {
	var d models.Deliverable
	var supersedes sql.NullString
	var createdAt string
	err := scan(&d.ID, &d.ProjectID, &d.TaskID, &d.Type, &d.Content, &d.ContentHash, &d.CreatedBy, &supersedes, &createdAt)
	if err != nil {
		return nil, err
	}
	d.SupersedesID = supersedes.String
	d.CreatedAt, _ = parseTime(createdAt)
	return &d, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
