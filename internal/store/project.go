package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/agentmesh/conductor/internal/errs"
	"github.com/agentmesh/conductor/pkg/models"
)

// ErrNotFound indicates a row does not exist.
var ErrNotFound = errors.New("not found")

// CreateProject inserts a new project and appends its creation event.
// The project starts in the initiation phase with active status unless
// the caller set them.
func (db *DB) CreateProject(p *models.Project) error {
	if p.ID == "" || p.Name == "" {
		return errs.New(errs.ClassValidation, "INVALID_PROJECT", "project requires id and name")
	}
	if !p.Type.Valid() {
		return errs.Newf(errs.ClassValidation, "INVALID_PROJECT_TYPE", "unsupported project type %q", p.Type)
	}
	if p.CurrentPhase == "" {
		p.CurrentPhase = models.PhaseInitiation
	}
	if p.Status == "" {
		p.Status = models.ProjectActive
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.UpdatedAt = p.CreatedAt

	meta, err := marshalMetadata(p.Metadata)
	if err != nil {
		return err
	}
	return db.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO projects (id, name, description, type, current_phase, status, metadata, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, p.ID, p.Name, p.Description, string(p.Type), string(p.CurrentPhase), string(p.Status),
			meta, formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
		if err != nil {
			return fmt.Errorf("create project: %w", err)
		}
		return appendEventTx(tx, Event{
			ProjectID: p.ID,
			Kind:      EventProjectCreated,
			Detail:    fmt.Sprintf("type=%s name=%s", p.Type, p.Name),
		})
	})
}

// GetProject retrieves a project by ID.
func (db *DB) GetProject(id string) (*models.Project, error) {
	row := db.QueryRow(`
		SELECT id, name, description, type, current_phase, status, metadata, created_at, updated_at
		FROM projects WHERE id = ?
	`, id)
	p, err := scanProject(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

// ListProjects returns all projects, most recently created first.
func (db *DB) ListProjects() ([]models.Project, error) {
	rows, err := db.Query(`
		SELECT id, name, description, type, current_phase, status, metadata, created_at, updated_at
		FROM projects ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		p, err := scanProject(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// UpdateProjectStatus moves a project to a new status and records the
// change.
func (db *DB) UpdateProjectStatus(id string, status models.ProjectStatus) error {
	if !status.Valid() {
		return errs.Newf(errs.ClassValidation, "INVALID_PROJECT_STATUS", "unknown project status %q", status)
	}
	return db.Transaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE projects SET status = ?, updated_at = ? WHERE id = ?
		`, string(status), formatTime(time.Now()), id)
		if err != nil {
			return fmt.Errorf("update project status: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("project %s: %w", id, ErrNotFound)
		}
		return appendEventTx(tx, Event{
			ProjectID: id,
			Kind:      EventProjectUpdated,
			Detail:    "status=" + string(status),
		})
	})
}

// AddRisk records a risk on a project's risk register.
func (db *DB) AddRisk(projectID string, r models.Risk) error {
	if !r.Severity.Valid() {
		return errs.Newf(errs.ClassValidation, "INVALID_SEVERITY", "unknown severity %q", r.Severity)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	return db.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO risks (id, project_id, description, severity, mitigated, mitigation, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, r.ID, projectID, r.Description, string(r.Severity), r.Mitigated, r.Mitigation, formatTime(r.CreatedAt))
		if err != nil {
			return fmt.Errorf("add risk: %w", err)
		}
		return appendEventTx(tx, Event{
			ProjectID: projectID,
			Kind:      EventRiskRaised,
			Detail:    fmt.Sprintf("severity=%s %s", r.Severity, r.Description),
		})
	})
}

// AddIssue records an issue on a project.
func (db *DB) AddIssue(projectID string, i models.Issue) error {
	if !i.Severity.Valid() {
		return errs.Newf(errs.ClassValidation, "INVALID_SEVERITY", "unknown severity %q", i.Severity)
	}
	if i.CreatedAt.IsZero() {
		i.CreatedAt = time.Now()
	}
	return db.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO issues (id, project_id, description, severity, resolved, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, i.ID, projectID, i.Description, string(i.Severity), i.Resolved, formatTime(i.CreatedAt))
		if err != nil {
			return fmt.Errorf("add issue: %w", err)
		}
		return appendEventTx(tx, Event{
			ProjectID: projectID,
			Kind:      EventIssueRaised,
			Detail:    fmt.Sprintf("severity=%s %s", i.Severity, i.Description),
		})
	})
}

// AddBlocker records a blocker on a project. Unresolved critical
// blockers force NO_GO at the next gate.
func (db *DB) AddBlocker(projectID string, b models.Blocker) error {
	if !b.Severity.Valid() {
		return errs.Newf(errs.ClassValidation, "INVALID_SEVERITY", "unknown severity %q", b.Severity)
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	return db.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO blockers (id, project_id, description, severity, resolved, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, b.ID, projectID, b.Description, string(b.Severity), b.Resolved, formatTime(b.CreatedAt))
		if err != nil {
			return fmt.Errorf("add blocker: %w", err)
		}
		return appendEventTx(tx, Event{
			ProjectID: projectID,
			Kind:      EventBlockerRaised,
			Detail:    fmt.Sprintf("severity=%s %s", b.Severity, b.Description),
		})
	})
}

// ResolveBlocker marks a blocker resolved.
func (db *DB) ResolveBlocker(id string) error {
	res, err := db.Exec(`UPDATE blockers SET resolved = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("resolve blocker: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("blocker %s: %w", id, ErrNotFound)
	}
	return nil
}

// MitigateRisk marks a risk mitigated with the given mitigation note.
func (db *DB) MitigateRisk(id, mitigation string) error {
	res, err := db.Exec(`UPDATE risks SET mitigated = 1, mitigation = ? WHERE id = ?`, mitigation, id)
	if err != nil {
		return fmt.Errorf("mitigate risk: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("risk %s: %w", id, ErrNotFound)
	}
	return nil
}

// ResolveIssue marks an issue resolved.
func (db *DB) ResolveIssue(id string) error {
	res, err := db.Exec(`UPDATE issues SET resolved = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("resolve issue: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListRisks returns a project's risks, most severe first.
func (db *DB) ListRisks(projectID string) ([]models.Risk, error) {
	rows, err := db.Query(`
		SELECT id, description, severity, mitigated, mitigation, created_at
		FROM risks WHERE project_id = ?
		ORDER BY CASE severity WHEN 'critical' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END, created_at
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list risks: %w", err)
	}
	defer rows.Close()

	var risks []models.Risk
	for rows.Next() {
		var r models.Risk
		var mitigation sql.NullString
		var createdAt string
		if err := rows.Scan(&r.ID, &r.Description, &r.Severity, &r.Mitigated, &mitigation, &createdAt); err != nil {
			return nil, fmt.Errorf("scan risk: %w", err)
		}
		r.Mitigation = mitigation.String
		r.CreatedAt, _ = parseTime(createdAt)
		risks = append(risks, r)
	}
	return risks, rows.Err()
}

// ListIssues returns a project's issues, most severe first.
func (db *DB) ListIssues(projectID string) ([]models.Issue, error) {
	rows, err := db.Query(`
		SELECT id, description, severity, resolved, created_at
		FROM issues WHERE project_id = ?
		ORDER BY CASE severity WHEN 'critical' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END, created_at
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer rows.Close()

	var issues []models.Issue
	for rows.Next() {
		var i models.Issue
		var createdAt string
		if err := rows.Scan(&i.ID, &i.Description, &i.Severity, &i.Resolved, &createdAt); err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		i.CreatedAt, _ = parseTime(createdAt)
		issues = append(issues, i)
	}
	return issues, rows.Err()
}

// ListBlockers returns a project's blockers, most severe first.
func (db *DB) ListBlockers(projectID string) ([]models.Blocker, error) {
	rows, err := db.Query(`
		SELECT id, description, severity, resolved, created_at
		FROM blockers WHERE project_id = ?
		ORDER BY CASE severity WHEN 'critical' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END, created_at
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list blockers: %w", err)
	}
	defer rows.Close()

	var blockers []models.Blocker
	for rows.Next() {
		var b models.Blocker
		var createdAt string
		if err := rows.Scan(&b.ID, &b.Description, &b.Severity, &b.Resolved, &createdAt); err != nil {
			return nil, fmt.Errorf("scan blocker: %w", err)
		}
		b.CreatedAt, _ = parseTime(createdAt)
		blockers = append(blockers, b)
	}
	return blockers, rows.Err()
}

func scanProject(scan func(dest ...any) error) (*models.Project, error) {
	var p models.Project
	var description, meta sql.NullString
	var createdAt, updatedAt string
	err := scan(&p.ID, &p.Name, &description, &p.Type, &p.CurrentPhase, &p.Status, &meta, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.Description = description.String
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &p.Metadata); err != nil {
			return nil, fmt.Errorf("decode project metadata: %w", err)
		}
	}
	p.CreatedAt, _ = parseTime(createdAt)
	p.UpdatedAt, _ = parseTime(updatedAt)
	return &p, nil
}

func marshalMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(raw), nil
}
