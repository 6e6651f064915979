package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/agentmesh/conductor/pkg/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "conductor.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

func testProject(t *testing.T, db *DB, id string) *models.Project {
	t.Helper()
	p := &models.Project{
		ID:   id,
		Name: "checkout revamp",
		Type: models.ProjectBackend,
	}
	if err := db.CreateProject(p); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	return p
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)
	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestProjectRoundTrip(t *testing.T) {
	db := testDB(t)
	p := &models.Project{
		ID:          "p1",
		Name:        "data pipeline",
		Description: "nightly ingest",
		Type:        models.ProjectAnalytics,
		Metadata:    map[string]string{"team": "data"},
	}
	if err := db.CreateProject(p); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	got, err := db.GetProject("p1")
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.CurrentPhase != models.PhaseInitiation {
		t.Errorf("new project phase = %s, want initiation", got.CurrentPhase)
	}
	if got.Status != models.ProjectActive {
		t.Errorf("new project status = %s, want active", got.Status)
	}
	if got.Metadata["team"] != "data" {
		t.Errorf("metadata lost: %v", got.Metadata)
	}

	events, err := db.ListEvents("p1")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 1 || events[0].Kind != EventProjectCreated {
		t.Errorf("events = %v, want one project_created", events)
	}
}

func TestCreateProjectRejectsUnknownType(t *testing.T) {
	db := testDB(t)
	err := db.CreateProject(&models.Project{ID: "p1", Name: "x", Type: "mainframe"})
	if err == nil {
		t.Fatal("expected error for unsupported project type")
	}
}

func TestGetProjectNotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.GetProject("ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistersRoundTrip(t *testing.T) {
	db := testDB(t)
	testProject(t, db, "p1")

	if err := db.AddRisk("p1", models.Risk{ID: "r1", Description: "vendor API unstable", Severity: models.SeverityHigh}); err != nil {
		t.Fatalf("AddRisk: %v", err)
	}
	if err := db.AddIssue("p1", models.Issue{ID: "i1", Description: "flaky CI", Severity: models.SeverityLow}); err != nil {
		t.Fatalf("AddIssue: %v", err)
	}
	if err := db.AddBlocker("p1", models.Blocker{ID: "b1", Description: "no prod access", Severity: models.SeverityCritical}); err != nil {
		t.Fatalf("AddBlocker: %v", err)
	}

	risks, err := db.ListRisks("p1")
	if err != nil || len(risks) != 1 {
		t.Fatalf("ListRisks = %v, %v", risks, err)
	}
	if err := db.MitigateRisk("r1", "failover vendor"); err != nil {
		t.Fatalf("MitigateRisk: %v", err)
	}
	risks, _ = db.ListRisks("p1")
	if !risks[0].Mitigated || risks[0].Mitigation != "failover vendor" {
		t.Errorf("risk not mitigated: %+v", risks[0])
	}

	if err := db.ResolveBlocker("b1"); err != nil {
		t.Fatalf("ResolveBlocker: %v", err)
	}
	blockers, _ := db.ListBlockers("p1")
	if len(blockers) != 1 || !blockers[0].Resolved {
		t.Errorf("blocker not resolved: %v", blockers)
	}
}

func TestRegisterSeverityOrdering(t *testing.T) {
	db := testDB(t)
	testProject(t, db, "p1")
	db.AddIssue("p1", models.Issue{ID: "i1", Description: "minor", Severity: models.SeverityLow})
	db.AddIssue("p1", models.Issue{ID: "i2", Description: "major", Severity: models.SeverityCritical})

	issues, err := db.ListIssues("p1")
	if err != nil {
		t.Fatalf("ListIssues: %v", err)
	}
	if issues[0].ID != "i2" {
		t.Errorf("expected critical issue first, got %v", issues)
	}
}

func TestProjectDeleteCascades(t *testing.T) {
	db := testDB(t)
	testProject(t, db, "p1")
	testTask(t, db, "t1", "p1")
	testTask(t, db, "t2", "p1", "t1")

	if _, err := db.Exec(`DELETE FROM projects WHERE id = ?`, "p1"); err != nil {
		t.Fatalf("delete project: %v", err)
	}

	for _, table := range []string{"tasks", "task_dependencies"} {
		var n int
		if err := db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if n != 0 {
			t.Errorf("%s kept %d rows after project delete", table, n)
		}
	}
}
