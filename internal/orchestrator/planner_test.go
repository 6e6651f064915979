package orchestrator

import (
	"errors"
	"testing"

	"github.com/agentmesh/conductor/internal/errs"
	"github.com/agentmesh/conductor/pkg/models"
)

func TestAcceptRequestChecksCapabilities(t *testing.T) {
	p := NewPlanner()
	project := &models.Project{ID: "p1", Name: "site", Type: models.ProjectFrontend}

	if err := p.AcceptRequest(project, []string{"project_management", "frontend_development"}); err != nil {
		t.Fatalf("AcceptRequest with full coverage: %v", err)
	}

	err := p.AcceptRequest(project, []string{"project_management"})
	if err == nil {
		t.Fatal("expected error without frontend_development registered")
	}
	var cerr *errs.Error
	if !errors.As(err, &cerr) || cerr.Code != "MISSING_CAPABILITY" {
		t.Errorf("error = %v, want MISSING_CAPABILITY", err)
	}

	bad := &models.Project{ID: "p2", Name: "chain", Type: models.ProjectType("blockchain")}
	if err := p.AcceptRequest(bad, []string{"project_management"}); err == nil {
		t.Error("expected error for unsupported project type")
	}

	nameless := &models.Project{ID: "p3", Type: models.ProjectFrontend}
	err = p.AcceptRequest(nameless, []string{"project_management", "frontend_development"})
	if !errors.As(err, &cerr) || cerr.Code != "EMPTY_REQUEST" {
		t.Errorf("error = %v, want EMPTY_REQUEST", err)
	}
}

func TestPlanInitiationDependencies(t *testing.T) {
	p := NewPlanner()
	project := &models.Project{ID: "p1", Name: "site", Type: models.ProjectFrontend, CurrentPhase: models.PhaseInitiation}

	tasks, err := p.PlanPhase(project)
	if err != nil {
		t.Fatalf("PlanPhase: %v", err)
	}
	if len(tasks) != 4 {
		t.Fatalf("planned %d tasks, want 4", len(tasks))
	}
	for _, task := range tasks {
		if task.ProjectID != "p1" {
			t.Errorf("task %s project = %q", task.ID, task.ProjectID)
		}
		if task.Metadata["phase"] != "initiation" {
			t.Errorf("task %s phase metadata = %q", task.ID, task.Metadata["phase"])
		}
		if task.Metadata["deliverable"] == "" {
			t.Errorf("task %s has no deliverable type", task.ID)
		}
	}

	// Risk assessment waits for feasibility and scope.
	risk := tasks[3]
	if len(risk.DependsOn) != 2 {
		t.Fatalf("risk task has %d deps, want 2", len(risk.DependsOn))
	}
	want := map[string]bool{tasks[0].ID: true, tasks[1].ID: true}
	for _, dep := range risk.DependsOn {
		if !want[dep] {
			t.Errorf("unexpected dependency %s", dep)
		}
	}
}

func TestPlanExecutionUsesTypeCapability(t *testing.T) {
	p := NewPlanner()
	project := &models.Project{ID: "p1", Name: "model", Type: models.ProjectML, CurrentPhase: models.PhaseExecution}

	tasks, err := p.PlanPhase(project)
	if err != nil {
		t.Fatalf("PlanPhase: %v", err)
	}
	if len(tasks) == 0 {
		t.Fatal("no tasks planned")
	}
	for _, task := range tasks {
		if task.Capability != "model_development" {
			t.Errorf("task %q capability = %q, want model_development", task.Description, task.Capability)
		}
	}
}

func TestPlanUnknownPhase(t *testing.T) {
	p := NewPlanner()
	project := &models.Project{ID: "p1", Type: models.ProjectFrontend, CurrentPhase: models.Phase("shipping")}
	if _, err := p.PlanPhase(project); err == nil {
		t.Fatal("expected error for unknown phase")
	}
}

func TestPhaseScores(t *testing.T) {
	tasks := []models.Task{
		{ID: "t1", Status: models.TaskCompleted},
		{ID: "t2", Status: models.TaskCompleted},
		{ID: "t3", Status: models.TaskCompleted},
		{ID: "t4", Status: models.TaskFailed},
	}
	scores := PhaseScores([]string{"plan_complete", "schedule_defined"}, tasks)
	if len(scores) != 2 {
		t.Fatalf("got %d scores, want 2", len(scores))
	}
	for name, score := range scores {
		if score != 75 {
			t.Errorf("score[%s] = %.1f, want 75", name, score)
		}
	}

	if scores := PhaseScores([]string{"plan_complete"}, nil); scores != nil {
		t.Errorf("scores for no tasks = %v, want nil", scores)
	}
}
