package graph

import (
	"errors"
	"testing"

	"github.com/agentmesh/conductor/internal/errs"
	"github.com/agentmesh/conductor/pkg/models"
)

func task(id string, status models.TaskStatus, deps ...string) models.Task {
	return models.Task{ID: id, Status: status, DependsOn: deps}
}

func TestBuildRejectsUnknownDependency(t *testing.T) {
	g := New()
	err := g.Build([]models.Task{task("a", models.TaskQueued, "ghost")})
	if err == nil {
		t.Fatal("expected error for unknown dependency")
	}
	if g.Size() != 0 {
		t.Error("failed Build must leave the graph empty")
	}
}

func TestBuildRejectsCycle(t *testing.T) {
	g := New()
	err := g.Build([]models.Task{
		task("a", models.TaskQueued, "b"),
		task("b", models.TaskQueued, "c"),
		task("c", models.TaskQueued, "a"),
	})
	if !errors.Is(err, errs.ErrDependencyCycle) {
		t.Fatalf("expected ErrDependencyCycle, got %v", err)
	}
}

func TestAddTaskCycleLeavesGraphUnchanged(t *testing.T) {
	g := New()
	if err := g.Build([]models.Task{
		task("a", models.TaskQueued),
		task("b", models.TaskQueued, "a"),
	}); err != nil {
		t.Fatalf("Build: %v", err)
	}

	// Re-adding "a" with an edge to "b" would close a → b → a.
	err := g.AddTask(task("a", models.TaskQueued, "b"))
	if !errors.Is(err, errs.ErrDependencyCycle) {
		t.Fatalf("expected ErrDependencyCycle, got %v", err)
	}
	got, ok := g.Task("a")
	if !ok || len(got.DependsOn) != 0 {
		t.Errorf("rejected AddTask mutated node a: %+v", got)
	}
}

func TestReadyGatesOnCompletedDependencies(t *testing.T) {
	g := New()
	if err := g.Build([]models.Task{
		task("a", models.TaskQueued),
		task("b", models.TaskQueued, "a"),
		task("c", models.TaskQueued, "a", "b"),
		task("d", models.TaskInProgress),
	}); err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got := g.Ready(); len(got) != 1 || got[0] != "a" {
		t.Fatalf("Ready = %v, want [a]", got)
	}

	g.SetStatus("a", models.TaskCompleted)
	if got := g.Ready(); len(got) != 1 || got[0] != "b" {
		t.Fatalf("Ready after a completes = %v, want [b]", got)
	}

	g.SetStatus("b", models.TaskCompleted)
	if got := g.Ready(); len(got) != 1 || got[0] != "c" {
		t.Fatalf("Ready after b completes = %v, want [c]", got)
	}
}

func TestTopologicalSortOrdersDependenciesFirst(t *testing.T) {
	g := New()
	if err := g.Build([]models.Task{
		task("deploy", models.TaskQueued, "build", "test"),
		task("test", models.TaskQueued, "build"),
		task("build", models.TaskQueued),
	}); err != nil {
		t.Fatalf("Build: %v", err)
	}

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("TopologicalSort: %v", err)
	}
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	if pos["build"] > pos["test"] || pos["test"] > pos["deploy"] || pos["build"] > pos["deploy"] {
		t.Errorf("order %v violates dependencies", order)
	}
}

func TestDependents(t *testing.T) {
	g := New()
	if err := g.Build([]models.Task{
		task("a", models.TaskQueued),
		task("b", models.TaskQueued, "a"),
		task("c", models.TaskQueued, "a"),
	}); err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := g.Dependents("a")
	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Errorf("Dependents(a) = %v, want [b c]", got)
	}
}
