// Package graph provides the task dependency DAG used to decide which
// tasks are unblocked and to reject dependency edges that would create
// a cycle.
package graph

import (
	"fmt"
	"sort"
	"sync"

	"github.com/agentmesh/conductor/internal/errs"
	"github.com/agentmesh/conductor/pkg/models"
)

// Graph is a directed acyclic graph of task dependencies. Nodes are
// task IDs, edges point from a task to the tasks it is blocked by.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]models.Task
	// edges maps task ID to the IDs it depends on.
	edges map[string][]string
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]models.Task),
		edges: make(map[string][]string),
	}
}

// Build populates the graph from tasks and their DependsOn lists.
// It fails on references to unknown tasks and on cycles, leaving the
// graph unchanged in either case.
func (g *Graph) Build(tasks []models.Task) error {
	nodes := make(map[string]models.Task, len(tasks))
	edges := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		nodes[t.ID] = t
		edges[t.ID] = nil
	}
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if _, ok := nodes[dep]; !ok {
				return errs.Newf(errs.ClassValidation, "UNKNOWN_DEPENDENCY",
					"task %s depends on unknown task %s", t.ID, dep)
			}
			edges[t.ID] = append(edges[t.ID], dep)
		}
	}
	if cycleIn(nodes, edges) {
		return fmt.Errorf("building graph from %d tasks: %w", len(tasks), errs.ErrDependencyCycle)
	}

	g.mu.Lock()
	g.nodes = nodes
	g.edges = edges
	g.mu.Unlock()
	return nil
}

// AddTask inserts a task and its dependency edges. The insert is
// rejected, and the graph left unchanged, if a dependency is unknown
// or the new edges close a cycle.
func (g *Graph) AddTask(t models.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, dep := range t.DependsOn {
		if _, ok := g.nodes[dep]; !ok && dep != t.ID {
			return errs.Newf(errs.ClassValidation, "UNKNOWN_DEPENDENCY",
				"task %s depends on unknown task %s", t.ID, dep)
		}
	}
	prev, existed := g.nodes[t.ID]
	prevEdges := g.edges[t.ID]
	g.nodes[t.ID] = t
	g.edges[t.ID] = append([]string(nil), t.DependsOn...)
	if cycleIn(g.nodes, g.edges) {
		if existed {
			g.nodes[t.ID] = prev
			g.edges[t.ID] = prevEdges
		} else {
			delete(g.nodes, t.ID)
			delete(g.edges, t.ID)
		}
		return fmt.Errorf("adding task %s: %w", t.ID, errs.ErrDependencyCycle)
	}
	return nil
}

// SetStatus updates the stored status of a task. Unknown IDs are
// ignored.
func (g *Graph) SetStatus(taskID string, status models.TaskStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.nodes[taskID]
	if !ok {
		return
	}
	t.Status = status
	g.nodes[taskID] = t
}

// Ready returns the IDs of tasks that are queued and whose every
// dependency has completed, sorted for deterministic dispatch order.
func (g *Graph) Ready() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var ready []string
	for id, t := range g.nodes {
		if t.Status != models.TaskQueued {
			continue
		}
		blocked := false
		for _, dep := range g.edges[id] {
			if g.nodes[dep].Status != models.TaskCompleted {
				blocked = true
				break
			}
		}
		if !blocked {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)
	return ready
}

// TopologicalSort returns all task IDs with every dependency ordered
// before its dependents.
func (g *Graph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if cycleIn(g.nodes, g.edges) {
		return nil, errs.ErrDependencyCycle
	}
	visited := make(map[string]bool, len(g.nodes))
	order := make([]string, 0, len(g.nodes))
	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, dep := range g.edges[id] {
			visit(dep)
		}
		order = append(order, id)
	}
	// Iterate in sorted order so the result is stable across runs.
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		visit(id)
	}
	return order, nil
}

// Task returns the stored task and whether it exists.
func (g *Graph) Task(taskID string) (models.Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.nodes[taskID]
	return t, ok
}

// Dependents returns the IDs of tasks blocked by taskID, sorted.
func (g *Graph) Dependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []string
	for id, deps := range g.edges {
		for _, dep := range deps {
			if dep == taskID {
				out = append(out, id)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// Size returns the number of tasks in the graph.
func (g *Graph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// cycleIn runs a depth-first search with white/gray/black coloring and
// reports whether any back edge exists.
func cycleIn(nodes map[string]models.Task, edges map[string][]string) bool {
	const (
		white = iota
		gray
		black
	)
	colors := make(map[string]int, len(nodes))
	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = gray
		for _, dep := range edges[id] {
			switch colors[dep] {
			case gray:
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		colors[id] = black
		return false
	}
	for id := range nodes {
		if colors[id] == white && visit(id) {
			return true
		}
	}
	return false
}
