package store

import (
	"io"

	"github.com/agentmesh/conductor/pkg/models"
)

// ProjectStore handles project-related persistence operations,
// including the risk, issue, and blocker registers.
type ProjectStore interface {
	CreateProject(p *models.Project) error
	GetProject(id string) (*models.Project, error)
	ListProjects() ([]models.Project, error)
	UpdateProjectStatus(id string, status models.ProjectStatus) error
	AddRisk(projectID string, r models.Risk) error
	AddIssue(projectID string, i models.Issue) error
	AddBlocker(projectID string, b models.Blocker) error
	MitigateRisk(id, mitigation string) error
	ResolveIssue(id string) error
	ResolveBlocker(id string) error
	ListRisks(projectID string) ([]models.Risk, error)
	ListIssues(projectID string) ([]models.Issue, error)
	ListBlockers(projectID string) ([]models.Blocker, error)
}

// TaskStore handles task-related persistence operations. All status
// changes go through TransitionTask so the transition graph is
// enforced in one place.
type TaskStore interface {
	CreateTask(t *models.Task) error
	GetTask(id string) (*models.Task, error)
	ListTasksByProject(projectID string) ([]models.Task, error)
	ListTasksByStatus(status models.TaskStatus) ([]models.Task, error)
	TransitionTask(taskID string, to models.TaskStatus, correlationID, detail string) error
	AssignTask(taskID, agentID, correlationID string) error
	UpdateTaskProgress(taskID string, percent int) error
	IncrementTaskRetry(taskID string) (int, error)
	ReadyTasks(projectID string) ([]models.Task, error)
}

// DeliverableStore handles immutable deliverable persistence.
type DeliverableStore interface {
	CreateDeliverable(d *models.Deliverable) error
	GetDeliverable(id string) (*models.Deliverable, error)
	ListDeliverablesByProject(projectID string) ([]models.Deliverable, error)
	ListCurrentDeliverables(projectID string) ([]models.Deliverable, error)
	ListDeliverablesByTask(taskID string) ([]models.Deliverable, error)
}

// DecisionStore handles gate decision persistence.
type DecisionStore interface {
	RecordGateDecision(d *models.GateDecision) error
	GetGateDecision(id string) (*models.GateDecision, error)
	ListGateDecisions(projectID string) ([]models.GateDecision, error)
}

// EventStore reads the append-only event log.
type EventStore interface {
	AppendEvent(e Event) error
	ListEvents(projectID string) ([]Event, error)
	ListEventsByCorrelation(correlationID string) ([]Event, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	Migrate() error
}

// Store is the full persistence interface the orchestrator depends
// on. It composes focused sub-interfaces so callers can declare only
// what they use.
type Store interface {
	io.Closer
	Migrator
	ProjectStore
	TaskStore
	DeliverableStore
	DecisionStore
	EventStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store            = (*DB)(nil)
	_ Migrator         = (*DB)(nil)
	_ ProjectStore     = (*DB)(nil)
	_ TaskStore        = (*DB)(nil)
	_ DeliverableStore = (*DB)(nil)
	_ DecisionStore    = (*DB)(nil)
	_ EventStore       = (*DB)(nil)
)
