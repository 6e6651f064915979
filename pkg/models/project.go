package models

import "time"

// Phase is a project lifecycle phase. Phases advance in a fixed order and
// only on a GO gate decision.
type Phase string

const (
	PhaseInitiation Phase = "initiation"
	PhasePlanning   Phase = "planning"
	PhaseExecution  Phase = "execution"
	PhaseMonitoring Phase = "monitoring"
	PhaseClosure    Phase = "closure"
)

// Phases lists all lifecycle phases in order.
var Phases = []Phase{PhaseInitiation, PhasePlanning, PhaseExecution, PhaseMonitoring, PhaseClosure}

// Valid returns true if the phase is a known value.
func (p Phase) Valid() bool {
	return p.Index() >= 0
}

// Index returns the position of the phase in the lifecycle ordering,
// or -1 for an unknown phase.
func (p Phase) Index() int {
	for i, ph := range Phases {
		if ph == p {
			return i
		}
	}
	return -1
}

// Next returns the phase following p. The second return is false when p is
// the final phase or unknown.
func (p Phase) Next() (Phase, bool) {
	i := p.Index()
	if i < 0 || i >= len(Phases)-1 {
		return p, false
	}
	return Phases[i+1], true
}

// ProjectStatus represents the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "active"
	ProjectPaused    ProjectStatus = "paused"
	ProjectCompleted ProjectStatus = "completed"
	ProjectFailed    ProjectStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectActive, ProjectPaused, ProjectCompleted, ProjectFailed:
		return true
	default:
		return false
	}
}

// ProjectType classifies the kind of work a project delivers.
type ProjectType string

const (
	ProjectFrontend  ProjectType = "frontend"
	ProjectBackend   ProjectType = "backend"
	ProjectML        ProjectType = "ml"
	ProjectAnalytics ProjectType = "analytics"
	ProjectFullstack ProjectType = "fullstack"
	ProjectResearch  ProjectType = "research"
)

// Valid returns true if the project type is supported.
func (t ProjectType) Valid() bool {
	switch t {
	case ProjectFrontend, ProjectBackend, ProjectML, ProjectAnalytics, ProjectFullstack, ProjectResearch:
		return true
	default:
		return false
	}
}

// Project owns all tasks, deliverables, and gate decisions created under it.
type Project struct {
	// ID is the unique identifier for this project.
	ID string `json:"id"`
	// Name is the human-readable project name.
	Name string `json:"name"`
	// Description explains what the project should deliver.
	Description string `json:"description,omitempty"`
	// Type classifies the project.
	Type ProjectType `json:"type"`
	// CurrentPhase is the lifecycle phase the project is in.
	CurrentPhase Phase `json:"current_phase"`
	// Status is the current state of the project.
	Status ProjectStatus `json:"status"`
	// Metadata carries free-form project attributes.
	Metadata map[string]string `json:"metadata,omitempty"`
	// CreatedAt is when the project was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the project was last mutated.
	UpdatedAt time.Time `json:"updated_at"`
}

// Severity ranks risks, issues, and blockers.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid returns true if the severity is a known value.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// Rank returns a numeric rank for the severity. Higher is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// Risk is an identified project risk tracked in the risk register.
type Risk struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Severity    Severity  `json:"severity"`
	Mitigated   bool      `json:"mitigated"`
	Mitigation  string    `json:"mitigation,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Issue is a reported problem on a project.
type Issue struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Severity    Severity  `json:"severity"`
	Resolved    bool      `json:"resolved"`
	CreatedAt   time.Time `json:"created_at"`
}

// Blocker is an impediment that stops forward progress until resolved.
// Unresolved critical blockers force a NO_GO at any gate.
type Blocker struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Severity    Severity  `json:"severity"`
	Resolved    bool      `json:"resolved"`
	CreatedAt   time.Time `json:"created_at"`
}
