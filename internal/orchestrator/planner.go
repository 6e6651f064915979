package orchestrator

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/agentmesh/conductor/internal/errs"
	"github.com/agentmesh/conductor/pkg/models"
)

// taskTemplate describes one task a phase plan produces. The
// deliverable type feeds the phase exit gate's coverage check.
type taskTemplate struct {
	capability  string
	description string
	deliverable string
	priority    models.Priority
	// dependsOn indexes earlier templates in the same phase plan.
	dependsOn []int
}

// specialistCapability maps a project type to the capability its
// execution-phase work runs on. Lifecycle phases before and after
// execution use the project_management capability regardless of type.
var specialistCapability = map[models.ProjectType]string{
	models.ProjectFrontend:  "frontend_development",
	models.ProjectBackend:   "backend_development",
	models.ProjectML:        "model_development",
	models.ProjectAnalytics: "data_analysis",
	models.ProjectFullstack: "fullstack_development",
	models.ProjectResearch:  "research",
}

// CapabilityForType returns the execution capability a project type
// needs, used both for planning and for request acceptance.
func CapabilityForType(t models.ProjectType) (string, bool) {
	c, ok := specialistCapability[t]
	return c, ok
}

// Planner is the planner tier: it accepts project requests and turns
// each phase into a concrete task plan.
type Planner struct {
	identity models.Identity
}

// NewPlanner creates the planner tier driver.
func NewPlanner() *Planner {
	return &Planner{identity: models.Identity{AgentID: tierInbox(TierPlanner), AgentType: string(TierPlanner)}}
}

// Identity returns the planner's bus identity.
func (p *Planner) Identity() models.Identity {
	return p.identity
}

// AcceptRequest validates a project request before any state is
// created: the type must be supported and the registered capabilities
// must cover the execution work the type needs.
func (p *Planner) AcceptRequest(project *models.Project, available []string) error {
	if project.Name == "" {
		return errs.New(errs.ClassValidation, "EMPTY_REQUEST", "project request has no name")
	}
	if !project.Type.Valid() {
		return errs.Newf(errs.ClassValidation, "UNSUPPORTED_PROJECT_TYPE", "project type %q is not supported", project.Type)
	}
	needed, _ := CapabilityForType(project.Type)
	kinds := make(map[string]bool, len(available))
	for _, k := range available {
		kinds[k] = true
	}
	for _, required := range []string{"project_management", needed} {
		if !kinds[required] {
			return errs.Newf(errs.ClassCapability, "MISSING_CAPABILITY",
				"project type %s requires capability %q, which is not registered", project.Type, required)
		}
	}
	return nil
}

// PlanPhase creates the task plan for a project's current phase. Tasks
// carry the deliverable type the gate expects in their metadata so
// specialists know what to produce.
func (p *Planner) PlanPhase(project *models.Project) ([]*models.Task, error) {
	templates, err := p.templates(project)
	if err != nil {
		return nil, err
	}

	tasks := make([]*models.Task, len(templates))
	for i, tpl := range templates {
		tasks[i] = &models.Task{
			ID:          uuid.New().String(),
			ProjectID:   project.ID,
			Capability:  tpl.capability,
			Description: tpl.description,
			Priority:    tpl.priority,
			Status:      models.TaskQueued,
			Metadata: map[string]string{
				"phase":       string(project.CurrentPhase),
				"deliverable": tpl.deliverable,
			},
		}
		for _, dep := range tpl.dependsOn {
			tasks[i].DependsOn = append(tasks[i].DependsOn, tasks[dep].ID)
		}
	}
	debugLog("planner: phase %s of project %s planned with %d tasks", project.CurrentPhase, project.ID, len(tasks))
	return tasks, nil
}

func (p *Planner) templates(project *models.Project) ([]taskTemplate, error) {
	execCap, ok := CapabilityForType(project.Type)
	if !ok {
		return nil, errs.Newf(errs.ClassValidation, "UNSUPPORTED_PROJECT_TYPE", "project type %q is not supported", project.Type)
	}

	switch project.CurrentPhase {
	case models.PhaseInitiation:
		return []taskTemplate{
			{capability: "project_management", description: "assess feasibility of " + project.Name,
				deliverable: "feasibility_assessment", priority: models.PriorityHigh},
			{capability: "project_management", description: "define scope for " + project.Name,
				deliverable: "scope_definition", priority: models.PriorityHigh},
			{capability: "project_management", description: "identify stakeholders",
				deliverable: "stakeholder_identification", priority: models.PriorityNormal},
			{capability: "project_management", description: "assess initial risks",
				deliverable: "initial_risk_assessment", priority: models.PriorityNormal, dependsOn: []int{0, 1}},
		}, nil
	case models.PhasePlanning:
		return []taskTemplate{
			{capability: "project_management", description: "write project plan",
				deliverable: "project_plan", priority: models.PriorityHigh},
			{capability: "project_management", description: "allocate resources",
				deliverable: "resource_allocation", priority: models.PriorityNormal, dependsOn: []int{0}},
			{capability: "project_management", description: "build schedule",
				deliverable: "schedule", priority: models.PriorityNormal, dependsOn: []int{0}},
			{capability: "project_management", description: "write risk management plan",
				deliverable: "risk_management_plan", priority: models.PriorityNormal, dependsOn: []int{0}},
		}, nil
	case models.PhaseExecution:
		return []taskTemplate{
			{capability: execCap, description: "implement " + project.Name,
				deliverable: "implementation", priority: models.PriorityHigh},
			{capability: execCap, description: "produce code deliverables",
				deliverable: "code_deliverables", priority: models.PriorityHigh, dependsOn: []int{0}},
			{capability: execCap, description: "write documentation",
				deliverable: "documentation", priority: models.PriorityNormal, dependsOn: []int{0}},
		}, nil
	case models.PhaseMonitoring:
		return []taskTemplate{
			{capability: "project_management", description: "compile progress reports",
				deliverable: "progress_reports", priority: models.PriorityNormal},
			{capability: "project_management", description: "collect quality metrics",
				deliverable: "quality_metrics", priority: models.PriorityNormal},
			{capability: "project_management", description: "triage issue logs",
				deliverable: "issue_logs", priority: models.PriorityNormal},
		}, nil
	case models.PhaseClosure:
		return []taskTemplate{
			{capability: "project_management", description: "assemble final deliverables",
				deliverable: "final_deliverables", priority: models.PriorityHigh},
			{capability: "project_management", description: "record lessons learned",
				deliverable: "lessons_learned", priority: models.PriorityLow},
			{capability: "project_management", description: "write closure report",
				deliverable: "project_closure_report", priority: models.PriorityNormal, dependsOn: []int{0}},
		}, nil
	default:
		return nil, errs.Newf(errs.ClassValidation, "UNKNOWN_PHASE", "cannot plan phase %q", project.CurrentPhase)
	}
}

// PhaseScores derives criterion scores for a phase gate from task
// outcomes: the completion ratio scaled to 0-100, applied to every
// criterion. A reviewer capability can replace these with real
// assessments; the derived scores make unattended runs deterministic.
func PhaseScores(criteria []string, tasks []models.Task) map[string]float64 {
	if len(tasks) == 0 {
		return nil
	}
	completed := 0
	for _, t := range tasks {
		if t.Status == models.TaskCompleted {
			completed++
		}
	}
	score := float64(completed) * 100 / float64(len(tasks))
	scores := make(map[string]float64, len(criteria))
	for _, name := range criteria {
		scores[name] = score
	}
	return scores
}

// describeTask renders a short label for logs and events.
func describeTask(t *models.Task) string {
	return fmt.Sprintf("%s (%s)", t.Description, t.Capability)
}
