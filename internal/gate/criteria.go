package gate

import "github.com/agentmesh/conductor/pkg/models"

// Criterion is one weighted check a phase gate scores. Weights for a
// phase sum to 100.
type Criterion struct {
	Name   string `yaml:"name"`
	Weight int    `yaml:"weight"`
}

// defaultCriteria is the built-in criterion set per phase. Weights can
// be overridden from configuration but the names are fixed.
var defaultCriteria = map[models.Phase][]Criterion{
	models.PhaseInitiation: {
		{Name: "charter_approved", Weight: 30},
		{Name: "risks_identified", Weight: 25},
		{Name: "stakeholders_mapped", Weight: 20},
		{Name: "feasibility_assessed", Weight: 25},
	},
	models.PhasePlanning: {
		{Name: "plan_complete", Weight: 30},
		{Name: "resources_allocated", Weight: 25},
		{Name: "schedule_defined", Weight: 20},
		{Name: "risk_plan_ready", Weight: 25},
	},
	models.PhaseExecution: {
		{Name: "implementation_complete", Weight: 40},
		{Name: "deliverables_produced", Weight: 35},
		{Name: "documentation_ready", Weight: 25},
	},
	models.PhaseMonitoring: {
		{Name: "progress_reported", Weight: 35},
		{Name: "quality_measured", Weight: 35},
		{Name: "issues_triaged", Weight: 30},
	},
	models.PhaseClosure: {
		{Name: "deliverables_accepted", Weight: 40},
		{Name: "lessons_recorded", Weight: 30},
		{Name: "closure_report_done", Weight: 30},
	},
}

// requiredDeliverables maps each phase to the deliverable types its
// exit gate expects to exist.
var requiredDeliverables = map[models.Phase][]string{
	models.PhaseInitiation: {
		"feasibility_assessment",
		"scope_definition",
		"stakeholder_identification",
		"initial_risk_assessment",
	},
	models.PhasePlanning: {
		"project_plan",
		"resource_allocation",
		"schedule",
		"risk_management_plan",
	},
	models.PhaseExecution: {
		"implementation",
		"code_deliverables",
		"documentation",
	},
	models.PhaseMonitoring: {
		"progress_reports",
		"quality_metrics",
		"issue_logs",
	},
	models.PhaseClosure: {
		"final_deliverables",
		"lessons_learned",
		"project_closure_report",
	},
}

// deliverableCoverageFloor is the fraction of required deliverable
// types that must be present before a gate will score at all.
const deliverableCoverageFloor = 0.7
