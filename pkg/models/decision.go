package models

import "time"

// GateOutcome is the verdict of a phase gate evaluation.
type GateOutcome string

const (
	// GateGo advances the project to the next phase.
	GateGo GateOutcome = "GO"
	// GateConditionalGo allows work to continue in the current phase with
	// required actions; the phase does not advance.
	GateConditionalGo GateOutcome = "CONDITIONAL_GO"
	// GateNoGo blocks phase advancement.
	GateNoGo GateOutcome = "NO_GO"
)

// Valid returns true if the outcome is a known value.
func (o GateOutcome) Valid() bool {
	switch o {
	case GateGo, GateConditionalGo, GateNoGo:
		return true
	default:
		return false
	}
}

// GateIssue is a problem surfaced by a gate criterion during evaluation.
type GateIssue struct {
	// Criterion names the criterion that raised the issue.
	Criterion string `json:"criterion"`
	// Severity ranks the issue.
	Severity Severity `json:"severity"`
	// Description explains the issue.
	Description string `json:"description"`
	// Blocking marks a hard blocker that forces NO_GO regardless of score.
	Blocking bool `json:"blocking"`
}

// CriterionScore is the scored result of a single weighted gate criterion.
type CriterionScore struct {
	// Name identifies the criterion.
	Name string `json:"name"`
	// Weight is the criterion's share of the overall score; weights for a
	// gate sum to 100.
	Weight int `json:"weight"`
	// Score is the criterion's raw score, 0-100.
	Score float64 `json:"score"`
	// Issues lists problems found while scoring.
	Issues []GateIssue `json:"issues,omitempty"`
}

// GateDecision is the immutable, auditable record of one phase gate
// evaluation. It is created exclusively by the gate evaluator.
type GateDecision struct {
	// ID is the unique identifier for this decision.
	ID string `json:"id"`
	// ProjectID is the evaluated project.
	ProjectID string `json:"project_id"`
	// GateNumber is the ordinal of the gate (1 = initiation exit).
	GateNumber int `json:"gate_number"`
	// FromPhase is the phase under review.
	FromPhase Phase `json:"from_phase"`
	// ToPhase is the phase entered on GO.
	ToPhase Phase `json:"to_phase"`
	// Outcome is the gate verdict.
	Outcome GateOutcome `json:"outcome"`
	// OverallScore is the weighted sum of criterion scores, 0-100.
	OverallScore float64 `json:"overall_score"`
	// Criteria is the full per-criterion breakdown.
	Criteria []CriterionScore `json:"criteria"`
	// BlockingIssues lists the hard blockers that forced NO_GO, if any.
	BlockingIssues []GateIssue `json:"blocking_issues,omitempty"`
	// RequiredActions lists remediation steps for a CONDITIONAL_GO.
	RequiredActions []string `json:"required_actions,omitempty"`
	// EvaluatedBy is the agent that performed the evaluation.
	EvaluatedBy string `json:"evaluated_by"`
	// CreatedAt is when the decision was recorded.
	CreatedAt time.Time `json:"created_at"`
}
