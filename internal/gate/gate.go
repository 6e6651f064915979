// Package gate evaluates phase exit gates. Each gate scores a fixed
// set of weighted criteria for the project's current phase and
// produces a GO, CONDITIONAL_GO, or NO_GO decision. Unresolved
// critical blockers and missing required deliverables force NO_GO
// regardless of score, and an unresolved critical issue holds an
// otherwise passing score at CONDITIONAL_GO.
package gate

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agentmesh/conductor/internal/errs"
	"github.com/agentmesh/conductor/pkg/models"
)

// Thresholds on the weighted overall score, 0-100.
const (
	// DefaultGoThreshold is the minimum overall score for GO.
	DefaultGoThreshold = 85.0
	// DefaultConditionalThreshold is the minimum overall score for
	// CONDITIONAL_GO.
	DefaultConditionalThreshold = 70.0
)

// Inputs carries everything a gate evaluation reads: criterion scores
// from the reviewing agent plus the project's registers and
// deliverables.
type Inputs struct {
	// Scores maps criterion name to a raw 0-100 score. A criterion
	// without a score counts as zero.
	Scores map[string]float64
	// Issues are problems the reviewer attached to criteria.
	Issues []models.GateIssue
	// Register is the project's issue register. An unresolved critical
	// entry caps the outcome at CONDITIONAL_GO.
	Register []models.Issue
	// Risks is the project's risk register.
	Risks []models.Risk
	// Blockers is the project's blocker register.
	Blockers []models.Blocker
	// Deliverables are the project's current deliverables.
	Deliverables []models.Deliverable
	// EvaluatedBy names the agent performing the review.
	EvaluatedBy string
}

// Evaluator scores phase gates.
type Evaluator struct {
	criteria             map[models.Phase][]Criterion
	goThreshold          float64
	conditionalThreshold float64
}

// NewEvaluator returns an evaluator with the built-in criterion sets
// and default thresholds.
func NewEvaluator() *Evaluator {
	criteria := make(map[models.Phase][]Criterion, len(defaultCriteria))
	for phase, set := range defaultCriteria {
		criteria[phase] = append([]Criterion(nil), set...)
	}
	return &Evaluator{
		criteria:             criteria,
		goThreshold:          DefaultGoThreshold,
		conditionalThreshold: DefaultConditionalThreshold,
	}
}

// SetThresholds overrides the score thresholds. The GO threshold must
// not be below the CONDITIONAL_GO threshold.
func (e *Evaluator) SetThresholds(goThreshold, conditionalThreshold float64) error {
	if goThreshold < conditionalThreshold {
		return errs.New(errs.ClassValidation, "INVALID_THRESHOLDS", "GO threshold below CONDITIONAL_GO threshold")
	}
	e.goThreshold = goThreshold
	e.conditionalThreshold = conditionalThreshold
	return nil
}

// OverrideWeights replaces the weights for a phase's criteria. Every
// named criterion must already exist for the phase and the new weights
// must sum to 100.
func (e *Evaluator) OverrideWeights(phase models.Phase, weights map[string]int) error {
	set, ok := e.criteria[phase]
	if !ok {
		return errs.Newf(errs.ClassValidation, "UNKNOWN_PHASE", "no criteria for phase %q", phase)
	}
	total := 0
	updated := append([]Criterion(nil), set...)
	for name, w := range weights {
		found := false
		for i := range updated {
			if updated[i].Name == name {
				updated[i].Weight = w
				found = true
				break
			}
		}
		if !found {
			return errs.Newf(errs.ClassValidation, "UNKNOWN_CRITERION", "phase %s has no criterion %q", phase, name)
		}
	}
	for _, c := range updated {
		total += c.Weight
	}
	if total != 100 {
		return errs.Newf(errs.ClassValidation, "INVALID_WEIGHTS", "criterion weights for %s sum to %d, want 100", phase, total)
	}
	e.criteria[phase] = updated
	return nil
}

// Criteria returns the criterion set for a phase.
func (e *Evaluator) Criteria(phase models.Phase) []Criterion {
	return append([]Criterion(nil), e.criteria[phase]...)
}

// Evaluate scores the exit gate for the project's current phase. The
// returned decision is not yet persisted; callers record it through
// the store so the phase advance stays atomic with the decision.
func (e *Evaluator) Evaluate(p *models.Project, in Inputs) (*models.GateDecision, error) {
	phase := p.CurrentPhase
	set, ok := e.criteria[phase]
	if !ok {
		return nil, errs.Newf(errs.ClassValidation, "UNKNOWN_PHASE", "no criteria for phase %q", phase)
	}

	next, _ := phase.Next()
	d := &models.GateDecision{
		ID:          uuid.New().String(),
		ProjectID:   p.ID,
		GateNumber:  phase.Index() + 1,
		FromPhase:   phase,
		ToPhase:     next,
		EvaluatedBy: in.EvaluatedBy,
		CreatedAt:   time.Now(),
	}

	// Hard checks first. Either one ends the evaluation at NO_GO.
	if missing := missingDeliverables(phase, in.Deliverables); missing != nil {
		d.Outcome = models.GateNoGo
		d.BlockingIssues = append(d.BlockingIssues, models.GateIssue{
			Criterion:   "deliverable_coverage",
			Severity:    models.SeverityCritical,
			Description: "missing required deliverables: " + strings.Join(missing, ", "),
			Blocking:    true,
		})
		d.RequiredActions = append(d.RequiredActions, "produce missing deliverables: "+strings.Join(missing, ", "))
	}
	for _, b := range in.Blockers {
		if b.Severity == models.SeverityCritical && !b.Resolved {
			d.Outcome = models.GateNoGo
			d.BlockingIssues = append(d.BlockingIssues, models.GateIssue{
				Criterion:   "blockers_resolved",
				Severity:    models.SeverityCritical,
				Description: b.Description,
				Blocking:    true,
			})
			d.RequiredActions = append(d.RequiredActions, "resolve blocker: "+b.Description)
		}
	}
	for _, issue := range in.Issues {
		if issue.Blocking {
			d.Outcome = models.GateNoGo
			d.BlockingIssues = append(d.BlockingIssues, issue)
		}
	}

	// Score every criterion even when a hard check already decided the
	// outcome, so the record shows the full picture.
	var overall float64
	for _, c := range set {
		score := in.Scores[c.Name]
		if score < 0 {
			score = 0
		}
		if score > 100 {
			score = 100
		}
		cs := models.CriterionScore{Name: c.Name, Weight: c.Weight, Score: score}
		for _, issue := range in.Issues {
			if issue.Criterion == c.Name {
				cs.Issues = append(cs.Issues, issue)
			}
		}
		overall += float64(c.Weight) * score / 100
		d.Criteria = append(d.Criteria, cs)
	}
	d.OverallScore = overall

	if d.Outcome == models.GateNoGo {
		return d, nil
	}

	switch {
	case overall >= e.goThreshold:
		d.Outcome = models.GateGo
		if open := openCriticalIssues(in); len(open) > 0 {
			d.Outcome = models.GateConditionalGo
			for _, desc := range open {
				d.RequiredActions = append(d.RequiredActions, "resolve critical issue: "+desc)
			}
		}
	case overall >= e.conditionalThreshold:
		d.Outcome = models.GateConditionalGo
		d.RequiredActions = append(d.RequiredActions, remediationActions(d.Criteria, in)...)
	default:
		d.Outcome = models.GateNoGo
		d.RequiredActions = append(d.RequiredActions, remediationActions(d.Criteria, in)...)
	}
	return d, nil
}

// openCriticalIssues collects the critical problems that must be
// resolved before a clean GO: unresolved critical register entries and
// critical non-blocking reviewer issues.
func openCriticalIssues(in Inputs) []string {
	var open []string
	for _, i := range in.Register {
		if i.Severity == models.SeverityCritical && !i.Resolved {
			open = append(open, i.Description)
		}
	}
	for _, issue := range in.Issues {
		if issue.Severity == models.SeverityCritical && !issue.Blocking {
			open = append(open, issue.Description)
		}
	}
	return open
}

// missingDeliverables returns the required deliverable types a project
// lacks, or nil when coverage meets the floor.
func missingDeliverables(phase models.Phase, deliverables []models.Deliverable) []string {
	required := requiredDeliverables[phase]
	if len(required) == 0 {
		return nil
	}
	var missing []string
	present := 0
	for _, req := range required {
		found := false
		for _, del := range deliverables {
			if strings.Contains(strings.ToLower(del.Type), req) {
				found = true
				break
			}
		}
		if found {
			present++
		} else {
			missing = append(missing, req)
		}
	}
	if float64(present) >= float64(len(required))*deliverableCoverageFloor {
		return nil
	}
	return missing
}

// remediationActions derives the required-action list for a gate that
// did not pass cleanly: one action per underperforming criterion plus
// one per unmitigated critical risk.
func remediationActions(criteria []models.CriterionScore, in Inputs) []string {
	var actions []string
	for _, cs := range criteria {
		if cs.Score >= DefaultConditionalThreshold {
			continue
		}
		action := "improve " + cs.Name
		for _, issue := range cs.Issues {
			action += ": " + issue.Description
		}
		actions = append(actions, action)
	}
	for _, r := range in.Risks {
		if r.Severity == models.SeverityCritical && !r.Mitigated {
			actions = append(actions, "mitigate risk: "+r.Description)
		}
	}
	return actions
}
