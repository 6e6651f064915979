package capability

import (
	"context"
	"sync"

	"github.com/agentmesh/conductor/pkg/models"
)

// Step is one scripted outcome for a Scripted capability.
type Step struct {
	// Err, when non-nil, is returned instead of a result.
	Err error
	// Result is returned when Err is nil.
	Result models.TaskResultPayload
}

// Scripted is a capability that replays a fixed sequence of outcomes.
// It exists so the orchestration substrate can be exercised end to end
// without a real specialist behind it; the last step repeats once the
// script runs out.
type Scripted struct {
	kind string

	mu    sync.Mutex
	steps []Step
	calls int
}

// NewScripted builds a scripted capability of the given kind.
func NewScripted(kind string, steps ...Step) *Scripted {
	return &Scripted{kind: kind, steps: steps}
}

// Kind returns the capability type string.
func (s *Scripted) Kind() string { return s.kind }

// Execute replays the next scripted step.
func (s *Scripted) Execute(ctx context.Context, req models.TaskRequestPayload) (models.TaskResultPayload, error) {
	if err := ctx.Err(); err != nil {
		return models.TaskResultPayload{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.steps) == 0 {
		return models.TaskResultPayload{TaskID: req.TaskID, Status: models.ResultSuccess}, nil
	}
	i := s.calls
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	s.calls++
	step := s.steps[i]
	if step.Err != nil {
		return models.TaskResultPayload{}, step.Err
	}
	result := step.Result
	if result.TaskID == "" {
		result.TaskID = req.TaskID
	}
	if result.Status == "" {
		result.Status = models.ResultSuccess
	}
	return result, nil
}

// Calls returns how many times Execute ran.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
