package orchestrator

import (
	"errors"

	"github.com/agentmesh/conductor/internal/bus"
	"github.com/agentmesh/conductor/internal/errs"
	"github.com/agentmesh/conductor/pkg/models"
)

// Escalator moves failures up the agent hierarchy one tier at a time.
// Each hop wraps the previous report as the cause, so the top of the
// chain sees the full failure history.
type Escalator struct {
	bus     *bus.Bus
	emitter *EventEmitter
}

// NewEscalator creates an Escalator publishing on the given bus.
func NewEscalator(b *bus.Bus, emitter *EventEmitter) *Escalator {
	return &Escalator{bus: b, emitter: emitter}
}

// Escalate reports a task failure from the given tier to the tier
// above. The cause, if non-nil, is the report that already failed one
// tier down. Escalating from the coordinator is an error; there is no
// tier above it.
func (e *Escalator) Escalate(from models.Identity, fromTier Tier, task *models.Task, failure error, cause *models.ErrorReportPayload, correlationID string) error {
	above, ok := fromTier.Above()
	if !ok {
		return errs.New(errs.ClassFatal, "TOP_OF_CHAIN", "cannot escalate above the coordinator")
	}

	payload := BuildErrorReport(task.ID, failure, cause)
	payload.EscalationRequired = true

	msg, err := models.NewMessage(
		models.KindErrorReport,
		from,
		models.Identity{AgentID: tierInbox(above), AgentType: string(above)},
		models.PriorityHigh,
		payload,
	)
	if err != nil {
		return err
	}
	if correlationID != "" {
		msg = msg.WithCorrelation(correlationID)
	}
	if err := e.bus.Publish(msg); err != nil {
		return err
	}
	debugLog("escalation: task %s %s -> %s: %v", task.ID, fromTier, above, failure)
	e.emitter.Emit(Event{
		Type:      EventTaskEscalated,
		ProjectID: task.ProjectID,
		TaskID:    task.ID,
		Message:   "escalated to " + string(above) + ": " + failure.Error(),
	})
	return nil
}

// BuildErrorReport converts an error into a wire report, chaining the
// prior report as the cause.
func BuildErrorReport(taskID string, failure error, cause *models.ErrorReportPayload) models.ErrorReportPayload {
	class := errs.Classify(failure)
	code := "INTERNAL"
	var conductorErr *errs.Error
	if errors.As(failure, &conductorErr) {
		code = conductorErr.Code
	}
	return models.ErrorReportPayload{
		TaskID: taskID,
		Error: models.ErrorDetail{
			Code:    code,
			Type:    string(class),
			Message: failure.Error(),
		},
		// Transient failures retry inside the dispatch loop; capability
		// failures get the task-level retry budget instead. Only fatal
		// and validation failures are beyond retrying.
		Recoverable: class != errs.ClassFatal && class != errs.ClassValidation,
		Cause:       cause,
	}
}

// tierInbox returns the well-known bus address of a tier's driver.
func tierInbox(t Tier) string {
	return string(t) + "-inbox"
}
