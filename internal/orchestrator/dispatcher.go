package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/agentmesh/conductor/internal/bus"
	"github.com/agentmesh/conductor/internal/errs"
	"github.com/agentmesh/conductor/internal/registry"
	"github.com/agentmesh/conductor/internal/retry"
	"github.com/agentmesh/conductor/internal/router"
	"github.com/agentmesh/conductor/pkg/models"
)

// DispatchResult is the terminal outcome of one dispatch.
type DispatchResult struct {
	// State is Succeeded or Escalated.
	State DispatchState
	// Result holds the specialist's payload when State is Succeeded.
	Result models.TaskResultPayload
	// Report carries the failure chain when State is Escalated.
	Report *models.ErrorReportPayload
	// Attempts is the number of delivery attempts made.
	Attempts int
	// AgentID is the specialist that produced the final outcome.
	AgentID string
}

// Dispatcher is the supervisor tier's engine: it routes a task to a
// specialist endpoint, publishes the request, and waits for the
// correlated result. Transient failures are retried under the retry
// policy with the endpoint's circuit breaker recording each outcome;
// deadline expiry and non-retryable failures end in escalation.
type Dispatcher struct {
	identity models.Identity
	bus      *bus.Bus
	registry *registry.Registry
	router   *router.Router
	policy   retry.Policy
	retries  *retry.Manager
	emitter  *EventEmitter

	mu          sync.Mutex
	pending     map[string]chan models.Message
	unsubscribe func()
}

// NewDispatcher creates the supervisor dispatcher. Call Start before
// dispatching.
func NewDispatcher(b *bus.Bus, reg *registry.Registry, policy retry.Policy, emitter *EventEmitter) *Dispatcher {
	return &Dispatcher{
		identity: models.Identity{AgentID: tierInbox(TierSupervisor), AgentType: string(TierSupervisor)},
		bus:      b,
		registry: reg,
		router:   router.New(reg),
		policy:   policy,
		retries:  retry.NewManager(),
		emitter:  emitter,
	}
}

// Start subscribes the supervisor inbox.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	d.pending = make(map[string]chan models.Message)
	d.mu.Unlock()
	d.unsubscribe = d.bus.Subscribe(d.identity.AgentID, d.receive)
}

// Stop unsubscribes the inbox.
func (d *Dispatcher) Stop() {
	if d.unsubscribe != nil {
		d.unsubscribe()
	}
}

// Identity returns the dispatcher's bus identity.
func (d *Dispatcher) Identity() models.Identity {
	return d.identity
}

// Dispatch runs one task to completion: route, publish, await, retry
// on transient failure. The returned result is Succeeded or Escalated;
// it never returns a half-finished state. A task deadline that expires
// mid-flight escalates immediately regardless of remaining retry
// budget.
func (d *Dispatcher) Dispatch(ctx context.Context, task *models.Task) DispatchResult {
	d.emitter.Emit(Event{Type: EventTaskPlanned, ProjectID: task.ProjectID, TaskID: task.ID, Message: string(StatePlanned)})

	if task.Deadline != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, *task.Deadline)
		defer cancel()
	}

	state := d.retries.GetOrCreateState(task.ID, task.MaxRetries)
	policy := d.policy
	policy.MaxAttempts = task.MaxRetries - state.RetryCount
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	attempts := 0
	var lastAgent string
	var lastReport *models.ErrorReportPayload
	outcome, err := retry.Execute(ctx, policy, func(attemptCtx context.Context) (dispatchOutcome, error) {
		attempts++
		if attempts > 1 {
			d.emitter.Emit(Event{Type: EventTaskRetrying, ProjectID: task.ProjectID, TaskID: task.ID, Message: string(StateRetrying)})
		}
		out, err := d.attempt(attemptCtx, task)
		lastAgent = out.agentID
		lastReport = out.report
		d.retries.RecordAttempt(task.ID, err == nil, errString(err))
		return out, err
	})

	if err != nil {
		debugLog("dispatch: task %s failed after %d attempts: %v", task.ID, attempts, err)
		report := BuildErrorReport(task.ID, err, lastReport)
		if deadlineExpired(ctx) {
			report.Error.Code = "DEADLINE_EXPIRED"
			report.Error.Type = string(errs.ClassFatal)
			report.Recoverable = false
		}
		report.EscalationRequired = true
		return DispatchResult{State: StateEscalated, Report: &report, Attempts: attempts, AgentID: lastAgent}
	}

	d.emitter.Emit(Event{Type: EventTaskSucceeded, ProjectID: task.ProjectID, TaskID: task.ID, Message: string(StateSucceeded)})
	d.retries.Reset(task.ID)
	return DispatchResult{State: StateSucceeded, Result: outcome.result, Attempts: attempts, AgentID: outcome.agentID}
}

type dispatchOutcome struct {
	result  models.TaskResultPayload
	agentID string
	// report holds the specialist's error report verbatim when the
	// attempt ended in one, so escalation keeps the root cause.
	report *models.ErrorReportPayload
}

// attempt performs a single route-publish-await cycle against one
// specialist.
func (d *Dispatcher) attempt(ctx context.Context, task *models.Task) (dispatchOutcome, error) {
	ep, err := d.router.Route(task.Capability, task.AssignedAgentID)
	if err != nil {
		return dispatchOutcome{}, err
	}
	debugLog("dispatch: task %s routed to %s", task.ID, ep.ID)
	var br breakerRecorder
	if b := d.registry.Breaker(ep.ID); b != nil {
		if err := b.Allow(); err != nil {
			return dispatchOutcome{}, err
		}
		br = b
	}

	req := models.TaskRequestPayload{
		TaskID:      task.ID,
		Capability:  task.Capability,
		Description: task.Description,
		Deadline:    task.Deadline,
	}
	if len(task.Metadata) > 0 {
		req.Requirements = task.Metadata
	}
	msg, err := models.NewMessage(models.KindTaskRequest, d.identity,
		models.Identity{AgentID: ep.ID, AgentType: ep.AgentType}, task.Priority, req)
	if err != nil {
		return dispatchOutcome{}, err
	}

	replies := d.await(msg.CorrelationID)
	defer d.forget(msg.CorrelationID)
	if err := d.bus.Publish(msg); err != nil {
		return dispatchOutcome{}, err
	}
	d.emitter.Emit(Event{Type: EventTaskDispatched, ProjectID: task.ProjectID, TaskID: task.ID,
		Message: fmt.Sprintf("%s -> %s", StateDispatched, ep.ID)})

	for {
		select {
		case <-ctx.Done():
			d.recordOutcome(br, false)
			return dispatchOutcome{agentID: ep.ID}, fmt.Errorf("awaiting result for task %s: %w", task.ID, errs.ErrTimeout)
		case reply := <-replies:
			out, done, err := d.consume(br, ep.ID, reply)
			if !done {
				continue
			}
			return out, err
		}
	}
}

// consume interprets one correlated reply. Status updates keep the
// wait alive; results and error reports finish the attempt.
func (d *Dispatcher) consume(br breakerRecorder, agentID string, reply models.Message) (dispatchOutcome, bool, error) {
	switch reply.Kind {
	case models.KindStatusUpdate:
		return dispatchOutcome{}, false, nil
	case models.KindTaskResult:
		var result models.TaskResultPayload
		if err := json.Unmarshal(reply.Payload, &result); err != nil {
			d.recordOutcome(br, false)
			return dispatchOutcome{agentID: agentID}, true,
				errs.Wrap(errs.ClassCapability, "BAD_RESULT", err)
		}
		if result.Status == models.ResultFailure {
			d.recordOutcome(br, false)
			return dispatchOutcome{agentID: agentID}, true,
				errs.Newf(errs.ClassCapability, "TASK_FAILED", "specialist reported failure: %s", result.Summary)
		}
		d.recordOutcome(br, true)
		return dispatchOutcome{result: result, agentID: agentID}, true, nil
	case models.KindErrorReport:
		var report models.ErrorReportPayload
		if err := json.Unmarshal(reply.Payload, &report); err != nil {
			d.recordOutcome(br, false)
			return dispatchOutcome{agentID: agentID}, true,
				errs.Wrap(errs.ClassCapability, "BAD_REPORT", err)
		}
		d.recordOutcome(br, false)
		class := errs.Class(report.Error.Type)
		if class == "" {
			class = errs.ClassCapability
		}
		return dispatchOutcome{agentID: agentID, report: &report}, true,
			errs.New(class, report.Error.Code, report.Error.Message)
	default:
		return dispatchOutcome{}, false, nil
	}
}

type breakerRecorder interface {
	RecordSuccess()
	RecordFailure()
}

func (d *Dispatcher) recordOutcome(br breakerRecorder, success bool) {
	if br == nil {
		return
	}
	if success {
		br.RecordSuccess()
	} else {
		br.RecordFailure()
	}
}

// receive is the supervisor inbox handler: replies are matched to
// waiting dispatches by correlation ID.
func (d *Dispatcher) receive(_ context.Context, msg models.Message) error {
	d.bus.Ack(msg.ID)
	d.mu.Lock()
	ch, ok := d.pending[msg.CorrelationID]
	d.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case ch <- msg:
	case <-time.After(time.Second):
	}
	return nil
}

func (d *Dispatcher) await(correlationID string) chan models.Message {
	ch := make(chan models.Message, 4)
	d.mu.Lock()
	d.pending[correlationID] = ch
	d.mu.Unlock()
	return ch
}

func (d *Dispatcher) forget(correlationID string) {
	d.mu.Lock()
	delete(d.pending, correlationID)
	d.mu.Unlock()
}

func deadlineExpired(ctx context.Context) bool {
	deadline, ok := ctx.Deadline()
	return ok && !time.Now().Before(deadline)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
