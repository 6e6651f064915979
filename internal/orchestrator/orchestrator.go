package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentmesh/conductor/internal/bus"
	"github.com/agentmesh/conductor/internal/capability"
	"github.com/agentmesh/conductor/internal/errs"
	"github.com/agentmesh/conductor/internal/gate"
	"github.com/agentmesh/conductor/internal/registry"
	"github.com/agentmesh/conductor/internal/retry"
	"github.com/agentmesh/conductor/internal/store"
	"github.com/agentmesh/conductor/pkg/models"
)

// Options configures an Orchestrator.
type Options struct {
	// RetryPolicy governs dispatch retries. Zero value uses defaults.
	RetryPolicy retry.Policy
	// EventBuffer sizes the event channel.
	EventBuffer int
	// MaxParallelDispatch caps concurrently dispatched tasks.
	MaxParallelDispatch int
	// TaskDeadline, when non-zero, bounds execution of tasks that carry
	// no deadline of their own.
	TaskDeadline time.Duration
	// DebugLogPath, when non-empty, enables the file-based debug log
	// the package's components write through.
	DebugLogPath string
}

// Orchestrator is the coordinator tier. It owns the project run loop:
// plan a phase, dispatch its tasks, absorb escalations, evaluate the
// exit gate, and advance or halt.
type Orchestrator struct {
	store        store.Store
	bus          *bus.Bus
	registry     *registry.Registry
	capabilities *capability.Registry
	evaluator    *gate.Evaluator
	planner      *Planner
	dispatcher   *Dispatcher
	escalator    *Escalator
	emitter      *EventEmitter
	identity     models.Identity
	maxParallel  int
	taskDeadline time.Duration
	debugLogger  *DebugLogger

	unsubscribes []func()
}

// New wires an Orchestrator from its collaborators.
func New(st store.Store, b *bus.Bus, reg *registry.Registry, caps *capability.Registry, evaluator *gate.Evaluator, opts Options) *Orchestrator {
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 256
	}
	if opts.MaxParallelDispatch <= 0 {
		opts.MaxParallelDispatch = 4
	}
	policy := opts.RetryPolicy
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy()
	}
	emitter := NewEventEmitter(opts.EventBuffer)
	debugLogger := NopLogger()
	if opts.DebugLogPath != "" {
		if l, err := NewDebugLogger(opts.DebugLogPath); err == nil {
			debugLogger = l
		}
	}
	setPackageLogger(debugLogger)
	return &Orchestrator{
		debugLogger:  debugLogger,
		store:        st,
		bus:          b,
		registry:     reg,
		capabilities: caps,
		evaluator:    evaluator,
		planner:      NewPlanner(),
		dispatcher:   NewDispatcher(b, reg, policy, emitter),
		escalator:    NewEscalator(b, emitter),
		emitter:      emitter,
		identity:     models.Identity{AgentID: tierInbox(TierCoordinator), AgentType: string(TierCoordinator)},
		maxParallel:  opts.MaxParallelDispatch,
		taskDeadline: opts.TaskDeadline,
	}
}

// Events exposes the orchestrator's event stream.
func (o *Orchestrator) Events() <-chan Event {
	return o.emitter.Events()
}

// Registry exposes the agent endpoint registry.
func (o *Orchestrator) Registry() *registry.Registry {
	return o.registry
}

// Start launches specialist hosts for every registered capability and
// subscribes the tier inboxes.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.bus.Start(ctx)
	o.dispatcher.Start()

	// Tier inboxes ack escalation traffic so reports never dead-letter;
	// the run loop handles the failures synchronously.
	for _, inbox := range []string{tierInbox(TierPlanner), tierInbox(TierCoordinator)} {
		o.unsubscribes = append(o.unsubscribes, o.bus.Subscribe(inbox, o.ackInbox))
	}

	for _, kind := range o.capabilities.Kinds() {
		cap, err := o.capabilities.Get(kind)
		if err != nil {
			return err
		}
		host := NewSpecialistHost(kind+"-1", cap, o.bus, o.registry)
		if err := host.Start(ctx); err != nil {
			return fmt.Errorf("start specialist for %s: %w", kind, err)
		}
		o.unsubscribes = append(o.unsubscribes, host.Stop)
	}
	return nil
}

// Stop tears down specialists and inboxes. The bus is left to its
// owner.
func (o *Orchestrator) Stop() {
	o.dispatcher.Stop()
	for _, fn := range o.unsubscribes {
		fn()
	}
	o.unsubscribes = nil
	o.debugLogger.Close()
}

func (o *Orchestrator) ackInbox(_ context.Context, msg models.Message) error {
	o.bus.Ack(msg.ID)
	return nil
}

// CreateProject accepts a project request, creating state only when
// the planner's acceptance checks pass.
func (o *Orchestrator) CreateProject(name, description string, typ models.ProjectType) (*models.Project, error) {
	project := &models.Project{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		Type:        typ,
	}
	if err := o.planner.AcceptRequest(project, o.capabilities.Kinds()); err != nil {
		return nil, err
	}
	if err := o.store.CreateProject(project); err != nil {
		return nil, err
	}
	return project, nil
}

// RunSummary reports how a project run ended.
type RunSummary struct {
	ProjectID    string
	PhasesPassed []models.Phase
	LastDecision *models.GateDecision
	Completed    bool
}

// RunProject drives a project from its current phase until it
// completes, a gate refuses passage, or the context is canceled. The
// run is resumable: tasks already planned or completed are picked up
// where they left off.
func (o *Orchestrator) RunProject(ctx context.Context, projectID string) (*RunSummary, error) {
	project, err := o.store.GetProject(projectID)
	if err != nil {
		return nil, err
	}
	if project.Status != models.ProjectActive {
		return nil, errs.Newf(errs.ClassValidation, "PROJECT_NOT_ACTIVE", "project %s is %s", projectID, project.Status)
	}

	summary := &RunSummary{ProjectID: projectID}
	o.emitter.Emit(Event{Type: EventProjectStarted, ProjectID: projectID, Phase: string(project.CurrentPhase)})

	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		phase := project.CurrentPhase
		o.emitter.Emit(Event{Type: EventPhaseStarted, ProjectID: projectID, Phase: string(phase)})

		if err := o.ensurePhasePlanned(project); err != nil {
			return summary, err
		}
		if err := o.runPhaseTasks(ctx, project); err != nil {
			return summary, err
		}

		decision, err := o.evaluateGate(project)
		if err != nil {
			return summary, err
		}
		summary.LastDecision = decision
		debugLog("gate: project %s phase %s scored %.2f -> %s", projectID, phase, decision.OverallScore, decision.Outcome)
		o.emitter.Emit(Event{Type: EventGateEvaluated, ProjectID: projectID, Phase: string(phase),
			Message: fmt.Sprintf("%s score=%.2f", decision.Outcome, decision.OverallScore)})

		if decision.Outcome != models.GateGo {
			if err := o.store.UpdateProjectStatus(projectID, models.ProjectPaused); err != nil {
				return summary, err
			}
			o.emitter.Emit(Event{Type: EventProjectHalted, ProjectID: projectID, Phase: string(phase),
				Message: string(decision.Outcome)})
			return summary, nil
		}
		summary.PhasesPassed = append(summary.PhasesPassed, phase)

		project, err = o.store.GetProject(projectID)
		if err != nil {
			return summary, err
		}
		if project.Status == models.ProjectCompleted {
			summary.Completed = true
			o.emitter.Emit(Event{Type: EventProjectDone, ProjectID: projectID})
			return summary, nil
		}
	}
}

// ensurePhasePlanned creates the phase's task plan unless tasks for it
// already exist from an earlier interrupted run.
func (o *Orchestrator) ensurePhasePlanned(project *models.Project) error {
	if existing, err := o.phaseTasks(project); err != nil {
		return err
	} else if len(existing) > 0 {
		return nil
	}

	tasks, err := o.planner.PlanPhase(project)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if err := o.store.CreateTask(t); err != nil {
			return err
		}
		o.emitter.Emit(Event{Type: EventTaskPlanned, ProjectID: project.ID, TaskID: t.ID,
			Phase: string(project.CurrentPhase), Message: describeTask(t)})
	}
	return nil
}

// runPhaseTasks dispatches the phase's ready tasks, in waves, until
// none remain runnable.
func (o *Orchestrator) runPhaseTasks(ctx context.Context, project *models.Project) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ready, err := o.store.ReadyTasks(project.ID)
		if err != nil {
			return err
		}
		wave := make([]models.Task, 0, len(ready))
		for _, t := range ready {
			if t.Metadata["phase"] == string(project.CurrentPhase) {
				wave = append(wave, t)
			}
			if len(wave) == o.maxParallel {
				break
			}
		}
		if len(wave) == 0 {
			return nil
		}

		var wg sync.WaitGroup
		errCh := make(chan error, len(wave))
		for i := range wave {
			task := wave[i]
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := o.runTask(ctx, &task); err != nil {
					errCh <- err
				}
			}()
		}
		wg.Wait()
		close(errCh)
		if err := <-errCh; err != nil {
			return err
		}
	}
}

// runTask executes one task end to end and settles its final state in
// the store.
func (o *Orchestrator) runTask(ctx context.Context, task *models.Task) error {
	if err := o.store.TransitionTask(task.ID, models.TaskInProgress, task.ID, ""); err != nil {
		return err
	}
	if task.Deadline == nil && o.taskDeadline > 0 {
		deadline := time.Now().Add(o.taskDeadline)
		task.Deadline = &deadline
	}

	result := o.dispatcher.Dispatch(ctx, task)
	if result.AgentID != "" {
		if err := o.store.AssignTask(task.ID, result.AgentID, task.ID); err != nil {
			return err
		}
	}

	if result.State == StateSucceeded {
		if err := o.saveDeliverables(task, result); err != nil {
			return err
		}
		if err := o.store.UpdateTaskProgress(task.ID, 100); err != nil {
			return err
		}
		return o.store.TransitionTask(task.ID, models.TaskCompleted, task.ID, "")
	}
	return o.absorbEscalation(task, result)
}

// saveDeliverables persists the deliverables of a successful result.
// Failed results never produce deliverables.
func (o *Orchestrator) saveDeliverables(task *models.Task, result DispatchResult) error {
	for _, d := range result.Result.Deliverables {
		saved := d
		if saved.ID == "" {
			saved.ID = uuid.New().String()
		}
		saved.ProjectID = task.ProjectID
		saved.TaskID = task.ID
		if saved.CreatedBy == "" {
			saved.CreatedBy = result.AgentID
		}
		if err := o.store.CreateDeliverable(&saved); err != nil {
			return err
		}
	}
	return nil
}

// absorbEscalation walks a failed dispatch up the hierarchy. The
// supervisor already gave up; the planner tier decides between a
// replan (requeue) and passing the failure to the coordinator, which
// fails the task and raises it on the issue register.
func (o *Orchestrator) absorbEscalation(task *models.Task, result DispatchResult) error {
	failure := errs.New(errs.Class(result.Report.Error.Type), result.Report.Error.Code, result.Report.Error.Message)
	if err := o.escalator.Escalate(o.dispatcher.Identity(), TierSupervisor, task, failure, result.Report.Cause, task.ID); err != nil {
		return err
	}

	// Planner hop: a recoverable failure with retry budget left gets
	// replanned as a fresh queued attempt.
	retries, err := o.store.IncrementTaskRetry(task.ID)
	if err != nil {
		return err
	}
	if result.Report.Recoverable && retries < task.MaxRetries {
		if err := o.store.TransitionTask(task.ID, models.TaskPaused, task.ID, "replanned after escalation"); err != nil {
			return err
		}
		return o.store.TransitionTask(task.ID, models.TaskQueued, task.ID, "replanned after escalation")
	}

	// Coordinator hop: terminal failure.
	if err := o.escalator.Escalate(o.planner.Identity(), TierPlanner, task, failure, result.Report, task.ID); err != nil {
		return err
	}
	if err := o.store.TransitionTask(task.ID, models.TaskFailed, task.ID, result.Report.Error.Message); err != nil {
		return err
	}
	return o.store.AddIssue(task.ProjectID, models.Issue{
		ID:          uuid.New().String(),
		Description: fmt.Sprintf("task %s failed: %s", describeTask(task), result.Report.Error.Message),
		Severity:    models.SeverityHigh,
	})
}

// evaluateGate scores and records the exit gate for the project's
// current phase.
func (o *Orchestrator) evaluateGate(project *models.Project) (*models.GateDecision, error) {
	tasks, err := o.phaseTasks(project)
	if err != nil {
		return nil, err
	}
	criteria := o.evaluator.Criteria(project.CurrentPhase)
	names := make([]string, len(criteria))
	for i, c := range criteria {
		names[i] = c.Name
	}

	risks, err := o.store.ListRisks(project.ID)
	if err != nil {
		return nil, err
	}
	issues, err := o.store.ListIssues(project.ID)
	if err != nil {
		return nil, err
	}
	blockers, err := o.store.ListBlockers(project.ID)
	if err != nil {
		return nil, err
	}
	deliverables, err := o.store.ListCurrentDeliverables(project.ID)
	if err != nil {
		return nil, err
	}

	decision, err := o.evaluator.Evaluate(project, gate.Inputs{
		Scores:       PhaseScores(names, tasks),
		Register:     issues,
		Risks:        risks,
		Blockers:     blockers,
		Deliverables: deliverables,
		EvaluatedBy:  o.identity.AgentID,
	})
	if err != nil {
		return nil, err
	}
	if err := o.store.RecordGateDecision(decision); err != nil {
		return nil, err
	}
	return decision, nil
}

func (o *Orchestrator) phaseTasks(project *models.Project) ([]models.Task, error) {
	all, err := o.store.ListTasksByProject(project.ID)
	if err != nil {
		return nil, err
	}
	var tasks []models.Task
	for _, t := range all {
		if t.Metadata["phase"] == string(project.CurrentPhase) {
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}
