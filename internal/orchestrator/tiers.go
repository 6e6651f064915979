package orchestrator

// Tier is a level in the agent hierarchy. Escalations climb exactly
// one tier per hop.
type Tier string

const (
	// TierCoordinator owns projects and phase gates. It is the top of
	// the escalation chain.
	TierCoordinator Tier = "coordinator"
	// TierPlanner turns phases into task plans.
	TierPlanner Tier = "planner"
	// TierSupervisor dispatches tasks to specialists and supervises
	// their execution.
	TierSupervisor Tier = "supervisor"
	// TierSpecialist executes capability work. It is the bottom tier.
	TierSpecialist Tier = "specialist"
)

// Above returns the next tier up. The second return is false at the
// top of the hierarchy.
func (t Tier) Above() (Tier, bool) {
	switch t {
	case TierSpecialist:
		return TierSupervisor, true
	case TierSupervisor:
		return TierPlanner, true
	case TierPlanner:
		return TierCoordinator, true
	default:
		return t, false
	}
}

// DispatchState tracks one task's journey through a tier driver.
type DispatchState string

const (
	// StatePlanned means the task exists but has not been sent out.
	StatePlanned DispatchState = "planned"
	// StateDispatched means the task request is on the bus.
	StateDispatched DispatchState = "dispatched"
	// StateAwaiting means the request was delivered and a result is
	// expected.
	StateAwaiting DispatchState = "awaiting"
	// StateSucceeded means a success result arrived.
	StateSucceeded DispatchState = "succeeded"
	// StateRetrying means a transient failure is being retried.
	StateRetrying DispatchState = "retrying"
	// StateEscalated means the tier gave up and handed the failure one
	// tier up. Deadline expiry always lands here, never in retry.
	StateEscalated DispatchState = "escalated"
)
