package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/agentmesh/conductor/internal/bus"
	"github.com/agentmesh/conductor/internal/capability"
	"github.com/agentmesh/conductor/internal/errs"
	"github.com/agentmesh/conductor/internal/registry"
	"github.com/agentmesh/conductor/pkg/models"
)

// SpecialistHost runs one specialist agent: it registers an endpoint
// for its capability, consumes task requests from the bus, executes
// them through the capability implementation, and reports results back
// to the requesting supervisor. Load reported on heartbeats is the
// number of in-flight tasks scaled to 0-100.
type SpecialistHost struct {
	identity models.Identity
	cap      capability.Capability
	bus      *bus.Bus
	registry *registry.Registry

	mu          sync.Mutex
	inFlight    int
	maxParallel int
	unsubscribe func()
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewSpecialistHost creates a host for the given capability. The
// agent ID doubles as the bus address.
func NewSpecialistHost(agentID string, cap capability.Capability, b *bus.Bus, reg *registry.Registry) *SpecialistHost {
	return &SpecialistHost{
		identity:    models.Identity{AgentID: agentID, AgentType: cap.Kind()},
		cap:         cap,
		bus:         b,
		registry:    reg,
		maxParallel: 4,
	}
}

// Start registers the endpoint and subscribes to the bus. The host
// runs until Stop or context cancellation.
func (h *SpecialistHost) Start(ctx context.Context) error {
	err := h.registry.Register(models.Endpoint{
		ID:            h.identity.AgentID,
		AgentType:     h.cap.Kind(),
		Capabilities:  []string{h.cap.Kind()},
		Status:        models.EndpointActive,
		LastHeartbeat: time.Now(),
	})
	if err != nil {
		return err
	}

	ctx, h.cancel = context.WithCancel(ctx)
	h.unsubscribe = h.bus.Subscribe(h.identity.AgentID, func(_ context.Context, msg models.Message) error {
		return h.handle(ctx, msg)
	})

	h.wg.Add(1)
	go h.heartbeatLoop(ctx)
	return nil
}

// Stop unsubscribes, waits for in-flight tasks, and deregisters the
// endpoint.
func (h *SpecialistHost) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
	h.wg.Wait()
	h.registry.Unregister(h.identity.AgentID)
}

// Identity returns the host's bus identity.
func (h *SpecialistHost) Identity() models.Identity {
	return h.identity
}

func (h *SpecialistHost) handle(ctx context.Context, msg models.Message) error {
	if msg.Kind != models.KindTaskRequest {
		h.bus.Ack(msg.ID)
		return nil
	}
	var req models.TaskRequestPayload
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		h.bus.Ack(msg.ID)
		h.report(msg, models.ErrorReportPayload{
			TaskID: req.TaskID,
			Error: models.ErrorDetail{
				Code:    "BAD_PAYLOAD",
				Type:    string(errs.ClassValidation),
				Message: err.Error(),
			},
		})
		return nil
	}

	h.mu.Lock()
	if h.inFlight >= h.maxParallel {
		h.mu.Unlock()
		// Leave the message unacked; it redelivers after the ack
		// window, by which time load should have drained.
		return nil
	}
	h.inFlight++
	h.mu.Unlock()
	h.bus.Ack(msg.ID)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer h.taskDone()
		h.execute(ctx, msg, req)
	}()
	return nil
}

func (h *SpecialistHost) execute(ctx context.Context, msg models.Message, req models.TaskRequestPayload) {
	if req.Deadline != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, *req.Deadline)
		defer cancel()
	}

	result, err := h.cap.Execute(ctx, req)
	if err != nil {
		h.report(msg, BuildErrorReport(req.TaskID, err, nil))
		return
	}
	if result.TaskID == "" {
		result.TaskID = req.TaskID
	}

	reply, merr := models.NewMessage(models.KindTaskResult, h.identity, msg.Sender, msg.Priority, result)
	if merr != nil {
		return
	}
	h.bus.Publish(reply.WithCorrelation(msg.CorrelationID))
}

// report sends an error report back to the requester.
func (h *SpecialistHost) report(msg models.Message, payload models.ErrorReportPayload) {
	reply, err := models.NewMessage(models.KindErrorReport, h.identity, msg.Sender, models.PriorityHigh, payload)
	if err != nil {
		return
	}
	h.bus.Publish(reply.WithCorrelation(msg.CorrelationID))
}

func (h *SpecialistHost) taskDone() {
	h.mu.Lock()
	h.inFlight--
	h.mu.Unlock()
	h.registry.Heartbeat(h.identity.AgentID, h.load(), models.EndpointActive)
}

func (h *SpecialistHost) load() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inFlight * 100 / h.maxParallel
}

func (h *SpecialistHost) heartbeatLoop(ctx context.Context) {
	defer h.wg.Done()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.registry.Heartbeat(h.identity.AgentID, h.load(), models.EndpointActive)
		}
	}
}
