package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/agentmesh/conductor/internal/bus"
	"github.com/agentmesh/conductor/internal/errs"
	"github.com/agentmesh/conductor/pkg/models"
)

// startBus runs a bus for the duration of the test.
func startBus(t *testing.T) *bus.Bus {
	t.Helper()
	b := bus.New(bus.DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	b.Start(ctx)
	t.Cleanup(func() {
		cancel()
		b.Stop()
	})
	return b
}

// inboxCollector subscribes an address and records everything
// delivered to it.
type inboxCollector struct {
	mu       sync.Mutex
	messages []models.Message
}

func collectInbox(t *testing.T, b *bus.Bus, address string) *inboxCollector {
	t.Helper()
	c := &inboxCollector{}
	unsubscribe := b.Subscribe(address, func(_ context.Context, msg models.Message) error {
		b.Ack(msg.ID)
		c.mu.Lock()
		c.messages = append(c.messages, msg)
		c.mu.Unlock()
		return nil
	})
	t.Cleanup(unsubscribe)
	return c
}

func (c *inboxCollector) wait(t *testing.T, n int) []models.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		got := len(c.messages)
		c.mu.Unlock()
		if got >= n {
			c.mu.Lock()
			defer c.mu.Unlock()
			return append([]models.Message(nil), c.messages...)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d messages on inbox", n)
	return nil
}

func TestEscalateOneHopUp(t *testing.T) {
	b := startBus(t)
	planner := collectInbox(t, b, tierInbox(TierPlanner))
	e := NewEscalator(b, NewEventEmitter(16))

	task := &models.Task{ID: "t1", ProjectID: "p1"}
	failure := errs.New(errs.ClassTransient, "TIMEOUT", "specialist timed out")
	from := models.Identity{AgentID: tierInbox(TierSupervisor), AgentType: string(TierSupervisor)}
	if err := e.Escalate(from, TierSupervisor, task, failure, nil, "t1"); err != nil {
		t.Fatalf("Escalate: %v", err)
	}

	msgs := planner.wait(t, 1)
	msg := msgs[0]
	if msg.Kind != models.KindErrorReport {
		t.Errorf("kind = %s, want %s", msg.Kind, models.KindErrorReport)
	}
	if msg.CorrelationID != "t1" {
		t.Errorf("correlation = %q, want t1", msg.CorrelationID)
	}
	var report models.ErrorReportPayload
	if err := json.Unmarshal(msg.Payload, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Error.Code != "TIMEOUT" || !report.Recoverable || !report.EscalationRequired {
		t.Errorf("report = %+v, want recoverable TIMEOUT requiring escalation", report)
	}
}

func TestEscalateChainsCause(t *testing.T) {
	b := startBus(t)
	coordinator := collectInbox(t, b, tierInbox(TierCoordinator))
	e := NewEscalator(b, NewEventEmitter(16))

	task := &models.Task{ID: "t1", ProjectID: "p1"}
	first := BuildErrorReport("t1", errs.New(errs.ClassCapability, "TASK_FAILED", "bad output"), nil)
	from := models.Identity{AgentID: tierInbox(TierPlanner), AgentType: string(TierPlanner)}
	failure := errs.New(errs.ClassFatal, "REPLAN_EXHAUSTED", "no replan available")
	if err := e.Escalate(from, TierPlanner, task, failure, &first, "t1"); err != nil {
		t.Fatalf("Escalate: %v", err)
	}

	var report models.ErrorReportPayload
	if err := json.Unmarshal(coordinator.wait(t, 1)[0].Payload, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Error.Code != "REPLAN_EXHAUSTED" {
		t.Errorf("top code = %q", report.Error.Code)
	}
	if report.Cause == nil || report.Cause.Error.Code != "TASK_FAILED" {
		t.Errorf("cause chain lost: %+v", report.Cause)
	}
}

func TestEscalateAboveCoordinatorFails(t *testing.T) {
	b := startBus(t)
	e := NewEscalator(b, NewEventEmitter(16))

	task := &models.Task{ID: "t1", ProjectID: "p1"}
	from := models.Identity{AgentID: tierInbox(TierCoordinator), AgentType: string(TierCoordinator)}
	err := e.Escalate(from, TierCoordinator, task, errors.New("boom"), nil, "t1")
	if err == nil {
		t.Fatal("expected error escalating above the coordinator")
	}
	var cerr *errs.Error
	if !errors.As(err, &cerr) || cerr.Code != "TOP_OF_CHAIN" {
		t.Errorf("error = %v, want TOP_OF_CHAIN", err)
	}
}

func TestBuildErrorReportClassifies(t *testing.T) {
	report := BuildErrorReport("t1", errs.New(errs.ClassTransient, "TIMEOUT", "slow"), nil)
	if !report.Recoverable {
		t.Error("transient failure should be recoverable")
	}
	report = BuildErrorReport("t1", errs.New(errs.ClassCapability, "BAD_OUTPUT", "unusable result"), nil)
	if !report.Recoverable {
		t.Error("capability failure should be recoverable within the retry budget")
	}
	report = BuildErrorReport("t1", errs.New(errs.ClassFatal, "CORRUPT", "broken"), nil)
	if report.Recoverable {
		t.Error("fatal failure should not be recoverable")
	}
	report = BuildErrorReport("t1", errs.New(errs.ClassValidation, "BAD_PAYLOAD", "malformed request"), nil)
	if report.Recoverable {
		t.Error("validation failure should not be recoverable")
	}
	report = BuildErrorReport("t1", errors.New("plain"), nil)
	if report.Error.Code != "INTERNAL" {
		t.Errorf("plain error code = %q, want INTERNAL", report.Error.Code)
	}
}
