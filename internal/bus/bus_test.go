package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/agentmesh/conductor/pkg/models"
)

var (
	coordinator = models.Identity{AgentID: "coordinator-1", AgentType: "coordinator"}
	planner     = models.Identity{AgentID: "planner-1", AgentType: "planner"}
)

// collector records delivered messages and acks them unless told to fail.
type collector struct {
	mu       sync.Mutex
	bus      *Bus
	got      []models.Message
	failNext int
}

func (c *collector) handle(_ context.Context, msg models.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, msg)
	if c.failNext > 0 {
		c.failNext--
		return errors.New("handler refused delivery")
	}
	c.bus.Ack(msg.ID)
	return nil
}

func (c *collector) ids() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.got))
	for i, m := range c.got {
		out[i] = m.ID
	}
	return out
}

func mustMessage(t *testing.T, kind models.MessageKind, to models.Identity, prio models.Priority) models.Message {
	t.Helper()
	msg, err := models.NewMessage(kind, coordinator, to, prio, models.StatusUpdatePayload{TaskID: "t1", Status: "queued"})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	return msg
}

func TestPublishDeliverAck(t *testing.T) {
	b := New(DefaultConfig())
	c := &collector{bus: b}
	b.Subscribe(planner.AgentID, c.handle)

	msg := mustMessage(t, models.KindTaskRequest, planner, models.PriorityNormal)
	if err := b.Publish(msg); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	b.dispatch(context.Background())

	if got := c.ids(); len(got) != 1 || got[0] != msg.ID {
		t.Fatalf("delivered %v, want [%s]", got, msg.ID)
	}
	s := b.Stats()
	if s.Delivered != 1 || s.Acked != 1 || s.Pending != 0 || s.Queued != 0 {
		t.Errorf("stats after ack: %+v", s)
	}
}

func TestPriorityOrder(t *testing.T) {
	b := New(DefaultConfig())
	c := &collector{bus: b}
	b.Subscribe(planner.AgentID, c.handle)

	low := mustMessage(t, models.KindStatusUpdate, planner, models.PriorityLow)
	critical := mustMessage(t, models.KindErrorReport, planner, models.PriorityCritical)
	normal := mustMessage(t, models.KindTaskRequest, planner, models.PriorityNormal)
	for _, m := range []models.Message{low, critical, normal} {
		if err := b.Publish(m); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	b.dispatch(context.Background())

	want := []string{critical.ID, normal.ID, low.ID}
	got := c.ids()
	if len(got) != 3 {
		t.Fatalf("delivered %d messages, want 3", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %s want %s", i, got[i], want[i])
		}
	}
}

func TestCorrelationOrderBeatsPriority(t *testing.T) {
	b := New(DefaultConfig())
	c := &collector{bus: b}
	b.Subscribe(planner.AgentID, c.handle)

	first := mustMessage(t, models.KindTaskRequest, planner, models.PriorityLow)
	second := mustMessage(t, models.KindErrorReport, planner, models.PriorityCritical).
		WithCorrelation(first.CorrelationID)
	if err := b.Publish(first); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := b.Publish(second); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	b.dispatch(context.Background())

	got := c.ids()
	if len(got) != 2 || got[0] != first.ID || got[1] != second.ID {
		t.Fatalf("correlated messages delivered %v, want publish order [%s %s]", got, first.ID, second.ID)
	}
}

func TestCorrelationHeldWhilePending(t *testing.T) {
	b := New(DefaultConfig())
	var delivered []string
	b.Subscribe(planner.AgentID, func(_ context.Context, msg models.Message) error {
		delivered = append(delivered, msg.ID)
		return nil // never ack
	})

	first := mustMessage(t, models.KindTaskRequest, planner, models.PriorityNormal)
	second := mustMessage(t, models.KindStatusUpdate, planner, models.PriorityNormal).
		WithCorrelation(first.CorrelationID)
	b.Publish(first)
	b.Publish(second)
	b.dispatch(context.Background())

	if len(delivered) != 1 || delivered[0] != first.ID {
		t.Fatalf("delivered %v while first unacked, want only %s", delivered, first.ID)
	}
	b.Ack(first.ID)
	b.dispatch(context.Background())
	if len(delivered) != 2 || delivered[1] != second.ID {
		t.Fatalf("after ack delivered %v, want %s last", delivered, second.ID)
	}
}

func TestAckTimeoutRedelivers(t *testing.T) {
	cfg := DefaultConfig()
	b := New(cfg)
	now := time.Now()
	b.SetClock(func() time.Time { return now })

	var delivered int
	b.Subscribe(planner.AgentID, func(_ context.Context, _ models.Message) error {
		delivered++
		return nil // never ack
	})
	b.Publish(mustMessage(t, models.KindTaskRequest, planner, models.PriorityNormal))
	b.dispatch(context.Background())
	if delivered != 1 {
		t.Fatalf("delivered = %d, want 1", delivered)
	}

	now = now.Add(cfg.AckTimeout + time.Second)
	b.sweep()
	b.dispatch(context.Background())
	if delivered != 1 {
		t.Fatalf("delivered = %d inside redelivery backoff, want still 1", delivered)
	}

	now = now.Add(cfg.RedeliveryMaxDelay)
	b.dispatch(context.Background())
	if delivered != 2 {
		t.Fatalf("delivered = %d after ack timeout and backoff, want 2", delivered)
	}
	if s := b.Stats(); s.Redelivered != 1 {
		t.Errorf("Redelivered = %d, want 1", s.Redelivered)
	}
}

func TestDeadLetterAfterMaxDeliveries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDeliveries = 3
	b := New(cfg)
	now := time.Now()
	b.SetClock(func() time.Time { return now })
	c := &collector{bus: b, failNext: 3}
	b.Subscribe(planner.AgentID, c.handle)
	b.Subscribe(coordinator.AgentID, c.handle) // receives the error report

	msg := mustMessage(t, models.KindTaskRequest, planner, models.PriorityNormal)
	b.Publish(msg)
	for i := 0; i < 3; i++ {
		b.dispatch(context.Background())
		now = now.Add(cfg.RedeliveryMaxDelay + time.Second)
	}
	b.dispatch(context.Background())

	dead := b.DeadLetters()
	if len(dead) != 1 || dead[0].ID != msg.ID {
		t.Fatalf("dead letters %v, want [%s]", dead, msg.ID)
	}
	if s := b.Stats(); s.DeadLettered != 1 {
		t.Errorf("DeadLettered = %d, want 1", s.DeadLettered)
	}

	// Sender sees one error report for the failed message.
	var reports int
	for _, m := range c.got {
		if m.Kind == models.KindErrorReport && m.Recipient.AgentID == coordinator.AgentID {
			reports++
			if m.CorrelationID != msg.CorrelationID {
				t.Errorf("error report correlation = %s, want %s", m.CorrelationID, msg.CorrelationID)
			}
		}
	}
	if reports != 1 {
		t.Errorf("sender received %d error reports, want exactly 1", reports)
	}

	// Further sweeps must not dead-letter or notify again.
	b.sweep()
	b.dispatch(context.Background())
	if s := b.Stats(); s.DeadLettered != 1 {
		t.Errorf("DeadLettered grew to %d on resweep", s.DeadLettered)
	}
}

func TestExpiredMessageDropped(t *testing.T) {
	b := New(DefaultConfig())
	now := time.Now()
	b.SetClock(func() time.Time { return now })
	c := &collector{bus: b}
	b.Subscribe(planner.AgentID, c.handle)

	msg := mustMessage(t, models.KindContextShare, planner, models.PriorityLow)
	msg.TTLSeconds = 60
	b.Publish(msg)

	now = now.Add(2 * time.Minute)
	b.sweep()
	b.dispatch(context.Background())

	if len(c.ids()) != 0 {
		t.Fatalf("expired message was delivered: %v", c.ids())
	}
	if s := b.Stats(); s.Expired != 1 || s.Queued != 0 {
		t.Errorf("stats after expiry: %+v", s)
	}
}

func TestNackRequeuesWithBackoff(t *testing.T) {
	cfg := DefaultConfig()
	b := New(cfg)
	now := time.Now()
	b.SetClock(func() time.Time { return now })
	var delivered int
	b.Subscribe(planner.AgentID, func(_ context.Context, msg models.Message) error {
		delivered++
		if delivered == 1 {
			b.Nack(msg.ID)
			return nil
		}
		b.Ack(msg.ID)
		return nil
	})
	b.Publish(mustMessage(t, models.KindTaskRequest, planner, models.PriorityNormal))
	b.dispatch(context.Background())

	// The nacked message waits out the backoff before redelivery.
	if delivered != 1 {
		t.Fatalf("delivered = %d inside backoff, want 1", delivered)
	}
	now = now.Add(cfg.RedeliveryDelay)
	b.dispatch(context.Background())
	if delivered != 2 {
		t.Fatalf("delivered = %d after backoff, want redelivery", delivered)
	}
}

func TestRedeliveryDelayGrows(t *testing.T) {
	cfg := DefaultConfig()
	b := New(cfg)
	if d := b.redeliveryDelay(1); d != cfg.RedeliveryDelay {
		t.Errorf("first redelivery delay = %v, want %v", d, cfg.RedeliveryDelay)
	}
	if d := b.redeliveryDelay(2); d != 2*cfg.RedeliveryDelay {
		t.Errorf("second redelivery delay = %v, want doubled", d)
	}
	if d := b.redeliveryDelay(40); d != cfg.RedeliveryMaxDelay {
		t.Errorf("grown delay = %v, want capped at %v", d, cfg.RedeliveryMaxDelay)
	}
}

func TestNoSubscriberKeepsQueued(t *testing.T) {
	b := New(DefaultConfig())
	msg := mustMessage(t, models.KindTaskRequest, planner, models.PriorityNormal)
	b.Publish(msg)
	b.dispatch(context.Background())

	if s := b.Stats(); s.Queued != 1 || s.Delivered != 0 {
		t.Fatalf("message should wait for a subscriber: %+v", s)
	}

	c := &collector{bus: b}
	b.Subscribe(planner.AgentID, c.handle)
	b.dispatch(context.Background())
	if got := c.ids(); len(got) != 1 || got[0] != msg.ID {
		t.Fatalf("delivered %v after late subscribe, want [%s]", got, msg.ID)
	}
}

func TestPublishAfterStop(t *testing.T) {
	b := New(DefaultConfig())
	b.Stop()
	if err := b.Publish(mustMessage(t, models.KindTaskRequest, planner, models.PriorityNormal)); err == nil {
		t.Fatal("expected error publishing to stopped bus")
	}
}

func TestHistoryRing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistorySize = 3
	b := New(cfg)
	c := &collector{bus: b}
	b.Subscribe(planner.AgentID, c.handle)

	var last models.Message
	for i := 0; i < 5; i++ {
		last = mustMessage(t, models.KindStatusUpdate, planner, models.PriorityNormal)
		b.Publish(last)
	}
	b.dispatch(context.Background())

	h := b.History()
	if len(h) != 3 {
		t.Fatalf("history length = %d, want 3", len(h))
	}
	if h[2].ID != last.ID {
		t.Errorf("history tail = %s, want most recent %s", h[2].ID, last.ID)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	b := New(DefaultConfig())
	c := &collector{bus: b}
	done := make(chan struct{})
	b.Subscribe(planner.AgentID, func(ctx context.Context, msg models.Message) error {
		err := c.handle(ctx, msg)
		close(done)
		return err
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)
	defer b.Stop()

	if err := b.Publish(mustMessage(t, models.KindTaskRequest, planner, models.PriorityNormal)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered by dispatch loop")
	}
}
