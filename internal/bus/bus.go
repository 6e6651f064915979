// Package bus implements the in-process message bus agents communicate
// through. Delivery is at-least-once: a message stays pending until the
// recipient acknowledges it, is redelivered when the acknowledgement
// window lapses, and lands in the dead-letter set once redelivery
// attempts are exhausted. Messages that share a correlation ID are
// dispatched in publish order.
package bus

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/agentmesh/conductor/internal/errs"
	"github.com/agentmesh/conductor/pkg/models"
)

// Handler consumes a delivered message. A non-nil error counts as a
// failed delivery attempt and the message is redelivered.
type Handler func(ctx context.Context, msg models.Message) error

// Config controls delivery timing and bookkeeping limits.
type Config struct {
	// AckTimeout is how long a delivered message may sit unacknowledged
	// before it is redelivered.
	AckTimeout time.Duration
	// MaxDeliveries caps total delivery attempts per message. The
	// attempt that exceeds it moves the message to the dead-letter set.
	MaxDeliveries int
	// SweepInterval is how often pending and queued messages are
	// checked for ack expiry and TTL expiry.
	SweepInterval time.Duration
	// HistorySize bounds the delivered-message history ring.
	HistorySize int
	// RedeliveryDelay is how long a failed delivery waits before its
	// next attempt. Zero requeues immediately.
	RedeliveryDelay time.Duration
	// RedeliveryMultiplier scales the delay for each further failed
	// attempt. Values below 1 keep the delay constant.
	RedeliveryMultiplier float64
	// RedeliveryMaxDelay caps the grown delay.
	RedeliveryMaxDelay time.Duration
}

// DefaultConfig returns the delivery settings used in production.
func DefaultConfig() Config {
	return Config{
		AckTimeout:           30 * time.Second,
		MaxDeliveries:        3,
		SweepInterval:        5 * time.Second,
		HistorySize:          100,
		RedeliveryDelay:      500 * time.Millisecond,
		RedeliveryMultiplier: 2.0,
		RedeliveryMaxDelay:   10 * time.Second,
	}
}

// Stats is a snapshot of bus counters.
type Stats struct {
	Published    int64 `json:"published"`
	Delivered    int64 `json:"delivered"`
	Acked        int64 `json:"acked"`
	Redelivered  int64 `json:"redelivered"`
	DeadLettered int64 `json:"dead_lettered"`
	Expired      int64 `json:"expired"`
	Subscribers  int   `json:"subscribers"`
	Queued       int   `json:"queued"`
	Pending      int   `json:"pending"`
}

type queuedMessage struct {
	msg models.Message
	seq int64
	// notBefore delays redelivered messages; the zero value means
	// deliverable immediately.
	notBefore time.Time
}

type pendingDelivery struct {
	msg         models.Message
	deliveredAt time.Time
	attempts    int
}

// Bus routes messages between subscribed agents.
type Bus struct {
	cfg Config

	mu          sync.Mutex
	subscribers map[string]Handler
	// queues holds undispatched messages bucketed by priority rank,
	// each bucket in publish order.
	queues  [4][]queuedMessage
	pending map[string]*pendingDelivery
	// attempts carries prior delivery counts for requeued messages.
	attempts map[string]int
	// inFlight counts unacknowledged messages per correlation ID so a
	// later message in the same conversation is held back until the
	// earlier one completes.
	inFlight    map[string]int
	deadLetters map[string]models.Message
	history     []models.Message
	stats       Stats
	nextSeq     int64

	now     func() time.Time
	wake    chan struct{}
	done    chan struct{}
	stopped bool
	started bool
}

// New constructs a stopped bus. Call Start before publishing.
func New(cfg Config) *Bus {
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = DefaultConfig().AckTimeout
	}
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = DefaultConfig().MaxDeliveries
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultConfig().SweepInterval
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultConfig().HistorySize
	}
	return &Bus{
		cfg:         cfg,
		subscribers: make(map[string]Handler),
		pending:     make(map[string]*pendingDelivery),
		inFlight:    make(map[string]int),
		deadLetters: make(map[string]models.Message),
		now:         time.Now,
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
}

// SetClock overrides the time source. Test hook.
func (b *Bus) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// Start launches the dispatch loop. Messages published before Start
// are dispatched once it runs.
func (b *Bus) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started || b.stopped {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.mu.Unlock()
	go b.run(ctx)
}

// Stop halts dispatch and rejects further publishes. Safe to call more
// than once.
func (b *Bus) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	started := b.started
	b.mu.Unlock()
	close(b.done)
	if !started {
		return
	}
}

// Subscribe registers a handler for messages addressed to agentID and
// returns the matching unsubscribe function. A second subscription for
// the same ID replaces the first.
func (b *Bus) Subscribe(agentID string, h Handler) func() {
	b.mu.Lock()
	b.subscribers[agentID] = h
	b.mu.Unlock()
	b.signal()
	return func() {
		b.mu.Lock()
		delete(b.subscribers, agentID)
		b.mu.Unlock()
	}
}

// Publish enqueues a message for delivery.
func (b *Bus) Publish(msg models.Message) error {
	if msg.ID == "" || !msg.Kind.Valid() {
		return errs.New(errs.ClassValidation, "INVALID_MESSAGE", "message missing id or kind")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return errs.New(errs.ClassFatal, "BUS_STOPPED", "bus is stopped")
	}
	rank := msg.Priority.Rank()
	b.nextSeq++
	b.queues[rank] = append(b.queues[rank], queuedMessage{msg: msg, seq: b.nextSeq})
	b.stats.Published++
	b.signalLocked()
	return nil
}

// Ack confirms delivery of a message. Unknown IDs are ignored so a
// slow duplicate ack after redelivery is harmless.
func (b *Bus) Ack(messageID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pending[messageID]
	if !ok {
		return
	}
	delete(b.pending, messageID)
	b.releaseCorrelation(p.msg.CorrelationID)
	b.stats.Acked++
	b.signalLocked()
}

// Nack reports a failed delivery. The message is requeued for another
// attempt after the redelivery backoff, or dead-lettered when its
// attempts are spent.
func (b *Bus) Nack(messageID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pending[messageID]
	if !ok {
		return
	}
	delete(b.pending, messageID)
	b.releaseCorrelation(p.msg.CorrelationID)
	b.requeueLocked(p)
	b.signalLocked()
}

// DeadLetters returns the dead-letter set ordered by message ID.
func (b *Bus) DeadLetters() []models.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Message, 0, len(b.deadLetters))
	for _, m := range b.deadLetters {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stats returns a snapshot of the bus counters.
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	s.Subscribers = len(b.subscribers)
	s.Pending = len(b.pending)
	for _, q := range b.queues {
		s.Queued += len(q)
	}
	return s
}

// History returns the most recently delivered messages, oldest first.
func (b *Bus) History() []models.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Message, len(b.history))
	copy(out, b.history)
	return out
}

func (b *Bus) run(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		b.dispatch(ctx)
		select {
		case <-ctx.Done():
			b.Stop()
			return
		case <-b.done:
			return
		case <-b.wake:
		case <-ticker.C:
			b.sweep()
		}
	}
}

// dispatch drains every currently deliverable message, highest
// priority first. A message is deliverable when its recipient has a
// subscriber and no earlier message with the same correlation ID is
// awaiting acknowledgement.
func (b *Bus) dispatch(ctx context.Context) {
	for {
		msg, h, ok := b.take()
		if !ok {
			return
		}
		err := h(ctx, msg)
		if err != nil {
			b.Nack(msg.ID)
		}
	}
}

// take pops the next deliverable message and marks it pending.
func (b *Bus) take() (models.Message, Handler, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	// Correlation order beats priority: a message may only dispatch
	// when it is the earliest queued message of its correlation.
	minSeq := make(map[string]int64)
	for rank := range b.queues {
		for _, qm := range b.queues[rank] {
			if s, ok := minSeq[qm.msg.CorrelationID]; !ok || qm.seq < s {
				minSeq[qm.msg.CorrelationID] = qm.seq
			}
		}
	}
	for rank := range b.queues {
		q := b.queues[rank]
		for i := 0; i < len(q); i++ {
			qm := q[i]
			if qm.msg.Expired(now) {
				b.queues[rank] = append(q[:i], q[i+1:]...)
				b.stats.Expired++
				q = b.queues[rank]
				i--
				continue
			}
			if now.Before(qm.notBefore) {
				continue
			}
			if b.inFlight[qm.msg.CorrelationID] > 0 || qm.seq != minSeq[qm.msg.CorrelationID] {
				continue
			}
			h, ok := b.subscribers[qm.msg.Recipient.AgentID]
			if !ok {
				continue
			}
			b.queues[rank] = append(q[:i], q[i+1:]...)
			p := &pendingDelivery{msg: qm.msg, deliveredAt: now, attempts: b.attemptsFor(qm.msg.ID) + 1}
			b.pending[qm.msg.ID] = p
			b.inFlight[qm.msg.CorrelationID]++
			b.stats.Delivered++
			if p.attempts > 1 {
				b.stats.Redelivered++
			}
			b.recordHistory(qm.msg)
			return qm.msg, h, true
		}
	}
	return models.Message{}, nil, false
}

// attemptsFor recovers the attempt count for a message being
// redelivered. Attempt state rides on the queued copy via a side map
// keyed by message ID.
func (b *Bus) attemptsFor(messageID string) int {
	if b.attempts == nil {
		return 0
	}
	return b.attempts[messageID]
}

// sweep expires stale pending deliveries and TTL-expired queued
// messages.
func (b *Bus) sweep() {
	b.mu.Lock()
	now := b.now()
	var timedOut []*pendingDelivery
	for id, p := range b.pending {
		if now.Sub(p.deliveredAt) >= b.cfg.AckTimeout {
			delete(b.pending, id)
			b.releaseCorrelation(p.msg.CorrelationID)
			timedOut = append(timedOut, p)
		}
	}
	for _, p := range timedOut {
		b.requeueLocked(p)
	}
	for rank := range b.queues {
		q := b.queues[rank]
		kept := q[:0]
		for _, qm := range q {
			if qm.msg.Expired(now) {
				b.stats.Expired++
				continue
			}
			kept = append(kept, qm)
		}
		b.queues[rank] = kept
	}
	b.signalLocked()
	b.mu.Unlock()
}

// requeueLocked puts a failed or timed-out delivery back on its queue,
// or dead-letters it when attempts are spent. Caller holds b.mu.
func (b *Bus) requeueLocked(p *pendingDelivery) {
	if p.attempts >= b.cfg.MaxDeliveries {
		if _, seen := b.deadLetters[p.msg.ID]; !seen {
			b.deadLetters[p.msg.ID] = p.msg
			b.stats.DeadLettered++
			b.notifySenderLocked(p.msg)
		}
		delete(b.attempts, p.msg.ID)
		return
	}
	if b.attempts == nil {
		b.attempts = make(map[string]int)
	}
	b.attempts[p.msg.ID] = p.attempts
	rank := p.msg.Priority.Rank()
	b.nextSeq++
	b.queues[rank] = append(b.queues[rank], queuedMessage{
		msg:       p.msg,
		seq:       b.nextSeq,
		notBefore: b.now().Add(b.redeliveryDelay(p.attempts)),
	})
}

// redeliveryDelay returns the backoff before the next delivery of a
// message that has already failed the given number of attempts.
func (b *Bus) redeliveryDelay(attempts int) time.Duration {
	d := b.cfg.RedeliveryDelay
	if d <= 0 {
		return 0
	}
	for i := 1; i < attempts; i++ {
		if b.cfg.RedeliveryMultiplier > 1 {
			d = time.Duration(float64(d) * b.cfg.RedeliveryMultiplier)
		}
		if b.cfg.RedeliveryMaxDelay > 0 && d >= b.cfg.RedeliveryMaxDelay {
			return b.cfg.RedeliveryMaxDelay
		}
	}
	return d
}

// notifySenderLocked tells a message's sender that delivery failed for
// good. Error reports themselves are exempt so a dead sender cannot
// produce a notification loop. Caller holds b.mu.
func (b *Bus) notifySenderLocked(failed models.Message) {
	if failed.Kind == models.KindErrorReport || failed.Sender.AgentID == "" {
		return
	}
	report, err := models.NewMessage(
		models.KindErrorReport,
		models.Identity{AgentID: "bus", AgentType: "bus"},
		failed.Sender,
		models.PriorityHigh,
		models.ErrorReportPayload{
			Error: models.ErrorDetail{
				Code:    "DEAD_LETTERED",
				Type:    string(errs.ClassFatal),
				Message: "message " + failed.ID + " exhausted delivery attempts",
			},
			Recoverable:        false,
			EscalationRequired: true,
		},
	)
	if err != nil {
		return
	}
	report = report.WithCorrelation(failed.CorrelationID)
	b.nextSeq++
	b.queues[report.Priority.Rank()] = append(b.queues[report.Priority.Rank()], queuedMessage{msg: report, seq: b.nextSeq})
	b.stats.Published++
}

func (b *Bus) releaseCorrelation(correlationID string) {
	if n := b.inFlight[correlationID]; n <= 1 {
		delete(b.inFlight, correlationID)
	} else {
		b.inFlight[correlationID] = n - 1
	}
}

func (b *Bus) recordHistory(msg models.Message) {
	b.history = append(b.history, msg)
	if len(b.history) > b.cfg.HistorySize {
		b.history = b.history[len(b.history)-b.cfg.HistorySize:]
	}
}

func (b *Bus) signal() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Bus) signalLocked() {
	b.signal()
}
