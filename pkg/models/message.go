package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageKind identifies the kind of message exchanged between agents.
type MessageKind string

const (
	// KindTaskRequest asks a capability to execute a task.
	KindTaskRequest MessageKind = "task_request"
	// KindTaskResult reports the outcome of a task execution.
	KindTaskResult MessageKind = "task_result"
	// KindStatusUpdate reports incremental progress on a task.
	KindStatusUpdate MessageKind = "status_update"
	// KindErrorReport reports a failure, possibly requiring escalation.
	KindErrorReport MessageKind = "error_report"
	// KindContextShare shares project context between agents.
	KindContextShare MessageKind = "context_share"
)

// Valid returns true if the kind is a known value.
func (k MessageKind) Valid() bool {
	switch k {
	case KindTaskRequest, KindTaskResult, KindStatusUpdate, KindErrorReport, KindContextShare:
		return true
	default:
		return false
	}
}

// Priority determines dispatch order on the message bus.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// Valid returns true if the priority is a known value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	default:
		return false
	}
}

// Rank returns the dispatch rank of the priority. Lower ranks dispatch first.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 3
	default:
		return 3
	}
}

// Identity names a message participant. AgentID may be empty on a recipient,
// in which case the router chooses a concrete endpoint for the type.
type Identity struct {
	AgentID   string `json:"agent_id,omitempty"`
	AgentType string `json:"agent_type"`
}

// Message is the envelope for all agent-to-agent communication.
// The wire format is stable across all kinds; Payload carries the
// kind-specific body.
type Message struct {
	ID            string          `json:"message_id"`
	CorrelationID string          `json:"correlation_id"`
	Kind          MessageKind     `json:"kind"`
	Timestamp     time.Time       `json:"timestamp"`
	Sender        Identity        `json:"sender"`
	Recipient     Identity        `json:"recipient"`
	Priority      Priority        `json:"priority"`
	TTLSeconds    int             `json:"ttl_seconds,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// NewMessage constructs a message with a generated ID and the current time.
// The correlation ID defaults to the message ID; use WithCorrelation to join
// an existing exchange.
func NewMessage(kind MessageKind, sender, recipient Identity, priority Priority, payload any) (Message, error) {
	if !kind.Valid() {
		return Message{}, fmt.Errorf("invalid message kind %q", kind)
	}
	if !priority.Valid() {
		priority = PriorityNormal
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", kind, err)
	}

	id := uuid.New().String()
	return Message{
		ID:            id,
		CorrelationID: id,
		Kind:          kind,
		Timestamp:     time.Now().UTC(),
		Sender:        sender,
		Recipient:     recipient,
		Priority:      priority,
		Payload:       raw,
	}, nil
}

// WithCorrelation returns a copy of the message joined to an existing
// correlation. The correlation ID of a message is immutable once it is
// published; callers set it before handing the message to the bus.
func (m Message) WithCorrelation(correlationID string) Message {
	m.CorrelationID = correlationID
	return m
}

// Expired reports whether the message's TTL has elapsed at the given time.
// Messages without a TTL never expire.
func (m Message) Expired(now time.Time) bool {
	if m.TTLSeconds <= 0 {
		return false
	}
	return now.After(m.Timestamp.Add(time.Duration(m.TTLSeconds) * time.Second))
}

// ResultStatus is the outcome reported in a TaskResult payload.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultFailure ResultStatus = "failure"
	ResultPartial ResultStatus = "partial"
)

// TaskRequestPayload is the body of a KindTaskRequest message.
type TaskRequestPayload struct {
	TaskID      string `json:"task_id"`
	Capability  string `json:"capability"`
	Description string `json:"description"`
	// Requirements carries the task inputs, keyed the way the task's
	// metadata is.
	Requirements map[string]string `json:"requirements,omitempty"`
	Deadline     *time.Time        `json:"deadline,omitempty"`
}

// TaskResultPayload is the body of a KindTaskResult message.
type TaskResultPayload struct {
	TaskID       string             `json:"task_id"`
	Status       ResultStatus       `json:"status"`
	Deliverables []Deliverable      `json:"deliverables,omitempty"`
	Summary      string             `json:"summary,omitempty"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
}

// StatusUpdatePayload is the body of a KindStatusUpdate message.
type StatusUpdatePayload struct {
	TaskID          string     `json:"task_id"`
	Status          TaskStatus `json:"status"`
	ProgressPercent int        `json:"progress_percent"`
}

// ErrorDetail describes a single failure inside an ErrorReport.
type ErrorDetail struct {
	Code    string `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ErrorReportPayload is the body of a KindErrorReport message.
// Cause carries the upstream report when a failure is escalated up a tier,
// preserving the root-cause chain.
type ErrorReportPayload struct {
	TaskID             string              `json:"task_id"`
	Error              ErrorDetail         `json:"error"`
	Recoverable        bool                `json:"recoverable"`
	EscalationRequired bool                `json:"escalation_required"`
	Cause              *ErrorReportPayload `json:"cause,omitempty"`
}

// ContextSharePayload is the body of a KindContextShare message.
type ContextSharePayload struct {
	ProjectID string         `json:"project_id"`
	Key       string         `json:"key"`
	Data      map[string]any `json:"data,omitempty"`
}

// DecodePayload decodes the envelope payload into the concrete type for the
// message kind. The switch is exhaustive over all known kinds; an unknown
// kind is an error, never a silent fallthrough.
func (m Message) DecodePayload() (any, error) {
	switch m.Kind {
	case KindTaskRequest:
		var p TaskRequestPayload
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode task_request payload: %w", err)
		}
		return p, nil
	case KindTaskResult:
		var p TaskResultPayload
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode task_result payload: %w", err)
		}
		return p, nil
	case KindStatusUpdate:
		var p StatusUpdatePayload
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode status_update payload: %w", err)
		}
		return p, nil
	case KindErrorReport:
		var p ErrorReportPayload
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode error_report payload: %w", err)
		}
		return p, nil
	case KindContextShare:
		var p ContextSharePayload
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode context_share payload: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown message kind %q", m.Kind)
	}
}
