package models

import "time"

// EndpointStatus represents the liveness of a registered agent endpoint.
type EndpointStatus string

const (
	// EndpointActive indicates the endpoint is healthy and routable.
	EndpointActive EndpointStatus = "active"
	// EndpointDegraded indicates the endpoint is alive but unhealthy.
	EndpointDegraded EndpointStatus = "degraded"
	// EndpointInactive indicates the endpoint has stopped heartbeating.
	EndpointInactive EndpointStatus = "inactive"
)

// Valid returns true if the status is a known value.
func (s EndpointStatus) Valid() bool {
	switch s {
	case EndpointActive, EndpointDegraded, EndpointInactive:
		return true
	default:
		return false
	}
}

// Endpoint is an ephemeral registration of a live agent. The registry is the
// sole owner of endpoint records; load and status change only through
// heartbeats, never through routing.
type Endpoint struct {
	// ID is the unique identifier for this endpoint.
	ID string `json:"id"`
	// AgentType is the logical capability type the endpoint serves.
	AgentType string `json:"agent_type"`
	// Capabilities lists additional capability tags beyond the agent type.
	Capabilities []string `json:"capabilities,omitempty"`
	// Status is the endpoint's liveness.
	Status EndpointStatus `json:"status"`
	// Load is the endpoint's current utilisation, 0-100.
	Load int `json:"load"`
	// LastHeartbeat is when the endpoint last reported in.
	LastHeartbeat time.Time `json:"last_heartbeat"`
	// BreakerState mirrors the endpoint's circuit breaker position in
	// registry snapshots (closed, open, half_open).
	BreakerState string `json:"breaker_state,omitempty"`
}
