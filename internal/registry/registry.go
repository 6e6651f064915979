// Package registry tracks live agent endpoints per capability type, with
// health and load metadata. It provides thread-safe registration and
// snapshot access for routing decisions.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentmesh/conductor/internal/breaker"
	"github.com/agentmesh/conductor/pkg/models"
)

// entry is one registered endpoint. Load is atomic because heartbeats and
// routing snapshots run concurrently.
type entry struct {
	id           string
	agentType    string
	capabilities []string
	breaker      *breaker.Breaker

	load   atomic.Int32
	status atomic.Value // models.EndpointStatus

	mu            sync.Mutex
	lastHeartbeat time.Time
}

// Registry is the sole owner of endpoint records. Registrations are
// ephemeral: endpoints must heartbeat within the grace period or be purged.
type Registry struct {
	breakerCfg breaker.Config
	now        func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry
}

// New creates an empty registry whose endpoints use the given breaker config.
func New(breakerCfg breaker.Config) *Registry {
	return &Registry{
		breakerCfg: breakerCfg,
		now:        time.Now,
		entries:    make(map[string]*entry),
	}
}

// SetClock overrides the registry's time source. Test hook.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Register adds an endpoint, replacing any existing registration with the
// same ID. A re-registration keeps a fresh breaker: the old failure history
// belongs to the dead incarnation.
func (r *Registry) Register(ep models.Endpoint) error {
	if ep.ID == "" || ep.AgentType == "" {
		return fmt.Errorf("endpoint requires id and agent type")
	}
	if ep.Load < 0 || ep.Load > 100 {
		return fmt.Errorf("endpoint load %d out of range 0-100", ep.Load)
	}

	e := &entry{
		id:           ep.ID,
		agentType:    ep.AgentType,
		capabilities: append([]string(nil), ep.Capabilities...),
		breaker:      breaker.New(r.breakerCfg),
	}
	e.load.Store(int32(ep.Load))
	status := ep.Status
	if !status.Valid() {
		status = models.EndpointActive
	}
	e.status.Store(status)

	r.mu.Lock()
	e.lastHeartbeat = r.now()
	r.entries[ep.ID] = e
	r.mu.Unlock()
	return nil
}

// Unregister removes an endpoint.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Heartbeat records a liveness report from an endpoint, updating its load
// and status. Unknown endpoints must re-register first.
func (r *Registry) Heartbeat(id string, load int, status models.EndpointStatus) error {
	if load < 0 || load > 100 {
		return fmt.Errorf("heartbeat load %d out of range 0-100", load)
	}
	if !status.Valid() {
		return fmt.Errorf("heartbeat status %q unknown", status)
	}

	r.mu.RLock()
	e, ok := r.entries[id]
	now := r.now()
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("endpoint %s not registered", id)
	}

	e.load.Store(int32(load))
	e.status.Store(status)
	e.mu.Lock()
	e.lastHeartbeat = now
	e.mu.Unlock()
	return nil
}

// Breaker returns the circuit breaker owned by an endpoint, or nil if the
// endpoint is not registered.
func (r *Registry) Breaker(id string) *breaker.Breaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[id]; ok {
		return e.breaker
	}
	return nil
}

// Purge removes endpoints that have not heartbeated within the grace period
// and returns the IDs removed.
func (r *Registry) Purge(grace time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-grace)
	var purged []string
	for id, e := range r.entries {
		e.mu.Lock()
		stale := e.lastHeartbeat.Before(cutoff)
		e.mu.Unlock()
		if stale {
			delete(r.entries, id)
			purged = append(purged, id)
		}
	}
	sort.Strings(purged)
	return purged
}

// Snapshot returns a point-in-time view of all endpoints, sorted by ID for
// deterministic iteration.
func (r *Registry) Snapshot() []models.Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	eps := make([]models.Endpoint, 0, len(r.entries))
	for _, e := range r.entries {
		eps = append(eps, r.view(e))
	}
	sort.Slice(eps, func(i, j int) bool { return eps[i].ID < eps[j].ID })
	return eps
}

// SnapshotType returns a point-in-time view of the endpoints serving one
// agent type, sorted by ID.
func (r *Registry) SnapshotType(agentType string) []models.Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var eps []models.Endpoint
	for _, e := range r.entries {
		if e.agentType == agentType {
			eps = append(eps, r.view(e))
		}
	}
	sort.Slice(eps, func(i, j int) bool { return eps[i].ID < eps[j].ID })
	return eps
}

// Count returns the number of registered endpoints.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) view(e *entry) models.Endpoint {
	e.mu.Lock()
	hb := e.lastHeartbeat
	e.mu.Unlock()

	return models.Endpoint{
		ID:            e.id,
		AgentType:     e.agentType,
		Capabilities:  append([]string(nil), e.capabilities...),
		Status:        e.status.Load().(models.EndpointStatus),
		Load:          int(e.load.Load()),
		LastHeartbeat: hb,
		BreakerState:  string(e.breaker.State()),
	}
}
