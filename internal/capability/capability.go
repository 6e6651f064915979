// Package capability defines the boundary between the orchestration
// substrate and the specialists that do domain work. The orchestrator
// never sees how a capability produces its result; it hands over a
// task request and receives deliverables or an error.
package capability

import (
	"context"
	"sort"
	"sync"

	"github.com/agentmesh/conductor/internal/errs"
	"github.com/agentmesh/conductor/pkg/models"
)

// Capability executes one kind of specialist work. Implementations
// must be safe for concurrent use; the orchestrator may run several
// tasks against one capability at a time.
type Capability interface {
	// Kind returns the capability's type string, matched against
	// Task.Capability when routing work.
	Kind() string
	// Execute performs the task. Errors should carry an errs.Class so
	// the retry executor can tell transient failures from permanent
	// ones.
	Execute(ctx context.Context, req models.TaskRequestPayload) (models.TaskResultPayload, error)
}

// Registry maps capability type strings to implementations.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[string]Capability
}

// NewRegistry returns an empty capability registry.
func NewRegistry() *Registry {
	return &Registry{capabilities: make(map[string]Capability)}
}

// Register adds a capability. Registering a duplicate kind is an
// error; capabilities are wired once at startup.
func (r *Registry) Register(c Capability) error {
	if c == nil || c.Kind() == "" {
		return errs.New(errs.ClassValidation, "INVALID_CAPABILITY", "capability requires a kind")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.capabilities[c.Kind()]; exists {
		return errs.Newf(errs.ClassValidation, "DUPLICATE_CAPABILITY", "capability %q already registered", c.Kind())
	}
	r.capabilities[c.Kind()] = c
	return nil
}

// Get returns the capability for a kind.
func (r *Registry) Get(kind string) (Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.capabilities[kind]
	if !ok {
		return nil, errs.Newf(errs.ClassCapability, "UNKNOWN_CAPABILITY", "no capability registered for %q", kind)
	}
	return c, nil
}

// Kinds returns the registered capability kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.capabilities))
	for k := range r.capabilities {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
