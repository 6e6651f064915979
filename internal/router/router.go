// Package router selects a concrete agent endpoint for a logical recipient
// type. Routing is a pure function of the registry snapshot: it honors
// explicit targets, skips open circuits, and load-balances the remainder.
package router

import (
	"fmt"

	"github.com/agentmesh/conductor/internal/breaker"
	"github.com/agentmesh/conductor/internal/errs"
	"github.com/agentmesh/conductor/internal/registry"
	"github.com/agentmesh/conductor/pkg/models"
)

// Router resolves logical recipient types to endpoints.
type Router struct {
	registry *registry.Registry
}

// New creates a router over the given registry.
func New(reg *registry.Registry) *Router {
	return &Router{registry: reg}
}

// Route picks an endpoint for the recipient type. If explicitID is non-empty
// and names a routable endpoint of that type, it wins. Otherwise the
// lowest-load endpoint is chosen, with ties broken by endpoint ID so that
// identical registry snapshots always route identically. Routing never
// mutates endpoint state.
func (r *Router) Route(recipientType string, explicitID string) (models.Endpoint, error) {
	candidates := r.routable(recipientType)
	if len(candidates) == 0 {
		return models.Endpoint{}, fmt.Errorf("route %q: %w", recipientType, errs.ErrNoActiveAgent)
	}

	if explicitID != "" {
		for _, ep := range candidates {
			if ep.ID == explicitID {
				return ep, nil
			}
		}
		// The explicit target is not routable; fall through to selection
		// rather than failing, so a caller pinned to a dead endpoint still
		// makes progress.
	}

	// Candidates are sorted by ID, so the first minimum is the tiebreak winner.
	best := candidates[0]
	for _, ep := range candidates[1:] {
		if ep.Load < best.Load {
			best = ep
		}
	}
	return best, nil
}

// routable filters the type's endpoints to those that are active with a
// breaker that is not open. Half-open endpoints remain routable so trial
// calls can probe recovery.
func (r *Router) routable(recipientType string) []models.Endpoint {
	snapshot := r.registry.SnapshotType(recipientType)
	routable := snapshot[:0]
	for _, ep := range snapshot {
		if ep.Status != models.EndpointActive {
			continue
		}
		if ep.BreakerState == string(breaker.StateOpen) {
			continue
		}
		routable = append(routable, ep)
	}
	return routable
}
