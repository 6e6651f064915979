package router

import (
	"errors"
	"testing"

	"github.com/agentmesh/conductor/internal/breaker"
	"github.com/agentmesh/conductor/internal/errs"
	"github.com/agentmesh/conductor/internal/registry"
	"github.com/agentmesh/conductor/pkg/models"
)

func newTestRouter(t *testing.T, endpoints ...models.Endpoint) (*Router, *registry.Registry) {
	t.Helper()
	reg := registry.New(breaker.DefaultConfig())
	for _, ep := range endpoints {
		if err := reg.Register(ep); err != nil {
			t.Fatalf("Register(%s): %v", ep.ID, err)
		}
	}
	return New(reg), reg
}

func TestRouteSelectsLowestLoad(t *testing.T) {
	r, _ := newTestRouter(t,
		models.Endpoint{ID: "fe-1", AgentType: "frontend", Load: 80},
		models.Endpoint{ID: "fe-2", AgentType: "frontend", Load: 20},
	)

	ep, err := r.Route("frontend", "")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if ep.ID != "fe-2" {
		t.Errorf("Route selected %s, want fe-2 (load 20)", ep.ID)
	}
}

func TestRouteDeterministicTiebreak(t *testing.T) {
	r, _ := newTestRouter(t,
		models.Endpoint{ID: "fe-b", AgentType: "frontend", Load: 50},
		models.Endpoint{ID: "fe-a", AgentType: "frontend", Load: 50},
	)

	for i := 0; i < 10; i++ {
		ep, err := r.Route("frontend", "")
		if err != nil {
			t.Fatalf("Route: %v", err)
		}
		if ep.ID != "fe-a" {
			t.Fatalf("tie broke to %s on call %d, want fe-a", ep.ID, i+1)
		}
	}
}

func TestRouteExplicitTarget(t *testing.T) {
	r, _ := newTestRouter(t,
		models.Endpoint{ID: "fe-1", AgentType: "frontend", Load: 80},
		models.Endpoint{ID: "fe-2", AgentType: "frontend", Load: 20},
	)

	ep, err := r.Route("frontend", "fe-1")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if ep.ID != "fe-1" {
		t.Errorf("explicit target ignored, got %s", ep.ID)
	}
}

func TestRouteExplicitTargetUnroutableFallsBack(t *testing.T) {
	r, reg := newTestRouter(t,
		models.Endpoint{ID: "fe-1", AgentType: "frontend", Load: 80},
		models.Endpoint{ID: "fe-2", AgentType: "frontend", Load: 20},
	)

	// fe-1's breaker opens; an explicit pin to it falls back to selection.
	b := reg.Breaker("fe-1")
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}

	ep, err := r.Route("frontend", "fe-1")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if ep.ID != "fe-2" {
		t.Errorf("expected fallback to fe-2, got %s", ep.ID)
	}
}

func TestRouteNoActiveAgent(t *testing.T) {
	r, _ := newTestRouter(t)

	_, err := r.Route("frontend", "")
	if !errors.Is(err, errs.ErrNoActiveAgent) {
		t.Fatalf("expected ErrNoActiveAgent, got %v", err)
	}
	if errs.Classify(err) != errs.ClassTransient {
		t.Error("NoActiveAgent must classify transient so callers back off and retry")
	}
}

func TestRouteSkipsInactiveAndOpenCircuit(t *testing.T) {
	r, reg := newTestRouter(t,
		models.Endpoint{ID: "fe-1", AgentType: "frontend", Load: 20},
		models.Endpoint{ID: "fe-2", AgentType: "frontend", Load: 80},
	)

	// The low-load endpoint fails five consecutive calls; its breaker opens.
	b := reg.Breaker("fe-1")
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}

	ep, err := r.Route("frontend", "")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if ep.ID != "fe-2" {
		t.Errorf("open-circuit endpoint selected, got %s want fe-2", ep.ID)
	}

	// The survivor goes inactive; no routable endpoints remain.
	if err := reg.Heartbeat("fe-2", 80, models.EndpointInactive); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if _, err := r.Route("frontend", ""); !errors.Is(err, errs.ErrNoActiveAgent) {
		t.Errorf("expected ErrNoActiveAgent with all endpoints down, got %v", err)
	}
}
