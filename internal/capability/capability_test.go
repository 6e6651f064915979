package capability

import (
	"context"
	"errors"
	"testing"

	"github.com/agentmesh/conductor/internal/errs"
	"github.com/agentmesh/conductor/pkg/models"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(NewScripted("code_generation")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(NewScripted("data_analysis")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	c, err := r.Get("code_generation")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if c.Kind() != "code_generation" {
		t.Errorf("Kind = %s", c.Kind())
	}

	kinds := r.Kinds()
	if len(kinds) != 2 || kinds[0] != "code_generation" || kinds[1] != "data_analysis" {
		t.Errorf("Kinds = %v", kinds)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(NewScripted("code_generation")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(NewScripted("code_generation")); err == nil {
		t.Fatal("expected error for duplicate kind")
	}
}

func TestUnknownCapabilityClassifiesAsCapabilityFailure(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("quantum_annealing")
	if err == nil {
		t.Fatal("expected error")
	}
	if errs.Classify(err) != errs.ClassCapability {
		t.Errorf("Classify = %s, want capability", errs.Classify(err))
	}
}

func TestScriptedReplaysSteps(t *testing.T) {
	transient := errs.New(errs.ClassTransient, "FLAKY", "temporary outage")
	c := NewScripted("code_generation",
		Step{Err: transient},
		Step{Result: models.TaskResultPayload{Summary: "done"}},
	)

	_, err := c.Execute(context.Background(), models.TaskRequestPayload{TaskID: "t1"})
	if !errors.Is(err, transient) {
		t.Fatalf("first call err = %v, want scripted failure", err)
	}

	res, err := c.Execute(context.Background(), models.TaskRequestPayload{TaskID: "t1"})
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if res.TaskID != "t1" || res.Status != models.ResultSuccess || res.Summary != "done" {
		t.Errorf("result = %+v", res)
	}

	// Script exhausted: the last step repeats.
	res, err = c.Execute(context.Background(), models.TaskRequestPayload{TaskID: "t2"})
	if err != nil || res.Summary != "done" {
		t.Errorf("repeat call = %+v, %v", res, err)
	}
	if c.Calls() != 3 {
		t.Errorf("Calls = %d, want 3", c.Calls())
	}
}

func TestTemplateRendersRequestedDeliverable(t *testing.T) {
	c := NewTemplate("frontend_development")
	res, err := c.Execute(context.Background(), models.TaskRequestPayload{
		TaskID:       "t1",
		Description:  "build the landing page",
		Requirements: map[string]string{"deliverable": "implementation", "phase": "execution"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != models.ResultSuccess || len(res.Deliverables) != 1 {
		t.Fatalf("result = %+v", res)
	}
	d := res.Deliverables[0]
	if d.Type != "implementation" {
		t.Errorf("deliverable type = %q, want implementation", d.Type)
	}
	if d.ContentHash != models.HashContent(d.Content) {
		t.Error("content hash does not match content")
	}

	// Without a deliverable requirement the type falls back to report.
	res, err = c.Execute(context.Background(), models.TaskRequestPayload{TaskID: "t2"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Deliverables[0].Type != "report" {
		t.Errorf("fallback type = %q, want report", res.Deliverables[0].Type)
	}
}
