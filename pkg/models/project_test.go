package models

import "testing"

func TestPhaseOrdering(t *testing.T) {
	next, ok := PhaseInitiation.Next()
	if !ok || next != PhasePlanning {
		t.Errorf("expected initiation -> planning, got %s (%v)", next, ok)
	}

	if _, ok := PhaseClosure.Next(); ok {
		t.Error("closure should have no next phase")
	}

	if _, ok := Phase("review").Next(); ok {
		t.Error("unknown phase should have no next phase")
	}

	for i, p := range Phases {
		if p.Index() != i {
			t.Errorf("phase %s Index() = %d, want %d", p, p.Index(), i)
		}
	}
}

func TestProjectTypeValid(t *testing.T) {
	for _, pt := range []ProjectType{ProjectFrontend, ProjectBackend, ProjectML, ProjectAnalytics, ProjectFullstack, ProjectResearch} {
		if !pt.Valid() {
			t.Errorf("expected %q to be valid", pt)
		}
	}
	if ProjectType("embedded").Valid() {
		t.Error("expected 'embedded' to be unsupported")
	}
}

func TestSeverityRank(t *testing.T) {
	if SeverityCritical.Rank() <= SeverityHigh.Rank() {
		t.Error("critical should outrank high")
	}
	if SeverityHigh.Rank() <= SeverityMedium.Rank() {
		t.Error("high should outrank medium")
	}
	if SeverityLow.Rank() != 0 {
		t.Errorf("low rank = %d, want 0", SeverityLow.Rank())
	}
}

func TestHashContentStable(t *testing.T) {
	a := HashContent("report body")
	b := HashContent("report body")
	if a != b {
		t.Error("hash should be deterministic")
	}
	if a == HashContent("other body") {
		t.Error("different content should hash differently")
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}
