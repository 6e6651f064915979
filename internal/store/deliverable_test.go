package store

import (
	"errors"
	"testing"

	"github.com/agentmesh/conductor/pkg/models"
)

func TestDeliverableHashAndRoundTrip(t *testing.T) {
	db := testDB(t)
	testProject(t, db, "p1")
	testTask(t, db, "t1", "p1")

	d := &models.Deliverable{
		ID:        "del-1",
		ProjectID: "p1",
		TaskID:    "t1",
		Type:      "design_doc",
		Content:   "# Checkout service design",
		CreatedBy: "specialist-3",
	}
	if err := db.CreateDeliverable(d); err != nil {
		t.Fatalf("CreateDeliverable: %v", err)
	}

	got, err := db.GetDeliverable("del-1")
	if err != nil {
		t.Fatalf("GetDeliverable: %v", err)
	}
	if got.ContentHash != models.HashContent(d.Content) {
		t.Errorf("stored hash %s does not match content", got.ContentHash)
	}
}

func TestSupersedeChain(t *testing.T) {
	db := testDB(t)
	testProject(t, db, "p1")
	testTask(t, db, "t1", "p1")

	v1 := &models.Deliverable{ID: "del-1", ProjectID: "p1", TaskID: "t1", Type: "report", Content: "draft", CreatedBy: "a"}
	if err := db.CreateDeliverable(v1); err != nil {
		t.Fatalf("CreateDeliverable v1: %v", err)
	}
	v2 := &models.Deliverable{ID: "del-2", ProjectID: "p1", TaskID: "t1", Type: "report", Content: "final", CreatedBy: "a", SupersedesID: "del-1"}
	if err := db.CreateDeliverable(v2); err != nil {
		t.Fatalf("CreateDeliverable v2: %v", err)
	}

	all, err := db.ListDeliverablesByProject("p1")
	if err != nil || len(all) != 2 {
		t.Fatalf("ListDeliverablesByProject = %d, %v", len(all), err)
	}
	current, err := db.ListCurrentDeliverables("p1")
	if err != nil {
		t.Fatalf("ListCurrentDeliverables: %v", err)
	}
	if len(current) != 1 || current[0].ID != "del-2" {
		t.Errorf("current deliverables = %v, want [del-2]", current)
	}
}

func TestSupersedeUnknownDeliverable(t *testing.T) {
	db := testDB(t)
	testProject(t, db, "p1")
	testTask(t, db, "t1", "p1")

	err := db.CreateDeliverable(&models.Deliverable{
		ID: "del-1", ProjectID: "p1", TaskID: "t1", Type: "report", Content: "x", CreatedBy: "a",
		SupersedesID: "ghost",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEmptyDeliverableRejected(t *testing.T) {
	db := testDB(t)
	testProject(t, db, "p1")
	testTask(t, db, "t1", "p1")

	err := db.CreateDeliverable(&models.Deliverable{
		ID: "del-1", ProjectID: "p1", TaskID: "t1", Type: "report", CreatedBy: "a",
	})
	if err == nil {
		t.Fatal("expected error for empty content")
	}
}
