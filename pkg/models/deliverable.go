package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Deliverable is an immutable artifact record produced by a completed task.
// Deliverables are never mutated after creation; a correction is a new
// deliverable that supersedes the old one.
type Deliverable struct {
	// ID is the unique identifier for this deliverable.
	ID string `json:"id"`
	// ProjectID is the project this deliverable belongs to.
	ProjectID string `json:"project_id"`
	// TaskID is the task that produced the deliverable, if known.
	TaskID string `json:"task_id,omitempty"`
	// Type classifies the deliverable (code, documentation, report, ...).
	Type string `json:"type"`
	// Content is the artifact body or a reference to where it is stored.
	Content string `json:"content"`
	// ContentHash is the SHA-256 hex digest of Content, used for dedup.
	ContentHash string `json:"content_hash"`
	// CreatedBy is the agent that produced the deliverable.
	CreatedBy string `json:"created_by"`
	// SupersedesID points at an earlier deliverable this one replaces.
	SupersedesID string `json:"supersedes_id,omitempty"`
	// CreatedAt is when the deliverable was recorded.
	CreatedAt time.Time `json:"created_at"`
}

// HashContent returns the SHA-256 hex digest used as a deliverable content hash.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
