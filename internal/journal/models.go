// Package journal records one row per analysis request so operators can see
// what ran, how long it polled and why it failed. The pipeline never reads
// from it.
package journal

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatePending   = "pending"
	StatePolling   = "polling"
	StateAnalyzing = "analyzing"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

type Run struct {
	ID          string    `json:"id"`
	SourceKind  string    `json:"source_kind"`
	SourceRef   string    `json:"source_ref,omitempty"`
	SizeBytes   int64     `json:"size_bytes"`
	WorkspaceID string    `json:"workspace_id,omitempty"`
	JobID       string    `json:"job_id,omitempty"`
	MediaID     string    `json:"media_id,omitempty"`
	State       string    `json:"state"`
	Attempts    int       `json:"attempts"`
	ErrorCode   string    `json:"error_code,omitempty"`
	Error       string    `json:"error,omitempty"`
	Analysis    string    `json:"analysis,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Terminal reports whether the run has finished.
func (r *Run) Terminal() bool {
	return r.State == StateCompleted || r.State == StateFailed
}

func NewID() string {
	return uuid.NewString()
}
