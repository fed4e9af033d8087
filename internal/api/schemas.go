package api

import (
	"time"

	"github.com/formcoach/formcheck/internal/journal"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	RunID string `json:"run_id,omitempty"`
}

type AnalyzeJSONRequest struct {
	VideoURL string `json:"video_url"`
}

type AnalyzeResponse struct {
	Analysis string `json:"analysis"`
	RunID    string `json:"run_id,omitempty"`
}

type RunResponse struct {
	ID          string `json:"id"`
	SourceKind  string `json:"source_kind"`
	SourceRef   string `json:"source_ref,omitempty"`
	SizeBytes   int64  `json:"size_bytes"`
	WorkspaceID string `json:"workspace_id,omitempty"`
	JobID       string `json:"job_id,omitempty"`
	MediaID     string `json:"media_id,omitempty"`
	State       string `json:"state"`
	Attempts    int    `json:"attempts"`
	ErrorCode   string `json:"error_code,omitempty"`
	Error       string `json:"error,omitempty"`
	Analysis    string `json:"analysis,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type RunsResponse struct {
	Runs []RunResponse `json:"runs"`
}

func RunToResponse(r *journal.Run) RunResponse {
	return RunResponse{
		ID:          r.ID,
		SourceKind:  r.SourceKind,
		SourceRef:   r.SourceRef,
		SizeBytes:   r.SizeBytes,
		WorkspaceID: r.WorkspaceID,
		JobID:       r.JobID,
		MediaID:     r.MediaID,
		State:       r.State,
		Attempts:    r.Attempts,
		ErrorCode:   r.ErrorCode,
		Error:       r.Error,
		Analysis:    r.Analysis,
		CreatedAt:   r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   r.UpdatedAt.Format(time.RFC3339),
	}
}
