// Package provider is the HTTP client for the external media-intelligence
// provider: workspaces, analysis jobs, job status and analysis requests.
package provider

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedResponse marks a 2xx response whose body could not be decoded.
var ErrMalformedResponse = errors.New("malformed provider response")

// APIError represents a non-2xx response from the provider.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s failed: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

// IsServerError returns true for 5xx responses.
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500
}

// Workspace is a provider-side container jobs are grouped under.
type Workspace struct {
	ID   string
	Name string
}

type workspaceDoc struct {
	ID    string `json:"id"`
	AltID string `json:"_id"`
	Name  string `json:"name"`
}

func (d workspaceDoc) toWorkspace() Workspace {
	id := d.ID
	if id == "" {
		id = d.AltID
	}
	return Workspace{ID: id, Name: d.Name}
}

// decodeWorkspaces accepts either a bare array or a {"data": [...]} envelope.
func decodeWorkspaces(body []byte) ([]Workspace, error) {
	trimmed := bytes.TrimSpace(body)
	var docs []workspaceDoc
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &docs); err != nil {
			return nil, err
		}
	} else {
		var wrapper struct {
			Data []workspaceDoc `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &wrapper); err != nil {
			return nil, err
		}
		docs = wrapper.Data
	}

	out := make([]Workspace, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toWorkspace())
	}
	return out, nil
}

type createWorkspaceRequest struct {
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities"`
}

type idResponse struct {
	ID    string `json:"id"`
	AltID string `json:"_id"`
}

func (r idResponse) value() string {
	if r.ID != "" {
		return r.ID
	}
	return r.AltID
}

// Upload is an inline video carried in a job submission.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// SubmitRequest carries exactly one of VideoURL or Video.
type SubmitRequest struct {
	WorkspaceID string
	VideoURL    string
	Video       *Upload
}

// JobStatus is the parsed body of a job status query.
type JobStatus struct {
	Status  string
	MediaID string
}

type jobStatusDoc struct {
	Status  string          `json:"status"`
	VideoID string          `json:"video_id"`
	AssetID string          `json:"asset_id"`
	Video   json.RawMessage `json:"video"`
}

// mediaID picks the first populated identifier field. "video" may be a bare
// string or an object carrying an id.
func (d jobStatusDoc) mediaID() string {
	if d.VideoID != "" {
		return d.VideoID
	}
	if d.AssetID != "" {
		return d.AssetID
	}
	if len(d.Video) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(d.Video, &s); err == nil {
		return s
	}
	var obj idResponse
	if err := json.Unmarshal(d.Video, &obj); err == nil {
		return obj.value()
	}
	return ""
}

// AnalyzeRequest is the body of POST /analyze.
type AnalyzeRequest struct {
	MediaID     string  `json:"media_id"`
	Prompt      string  `json:"prompt"`
	Stream      bool    `json:"stream"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}
