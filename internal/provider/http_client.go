package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	maxErrorBodyBytes    = 4096
	maxJSONBodyBytes     = 64 * 1024
	maxAnalysisBodyBytes = 1024 * 1024

	defaultContentType = "video/mp4"
	defaultFilename    = "upload.mp4"
)

type requestIDKey struct{}

// ContextWithRequestID attaches an inbound request id so outbound calls can
// carry it for correlation.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// HTTPClient talks to the media-intelligence provider over its REST API.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPClient(baseURL, apiKey string, logger *slog.Logger) (*HTTPClient, error) {
	if apiKey == "" {
		return nil, errors.New("provider API key is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid provider base URL: %w", err)
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			// Inline uploads can be large; individual calls are still bounded.
			Timeout: 5 * time.Minute,
		},
		logger: logger,
	}, nil
}

// ListWorkspaces returns up to pageLimit workspaces.
func (c *HTTPClient) ListWorkspaces(ctx context.Context, pageLimit int) ([]Workspace, error) {
	endpoint := fmt.Sprintf("%s/workspaces?page_limit=%s", c.baseURL, strconv.Itoa(pageLimit))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	body, err := c.do(req, "list workspaces", maxJSONBodyBytes)
	if err != nil {
		return nil, err
	}

	workspaces, err := decodeWorkspaces(body)
	if err != nil {
		return nil, fmt.Errorf("decode workspaces: %w: %v", ErrMalformedResponse, err)
	}
	return workspaces, nil
}

// CreateWorkspace creates a workspace and returns its identifier. An empty
// identifier with a nil error means the provider omitted it.
func (c *HTTPClient) CreateWorkspace(ctx context.Context, name string, capabilities []string) (string, error) {
	payload, err := json.Marshal(createWorkspaceRequest{Name: name, Capabilities: capabilities})
	if err != nil {
		return "", fmt.Errorf("marshal workspace request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/workspaces", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req, "create workspace", maxJSONBodyBytes)
	if err != nil {
		return "", err
	}

	var result idResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode workspace: %w: %v", ErrMalformedResponse, err)
	}
	return result.value(), nil
}

// SubmitJob submits a video for processing and returns the job identifier.
func (c *HTTPClient) SubmitJob(ctx context.Context, sub SubmitRequest) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("workspace_id", sub.WorkspaceID); err != nil {
		return "", fmt.Errorf("write workspace_id: %w", err)
	}

	switch {
	case sub.VideoURL != "":
		if err := w.WriteField("video_url", sub.VideoURL); err != nil {
			return "", fmt.Errorf("write video_url: %w", err)
		}
	case sub.Video != nil:
		if err := writeVideoPart(w, sub.Video); err != nil {
			return "", err
		}
	default:
		return "", errors.New("submit job: no video supplied")
	}

	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/jobs", &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	body, err := c.do(req, "submit job", maxJSONBodyBytes)
	if err != nil {
		return "", err
	}

	var result idResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode job: %w: %v", ErrMalformedResponse, err)
	}
	return result.value(), nil
}

func writeVideoPart(w *multipart.Writer, v *Upload) error {
	filename := v.Filename
	if filename == "" {
		filename = defaultFilename
	}
	contentType := v.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
		"name":     "video_file",
		"filename": filename,
	}))
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create video part: %w", err)
	}
	if _, err := part.Write(v.Data); err != nil {
		return fmt.Errorf("write video part: %w", err)
	}
	return nil
}

// GetJob queries the status of a submitted job.
func (c *HTTPClient) GetJob(ctx context.Context, jobID string) (*JobStatus, error) {
	endpoint := fmt.Sprintf("%s/jobs/%s", c.baseURL, url.PathEscape(jobID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	body, err := c.do(req, "get job", maxJSONBodyBytes)
	if err != nil {
		return nil, err
	}

	var doc jobStatusDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode job status: %w: %v", ErrMalformedResponse, err)
	}
	return &JobStatus{Status: doc.Status, MediaID: doc.mediaID()}, nil
}

// Analyze requests a natural-language analysis of processed media and returns
// the raw success body; its shape is not fixed.
func (c *HTTPClient) Analyze(ctx context.Context, ar AnalyzeRequest) ([]byte, error) {
	payload, err := json.Marshal(ar)
	if err != nil {
		return nil, fmt.Errorf("marshal analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, "analyze", maxAnalysisBodyBytes)
}

// do sends the request and returns the body of a 2xx response. Non-2xx
// responses become *APIError with a bounded body excerpt.
func (c *HTTPClient) do(req *http.Request, op string, limit int64) ([]byte, error) {
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestIDFrom(req.Context()))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: http request failed: %w", op, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("provider call",
		"op", op,
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		apiErr := &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(respBody)}
		if apiErr.IsServerError() {
			c.logger.Warn("provider server error", "op", op, "status", resp.StatusCode)
		}
		return nil, apiErr
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", op, err)
	}
	return respBody, nil
}
