// Package analysis orchestrates one video analysis request against the
// media-intelligence provider: admission, workspace resolution, job
// submission, polling, the analysis request and response normalization.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/formcoach/formcheck/internal/logging"
	"github.com/formcoach/formcheck/internal/provider"
)

// Provider is the subset of the provider client the pipeline drives.
type Provider interface {
	ListWorkspaces(ctx context.Context, pageLimit int) ([]provider.Workspace, error)
	CreateWorkspace(ctx context.Context, name string, capabilities []string) (string, error)
	SubmitJob(ctx context.Context, sub provider.SubmitRequest) (string, error)
	GetJob(ctx context.Context, jobID string) (*provider.JobStatus, error)
	Analyze(ctx context.Context, req provider.AnalyzeRequest) ([]byte, error)
}

// Tracker receives lifecycle notifications for one request. Implementations
// must not fail the pipeline; they only observe it.
type Tracker interface {
	JobSubmitted(ctx context.Context, workspaceID, jobID string)
	Polled(ctx context.Context, attempt int, status, mediaID string)
	Analyzing(ctx context.Context, mediaID string)
}

// NopTracker ignores every notification.
type NopTracker struct{}

func (NopTracker) JobSubmitted(context.Context, string, string) {}
func (NopTracker) Polled(context.Context, int, string, string)  {}
func (NopTracker) Analyzing(context.Context, string)            {}

// Config holds the pipeline settings. Tests shrink the poll budget here
// without touching production defaults.
type Config struct {
	WorkspaceName      string
	WorkspacePageLimit int
	PollInterval       time.Duration
	PollMaxAttempts    int
	MaxInlineBytes     int64
	HardMaxBytes       int64
	Prompt             string
	Temperature        float64
	MaxTokens          int
	Sleep              Sleeper
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		WorkspaceName:      "formcheck-videos",
		WorkspacePageLimit: 50,
		PollInterval:       3 * time.Second,
		PollMaxAttempts:    60,
		MaxInlineBytes:     50 * 1000 * 1000,
		HardMaxBytes:       2 * 1024 * 1024 * 1024,
		Prompt:             DefaultPrompt,
		Temperature:        0.2,
		MaxTokens:          2048,
	}
}

// Validate reports invalid settings as a ConfigurationError.
func (c Config) Validate() error {
	var problem string
	switch {
	case c.WorkspaceName == "":
		problem = "workspace name is required"
	case c.WorkspacePageLimit < 1:
		problem = "workspace page limit must be at least 1"
	case c.PollInterval <= 0:
		problem = "poll interval must be positive"
	case c.PollMaxAttempts < 1:
		problem = "poll max attempts must be at least 1"
	case c.MaxInlineBytes < 1 || c.HardMaxBytes < c.MaxInlineBytes:
		problem = "inline size ceilings are inconsistent"
	case c.Prompt == "":
		problem = "analysis prompt is required"
	case c.MaxTokens < 1:
		problem = "max tokens must be at least 1"
	default:
		return nil
	}
	return configurationError("invalid pipeline config", errors.New(problem))
}

// Outcome describes a request that ran to completion. On failure the
// identifiers reached so far are still filled in.
type Outcome struct {
	Text        string
	Source      SourceKind
	WorkspaceID string
	JobID       string
	MediaID     string
	Attempts    int
	Shape       string
}

// Service runs the pipeline. It keeps no per-request state, so one instance
// serves concurrent requests.
type Service struct {
	cfg        Config
	client     Provider
	gate       *Gate
	workspaces *WorkspaceResolver
	poller     *Supervisor
	logger     *slog.Logger
}

func NewService(client Provider, cfg Config, logger *slog.Logger) (*Service, error) {
	if client == nil {
		return nil, configurationError("provider client missing", errors.New("provider client is nil"))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger = logging.OrDiscard(logger)
	return &Service{
		cfg:        cfg,
		client:     client,
		gate:       NewGate(cfg.MaxInlineBytes, cfg.HardMaxBytes),
		workspaces: NewWorkspaceResolver(client, cfg.WorkspacePageLimit, logger),
		poller:     NewSupervisor(client, cfg.PollInterval, cfg.PollMaxAttempts, cfg.Sleep, logger),
		logger:     logger,
	}, nil
}

// Analyze runs one request end to end. Steps are strictly sequential and
// every returned error is an *Error.
func (s *Service) Analyze(ctx context.Context, sub Submission, tracker Tracker) (*Outcome, error) {
	if tracker == nil {
		tracker = NopTracker{}
	}
	out := &Outcome{}

	ref, err := s.gate.Admit(sub)
	if err != nil {
		return out, err
	}
	out.Source = ref.Kind

	start := time.Now()

	out.WorkspaceID, err = s.workspaces.Resolve(ctx, s.cfg.WorkspaceName)
	if err != nil {
		return out, s.fail(err)
	}

	out.JobID, err = s.submit(ctx, out.WorkspaceID, ref)
	if err != nil {
		return out, s.fail(err)
	}
	tracker.JobSubmitted(ctx, out.WorkspaceID, out.JobID)

	logger := logging.WithJobID(s.logger, out.JobID)
	logger.Info("job submitted",
		"workspace_id", out.WorkspaceID,
		"source", string(ref.Kind),
		"size_bytes", ref.Size,
	)

	res, err := s.poller.Run(ctx, out.JobID, tracker)
	out.MediaID, out.Attempts = res.MediaID, res.Attempts
	if err != nil {
		var pe *Error
		if !errors.As(err, &pe) {
			err = ClassifyTransport("poll job", err)
		}
		return out, s.fail(err)
	}

	switch res.State {
	case StateFailed:
		return out, s.fail(&Error{Kind: KindProcessingFailed, Reason: "job failed", Message: MsgProcessingFailed, Op: "poll job"})
	case StateTimedOut:
		return out, s.fail(&Error{
			Kind:    KindTimeout,
			Reason:  fmt.Sprintf("no terminal state after %d polls", res.Attempts),
			Message: MsgTimeout,
			Op:      "poll job",
		})
	}

	tracker.Analyzing(ctx, out.MediaID)

	raw, err := s.client.Analyze(ctx, provider.AnalyzeRequest{
		MediaID:     out.MediaID,
		Prompt:      s.cfg.Prompt,
		Stream:      false,
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	})
	if err != nil {
		return out, s.fail(classify("analyze", err))
	}

	out.Text, out.Shape = normalize(raw)

	logger.Info("analysis completed",
		"media_id", out.MediaID,
		"attempts", out.Attempts,
		"shape", out.Shape,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func (s *Service) submit(ctx context.Context, workspaceID string, ref MediaReference) (string, error) {
	req := provider.SubmitRequest{WorkspaceID: workspaceID}
	if ref.Kind == SourceURL {
		req.VideoURL = ref.URL
	} else {
		req.Video = &provider.Upload{Filename: ref.Filename, ContentType: ref.ContentType, Data: ref.Data}
	}

	jobID, err := s.client.SubmitJob(ctx, req)
	if err != nil {
		return "", classify("submit job", err)
	}
	if jobID == "" {
		return "", protocolError("submit job", ReasonMissingJobID, nil)
	}
	return jobID, nil
}

// fail logs the diagnostic side of an error once; the user-facing message
// travels on the error itself.
func (s *Service) fail(err error) error {
	var e *Error
	if errors.As(err, &e) {
		s.logger.Warn("analysis failed",
			"kind", e.Kind.String(),
			"reason", e.Reason,
			"op", e.Op,
			"provider_status", e.Status,
			"provider_code", e.Code,
			"provider_body", e.Body,
			"error", e.Err,
		)
	}
	return err
}
