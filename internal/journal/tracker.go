package journal

import (
	"context"
	"log/slog"
)

// Recorder opens journal entries for incoming requests.
type Recorder struct {
	repo   Repository
	logger *slog.Logger
}

func NewRecorder(repo Repository, logger *slog.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

func (r *Recorder) Repository() Repository {
	return r.repo
}

// Begin creates a pending run. Journal failures are logged and never
// surface to the caller; the returned tracker is always usable.
func (r *Recorder) Begin(ctx context.Context, sourceKind, sourceRef string, size int64) *RunTracker {
	run := &Run{
		ID:         NewID(),
		SourceKind: sourceKind,
		SourceRef:  sourceRef,
		SizeBytes:  size,
		State:      StatePending,
	}
	t := &RunTracker{id: run.ID, repo: r.repo, logger: r.logger.With("run_id", run.ID)}
	if err := r.repo.CreateRun(context.WithoutCancel(ctx), run); err != nil {
		t.logger.Warn("journal create failed", "error", err)
		t.disabled = true
	}
	return t
}

// RunTracker writes lifecycle updates for one run.
type RunTracker struct {
	id       string
	repo     Repository
	logger   *slog.Logger
	disabled bool
}

func (t *RunTracker) ID() string {
	return t.id
}

func (t *RunTracker) JobSubmitted(ctx context.Context, workspaceID, jobID string) {
	t.write(ctx, "submitted", func(ctx context.Context) error {
		return t.repo.MarkSubmitted(ctx, t.id, workspaceID, jobID)
	})
}

func (t *RunTracker) Polled(ctx context.Context, attempt int, status, mediaID string) {
	t.logger.Debug("poll recorded", "attempt", attempt, "status", status)
	t.write(ctx, "poll", func(ctx context.Context) error {
		return t.repo.UpdateRunPoll(ctx, t.id, attempt, mediaID)
	})
}

func (t *RunTracker) Analyzing(ctx context.Context, mediaID string) {
	t.write(ctx, "analyzing", func(ctx context.Context) error {
		return t.repo.MarkAnalyzing(ctx, t.id, mediaID)
	})
}

func (t *RunTracker) Complete(ctx context.Context, analysis string) {
	t.write(ctx, "complete", func(ctx context.Context) error {
		return t.repo.CompleteRun(ctx, t.id, analysis)
	})
}

func (t *RunTracker) Fail(ctx context.Context, code, message string) {
	t.write(ctx, "fail", func(ctx context.Context) error {
		return t.repo.FailRun(ctx, t.id, code, message)
	})
}

// write detaches from request cancellation so the final state still lands
// after a client disconnects.
func (t *RunTracker) write(ctx context.Context, step string, fn func(context.Context) error) {
	if t.disabled {
		return
	}
	if err := fn(context.WithoutCancel(ctx)); err != nil {
		t.logger.Warn("journal update failed", "step", step, "error", err)
	}
}
