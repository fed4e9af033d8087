package analysis

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/formcoach/formcheck/internal/provider"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// instantSleep never blocks but still honors cancellation.
func instantSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

type jobReply struct {
	status *provider.JobStatus
	err    error
}

// fakeProvider scripts provider replies and counts every call.
type fakeProvider struct {
	mu sync.Mutex

	workspaces  []provider.Workspace
	listErr     error
	listGate    chan struct{}
	createdID   string
	createErr   error
	jobID       string
	submitErr   error
	jobs        []jobReply
	analyzeBody []byte
	analyzeErr  error

	listCalls    int
	createCalls  int
	submitCalls  int
	getJobCalls  int
	analyzeCalls int

	submitted []provider.SubmitRequest
	analyzed  []provider.AnalyzeRequest
	created   []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		workspaces:  []provider.Workspace{{ID: "ws-1", Name: "formcheck-videos"}},
		jobID:       "job-1",
		analyzeBody: []byte(`{"data":"Great depth on the squat."}`),
	}
}

func (f *fakeProvider) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls + f.createCalls + f.submitCalls + f.getJobCalls + f.analyzeCalls
}

// ListWorkspaces blocks on listGate, when set, after counting the call.
func (f *fakeProvider) ListWorkspaces(ctx context.Context, pageLimit int) ([]provider.Workspace, error) {
	f.mu.Lock()
	f.listCalls++
	gate := f.listGate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.workspaces, f.listErr
}

func (f *fakeProvider) CreateWorkspace(ctx context.Context, name string, capabilities []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.created = append(f.created, name)
	return f.createdID, f.createErr
}

func (f *fakeProvider) SubmitJob(ctx context.Context, sub provider.SubmitRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	f.submitted = append(f.submitted, sub)
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return f.jobID, nil
}

// GetJob replays the scripted replies in order and repeats the last one.
func (f *fakeProvider) GetJob(ctx context.Context, jobID string) (*provider.JobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getJobCalls++
	if len(f.jobs) == 0 {
		return &provider.JobStatus{Status: "pending"}, nil
	}
	i := f.getJobCalls - 1
	if i >= len(f.jobs) {
		i = len(f.jobs) - 1
	}
	r := f.jobs[i]
	if r.err != nil {
		return nil, r.err
	}
	st := *r.status
	return &st, nil
}

func (f *fakeProvider) Analyze(ctx context.Context, req provider.AnalyzeRequest) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analyzeCalls++
	f.analyzed = append(f.analyzed, req)
	return f.analyzeBody, f.analyzeErr
}

func reply(s, mediaID string) jobReply {
	return jobReply{status: &provider.JobStatus{Status: s, MediaID: mediaID}}
}

func pendingThenReady(pending int, mediaID string) []jobReply {
	replies := make([]jobReply, 0, pending+1)
	for i := 0; i < pending; i++ {
		replies = append(replies, reply("pending", ""))
	}
	return append(replies, reply("ready", mediaID))
}

// recordingTracker captures lifecycle notifications.
type recordingTracker struct {
	submittedJob string
	polls        []string
	analyzing    string
}

func (r *recordingTracker) JobSubmitted(_ context.Context, _, jobID string) {
	r.submittedJob = jobID
}

func (r *recordingTracker) Polled(_ context.Context, _ int, status, _ string) {
	r.polls = append(r.polls, status)
}

func (r *recordingTracker) Analyzing(_ context.Context, mediaID string) {
	r.analyzing = mediaID
}
