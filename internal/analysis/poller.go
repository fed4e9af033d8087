package analysis

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/formcoach/formcheck/internal/provider"
)

// JobStatus is the provider-reported state of a job.
type JobStatus string

const (
	StatusSubmitted JobStatus = "submitted"
	StatusReady     JobStatus = "ready"
	StatusFailed    JobStatus = "failed"
	StatusUnknown   JobStatus = "unknown"
)

// ParseJobStatus folds provider status strings onto the four known values.
func ParseJobStatus(s string) JobStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ready":
		return StatusReady
	case "failed":
		return StatusFailed
	case "submitted", "pending", "queued", "processing", "indexing", "validating":
		return StatusSubmitted
	default:
		return StatusUnknown
	}
}

// PollState is the supervisor's state machine position.
type PollState int

const (
	StateSubmitted PollState = iota
	StateReady
	StateFailed
	StateTimedOut
)

func (s PollState) String() string {
	switch s {
	case StateSubmitted:
		return "submitted"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Terminal reports whether the loop stops in this state.
func (s PollState) Terminal() bool {
	return s != StateSubmitted
}

// PollResult is what the supervisor hands back once it stops.
type PollResult struct {
	State    PollState
	MediaID  string
	Attempts int
}

// Sleeper waits d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the production Sleeper backed by a real timer.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type jobStatusClient interface {
	GetJob(ctx context.Context, jobID string) (*provider.JobStatus, error)
}

// Supervisor polls one job to a terminal state on a fixed cadence.
type Supervisor struct {
	client      jobStatusClient
	interval    time.Duration
	maxAttempts int
	sleep       Sleeper
	logger      *slog.Logger
}

func NewSupervisor(client jobStatusClient, interval time.Duration, maxAttempts int, sleep Sleeper, logger *slog.Logger) *Supervisor {
	if sleep == nil {
		sleep = SleepContext
	}
	return &Supervisor{
		client:      client,
		interval:    interval,
		maxAttempts: maxAttempts,
		sleep:       sleep,
		logger:      logger,
	}
}

// Run drives Submitted -> {Ready, Failed, TimedOut}. Every tick waits one
// interval and then queries the job. A status query that fails in transport,
// or with a 5xx, 408 or 429, is inconclusive and only consumes its attempt.
// The returned error is non-nil when ctx ends the wait, when the provider
// rejects the query outright, or when the job is ready but no media id was
// ever reported.
func (s *Supervisor) Run(ctx context.Context, jobID string, tracker Tracker) (PollResult, error) {
	if tracker == nil {
		tracker = NopTracker{}
	}

	cadence := backoff.WithMaxRetries(backoff.NewConstantBackOff(s.interval), uint64(s.maxAttempts))
	res := PollResult{State: StateSubmitted}

	for !res.State.Terminal() {
		wait := cadence.NextBackOff()
		if wait == backoff.Stop {
			res.State = StateTimedOut
			break
		}
		if err := s.sleep(ctx, wait); err != nil {
			return res, err
		}

		res.Attempts++
		state, err := s.tick(ctx, jobID, &res, tracker)
		if err != nil {
			return res, err
		}
		res.State = state
	}

	s.logger.Info("polling finished",
		"job_id", jobID,
		"state", res.State.String(),
		"attempts", res.Attempts,
		"media_id", res.MediaID,
	)

	if res.State == StateReady && res.MediaID == "" {
		return res, protocolError("get job", ReasonMissingMediaID, nil)
	}
	return res, nil
}

func (s *Supervisor) tick(ctx context.Context, jobID string, res *PollResult, tracker Tracker) (PollState, error) {
	st, err := s.client.GetJob(ctx, jobID)
	if err != nil {
		if rejected(err) {
			return StateSubmitted, classify("get job", err)
		}
		tracker.Polled(ctx, res.Attempts, string(StatusUnknown), res.MediaID)
		s.logger.Warn("job status query inconclusive",
			"job_id", jobID,
			"attempt", res.Attempts,
			"error", err,
		)
		return StateSubmitted, nil
	}

	// The provider may populate or change the media id at any point; the
	// latest non-empty value wins.
	if st.MediaID != "" {
		res.MediaID = st.MediaID
	}

	status := ParseJobStatus(st.Status)
	tracker.Polled(ctx, res.Attempts, string(status), res.MediaID)

	s.logger.Debug("job status",
		"job_id", jobID,
		"attempt", res.Attempts,
		"status", st.Status,
	)

	switch status {
	case StatusReady:
		return StateReady, nil
	case StatusFailed:
		return StateFailed, nil
	default:
		return StateSubmitted, nil
	}
}

// rejected reports a definite client-side refusal of the status query, such
// as a revoked key or an unknown job id. Polling again cannot change it.
func rejected(err error) bool {
	var apiErr *provider.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}
