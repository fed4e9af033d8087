package journal

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrRunNotFound is returned by updates that target a missing run.
var ErrRunNotFound = errors.New("run not found")

type Repository interface {
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	MarkSubmitted(ctx context.Context, id, workspaceID, jobID string) error
	UpdateRunPoll(ctx context.Context, id string, attempts int, mediaID string) error
	MarkAnalyzing(ctx context.Context, id, mediaID string) error
	CompleteRun(ctx context.Context, id, analysis string) error
	FailRun(ctx context.Context, id, code, errorMsg string) error

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

const runColumns = `id, source_kind, source_ref, size_bytes, workspace_id, job_id, media_id,
	state, attempts, error_code, error, analysis, created_at, updated_at`

func (r *SQLiteRepository) timestamp() string {
	return r.now().UTC().Format(time.RFC3339)
}

func (r *SQLiteRepository) CreateRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = NewID()
	}
	if run.State == "" {
		run.State = StatePending
	}
	now := r.now().UTC().Truncate(time.Second)
	run.CreatedAt, run.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.SourceKind, nullString(run.SourceRef), run.SizeBytes,
		nullString(run.WorkspaceID), nullString(run.JobID), nullString(run.MediaID),
		run.State, run.Attempts, nullString(run.ErrorCode), nullString(run.Error), nullString(run.Analysis),
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetRun(ctx context.Context, id string) (*Run, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// ListRuns returns the newest runs first.
func (r *SQLiteRepository) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM runs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *SQLiteRepository) MarkSubmitted(ctx context.Context, id, workspaceID, jobID string) error {
	return r.update(ctx, `
		UPDATE runs SET workspace_id = ?, job_id = ?, state = ?, updated_at = ? WHERE id = ?
	`, workspaceID, jobID, StatePolling, r.timestamp(), id)
}

// UpdateRunPoll records the attempt count and keeps the last known media id.
func (r *SQLiteRepository) UpdateRunPoll(ctx context.Context, id string, attempts int, mediaID string) error {
	return r.update(ctx, `
		UPDATE runs SET attempts = ?, media_id = COALESCE(?, media_id), updated_at = ? WHERE id = ?
	`, attempts, nullString(mediaID), r.timestamp(), id)
}

func (r *SQLiteRepository) MarkAnalyzing(ctx context.Context, id, mediaID string) error {
	return r.update(ctx, `
		UPDATE runs SET media_id = ?, state = ?, updated_at = ? WHERE id = ?
	`, mediaID, StateAnalyzing, r.timestamp(), id)
}

func (r *SQLiteRepository) CompleteRun(ctx context.Context, id, analysis string) error {
	return r.update(ctx, `
		UPDATE runs SET analysis = ?, state = ?, error_code = NULL, error = NULL, updated_at = ? WHERE id = ?
	`, analysis, StateCompleted, r.timestamp(), id)
}

func (r *SQLiteRepository) FailRun(ctx context.Context, id, code, errorMsg string) error {
	return r.update(ctx, `
		UPDATE runs SET error_code = ?, error = ?, state = ?, updated_at = ? WHERE id = ?
	`, nullString(code), nullString(errorMsg), StateFailed, r.timestamp(), id)
}

func (r *SQLiteRepository) update(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var run Run
	var sourceRef, workspaceID, jobID, mediaID, errorCode, errMsg, analysis sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(&run.ID, &run.SourceKind, &sourceRef, &run.SizeBytes, &workspaceID, &jobID, &mediaID,
		&run.State, &run.Attempts, &errorCode, &errMsg, &analysis, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	run.SourceRef = sourceRef.String
	run.WorkspaceID = workspaceID.String
	run.JobID = jobID.String
	run.MediaID = mediaID.String
	run.ErrorCode = errorCode.String
	run.Error = errMsg.String
	run.Analysis = analysis.String
	run.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	run.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &run, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
