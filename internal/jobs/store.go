package jobs

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"sprocket/internal/storage"
)

//go:embed schema.sql
var schemaSQL string

// ErrTerminal is returned when a write targets a job already in a terminal
// state. Terminal records accept no further mutation.
var ErrTerminal = errors.New("job is in a terminal state")

// ErrNotFound is returned when a write targets an unknown job.
var ErrNotFound = errors.New("job not found")

// Store manages job record persistence.
//
// Write ownership is split by design: the dispatcher owns the
// queued-to-processing transition (EnsureProcessing), the pipeline executor
// owns every later field (SetStageStarting, MarkCompleted, MarkFailed).
type Store struct {
	db *storage.DB
}

// NewStore initializes the job table against the shared database.
func NewStore(ctx context.Context, db *storage.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("database handle is nil")
	}
	if err := db.InitSchema(ctx, schemaSQL); err != nil {
		return nil, fmt.Errorf("init jobs schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Create inserts a new queued job record. Duplicate job IDs are rejected.
func (s *Store) Create(ctx context.Context, jobID, sourceKey string) (*Job, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, errors.New("job id required")
	}
	if strings.TrimSpace(sourceKey) == "" {
		return nil, errors.New("source key required")
	}
	timestamp := storage.FormatTime(time.Now())
	_, err := s.db.Exec(
		ctx,
		`INSERT INTO jobs (job_id, source_key, status, progress, created_at, updated_at)
         VALUES (?, ?, ?, 0, ?, ?)`,
		jobID,
		sourceKey,
		StatusQueued,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return s.Get(ctx, jobID)
}

// EnsureProcessing upserts the job into the processing state before a worker
// launch. First observation of a job_id creates the record; a re-dispatched
// job (operator re-enqueue after claim expiry) is reset for a fresh run.
func (s *Store) EnsureProcessing(ctx context.Context, jobID, sourceKey string) (*Job, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, errors.New("job id required")
	}
	timestamp := storage.FormatTime(time.Now())
	_, err := s.db.Exec(
		ctx,
		`INSERT INTO jobs (job_id, source_key, status, progress, created_at, updated_at)
         VALUES (?, ?, ?, 0, ?, ?)
         ON CONFLICT(job_id) DO UPDATE SET
             status = excluded.status,
             source_key = excluded.source_key,
             current_stage = NULL,
             progress = 0,
             error_kind = NULL,
             error_message = NULL,
             updated_at = excluded.updated_at`,
		jobID,
		sourceKey,
		StatusProcessing,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert job processing: %w", err)
	}
	return s.Get(ctx, jobID)
}

// Get fetches a job record by identifier. Returns nil when unknown.
func (s *Store) Get(ctx context.Context, jobID string) (*Job, error) {
	row := s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE job_id = ?`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// SetStageStarting records that the named stage is about to run. The stage
// name and progress fraction are written in one statement so a poller never
// observes one without the other. Writes to terminal jobs are rejected.
func (s *Store) SetStageStarting(ctx context.Context, jobID, stage string, progress float64) error {
	res, err := s.db.Exec(
		ctx,
		`UPDATE jobs
         SET current_stage = ?, progress = ?, updated_at = ?
         WHERE job_id = ? AND status = ?`,
		stage,
		progress,
		storage.FormatTime(time.Now()),
		jobID,
		StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("set stage starting: %w", err)
	}
	return s.requireWrite(ctx, res, jobID)
}

// MarkCompleted finalizes a successful job: progress 1.0, no current stage.
func (s *Store) MarkCompleted(ctx context.Context, jobID string) error {
	res, err := s.db.Exec(
		ctx,
		`UPDATE jobs
         SET status = ?, current_stage = NULL, progress = 1.0,
             error_kind = NULL, error_message = NULL, updated_at = ?
         WHERE job_id = ? AND status = ?`,
		StatusCompleted,
		storage.FormatTime(time.Now()),
		jobID,
		StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return s.requireWrite(ctx, res, jobID)
}

// MarkFailed finalizes a failed job. The failing stage is preserved in
// current_stage for diagnostics and echoed as the error kind.
func (s *Store) MarkFailed(ctx context.Context, jobID, stage, message string) error {
	res, err := s.db.Exec(
		ctx,
		`UPDATE jobs
         SET status = ?, current_stage = ?, error_kind = ?, error_message = ?, updated_at = ?
         WHERE job_id = ? AND status = ?`,
		StatusFailed,
		storage.NullableString(stage),
		storage.NullableString(stage),
		message,
		storage.FormatTime(time.Now()),
		jobID,
		StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return s.requireWrite(ctx, res, jobID)
}

// requireWrite distinguishes "no such job" from "terminal, write refused"
// after a guarded update matched zero rows.
func (s *Store) requireWrite(ctx context.Context, res sql.Result, jobID string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}
	existing, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	return fmt.Errorf("%w: %s (%s)", ErrTerminal, jobID, existing.Status)
}

// List returns jobs filtered by status set (or all jobs when none given),
// oldest first.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.Query(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.Query(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var result []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, job)
	}
	return result, rows.Err()
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.Query(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// StaleProcessing lists processing jobs not updated since the cutoff. The
// external sweeper uses this to find workers killed by the launcher ceiling.
func (s *Store) StaleProcessing(ctx context.Context, cutoff time.Time) ([]*Job, error) {
	rows, err := s.db.Query(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? AND updated_at < ? ORDER BY updated_at`,
		StatusProcessing,
		storage.FormatTime(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("stale processing: %w", err)
	}
	defer rows.Close()

	var result []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, job)
	}
	return result, rows.Err()
}

const jobColumns = "job_id, source_key, status, current_stage, progress, error_kind, error_message, created_at, updated_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		jobID        string
		sourceKey    string
		statusStr    string
		currentStage sql.NullString
		progress     float64
		errorKind    sql.NullString
		errorMessage sql.NullString
		createdRaw   string
		updatedRaw   string
	)

	if err := scanner.Scan(
		&jobID,
		&sourceKey,
		&statusStr,
		&currentStage,
		&progress,
		&errorKind,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		JobID:        jobID,
		SourceKey:    sourceKey,
		Status:       Status(statusStr),
		CurrentStage: currentStage.String,
		Progress:     progress,
	}
	if errorKind.Valid || errorMessage.Valid {
		job.Error = &ErrorInfo{Kind: errorKind.String, Message: errorMessage.String}
	}
	if created, err := storage.ParseTime(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := storage.ParseTime(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
