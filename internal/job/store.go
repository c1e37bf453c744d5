package job

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/nr2bj/transcribe-server/internal/apperr"
)

// Store is the durable registry of Job rows, backed by the embedded
// SQLite database. Its methods mirror the teacher's JobQueue SQL
// methods (GetJob, ListJobs, UpdateProgress, CancelJob in
// internal/job/queue.go of the reference implementation), generalized
// to the richer status DAG and terminal-field semantics of §3.
type Store struct {
	db *sql.DB
}

// NewStore wraps an already-migrated *sql.DB.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the jobs table if absent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS jobs (
		job_id TEXT PRIMARY KEY,
		source_kind TEXT NOT NULL,
		source_ref TEXT NOT NULL,
		webhook_url TEXT NOT NULL DEFAULT '',
		translate INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		stage TEXT NOT NULL,
		progress INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		completed_at DATETIME,
		failed_at DATETIME,
		expires_at DATETIME NOT NULL,
		error_type TEXT,
		error_message TEXT,
		error_details TEXT,
		duration_seconds REAL,
		result_formats TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	CREATE INDEX IF NOT EXISTS idx_jobs_expires_at ON jobs(expires_at);
	`)
	return err
}

// Insert commits a new job row. Fails with apperr.KindDuplicateID if
// the id already exists.
func (s *Store) Insert(j *Job) error {
	_, err := s.db.Exec(`
		INSERT INTO jobs (job_id, source_kind, source_ref, webhook_url, translate, status, stage,
			progress, created_at, updated_at, expires_at, result_formats)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.SourceKind, j.SourceRef, j.WebhookURL, j.Translate, j.Status, j.Stage,
		j.Progress, j.CreatedAt, j.UpdatedAt, j.ExpiresAt, joinFormats(j.ResultFormats),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return apperr.New(apperr.KindDuplicateID, "job id already exists")
		}
		return apperr.Wrap(apperr.KindInternal, "insert job", err)
	}
	return nil
}

// Get returns a job row by id, or apperr.KindNotFound.
func (s *Store) Get(jobID string) (*Job, error) {
	row := s.db.QueryRow(`
		SELECT job_id, source_kind, source_ref, webhook_url, translate, status, stage, progress,
			created_at, updated_at, completed_at, failed_at, expires_at,
			error_type, error_message, error_details, duration_seconds, result_formats
		FROM jobs WHERE job_id = ?`, jobID)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.KindNotFound, "job not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "get job", err)
	}
	return j, nil
}

// ListFilter narrows List by status bucket and paginates.
type ListFilter struct {
	Status Status // empty means all statuses
	Limit  int
	Offset int
}

// List returns jobs matching filter, newest first.
func (s *Store) List(f ListFilter) ([]*Job, error) {
	query := `
		SELECT job_id, source_kind, source_ref, webhook_url, translate, status, stage, progress,
			created_at, updated_at, completed_at, failed_at, expires_at,
			error_type, error_message, error_details, duration_seconds, result_formats
		FROM jobs`
	args := []interface{}{}
	if f.Status != "" {
		query += " WHERE status = ?"
		args = append(args, f.Status)
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list jobs", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan job", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// UpdateProgress advances a job's status/stage/progress. It is only
// permitted if the new status is reachable from the job's current
// status per the DAG in §3; otherwise apperr.KindIllegalTransition.
// The guard is enforced with a conditional UPDATE (matching the
// teacher's WHERE-status-IN pattern in CancelJob) so the check and the
// write are atomic with respect to concurrent updates of the same row.
func (s *Store) UpdateProgress(jobID string, to Status, stage string, progress int) error {
	current, err := s.Get(jobID)
	if err != nil {
		return err
	}
	if !CanTransition(current.Status, to) {
		return apperr.New(apperr.KindIllegalTransition,
			fmt.Sprintf("cannot move job from %s to %s", current.Status, to))
	}

	res, err := s.db.Exec(`
		UPDATE jobs SET status = ?, stage = ?, progress = ?, updated_at = ?
		WHERE job_id = ? AND status = ?`,
		to, stage, progress, time.Now(), jobID, current.Status,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "update progress", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.New(apperr.KindIllegalTransition, "status changed concurrently")
	}
	return nil
}

// SetProgress bumps progress within the current stage without
// attempting a status transition. The write is conditioned on the
// job still being in the expected status and on progress advancing,
// so late-arriving updates from an abandoned job cannot move it
// backward after a concurrent stage change.
func (s *Store) SetProgress(jobID string, status Status, progress int) error {
	_, err := s.db.Exec(`
		UPDATE jobs SET progress = ?, updated_at = ?
		WHERE job_id = ? AND status = ? AND progress <= ?`,
		progress, time.Now(), jobID, status, progress,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "set progress", err)
	}
	return nil
}

// SetDuration records the extractor's measured audio duration.
func (s *Store) SetDuration(jobID string, seconds float64) error {
	_, err := s.db.Exec(`UPDATE jobs SET duration_seconds = ?, updated_at = ? WHERE job_id = ?`,
		seconds, time.Now(), jobID)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "set duration", err)
	}
	return nil
}

// MarkCompleted sets the terminal completed state on a job in
// formatting; on any other status, including an already-completed job,
// it is a no-op.
func (s *Store) MarkCompleted(jobID string, formats []Format) error {
	now := time.Now()
	res, err := s.db.Exec(`
		UPDATE jobs SET status = ?, stage = ?, progress = 100, completed_at = ?,
			result_formats = ?, updated_at = ?
		WHERE job_id = ? AND status = ?`,
		StatusCompleted, StatusCompleted, now, joinFormats(formats), now, jobID, StatusFormatting,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "mark completed", err)
	}
	_, _ = res.RowsAffected()
	return nil
}

// MarkFailed sets the terminal failed state on a non-terminal job; on a
// job already completed or failed it is a no-op.
func (s *Store) MarkFailed(jobID string, jobErr *Error) error {
	now := time.Now()
	_, err := s.db.Exec(`
		UPDATE jobs SET status = ?, stage = ?, failed_at = ?,
			error_type = ?, error_message = ?, error_details = ?, updated_at = ?
		WHERE job_id = ? AND status NOT IN (?, ?)`,
		StatusFailed, StatusFailed, now, jobErr.Type, jobErr.Message, jobErr.Details, now,
		jobID, StatusCompleted, StatusFailed,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "mark failed", err)
	}
	return nil
}

// Delete removes a job row. The caller is responsible for removing the
// on-disk directory first, per §4.1.
func (s *Store) Delete(jobID string) error {
	res, err := s.db.Exec(`DELETE FROM jobs WHERE job_id = ?`, jobID)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "delete job", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.New(apperr.KindNotFound, "job not found")
	}
	return nil
}

// Expired returns ids whose expires_at is before now.
func (s *Store) Expired(now time.Time) ([]string, error) {
	rows, err := s.db.Query(`SELECT job_id FROM jobs WHERE expires_at < ?`, now)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list expired", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan expired id", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row scanner) (*Job, error) {
	j := &Job{}
	var completedAt, failedAt sql.NullTime
	var errType, errMessage, errDetails sql.NullString
	var duration sql.NullFloat64
	var resultFormats string

	err := row.Scan(
		&j.ID, &j.SourceKind, &j.SourceRef, &j.WebhookURL, &j.Translate, &j.Status, &j.Stage, &j.Progress,
		&j.CreatedAt, &j.UpdatedAt, &completedAt, &failedAt, &j.ExpiresAt,
		&errType, &errMessage, &errDetails, &duration, &resultFormats,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		j.CompletedAt = &completedAt.Time
	}
	if failedAt.Valid {
		j.FailedAt = &failedAt.Time
	}
	if errType.Valid && errType.String != "" {
		j.Error = &Error{Type: errType.String, Message: errMessage.String, Details: errDetails.String}
	}
	if duration.Valid {
		d := duration.Float64
		j.DurationSeconds = &d
	}
	j.ResultFormats = splitFormats(resultFormats)

	return j, nil
}

func joinFormats(formats []Format) string {
	parts := make([]string, len(formats))
	for i, f := range formats {
		parts[i] = string(f)
	}
	return strings.Join(parts, ",")
}

func splitFormats(s string) []Format {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	formats := make([]Format, len(parts))
	for i, p := range parts {
		formats[i] = Format(p)
	}
	return formats
}
