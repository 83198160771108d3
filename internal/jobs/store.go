package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
    id             TEXT PRIMARY KEY,
    project_id     TEXT NOT NULL,
    manifest_path  TEXT NOT NULL,
    status         TEXT NOT NULL,
    stage          TEXT,
    progress       INTEGER NOT NULL DEFAULT 0,
    error_message  TEXT,
    video_path     TEXT,
    captions_path  TEXT,
    created_at     TEXT NOT NULL,
    updated_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_queue ON jobs(status, updated_at);
CREATE INDEX IF NOT EXISTS idx_jobs_project ON jobs(project_id, status);
`

const jobColumns = `id, project_id, manifest_path, status, stage, progress,
    error_message, video_path, captions_path, created_at, updated_at`

// fixed-width so timestamps sort as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Store manages job records backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or connects to the job database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one connection serializes claim transactions across workers
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Create inserts a queued job unless the project already has one queued or
// running, in which case ErrProjectBusy is returned.
func (s *Store) Create(ctx context.Context, projectID, manifestPath string) (*Job, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, errors.New("project id is required")
	}
	id := uuid.NewString()
	now := timestamp(time.Now())

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var active int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM jobs WHERE project_id = ? AND status IN (?, ?)`,
			projectID, StatusQueued, StatusRunning,
		).Scan(&active); err != nil {
			return fmt.Errorf("check active jobs: %w", err)
		}
		if active > 0 {
			return fmt.Errorf("%w: %s", ErrProjectBusy, projectID)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO jobs (id, project_id, manifest_path, status, progress, created_at, updated_at)
             VALUES (?, ?, ?, ?, 0, ?, ?)`,
			id, projectID, manifestPath, StatusQueued, now, now,
		)
		if err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Get fetches a job by id. A missing job returns nil, nil.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns the most recent jobs first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// ActiveForProject returns the queued or running job of a project, if any.
func (s *Store) ActiveForProject(ctx context.Context, projectID string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE project_id = ? AND status IN (?, ?)
         ORDER BY created_at LIMIT 1`,
		projectID, StatusQueued, StatusRunning,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active job: %w", err)
	}
	return job, nil
}

// ClaimNext atomically moves the queued job that has waited longest since
// it was queued or requeued to running. It returns nil, nil when the queue
// is empty.
func (s *Store) ClaimNext(ctx context.Context) (*Job, error) {
	var id string
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM jobs WHERE status = ? ORDER BY updated_at, rowid LIMIT 1`,
			StatusQueued,
		).Scan(&id)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, stage = NULL, progress = 0, updated_at = ? WHERE id = ? AND status = ?`,
			StatusRunning, timestamp(time.Now()), id, StatusQueued,
		)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return s.Get(ctx, id)
}

// Release returns a running job to the back of the queue.
func (s *Store) Release(ctx context.Context, id string) error {
	return s.update(ctx, "release job",
		`UPDATE jobs SET status = ?, stage = NULL, progress = 0, updated_at = ? WHERE id = ? AND status = ?`,
		StatusQueued, timestamp(time.Now()), id, StatusRunning,
	)
}

// Running returns every job currently marked running, oldest first.
func (s *Store) Running(ctx context.Context) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY created_at, rowid`,
		StatusRunning,
	)
	if err != nil {
		return nil, fmt.Errorf("list running jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// ResetStuck requeues running jobs left behind by a process that died
// mid-render. With no ids every running job is reset.
func (s *Store) ResetStuck(ctx context.Context, ids ...string) (int64, error) {
	query := `UPDATE jobs SET status = ?, stage = 'reset after interrupted render', progress = 0, updated_at = ?
         WHERE status = ?`
	args := []any{StatusQueued, timestamp(time.Now()), StatusRunning}
	if len(ids) > 0 {
		query += ` AND id IN (?` + strings.Repeat(", ?", len(ids)-1) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}

	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("reset stuck jobs: %w", err)
	}
	return affected, nil
}

// UpdateProgress records the last finished stage of a running job.
func (s *Store) UpdateProgress(ctx context.Context, id, stage string, percent int) error {
	percent = min(max(percent, 0), 100)
	return s.update(ctx, "update progress",
		`UPDATE jobs SET stage = ?, progress = ?, updated_at = ? WHERE id = ?`,
		stage, percent, timestamp(time.Now()), id,
	)
}

// Complete marks a job succeeded with its artifact paths.
func (s *Store) Complete(ctx context.Context, id, videoPath, captionsPath string) error {
	return s.update(ctx, "complete job",
		`UPDATE jobs SET status = ?, progress = 100, video_path = ?, captions_path = ?,
             error_message = NULL, updated_at = ? WHERE id = ?`,
		StatusSucceeded, videoPath, nullableString(captionsPath), timestamp(time.Now()), id,
	)
}

// Fail marks a job failed with message.
func (s *Store) Fail(ctx context.Context, id, message string) error {
	return s.update(ctx, "fail job",
		`UPDATE jobs SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		StatusFailed, message, timestamp(time.Now()), id,
	)
}

func (s *Store) update(ctx context.Context, op, query string, args ...any) error {
	err := retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit()
	})
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		job        Job
		status     string
		stage      sql.NullString
		errMessage sql.NullString
		videoPath  sql.NullString
		captions   sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(
		&job.ID,
		&job.ProjectID,
		&job.ManifestPath,
		&status,
		&stage,
		&job.Progress,
		&errMessage,
		&videoPath,
		&captions,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	job.Status = Status(status)
	job.Stage = stage.String
	job.Error = errMessage.String
	job.VideoPath = videoPath.String
	job.CaptionsPath = captions.String
	job.CreatedAt = parseTimestamp(createdRaw)
	job.UpdatedAt = parseTimestamp(updatedRaw)
	return &job, nil
}

func timestamp(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTimestamp(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = min(delay*2, busyRetryMaxBackoff)
	}
	return lastErr
}
