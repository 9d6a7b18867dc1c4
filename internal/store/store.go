package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Sentinel errors
var (
	ErrNotFound = errors.New("not found")
)

// Job statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	// StatusCrashed marks a job the server was running when it died.
	StatusCrashed = "crashed"
)

// isBusyLock reports whether err indicates SQLite database lock (SQLITE_BUSY).
// Handles wrapped errors from database/sql.
func isBusyLock(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "database is locked") || strings.Contains(s, "SQLITE_BUSY")
}

// retryOnBusy runs fn and retries on SQLITE_BUSY with exponential backoff.
func retryOnBusy(fn func() error) error {
	const maxAttempts = 4
	backoff := 25 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil || !isBusyLock(lastErr) {
			return lastErr
		}
		if attempt < maxAttempts-1 {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return lastErr
}

// Job is the history record of one benchmark job.
type Job struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Binary     string    `json:"binary"`
	Branch     string    `json:"branch"`
	Items      int       `json:"items"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	PID        int       `json:"pid,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	DurationMs int64     `json:"duration_ms"`
}

type Store struct {
	db *sql.DB
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY,
	kind          TEXT NOT NULL,
	server_binary TEXT NOT NULL DEFAULT '',
	branch        TEXT NOT NULL DEFAULT '',
	items         INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'running',
	error         TEXT NOT NULL DEFAULT '',
	pid           INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL,
	started_at    DATETIME NOT NULL,
	finished_at   DATETIME,
	duration_ms   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
`

const selectJobSQL = `SELECT id, kind, server_binary, branch, items, status, error, pid, created_at, started_at, finished_at, duration_ms FROM jobs`

// DefaultMaxOpenConns is the default connection pool size for concurrent reads.
const DefaultMaxOpenConns = 4

// dsnWithPragmas returns a connection string with WAL, busy_timeout, and perf
// pragmas applied to every new connection.
func dsnWithPragmas(dbPath string) string {
	return dbPath + "?_pragma=busy_timeout(15000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=temp_store(MEMORY)"
}

// New opens the store. maxOpenConns controls the connection pool size (0 = default 4).
func New(dbPath string, maxOpenConns int) (*Store, error) {
	db, err := sql.Open("sqlite", dsnWithPragmas(dbPath))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if maxOpenConns <= 0 {
		maxOpenConns = DefaultMaxOpenConns
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns)

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateJob(job *Job) error {
	err := retryOnBusy(func() error {
		_, e := s.db.Exec(
			`INSERT INTO jobs (id, kind, server_binary, branch, items, status, error, pid, created_at, started_at, duration_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			job.ID, job.Kind, job.Binary, job.Branch, job.Items, job.Status, job.Error, job.PID,
			job.CreatedAt.UTC(), job.StartedAt.UTC(), job.DurationMs,
		)
		return e
	})
	if err != nil {
		return fmt.Errorf("inserting job: %w", err)
	}
	return nil
}

// GetJob returns the job or ErrNotFound.
func (s *Store) GetJob(id string) (*Job, error) {
	row := s.db.QueryRow(selectJobSQL+` WHERE id = ?`, id)
	job, err := scanJob(row)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return job, nil
}

// ListJobs returns the most recent jobs first. limit <= 0 returns all.
func (s *Store) ListJobs(limit int) ([]*Job, error) {
	query := selectJobSQL + ` ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (s *Store) ListRunningJobs() ([]*Job, error) {
	rows, err := s.db.Query(selectJobSQL+` WHERE status = ?`, StatusRunning)
	if err != nil {
		return nil, fmt.Errorf("listing running jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (s *Store) SetJobPID(id string, pid int) error {
	return s.exec("setting job pid", id, `UPDATE jobs SET pid = ? WHERE id = ?`, pid, id)
}

func (s *Store) UpdateJobStatus(id string, status string) error {
	return s.exec("updating job status", id, `UPDATE jobs SET status = ? WHERE id = ?`, status, id)
}

// FinishJob records the final status of a job.
func (s *Store) FinishJob(id, status, errMsg string, finishedAt time.Time, took time.Duration) error {
	return s.exec("finishing job", id,
		`UPDATE jobs SET status = ?, error = ?, finished_at = ?, duration_ms = ? WHERE id = ?`,
		status, errMsg, finishedAt.UTC(), took.Milliseconds(), id,
	)
}

func (s *Store) exec(op, id, query string, args ...any) error {
	var result sql.Result
	err := retryOnBusy(func() error {
		var e error
		result, e = s.db.Exec(query, args...)
		return e
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return checkRowAffected(result, id)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanJob(row scannable) (*Job, error) {
	var job Job
	var finishedAt sql.NullTime
	err := row.Scan(
		&job.ID, &job.Kind, &job.Binary, &job.Branch, &job.Items, &job.Status, &job.Error, &job.PID,
		&job.CreatedAt, &job.StartedAt, &finishedAt, &job.DurationMs,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning job: %w", err)
	}
	if finishedAt.Valid {
		job.FinishedAt = finishedAt.Time
	}
	return &job, nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating jobs: %w", err)
	}
	return jobs, nil
}

func checkRowAffected(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return nil
}
