package job

import (
	"database/sql"
	"time"

	"github.com/dfeldman/bookbot-sub000/errors"
)

// DBTX is the subset of database/sql operations the store needs,
// satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// Store handles persistence of jobs and their append-only log trail
type Store struct {
	db DBTX
}

// NewStore creates a new job store
func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

// WithTx returns a store bound to the given transaction
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{db: tx}
}

// CreateJob inserts a new job row
func (s *Store) CreateJob(j *Job) error {
	propsJSON, err := MarshalProps(j.Props)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO jobs (id, book_id, job_type, props, state, error_message, created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	bookID := sql.NullString{String: j.BookID, Valid: j.BookID != ""}
	props := sql.NullString{String: propsJSON, Valid: propsJSON != ""}
	errMsg := sql.NullString{String: j.ErrorMessage, Valid: j.ErrorMessage != ""}

	if _, err := s.db.Exec(query,
		j.ID, bookID, j.Type, props, j.State, errMsg,
		j.CreatedAt, j.StartedAt, j.CompletedAt,
	); err != nil {
		return errors.Wrap(err, "failed to create job")
	}
	return nil
}

// Submit creates a job in the waiting state and persists it.
// This is the entry point for external submitters.
func (s *Store) Submit(bookID, jobType string, props Props) (*Job, error) {
	j, err := NewJob(bookID, jobType, props)
	if err != nil {
		return nil, err
	}
	if err := s.CreateJob(j); err != nil {
		return nil, err
	}
	return j, nil
}

// GetJob retrieves a job by ID
func (s *Store) GetJob(id string) (*Job, error) {
	query := `SELECT ` + jobSelectColumns() + ` FROM jobs WHERE id = ?`

	var j Job
	args := &jobScanArgs{}
	err := s.db.QueryRow(query, id).Scan(jobScanTargets(&j, args)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("job %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get job")
	}
	if err := processJobScanArgs(&j, args); err != nil {
		return nil, err
	}
	return &j, nil
}

// ListEligible returns jobs awaiting a claim (state waiting or
// running_retry) in ascending creation order. This is the processor's
// per-cycle work list; the ordering gives best-effort FIFO within a cycle.
func (s *Store) ListEligible(limit int) ([]*Job, error) {
	query := `SELECT ` + jobSelectColumns() + `
		FROM jobs
		WHERE state IN (?, ?)
		ORDER BY created_at ASC, rowid ASC
		LIMIT ?`

	rows, err := s.db.Query(query, StateWaiting, StateRunningRetry, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list eligible jobs")
	}
	defer rows.Close()

	return collectJobs(rows, "eligible jobs")
}

// ListJobs returns jobs, optionally filtered by state, newest first
func (s *Store) ListJobs(state *State, limit int) ([]*Job, error) {
	var query string
	var args []interface{}

	base := `SELECT ` + jobSelectColumns() + ` FROM jobs`
	if state != nil {
		query = base + ` WHERE state = ? ORDER BY created_at DESC LIMIT ?`
		args = []interface{}{*state, limit}
	} else {
		query = base + ` ORDER BY created_at DESC LIMIT ?`
		args = []interface{}{limit}
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	return collectJobs(rows, "jobs")
}

func collectJobs(rows *sql.Rows, context string) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		j, err := scanJobRows(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "error iterating %s", context)
	}
	return jobs, nil
}

// MarkRunning stamps a claimed job as running. Run inside the claim
// transaction together with lock acquisition so "running" and "locked"
// publish atomically.
func (s *Store) MarkRunning(id string, startedAt time.Time) error {
	query := `UPDATE jobs SET state = ?, started_at = ? WHERE id = ?`
	if _, err := s.db.Exec(query, StateRunning, startedAt, id); err != nil {
		return errors.Wrap(err, "failed to mark job running")
	}
	return nil
}

// UpdateProps persists the job's current props (running totals etc.)
func (s *Store) UpdateProps(id string, props Props) error {
	propsJSON, err := MarshalProps(props)
	if err != nil {
		return err
	}
	query := `UPDATE jobs SET props = ? WHERE id = ?`
	if _, err := s.db.Exec(query, sql.NullString{String: propsJSON, Valid: propsJSON != ""}, id); err != nil {
		return errors.Wrap(err, "failed to update job props")
	}
	return nil
}

// FinalizeState moves a job to a terminal state, stamping completed_at and
// the error message. Jobs already terminal are left untouched, which keeps
// finalize idempotent; returns whether the row actually transitioned.
func (s *Store) FinalizeState(id string, state State, errMsg string, completedAt time.Time) (bool, error) {
	if !state.Terminal() {
		return false, errors.AssertionFailedf("finalize to non-terminal state %s", state)
	}

	query := `
		UPDATE jobs SET state = ?, error_message = ?, completed_at = ?
		WHERE id = ? AND state NOT IN (?, ?, ?, ?)
	`
	result, err := s.db.Exec(query,
		state, sql.NullString{String: errMsg, Valid: errMsg != ""}, completedAt,
		id, StateCompleted, StateFailed, StateError, StateCancelled,
	)
	if err != nil {
		return false, errors.Wrap(err, "failed to finalize job state")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to get rows affected")
	}
	return n > 0, nil
}

// Cancel marks a job cancelled. Valid only while the job is waiting or
// running; returns false otherwise. Cancellation of a running job is
// cooperative; the body keeps executing until it checks for itself.
func (s *Store) Cancel(id string) (bool, error) {
	query := `
		UPDATE jobs SET state = ?, completed_at = ?
		WHERE id = ? AND state IN (?, ?)
	`
	result, err := s.db.Exec(query, StateCancelled, time.Now(), id, StateWaiting, StateRunning)
	if err != nil {
		return false, errors.Wrap(err, "failed to cancel job")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to get rows affected")
	}
	return n > 0, nil
}

// CountByState returns the number of jobs in each state
func (s *Store) CountByState() (map[State]int, error) {
	rows, err := s.db.Query(`SELECT state, COUNT(*) FROM jobs GROUP BY state`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count jobs")
	}
	defer rows.Close()

	counts := make(map[State]int)
	for rows.Next() {
		var state State
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, errors.Wrap(err, "failed to scan job count")
		}
		counts[state] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating job counts")
	}
	return counts, nil
}

// AppendLog appends one row to a job's audit trail
func (s *Store) AppendLog(jobID, bookID string, level LogLevel, entry string, props Props) error {
	propsJSON, err := MarshalProps(props)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO job_logs (job_id, book_id, level, entry, props, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := s.db.Exec(query,
		jobID,
		sql.NullString{String: bookID, Valid: bookID != ""},
		level,
		entry,
		sql.NullString{String: propsJSON, Valid: propsJSON != ""},
		time.Now(),
	); err != nil {
		return errors.Wrap(err, "failed to append job log")
	}
	return nil
}

// ListLogsForJob returns a job's log trail in append order
func (s *Store) ListLogsForJob(jobID string, limit int) ([]*LogEntry, error) {
	query := `SELECT ` + logSelectColumns() + `
		FROM job_logs WHERE job_id = ? ORDER BY id ASC LIMIT ?`
	return s.queryLogs(query, jobID, limit)
}

// ListLogsForBook returns log rows across every job that touched a book
func (s *Store) ListLogsForBook(bookID string, limit int) ([]*LogEntry, error) {
	query := `SELECT ` + logSelectColumns() + `
		FROM job_logs WHERE book_id = ? ORDER BY id ASC LIMIT ?`
	return s.queryLogs(query, bookID, limit)
}

func (s *Store) queryLogs(query string, key string, limit int) ([]*LogEntry, error) {
	rows, err := s.db.Query(query, key, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list job logs")
	}
	defer rows.Close()

	var entries []*LogEntry
	for rows.Next() {
		var e LogEntry
		args := &logScanArgs{}
		if err := rows.Scan(logScanTargets(&e, args)...); err != nil {
			return nil, errors.Wrap(err, "failed to scan job log")
		}
		if err := processLogScanArgs(&e, args); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating job logs")
	}
	return entries, nil
}
