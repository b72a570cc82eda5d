package job

import (
	"database/sql"

	"github.com/dfeldman/bookbot-sub000/errors"
)

// jobScanArgs holds the nullable columns scanned from a job row
type jobScanArgs struct {
	BookID       sql.NullString
	PropsJSON    sql.NullString
	ErrorMessage sql.NullString
	StartedAt    sql.NullTime
	CompletedAt  sql.NullTime
}

func jobScanTargets(j *Job, args *jobScanArgs) []interface{} {
	return []interface{}{
		&j.ID,
		&args.BookID,
		&j.Type,
		&args.PropsJSON,
		&j.State,
		&args.ErrorMessage,
		&j.CreatedAt,
		&args.StartedAt,
		&args.CompletedAt,
	}
}

func processJobScanArgs(j *Job, args *jobScanArgs) error {
	if args.BookID.Valid {
		j.BookID = args.BookID.String
	}
	if args.PropsJSON.Valid {
		props, err := UnmarshalProps(args.PropsJSON.String)
		if err != nil {
			return errors.Wrapf(err, "failed to unmarshal props for job %s", j.ID)
		}
		j.Props = props
	}
	if args.ErrorMessage.Valid {
		j.ErrorMessage = args.ErrorMessage.String
	}
	if args.StartedAt.Valid {
		j.StartedAt = &args.StartedAt.Time
	}
	if args.CompletedAt.Valid {
		j.CompletedAt = &args.CompletedAt.Time
	}
	return nil
}

// scanJobRows scans a single job in a rows loop
func scanJobRows(rows *sql.Rows) (*Job, error) {
	var j Job
	args := &jobScanArgs{}
	if err := rows.Scan(jobScanTargets(&j, args)...); err != nil {
		return nil, err
	}
	if err := processJobScanArgs(&j, args); err != nil {
		return nil, err
	}
	return &j, nil
}

// jobSelectColumns is the standard column list for job SELECT queries
func jobSelectColumns() string {
	return `id, book_id, job_type, props, state, error_message,
		created_at, started_at, completed_at`
}

// logScanArgs holds the nullable columns scanned from a job_logs row
type logScanArgs struct {
	BookID    sql.NullString
	PropsJSON sql.NullString
}

func logScanTargets(e *LogEntry, args *logScanArgs) []interface{} {
	return []interface{}{
		&e.ID,
		&e.JobID,
		&args.BookID,
		&e.Level,
		&e.Entry,
		&args.PropsJSON,
		&e.CreatedAt,
	}
}

func processLogScanArgs(e *LogEntry, args *logScanArgs) error {
	if args.BookID.Valid {
		e.BookID = args.BookID.String
	}
	if args.PropsJSON.Valid {
		props, err := UnmarshalProps(args.PropsJSON.String)
		if err != nil {
			return errors.Wrapf(err, "failed to unmarshal props for log %d", e.ID)
		}
		e.Props = props
	}
	return nil
}

// logSelectColumns is the standard column list for job_logs SELECT queries
func logSelectColumns() string {
	return `id, job_id, book_id, level, entry, props, created_at`
}
