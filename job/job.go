// Package job implements the background job processor: persisted job records
// with a small state machine, a name-keyed registry of job factories, the
// locking job hierarchy over books and chunks, and the polling processor that
// drives claimed jobs through a claim / execute / finalize protocol.
package job

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dfeldman/bookbot-sub000/errors"
)

// State represents the current state of a job
type State string

const (
	StateWaiting      State = "waiting"
	StateRunningRetry State = "running_retry" // Claimed exactly like waiting
	StateRunning      State = "running"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
	StateError        State = "error"
	StateCancelled    State = "cancelled"
)

// IsValidState returns true if the state string is a valid State
func IsValidState(s string) bool {
	switch State(s) {
	case StateWaiting, StateRunningRetry, StateRunning,
		StateCompleted, StateFailed, StateError, StateCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether the state admits no further transitions
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateError, StateCancelled:
		return true
	default:
		return false
	}
}

// Claimable reports whether the processor may claim a job in this state
func (s State) Claimable() bool {
	return s == StateWaiting || s == StateRunningRetry
}

// LogLevel classifies a job log entry
type LogLevel string

const (
	LevelDebug    LogLevel = "DEBUG"
	LevelInfo     LogLevel = "INFO"
	LevelWarning  LogLevel = "WARNING"
	LevelError    LogLevel = "ERROR"
	LevelLLM      LogLevel = "LLM" // Generation call transcripts and usage
	LevelCritical LogLevel = "CRITICAL"
)

// Props is the opaque key/value bag carried by a job: parameters in,
// running totals (such as accumulated cost) out.
type Props map[string]interface{}

// String reads a string-valued prop, returning "" when absent
func (p Props) String(key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

// Int reads an int-valued prop, returning 0 when absent.
// JSON round-trips numbers as float64, so both are accepted.
func (p Props) Int(key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Float reads a float-valued prop, returning 0 when absent
func (p Props) Float(key string) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

// MarshalProps converts Props to a JSON string for storage
func MarshalProps(p Props) (string, error) {
	if p == nil {
		return "", nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal props")
	}
	return string(data), nil
}

// UnmarshalProps converts a stored JSON string back to Props
func UnmarshalProps(data string) (Props, error) {
	if data == "" {
		return nil, nil
	}
	var p Props
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal props")
	}
	return p, nil
}

// Job is a unit of asynchronous work with a persisted state machine.
// State only advances along the processor's edges; once terminal, state and
// CompletedAt are immutable. Only the processor (and, for cancellation, the
// job instance itself) mutates a job after submission.
type Job struct {
	ID           string     `json:"id"`
	BookID       string     `json:"book_id,omitempty"` // Empty for resource-less jobs
	Type         string     `json:"job_type"`          // Registry key
	Props        Props      `json:"props,omitempty"`
	State        State      `json:"state"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// NewJob creates a job record in the waiting state
func NewJob(bookID, jobType string, props Props) (*Job, error) {
	if jobType == "" {
		return nil, errors.Wrap(errors.ErrInvalidRequest, "job type cannot be empty")
	}
	return &Job{
		ID:        uuid.NewString(),
		BookID:    bookID,
		Type:      jobType,
		Props:     props,
		State:     StateWaiting,
		CreatedAt: time.Now(),
	}, nil
}

// Duration returns the wall time between claim and completion, zero until both
// timestamps are stamped
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}

// LogEntry is one row of a job's append-only audit trail. BookID is carried
// alongside the free-form props so log history can be searched across every
// job that touched a book.
type LogEntry struct {
	ID        int64     `json:"id"`
	JobID     string    `json:"job_id"`
	BookID    string    `json:"book_id,omitempty"`
	Level     LogLevel  `json:"level"`
	Entry     string    `json:"entry"`
	Props     Props     `json:"props,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
