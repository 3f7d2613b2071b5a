package job

import (
	"time"

	"github.com/xraph/cadence/id"
)

// Status represents the lifecycle state of a job.
type Status string

const (
	// StatusPending means the job is waiting to be dispatched. It may be
	// queued, blocked on dependencies or waiting out a retry backoff.
	StatusPending Status = "pending"
	// StatusRunning means the job's executor is in flight.
	StatusRunning Status = "running"
	// StatusCompleted means the job finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed means the job failed and will not be retried automatically.
	StatusFailed Status = "failed"
	// StatusCancelled means the job was explicitly cancelled.
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further automatic transition occurs.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Priority selects the lane a job is queued on.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Priorities lists every priority in dispatch order.
var Priorities = []Priority{PriorityHigh, PriorityNormal, PriorityLow}

// Rank returns the dispatch rank of p: 0 for high, 1 for normal, 2 for low.
// Unknown priorities rank as normal.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityNormal || p == PriorityLow
}

// Job represents a unit of work tracked by the scheduler.
type Job struct {
	ID                id.JobID      `json:"id"`
	Kind              string        `json:"kind"`
	Priority          Priority      `json:"priority"`
	Status            Status        `json:"status"`
	Payload           []byte        `json:"payload,omitempty"`
	Result            []byte        `json:"result,omitempty"`
	Error             string        `json:"error,omitempty"`
	RetryCount        int           `json:"retry_count"`
	MaxRetries        int           `json:"max_retries"`
	CreatedAt         time.Time     `json:"created_at"`
	StartedAt         *time.Time    `json:"started_at,omitempty"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty"`
	RunAt             time.Time     `json:"run_at,omitzero"`
	EstimatedDuration time.Duration `json:"estimated_duration,omitempty"`
	Dependencies      []id.JobID    `json:"dependencies,omitempty"`
	Progress          *Progress     `json:"progress,omitempty"`

	// Callbacks are invoked by the scheduler outside its locks.
	Callbacks Callbacks `json:"-"`
}

// Callbacks are optional caller hooks attached at submission.
type Callbacks struct {
	OnProgress ProgressFunc
	OnComplete CompleteFunc
	OnError    ErrorFunc
}

// ProgressFunc receives a job snapshot and its latest progress.
type ProgressFunc func(j *Job, p Progress)

// CompleteFunc receives a snapshot of a job that finished successfully.
type CompleteFunc func(j *Job)

// ErrorFunc receives a snapshot of a job that failed terminally and the
// error of its last attempt.
type ErrorFunc func(j *Job, err error)

// Clone returns a deep copy of j. Callbacks are shared.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Payload = cloneBytes(j.Payload)
	c.Result = cloneBytes(j.Result)
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	if j.Dependencies != nil {
		c.Dependencies = append([]id.JobID(nil), j.Dependencies...)
	}
	if j.Progress != nil {
		p := *j.Progress
		c.Progress = &p
	}
	return &c
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
