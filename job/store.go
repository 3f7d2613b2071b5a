package job

import (
	"context"

	"github.com/xraph/cadence/id"
)

// ListOpts filters job list queries.
type ListOpts struct {
	// Status filters by status. Empty means all.
	Status Status
	// Kind filters by kind. Empty means all.
	Kind string
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
}

// CountOpts filters job count queries.
type CountOpts struct {
	Status Status
	Kind   string
}

// Store is the Job Record Store contract. Implementations return copies so
// callers never alias stored records.
type Store interface {
	// PutJob inserts a new record. It fails if the ID already exists.
	PutJob(ctx context.Context, j *Job) error

	// GetJob retrieves a record by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// UpdateJob replaces an existing record.
	UpdateJob(ctx context.Context, j *Job) error

	// DeleteJob removes a record.
	DeleteJob(ctx context.Context, jobID id.JobID) error

	// ListJobs returns matching records in submission order.
	ListJobs(ctx context.Context, opts ListOpts) ([]*Job, error)

	// CountJobs returns the number of matching records.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)
}
