package store

import (
	"context"

	"github.com/xraph/cadence/job"
)

// Store is the persistence interface the scheduler depends on.
// A backend implements the Job Record Store plus lifecycle methods.
type Store interface {
	job.Store

	// Ping checks backend availability.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
