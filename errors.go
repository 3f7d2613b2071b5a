package cadence

import "errors"

var (
	// Not found errors.
	ErrJobNotFound       = errors.New("cadence: job not found")
	ErrExecutorNotFound  = errors.New("cadence: no executor registered")
	ErrOperationNotFound = errors.New("cadence: operation not found")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("cadence: job already exists")

	// Validation errors.
	ErrInvalidJob = errors.New("cadence: invalid job")

	// Lifecycle errors.
	ErrStopped = errors.New("cadence: scheduler stopped")

	// Configuration errors.
	ErrInvalidConfig = errors.New("cadence: invalid config")
)
