package job

import (
	"time"

	"github.com/xraph/cadence/id"
)

// Options configures a single submission.
type Options struct {
	// Priority selects the lane. Defaults to PriorityNormal.
	Priority Priority

	// MaxRetries is the number of automatic retries after the first attempt.
	MaxRetries int

	// EstimatedDuration is informational; it is reported back unchanged.
	EstimatedDuration time.Duration

	// Dependencies must all be completed before the job is eligible.
	Dependencies []id.JobID

	Callbacks Callbacks
}

// DefaultOptions returns Options with the default priority and retry budget.
func DefaultOptions() Options {
	return Options{
		Priority:   PriorityNormal,
		MaxRetries: 3,
	}
}

// Option is a functional option for a submission.
type Option func(*Options)

// WithPriority sets the job priority.
func WithPriority(p Priority) Option {
	return func(o *Options) { o.Priority = p }
}

// WithMaxRetries sets the automatic retry budget. Negative values are
// treated as zero.
func WithMaxRetries(n int) Option {
	return func(o *Options) { o.MaxRetries = max(n, 0) }
}

// WithEstimatedDuration records the caller's duration estimate.
func WithEstimatedDuration(d time.Duration) Option {
	return func(o *Options) { o.EstimatedDuration = d }
}

// WithDependencies makes the job wait until every listed job is completed.
// A dependency that completed and was later collected still counts as
// completed. An ID the scheduler has never seen completed keeps the job
// waiting until it is cancelled.
func WithDependencies(ids ...id.JobID) Option {
	return func(o *Options) { o.Dependencies = append(o.Dependencies, ids...) }
}

// WithOnProgress registers a progress callback.
func WithOnProgress(fn ProgressFunc) Option {
	return func(o *Options) { o.Callbacks.OnProgress = fn }
}

// WithOnComplete registers a completion callback.
func WithOnComplete(fn CompleteFunc) Option {
	return func(o *Options) { o.Callbacks.OnComplete = fn }
}

// WithOnError registers a terminal failure callback.
func WithOnError(fn ErrorFunc) Option {
	return func(o *Options) { o.Callbacks.OnError = fn }
}
