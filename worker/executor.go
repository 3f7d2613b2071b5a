// Package worker provides the job execution engine: an Executor that
// invokes registered handlers through middleware, and a Dispatcher that
// owns the dispatch loop, the dependency gate, retries and record
// collection.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
	"github.com/xraph/cadence/middleware"
)

// Outcome is the result of a single execution attempt.
type Outcome struct {
	JobID   id.JobID
	Result  []byte
	Err     error
	Elapsed time.Duration
}

// Executor runs a single job through middleware and the registered handler.
// It does not touch job state; the Dispatcher applies the Outcome.
type Executor struct {
	registry *job.Registry
	mw       middleware.Middleware
	logger   *slog.Logger
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(registry *job.Registry, logger *slog.Logger, mws ...middleware.Middleware) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry: registry,
		mw:       middleware.Chain(mws...),
		logger:   logger,
	}
}

// Execute runs j through the middleware chain and its handler. A missing
// handler yields a permanent error wrapping cadence.ErrExecutorNotFound;
// the middleware still observes that attempt.
func (e *Executor) Execute(ctx context.Context, j *job.Job, report job.ReportFunc) Outcome {
	out := Outcome{JobID: j.ID}

	handler, ok := e.registry.Get(j.Kind)
	if report == nil {
		report = func(int64, int64, string) {}
	}

	start := time.Now()

	// The terminal handler that calls the registered job handler.
	terminal := func(ctx context.Context) error {
		if !ok {
			e.logger.Warn("no executor registered for job kind",
				slog.String("job_id", j.ID.String()),
				slog.String("job_kind", j.Kind),
			)
			return job.Permanent(fmt.Errorf("%w: %q", cadence.ErrExecutorNotFound, j.Kind))
		}
		result, err := handler(ctx, j.Payload, report)
		if err != nil {
			return err
		}
		out.Result = result
		return nil
	}

	out.Err = e.mw(ctx, j, terminal)
	out.Elapsed = time.Since(start)
	if out.Err != nil {
		out.Result = nil
	}
	return out
}
