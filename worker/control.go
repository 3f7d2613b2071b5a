package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
)

// ──────────────────────────────────────────────────
// Submission and control
// ──────────────────────────────────────────────────

// Submit creates a pending job of the given kind and indexes it for
// dispatch. The job is eligible immediately unless it has dependencies
// that are not yet completed.
func (d *Dispatcher) Submit(ctx context.Context, kind string, payload []byte, opts ...job.Option) (id.JobID, error) {
	o := job.Options{Priority: job.PriorityNormal, MaxRetries: d.defaultMaxRetries}
	for _, opt := range opts {
		opt(&o)
	}

	if kind == "" {
		return id.JobID{}, fmt.Errorf("%w: empty kind", cadence.ErrInvalidJob)
	}
	if !o.Priority.Valid() {
		return id.JobID{}, fmt.Errorf("%w: unknown priority %q", cadence.ErrInvalidJob, o.Priority)
	}

	now := d.clock()
	j := &job.Job{
		ID:                id.NewJobID(),
		Kind:              kind,
		Priority:          o.Priority,
		Status:            job.StatusPending,
		Payload:           append([]byte(nil), payload...),
		MaxRetries:        o.MaxRetries,
		CreatedAt:         now,
		EstimatedDuration: o.EstimatedDuration,
		Dependencies:      append([]id.JobID(nil), o.Dependencies...),
		Callbacks:         o.Callbacks,
	}
	if len(j.Dependencies) == 0 {
		j.Dependencies = nil
	}

	d.mu.Lock()
	if err := d.store.PutJob(ctx, j); err != nil {
		d.mu.Unlock()
		return id.JobID{}, fmt.Errorf("submit job %q: %w", kind, err)
	}
	d.place(j, now)
	snap := j.Clone()
	hookCtx := context.WithoutCancel(ctx)
	d.notify(func() { d.extensions.EmitJobSubmitted(hookCtx, snap) })
	d.mu.Unlock()

	d.logger.Debug("job submitted",
		slog.String("job_id", j.ID.String()),
		slog.String("job_kind", kind),
		slog.String("priority", string(j.Priority)),
		slog.Int("dependencies", len(j.Dependencies)),
	)

	d.nudge()
	return j.ID, nil
}

// Cancel cancels a pending or running job. It returns false for unknown
// and terminal jobs. A running job is marked cancelled and its context is
// cancelled; its executor is not interrupted.
func (d *Dispatcher) Cancel(ctx context.Context, jobID id.JobID) bool {
	now := d.clock()
	key := jobID.String()

	d.mu.Lock()
	j, err := d.store.GetJob(ctx, jobID)
	if err != nil || j.Status.IsTerminal() {
		d.mu.Unlock()
		return false
	}

	wasRunning := j.Status == job.StatusRunning
	cancelled := now
	j.Status = job.StatusCancelled
	j.CompletedAt = &cancelled
	if err := d.store.UpdateJob(ctx, j); err != nil {
		d.mu.Unlock()
		d.logStoreError("cancel job", jobID, err)
		return false
	}

	if exec := d.running[key]; exec != nil {
		exec.cancel()
	}
	d.lanes.Remove(jobID)
	delete(d.waiting, key)
	delete(d.delayed, key)
	snap := j.Clone()
	hookCtx := context.WithoutCancel(ctx)
	d.notify(func() { d.extensions.EmitJobCancelled(hookCtx, snap) })
	d.mu.Unlock()

	d.logger.Info("job cancelled",
		slog.String("job_id", key),
		slog.String("job_kind", snap.Kind),
		slog.Bool("was_running", wasRunning),
	)
	return true
}

// Retry moves a failed job back to pending with a fresh retry budget. It
// returns false for jobs that are unknown or not failed.
func (d *Dispatcher) Retry(ctx context.Context, jobID id.JobID) bool {
	now := d.clock()

	d.mu.Lock()
	j, err := d.store.GetJob(ctx, jobID)
	if err != nil || j.Status != job.StatusFailed {
		d.mu.Unlock()
		return false
	}

	j.Status = job.StatusPending
	j.RetryCount = 0
	j.Error = ""
	j.Result = nil
	j.StartedAt = nil
	j.CompletedAt = nil
	j.RunAt = time.Time{}
	j.Progress = nil
	if err := d.store.UpdateJob(ctx, j); err != nil {
		d.mu.Unlock()
		d.logStoreError("retry job", jobID, err)
		return false
	}
	d.place(j, now)
	d.mu.Unlock()

	d.logger.Info("job retried",
		slog.String("job_id", jobID.String()),
		slog.String("job_kind", j.Kind),
	)

	d.nudge()
	return true
}

// ClearQueue removes every record that is not executing and returns how
// many were removed.
func (d *Dispatcher) ClearQueue(ctx context.Context) int {
	d.mu.Lock()
	jobs, err := d.store.ListJobs(ctx, job.ListOpts{})
	if err != nil {
		d.mu.Unlock()
		d.logger.Error("clear queue: list jobs", slog.String("error", err.Error()))
		return 0
	}

	removed := make([]id.JobID, 0, len(jobs))
	for _, j := range jobs {
		key := j.ID.String()
		if _, ok := d.running[key]; ok {
			continue
		}
		if err := d.forget(ctx, j); err != nil {
			d.logStoreError("clear job", j.ID, err)
			continue
		}
		d.lanes.Remove(j.ID)
		delete(d.waiting, key)
		delete(d.delayed, key)
		removed = append(removed, j.ID)
	}
	if len(removed) > 0 {
		hookCtx := context.WithoutCancel(ctx)
		d.notify(func() {
			for _, jobID := range removed {
				d.extensions.EmitJobCollected(hookCtx, jobID)
			}
		})
	}
	d.mu.Unlock()

	if len(removed) > 0 {
		d.logger.Info("queue cleared", slog.Int("removed", len(removed)))
	}
	return len(removed)
}

// ──────────────────────────────────────────────────
// Inspection
// ──────────────────────────────────────────────────

// Get returns a snapshot of the job.
func (d *Dispatcher) Get(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.store.GetJob(ctx, jobID)
}

// List returns snapshots of jobs in submission order.
func (d *Dispatcher) List(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.store.ListJobs(ctx, opts)
}

// QueueStats derives a snapshot of the scheduler state.
func (d *Dispatcher) QueueStats(ctx context.Context) (cadence.QueueStats, error) {
	mem := cadence.MemoryUsage()

	d.mu.Lock()
	defer d.mu.Unlock()

	stats := cadence.QueueStats{
		Queued:            d.lanes.Total(),
		Waiting:           len(d.waiting),
		Delayed:           len(d.delayed),
		TotalProcessed:    d.processed,
		ActiveConcurrency: len(d.running),
		MaxConcurrency:    d.concurrency,
		MemoryUsage:       mem,
	}

	counts := []struct {
		status job.Status
		dst    *int
	}{
		{job.StatusPending, &stats.Pending},
		{job.StatusRunning, &stats.Running},
		{job.StatusCompleted, &stats.Completed},
		{job.StatusFailed, &stats.Failed},
		{job.StatusCancelled, &stats.Cancelled},
	}
	for _, c := range counts {
		n, err := d.store.CountJobs(ctx, job.CountOpts{Status: c.status})
		if err != nil {
			return cadence.QueueStats{}, fmt.Errorf("count %s jobs: %w", c.status, err)
		}
		*c.dst = int(n)
	}

	if len(d.samples) > 0 {
		var sum time.Duration
		for _, s := range d.samples {
			sum += s
		}
		stats.AverageProcessingTime = sum / time.Duration(len(d.samples))
	}
	return stats, nil
}
