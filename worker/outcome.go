package worker

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
)

// applyProgress records a progress report of a running job and notifies
// listeners. Reports for jobs that are no longer running are dropped.
func (d *Dispatcher) applyProgress(jobID id.JobID, p job.Progress) {
	d.mu.Lock()
	if _, ok := d.running[jobID.String()]; !ok {
		d.mu.Unlock()
		return
	}
	j, err := d.store.GetJob(d.baseCtx, jobID)
	if err != nil || j.Status != job.StatusRunning {
		d.mu.Unlock()
		return
	}
	j.Progress = &p
	if err := d.store.UpdateJob(d.baseCtx, j); err != nil {
		d.mu.Unlock()
		d.logStoreError("record progress", jobID, err)
		return
	}
	snap := j.Clone()
	d.notify(func() {
		d.extensions.EmitJobProgressed(d.baseCtx, snap, p)
		if fn := snap.Callbacks.OnProgress; fn != nil {
			d.callback("on_progress", snap.ID, func() { fn(snap, p) })
		}
	})
	d.mu.Unlock()
}

// applyOutcome performs the terminal bookkeeping of one execution attempt.
// It runs exactly once per attempt.
func (d *Dispatcher) applyOutcome(out Outcome) {
	now := d.clock()
	key := out.JobID.String()

	d.mu.Lock()
	exec, ok := d.running[key]
	if !ok {
		d.mu.Unlock()
		return
	}
	delete(d.running, key)
	exec.cancel()
	if d.manager != nil {
		d.manager.Release(exec.kind)
	}

	j, err := d.store.GetJob(d.baseCtx, out.JobID)
	if err != nil {
		d.mu.Unlock()
		d.logStoreError("load finished job", out.JobID, err)
		return
	}

	switch {
	case j.Status == job.StatusCancelled:
		d.lateOutcome(j, out)
	case out.Err == nil:
		d.handleSuccess(j, out, now)
	default:
		d.handleFailure(j, out.Err, now)
	}

	if !d.draining {
		d.dispatchLocked(now)
	}
	d.mu.Unlock()
}

// handleSuccess marks the job completed and releases its dependents.
// Caller must hold d.mu.
func (d *Dispatcher) handleSuccess(j *job.Job, out Outcome, now time.Time) {
	completed := now
	j.Status = job.StatusCompleted
	j.Result = out.Result
	j.Error = ""
	j.CompletedAt = &completed

	if err := d.store.UpdateJob(d.baseCtx, j); err != nil {
		d.logStoreError("mark job completed", j.ID, err)
		return
	}

	d.processed++
	d.recordSample(out.Elapsed)
	d.releaseDependents()

	snap := j.Clone()
	d.notify(func() {
		d.extensions.EmitJobCompleted(d.baseCtx, snap, out.Elapsed)
		if fn := snap.Callbacks.OnComplete; fn != nil {
			d.callback("on_complete", snap.ID, func() { fn(snap) })
		}
	})
}

// handleFailure either schedules a retry or fails the job terminally.
// Caller must hold d.mu.
func (d *Dispatcher) handleFailure(j *job.Job, jobErr error, now time.Time) {
	if !job.IsPermanent(jobErr) && j.RetryCount < j.MaxRetries {
		d.scheduleRetry(j, jobErr, now)
		return
	}
	d.failJob(j, jobErr, now)
}

// scheduleRetry parks the job in the delayed set until its backoff elapses.
// Caller must hold d.mu.
func (d *Dispatcher) scheduleRetry(j *job.Job, jobErr error, now time.Time) {
	j.RetryCount++
	delay := d.backoff.Delay(j.RetryCount)
	nextRunAt := now.Add(delay)

	j.Status = job.StatusPending
	j.Error = jobErr.Error()
	j.RunAt = nextRunAt
	j.Progress = nil

	if err := d.store.UpdateJob(d.baseCtx, j); err != nil {
		d.logStoreError("schedule retry", j.ID, err)
		return
	}
	d.delayed[j.ID.String()] = j.ID

	d.logger.Info("job scheduled for retry",
		slog.String("job_id", j.ID.String()),
		slog.String("job_kind", j.Kind),
		slog.Int("attempt", j.RetryCount),
		slog.Int("max_retries", j.MaxRetries),
		slog.Duration("delay", delay),
		slog.String("error", jobErr.Error()),
	)

	snap := j.Clone()
	attempt := j.RetryCount
	d.notify(func() {
		d.extensions.EmitJobRetrying(d.baseCtx, snap, attempt, nextRunAt)
	})
}

// failJob marks the job failed after its last attempt. Caller must hold d.mu.
func (d *Dispatcher) failJob(j *job.Job, jobErr error, now time.Time) {
	completed := now
	j.Status = job.StatusFailed
	j.Error = jobErr.Error()
	j.Result = nil
	j.CompletedAt = &completed

	if err := d.store.UpdateJob(d.baseCtx, j); err != nil {
		d.logStoreError("mark job failed", j.ID, err)
		return
	}
	d.processed++

	d.logger.Warn("job failed",
		slog.String("job_id", j.ID.String()),
		slog.String("job_kind", j.Kind),
		slog.Int("retry_count", j.RetryCount),
		slog.Bool("permanent", job.IsPermanent(jobErr)),
		slog.String("error", jobErr.Error()),
	)

	snap := j.Clone()
	d.notify(func() {
		d.extensions.EmitJobFailed(d.baseCtx, snap, jobErr)
		if fn := snap.Callbacks.OnError; fn != nil {
			d.callback("on_error", snap.ID, func() { fn(snap, jobErr) })
		}
	})
}

// lateOutcome handles the outcome of a job cancelled while it was running.
// The record stays cancelled; only the caller's callback sees the result.
// Caller must hold d.mu.
func (d *Dispatcher) lateOutcome(j *job.Job, out Outcome) {
	d.logger.Debug("ignoring outcome of cancelled job",
		slog.String("job_id", j.ID.String()),
		slog.String("job_kind", j.Kind),
		slog.Bool("succeeded", out.Err == nil),
	)

	snap := j.Clone()
	cb := snap.Callbacks
	d.notify(func() {
		switch {
		case out.Err == nil && cb.OnComplete != nil:
			snap.Result = out.Result
			d.callback("on_complete", snap.ID, func() { cb.OnComplete(snap) })
		case out.Err != nil && cb.OnError != nil:
			d.callback("on_error", snap.ID, func() { cb.OnError(snap, out.Err) })
		}
	})
}

// recordSample keeps the last maxSamples processing times. Caller must
// hold d.mu.
func (d *Dispatcher) recordSample(elapsed time.Duration) {
	if len(d.samples) == maxSamples {
		copy(d.samples, d.samples[1:])
		d.samples = d.samples[:maxSamples-1]
	}
	d.samples = append(d.samples, elapsed)
}

// callback invokes a caller-supplied callback, converting a panic into a
// logged error so the notifier survives it.
func (d *Dispatcher) callback(name string, jobID id.JobID, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("job callback panicked",
				slog.String("callback", name),
				slog.String("job_id", jobID.String()),
				slog.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	fn()
}

func sortByRunAt(jobs []*job.Job) {
	slices.SortFunc(jobs, func(a, b *job.Job) int {
		if c := a.RunAt.Compare(b.RunAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
}

func sortByCreatedAt(jobs []*job.Job) {
	slices.SortFunc(jobs, func(a, b *job.Job) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
}
