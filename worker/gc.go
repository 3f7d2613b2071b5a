package worker

import (
	"log/slog"
	"time"

	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
)

// maybeCollect runs a sweep when at least one GC interval has passed since
// the previous one.
func (d *Dispatcher) maybeCollect(now time.Time) {
	d.mu.Lock()
	due := d.lastGC.IsZero() || now.Sub(d.lastGC) >= d.gcInterval
	d.mu.Unlock()
	if due {
		d.Sweep(now)
	}
}

// Sweep removes terminal records that completed more than the retention
// window before now. Jobs still executing are never touched. It returns
// the number of records removed; sweeping twice at the same instant removes
// nothing the second time.
func (d *Dispatcher) Sweep(now time.Time) int {
	cutoff := now.Add(-d.retention)

	d.mu.Lock()
	ctx := d.baseCtx
	d.lastGC = now
	jobs, err := d.store.ListJobs(ctx, job.ListOpts{})
	if err != nil {
		d.mu.Unlock()
		d.logger.Error("gc: list jobs", slog.String("error", err.Error()))
		return 0
	}

	var collected []id.JobID
	for _, j := range jobs {
		if !j.Status.IsTerminal() || j.CompletedAt == nil || !j.CompletedAt.Before(cutoff) {
			continue
		}
		if _, ok := d.running[j.ID.String()]; ok {
			continue
		}
		if err := d.forget(ctx, j); err != nil {
			d.logStoreError("collect job", j.ID, err)
			continue
		}
		collected = append(collected, j.ID)
	}
	if len(collected) > 0 {
		d.notify(func() {
			for _, jobID := range collected {
				d.extensions.EmitJobCollected(ctx, jobID)
			}
		})
	}
	d.mu.Unlock()

	if len(collected) == 0 {
		return 0
	}

	d.logger.Info("gc sweep complete",
		slog.Int("collected", len(collected)),
		slog.Duration("retention", d.retention),
	)
	return len(collected)
}
