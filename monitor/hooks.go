package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/xraph/cadence/ext"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension    = (*Hooks)(nil)
	_ ext.JobStarted   = (*Hooks)(nil)
	_ ext.JobCompleted = (*Hooks)(nil)
	_ ext.JobRetrying  = (*Hooks)(nil)
	_ ext.JobFailed    = (*Hooks)(nil)
	_ ext.JobCancelled = (*Hooks)(nil)
)

var errCancelled = errors.New("job cancelled")

// Hooks records every job execution attempt as a monitor operation. A start
// opens an operation; a completion closes it; a retry, a terminal failure
// or a cancellation fails it.
type Hooks struct {
	monitor *Monitor

	mu  sync.Mutex
	ops map[string]id.OperationID
}

// NewHooks creates a Hooks extension feeding m.
func NewHooks(m *Monitor) *Hooks {
	return &Hooks{monitor: m, ops: make(map[string]id.OperationID)}
}

// Name implements ext.Extension.
func (h *Hooks) Name() string { return "performance-monitor" }

// OnJobStarted implements ext.JobStarted.
func (h *Hooks) OnJobStarted(_ context.Context, j *job.Job) error {
	opID := h.monitor.RecordOperationStart(j.Kind, map[string]any{
		"job_id":      j.ID.String(),
		"priority":    string(j.Priority),
		"retry_count": j.RetryCount,
	})
	h.mu.Lock()
	h.ops[j.ID.String()] = opID
	h.mu.Unlock()
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (h *Hooks) OnJobCompleted(_ context.Context, j *job.Job, elapsed time.Duration) error {
	opID, ok := h.take(j.ID)
	if !ok {
		return nil
	}
	return h.monitor.RecordOperationComplete(opID, map[string]any{
		"job_id":  j.ID.String(),
		"elapsed": elapsed.String(),
	})
}

// OnJobRetrying implements ext.JobRetrying.
func (h *Hooks) OnJobRetrying(_ context.Context, j *job.Job, attempt int, nextRunAt time.Time) error {
	opID, ok := h.take(j.ID)
	if !ok {
		return nil
	}
	return h.monitor.RecordOperationFail(opID, errors.New(j.Error), map[string]any{
		"job_id":      j.ID.String(),
		"attempt":     attempt,
		"next_run_at": nextRunAt,
	})
}

// OnJobFailed implements ext.JobFailed.
func (h *Hooks) OnJobFailed(_ context.Context, j *job.Job, jobErr error) error {
	opID, ok := h.take(j.ID)
	if !ok {
		return nil
	}
	return h.monitor.RecordOperationFail(opID, jobErr, map[string]any{
		"job_id":      j.ID.String(),
		"retry_count": j.RetryCount,
	})
}

// OnJobCancelled implements ext.JobCancelled. Only jobs cancelled while
// running have an open operation.
func (h *Hooks) OnJobCancelled(_ context.Context, j *job.Job) error {
	opID, ok := h.take(j.ID)
	if !ok {
		return nil
	}
	return h.monitor.RecordOperationFail(opID, errCancelled, map[string]any{
		"job_id": j.ID.String(),
	})
}

func (h *Hooks) take(jobID id.JobID) (id.OperationID, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := jobID.String()
	opID, ok := h.ops[key]
	if ok {
		delete(h.ops, key)
	}
	return opID, ok
}
