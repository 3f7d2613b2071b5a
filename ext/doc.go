// Package ext defines the extension system for cadence.
//
// Extensions are notified of job lifecycle events and can react to them:
// recording metrics, publishing to the event stream, feeding the
// performance monitor. Each lifecycle hook is a separate interface so
// extensions opt in only to the events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
//	    slog.Info("job completed", "id", j.ID, "elapsed", elapsed)
//	    return nil
//	}
//
// # Job Lifecycle Hooks
//
//   - [JobSubmitted]: a job record was created
//   - [JobStarted]: the dispatcher began executing the job
//   - [JobProgressed]: the executor reported progress
//   - [JobCompleted]: the job finished successfully
//   - [JobRetrying]: the job failed but will be retried after a backoff
//   - [JobFailed]: the job failed with no retries remaining
//   - [JobCancelled]: the job was cancelled
//   - [JobCollected]: the garbage collector removed the record
//
// # Other Hooks
//
//   - [Shutdown]: the scheduler is stopping
//
// Hooks are called synchronously from the dispatch loop and must not block.
// Errors returned by hooks are logged and never stop the pipeline.
package ext
