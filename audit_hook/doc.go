// Package audithook is a cadence extension that turns job lifecycle events
// into an audit trail.
//
// Every job lifecycle hook emits a structured audit event through the
// [Recorder] interface. Severity follows the outcome: info for normal
// transitions, warning for retries and cancellations, critical for terminal
// failures. Metadata carries the job kind, priority, attempt counts, elapsed
// time and errors.
//
// # Logging the trail
//
//	eng, err := engine.New(
//	    engine.WithExtension(audithook.New(audithook.NewSlogRecorder(auditLogger))),
//	)
//
// # Custom backends
//
//	audithook.New(audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
//	    return auditStore.Append(ctx, evt)
//	}))
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionJobFailed,
//	        audithook.ActionJobCancelled,
//	    ),
//	)
package audithook
