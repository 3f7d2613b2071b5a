// Package middleware provides composable middleware for job execution.
//
// A [Middleware] is a function that wraps an executor call. Middleware are
// composed into a chain using [Chain] and applied to every execution
// attempt. They are applied right-to-left: the first middleware in the
// slice is the outermost wrapper.
//
//	// logging → recover → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging]: logs job kind, duration and outcome of each attempt
//   - [Recover]: catches panics and converts them to errors
//   - [Tracing]: wraps execution in an OpenTelemetry span
//   - [Metrics]: records per-kind duration and outcome counters
//
// No middleware imposes a timeout; executors run until they return or
// observe cancellation of their context.
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, j *job.Job, next middleware.Handler) error {
//	        // pre-processing
//	        err := next(ctx)
//	        // post-processing
//	        return err
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting.
package middleware
