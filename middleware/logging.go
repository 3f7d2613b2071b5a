package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/cadence/job"
)

// Logging returns middleware that logs each execution attempt at debug
// level and failed attempts at warn level.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		logger.Debug("job attempt started",
			slog.String("job_kind", j.Kind),
			slog.String("job_id", j.ID.String()),
			slog.String("priority", string(j.Priority)),
			slog.Int("retry_count", j.RetryCount),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Warn("job attempt failed",
				slog.String("job_kind", j.Kind),
				slog.String("job_id", j.ID.String()),
				slog.Duration("elapsed", elapsed),
				slog.Bool("permanent", job.IsPermanent(err)),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Debug("job attempt succeeded",
				slog.String("job_kind", j.Kind),
				slog.String("job_id", j.ID.String()),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
