package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/cadence/job"
)

// meterName is the instrumentation scope name for cadence metrics.
const meterName = "github.com/xraph/cadence"

// Metrics returns middleware that records per-attempt execution metrics
// using the global OTel MeterProvider. If no MeterProvider is configured,
// noop instruments are used and this middleware becomes a pass-through.
//
// Instruments:
//   - cadence.job.duration (Float64Histogram): execution time in seconds,
//     with attributes: kind, priority, status ("ok" or "error")
//   - cadence.job.executions (Int64Counter): total execution attempts,
//     with attributes: kind, priority, status ("ok" or "error")
func Metrics() Middleware {
	meter := otel.Meter(meterName)
	return MetricsWithMeter(meter)
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// On error the API returns noop instruments, so the middleware degrades
	// to a pass-through.
	duration, _ := meter.Float64Histogram(
		"cadence.job.duration",
		metric.WithDescription("Duration of job execution in seconds"),
		metric.WithUnit("s"),
	)

	executions, _ := meter.Int64Counter(
		"cadence.job.executions",
		metric.WithDescription("Total number of job execution attempts"),
		metric.WithUnit("{execution}"),
	)

	return func(ctx context.Context, j *job.Job, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}

		attrs := metric.WithAttributes(
			attribute.String("kind", j.Kind),
			attribute.String("priority", string(j.Priority)),
			attribute.String("status", status),
		)

		duration.Record(ctx, elapsed, attrs)
		executions.Add(ctx, 1, attrs)

		return err
	}
}
