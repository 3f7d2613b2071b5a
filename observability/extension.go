package observability

import (
	"context"
	"time"

	gu "github.com/xraph/go-utils/metrics"

	"github.com/xraph/cadence/ext"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension    = (*MetricsExtension)(nil)
	_ ext.JobSubmitted = (*MetricsExtension)(nil)
	_ ext.JobStarted   = (*MetricsExtension)(nil)
	_ ext.JobCompleted = (*MetricsExtension)(nil)
	_ ext.JobRetrying  = (*MetricsExtension)(nil)
	_ ext.JobFailed    = (*MetricsExtension)(nil)
	_ ext.JobCancelled = (*MetricsExtension)(nil)
	_ ext.JobCollected = (*MetricsExtension)(nil)
)

// MetricsExtension records scheduler-wide lifecycle counters via a go-utils
// MetricFactory. Register it as an extension to track submission rates,
// completion counts, failure and retry rates, cancellations and garbage
// collection.
type MetricsExtension struct {
	JobSubmitted gu.Counter
	JobStarted   gu.Counter
	JobCompleted gu.Counter
	JobRetried   gu.Counter
	JobFailed    gu.Counter
	JobCancelled gu.Counter
	JobCollected gu.Counter
}

// NewMetricsExtension creates a MetricsExtension using a default metrics collector.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithFactory(gu.NewMetricsCollector("cadence/observability"))
}

// NewMetricsExtensionWithFactory creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtensionWithFactory(factory gu.MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		JobSubmitted: factory.Counter("cadence.job.submitted"),
		JobStarted:   factory.Counter("cadence.job.started"),
		JobCompleted: factory.Counter("cadence.job.completed"),
		JobRetried:   factory.Counter("cadence.job.retried"),
		JobFailed:    factory.Counter("cadence.job.failed"),
		JobCancelled: factory.Counter("cadence.job.cancelled"),
		JobCollected: factory.Counter("cadence.job.collected"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnJobSubmitted implements ext.JobSubmitted.
func (m *MetricsExtension) OnJobSubmitted(_ context.Context, _ *job.Job) error {
	m.JobSubmitted.Inc()
	return nil
}

// OnJobStarted implements ext.JobStarted.
func (m *MetricsExtension) OnJobStarted(_ context.Context, _ *job.Job) error {
	m.JobStarted.Inc()
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(_ context.Context, _ *job.Job, _ time.Duration) error {
	m.JobCompleted.Inc()
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(_ context.Context, _ *job.Job, _ int, _ time.Time) error {
	m.JobRetried.Inc()
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(_ context.Context, _ *job.Job, _ error) error {
	m.JobFailed.Inc()
	return nil
}

// OnJobCancelled implements ext.JobCancelled.
func (m *MetricsExtension) OnJobCancelled(_ context.Context, _ *job.Job) error {
	m.JobCancelled.Inc()
	return nil
}

// OnJobCollected implements ext.JobCollected.
func (m *MetricsExtension) OnJobCollected(_ context.Context, _ id.JobID) error {
	m.JobCollected.Inc()
	return nil
}
