package observability_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	gu "github.com/xraph/go-utils/metrics"

	"github.com/xraph/cadence/ext"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
	"github.com/xraph/cadence/observability"
)

func newTestExtension() *observability.MetricsExtension {
	return observability.NewMetricsExtensionWithFactory(gu.NewMetricsCollector("test"))
}

func newTestJob() *job.Job {
	return &job.Job{
		ID:       id.NewJobID(),
		Kind:     "send-email",
		Priority: job.PriorityNormal,
	}
}

func TestMetricsExtension_Name(t *testing.T) {
	e := newTestExtension()
	if e.Name() != "observability-metrics" {
		t.Errorf("expected name %q, got %q", "observability-metrics", e.Name())
	}
}

func TestMetricsExtension_Hooks(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		fire    func(e *observability.MetricsExtension) error
		counter func(e *observability.MetricsExtension) gu.Counter
	}{
		{
			"submitted",
			func(e *observability.MetricsExtension) error { return e.OnJobSubmitted(ctx, newTestJob()) },
			func(e *observability.MetricsExtension) gu.Counter { return e.JobSubmitted },
		},
		{
			"started",
			func(e *observability.MetricsExtension) error { return e.OnJobStarted(ctx, newTestJob()) },
			func(e *observability.MetricsExtension) gu.Counter { return e.JobStarted },
		},
		{
			"completed",
			func(e *observability.MetricsExtension) error {
				return e.OnJobCompleted(ctx, newTestJob(), 100*time.Millisecond)
			},
			func(e *observability.MetricsExtension) gu.Counter { return e.JobCompleted },
		},
		{
			"retrying",
			func(e *observability.MetricsExtension) error {
				return e.OnJobRetrying(ctx, newTestJob(), 1, time.Now())
			},
			func(e *observability.MetricsExtension) gu.Counter { return e.JobRetried },
		},
		{
			"failed",
			func(e *observability.MetricsExtension) error {
				return e.OnJobFailed(ctx, newTestJob(), errors.New("fail"))
			},
			func(e *observability.MetricsExtension) gu.Counter { return e.JobFailed },
		},
		{
			"cancelled",
			func(e *observability.MetricsExtension) error { return e.OnJobCancelled(ctx, newTestJob()) },
			func(e *observability.MetricsExtension) gu.Counter { return e.JobCancelled },
		},
		{
			"collected",
			func(e *observability.MetricsExtension) error { return e.OnJobCollected(ctx, id.NewJobID()) },
			func(e *observability.MetricsExtension) gu.Counter { return e.JobCollected },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestExtension()
			if err := tt.fire(e); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := tt.counter(e).Value(); got != 1 {
				t.Errorf("want 1, got %v", got)
			}
		})
	}
}

func TestMetricsExtension_ViaRegistry(t *testing.T) {
	e := newTestExtension()

	reg := ext.NewRegistry(slog.Default())
	reg.Register(e)

	ctx := context.Background()
	j := newTestJob()

	reg.EmitJobSubmitted(ctx, j)
	reg.EmitJobStarted(ctx, j)
	reg.EmitJobCompleted(ctx, j, 50*time.Millisecond)
	reg.EmitJobRetrying(ctx, j, 1, time.Now())
	reg.EmitJobFailed(ctx, j, errors.New("fail"))
	reg.EmitJobCancelled(ctx, j)
	reg.EmitJobCollected(ctx, j.ID)

	checks := []struct {
		name  string
		value float64
	}{
		{"JobSubmitted", e.JobSubmitted.Value()},
		{"JobStarted", e.JobStarted.Value()},
		{"JobCompleted", e.JobCompleted.Value()},
		{"JobRetried", e.JobRetried.Value()},
		{"JobFailed", e.JobFailed.Value()},
		{"JobCancelled", e.JobCancelled.Value()},
		{"JobCollected", e.JobCollected.Value()},
	}

	for _, c := range checks {
		if c.value != 1 {
			t.Errorf("%s: want 1, got %v", c.name, c.value)
		}
	}
}
