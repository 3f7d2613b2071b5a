package monitor

import (
	"context"
	"math"

	"go.opentelemetry.io/otel/metric"
)

// registerGauges exports the monitor's latest sample as observable gauges:
//   - cadence.monitor.memory (Int64ObservableGauge): heap bytes
//   - cadence.monitor.ops_per_second (Float64ObservableGauge): completions
//     per second over the trailing minute
//   - cadence.queue.pending (Int64ObservableGauge): pending jobs
func (m *Monitor) registerGauges(meter metric.Meter) error {
	memory, err := meter.Int64ObservableGauge(
		"cadence.monitor.memory",
		metric.WithDescription("Heap memory in use at the last sample"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return err
	}
	ops, err := meter.Float64ObservableGauge(
		"cadence.monitor.ops_per_second",
		metric.WithDescription("Completed operations per second over the trailing minute"),
		metric.WithUnit("{operation}/s"),
	)
	if err != nil {
		return err
	}
	pending, err := meter.Int64ObservableGauge(
		"cadence.queue.pending",
		metric.WithDescription("Pending jobs at the last sample"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return err
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := m.Stats()
		o.ObserveInt64(memory, int64(min(s.MemoryCurrent, math.MaxInt64)))
		o.ObserveFloat64(ops, s.OperationsPerSecond)
		o.ObserveInt64(pending, int64(s.Queue.Pending))
		return nil
	}, memory, ops, pending)
	return err
}
