package monitor

import "time"

// Thresholds are the limits whose crossing the monitor reports. They are
// signals only and never throttle the scheduler.
type Thresholds struct {
	// MemoryWarning is the heap size in bytes that triggers a memory_warning.
	MemoryWarning uint64 `json:"memory_warning" mapstructure:"memory_warning"`
	// MemoryCritical is the heap size in bytes considered critical.
	MemoryCritical uint64 `json:"memory_critical" mapstructure:"memory_critical"`
	// ProcessingTimeWarning is the average operation duration worth flagging.
	ProcessingTimeWarning time.Duration `json:"processing_time_warning" mapstructure:"processing_time_warning"`
	// QueueLengthWarning is the number of pending jobs that triggers queue_full.
	QueueLengthWarning int `json:"queue_length_warning" mapstructure:"queue_length_warning"`
	// FailureRateWarning is a percentage in (0, 100].
	FailureRateWarning float64 `json:"failure_rate_warning" mapstructure:"failure_rate_warning"`
}

// DefaultThresholds returns the default limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MemoryWarning:         512 << 20,
		MemoryCritical:        1 << 30,
		ProcessingTimeWarning: 30 * time.Second,
		QueueLengthWarning:    100,
		FailureRateWarning:    10,
	}
}

// merge overlays the non-zero fields of partial onto t.
func (t Thresholds) merge(partial Thresholds) Thresholds {
	if partial.MemoryWarning > 0 {
		t.MemoryWarning = partial.MemoryWarning
	}
	if partial.MemoryCritical > 0 {
		t.MemoryCritical = partial.MemoryCritical
	}
	if partial.ProcessingTimeWarning > 0 {
		t.ProcessingTimeWarning = partial.ProcessingTimeWarning
	}
	if partial.QueueLengthWarning > 0 {
		t.QueueLengthWarning = partial.QueueLengthWarning
	}
	if partial.FailureRateWarning > 0 {
		t.FailureRateWarning = partial.FailureRateWarning
	}
	return t
}
