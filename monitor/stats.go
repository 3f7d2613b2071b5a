package monitor

import (
	"time"

	"github.com/xraph/cadence"
)

// Stats are the rolling aggregates of the monitor. They are reset by Start
// and recomputed on every sampling tick.
type Stats struct {
	MemoryCurrent uint64 `json:"memory_current"`
	MemoryPeak    uint64 `json:"memory_peak"`
	MemoryAverage uint64 `json:"memory_average"`

	OperationsStarted   int64 `json:"operations_started"`
	OperationsCompleted int64 `json:"operations_completed"`
	OperationsFailed    int64 `json:"operations_failed"`

	AverageProcessingTime time.Duration `json:"average_processing_time"`
	TotalProcessingTime   time.Duration `json:"total_processing_time"`
	OperationsPerSecond   float64       `json:"operations_per_second"`
	// FailureRate is the percentage of finished operations that failed.
	FailureRate float64 `json:"failure_rate"`

	Queue cadence.QueueStats `json:"queue"`

	StartedAt  time.Time     `json:"started_at"`
	LastUpdate time.Time     `json:"last_update"`
	Uptime     time.Duration `json:"uptime"`
}

// Report is a stats snapshot with the most recent events and advisory
// recommendations.
type Report struct {
	Stats           Stats    `json:"stats"`
	RecentEvents    []Event  `json:"recent_events"`
	Recommendations []string `json:"recommendations"`
}
