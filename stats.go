package cadence

import (
	"runtime"
	"time"
)

// QueueStats is a point-in-time snapshot of scheduler state. It is derived
// on demand and is not authoritative.
type QueueStats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`

	// Queued is the number of eligible jobs sitting in the priority lanes.
	Queued int `json:"queued"`
	// Waiting is the number of pending jobs blocked on dependencies.
	Waiting int `json:"waiting"`
	// Delayed is the number of pending jobs waiting out a retry backoff.
	Delayed int `json:"delayed"`

	TotalProcessed        int64         `json:"total_processed"`
	AverageProcessingTime time.Duration `json:"average_processing_time"`
	MemoryUsage           uint64        `json:"memory_usage"`
	ActiveConcurrency     int           `json:"active_concurrency"`
	MaxConcurrency        int           `json:"max_concurrency"`
}

// Total returns the number of job records the snapshot accounts for.
func (s QueueStats) Total() int {
	return s.Pending + s.Running + s.Completed + s.Failed + s.Cancelled
}

// MemoryUsage returns the bytes of heap currently allocated by the process.
func MemoryUsage() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}
