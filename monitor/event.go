package monitor

import (
	"time"

	"github.com/xraph/cadence/id"
)

// EventType identifies a performance event.
type EventType string

const (
	EventOperationStart    EventType = "operation_start"
	EventOperationComplete EventType = "operation_complete"
	EventOperationFail     EventType = "operation_fail"
	EventMemoryWarning     EventType = "memory_warning"
	EventQueueFull         EventType = "queue_full"
)

// Event is a discrete observation recorded by the monitor.
type Event struct {
	ID          id.EventID     `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	OperationID id.OperationID `json:"operation_id,omitzero"`
	Kind        string         `json:"kind,omitempty"`
	Duration    time.Duration  `json:"duration,omitempty"`
	Memory      uint64         `json:"memory"`
	Error       string         `json:"error,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

func cloneData(data map[string]any) map[string]any {
	if len(data) == 0 {
		return nil
	}
	c := make(map[string]any, len(data))
	for k, v := range data {
		c[k] = v
	}
	return c
}
