// Package stream provides a real-time event broker for job lifecycle events.
// It bridges the ext.Extension system to in-process subscribers via
// topic-based pub/sub.
package stream

import (
	"encoding/json"
	"time"

	"github.com/xraph/cadence/job"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	EventJobSubmitted EventType = "job.submitted"
	EventJobStarted   EventType = "job.started"
	EventJobProgress  EventType = "job.progress"
	EventJobCompleted EventType = "job.completed"
	EventJobRetrying  EventType = "job.retrying"
	EventJobFailed    EventType = "job.failed"
	EventJobCancelled EventType = "job.cancelled"
	EventJobCollected EventType = "job.collected"

	// EventShutdown is the last event a subscriber sees before its channel
	// is closed.
	EventShutdown EventType = "system.shutdown"
)

// IsTerminal reports whether the event ends a job's automatic lifecycle.
func (t EventType) IsTerminal() bool {
	return t == EventJobCompleted || t == EventJobFailed || t == EventJobCancelled
}

// Event is the envelope sent to subscribers on a topic channel.
type Event struct {
	// Type identifies the lifecycle event.
	Type EventType `json:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts"`

	// Topic is the entity channel this event was published on.
	Topic string `json:"topic"`

	// Kind is the job kind, used to route to the kind topic.
	Kind string `json:"kind,omitempty"`

	// Data is the event-specific payload.
	Data json.RawMessage `json:"data"`
}

// JobEventData is the payload for job lifecycle events.
type JobEventData struct {
	JobID      string        `json:"job_id"`
	Kind       string        `json:"kind,omitempty"`
	Priority   string        `json:"priority,omitempty"`
	Status     string        `json:"status,omitempty"`
	RetryCount int           `json:"retry_count,omitempty"`
	ElapsedMs  int64         `json:"elapsed_ms,omitempty"`
	Error      string        `json:"error,omitempty"`
	Attempt    int           `json:"attempt,omitempty"`
	NextRunAt  string        `json:"next_run_at,omitempty"`
	Progress   *job.Progress `json:"progress,omitempty"`
}

// Decode unmarshals the event payload as job event data.
func (e *Event) Decode() (JobEventData, error) {
	var d JobEventData
	err := json.Unmarshal(e.Data, &d)
	return d, err
}
