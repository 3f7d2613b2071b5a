package job

import "time"

// ReportFunc is handed to executors to report progress. It is safe to call
// from any goroutine while the executor runs.
type ReportFunc func(current, total int64, message string)

// Progress is the latest progress snapshot of a running job.
type Progress struct {
	Current    int64         `json:"current"`
	Total      int64         `json:"total"`
	Percentage float64       `json:"percentage"`
	ETA        time.Duration `json:"eta,omitempty"`
	Message    string        `json:"message,omitempty"`
}

// NewProgress derives percentage and ETA from a report and the time the job
// has been running.
func NewProgress(current, total int64, message string, elapsed time.Duration) Progress {
	p := Progress{Current: current, Total: total, Message: message}
	if total > 0 {
		p.Percentage = float64(current) / float64(total) * 100
		p.Percentage = min(max(p.Percentage, 0), 100)
	}
	if p.Percentage > 0 && p.Percentage < 100 && elapsed > 0 {
		p.ETA = time.Duration(float64(elapsed) * (100 - p.Percentage) / p.Percentage)
	}
	return p
}
