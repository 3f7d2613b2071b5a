package monitor

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// recommend derives advisory text from a stats snapshot.
func recommend(s Stats, th Thresholds) []string {
	var recs []string

	switch {
	case th.MemoryCritical > 0 && s.MemoryCurrent >= th.MemoryCritical:
		recs = append(recs, fmt.Sprintf(
			"Memory usage of %s exceeds the critical threshold of %s; lower the concurrency cap or shrink job payloads.",
			humanize.IBytes(s.MemoryCurrent), humanize.IBytes(th.MemoryCritical)))
	case th.MemoryWarning > 0 && s.MemoryCurrent >= th.MemoryWarning:
		recs = append(recs, fmt.Sprintf(
			"Memory usage of %s is above %s; watch for leaks in long-running executors.",
			humanize.IBytes(s.MemoryCurrent), humanize.IBytes(th.MemoryWarning)))
	}

	if th.FailureRateWarning > 0 && s.OperationsFailed > 0 && s.FailureRate > th.FailureRateWarning {
		recs = append(recs, fmt.Sprintf(
			"Failure rate of %.1f%% is above %.1f%%; review retry and timeout settings.",
			s.FailureRate, th.FailureRateWarning))
	}

	if th.ProcessingTimeWarning > 0 && s.AverageProcessingTime > th.ProcessingTimeWarning {
		recs = append(recs, fmt.Sprintf(
			"Average processing time of %s exceeds %s; consider splitting long jobs into smaller ones.",
			s.AverageProcessingTime.Round(time.Millisecond), th.ProcessingTimeWarning))
	}

	if th.QueueLengthWarning > 0 && s.Queue.Pending >= th.QueueLengthWarning {
		recs = append(recs, fmt.Sprintf(
			"%s jobs are pending (threshold %s); raise the concurrency cap or reduce the submission rate.",
			humanize.Comma(int64(s.Queue.Pending)), humanize.Comma(int64(th.QueueLengthWarning))))
	}

	if q := s.Queue; q.MaxConcurrency > 0 && q.ActiveConcurrency >= q.MaxConcurrency && q.Queued > 0 {
		recs = append(recs, fmt.Sprintf(
			"All %d execution slots are busy with %d eligible jobs queued.",
			q.MaxConcurrency, q.Queued))
	}

	if len(recs) == 0 {
		recs = append(recs, "All metrics are within the configured thresholds.")
	}
	return recs
}
