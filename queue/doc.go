// Package queue holds the priority lanes jobs wait in and the per-kind
// admission manager consulted before dispatch.
//
// # Lanes
//
// [Lanes] keeps three FIFO lanes of job IDs, one per priority. The
// dispatcher pops from the high lane first, then normal, then low; within a
// lane submission order is preserved. [Lanes.Pop] offers each ID to a
// verdict function so the caller can dispatch it ([Take]), leave it queued
// ([Keep]) or drop it from the lane ([Evict]) in a single scan:
//
//	jobID, ok := lanes.Pop(func(jobID id.JobID) queue.Verdict {
//	    if !depsDone(jobID) {
//	        return queue.Evict
//	    }
//	    return queue.Take
//	})
//
// Lanes are not safe for concurrent use; the dispatcher guards them with
// its own mutex.
//
// # Per-Kind Configuration
//
// Use [Config] to set per-kind rate limits and concurrency caps:
//
//	queue.Config{
//	    Kind:           "email",
//	    MaxConcurrency: 5,      // max 5 concurrent email jobs
//	    RateLimit:      10,     // max 10 email dispatches/s
//	    RateBurst:      20,     // allow bursts up to 20
//	}
//
// # Manager
//
// [Manager] enforces the limits at dispatch time. It uses a token-bucket
// rate limiter (golang.org/x/time/rate) and an active-count gate for
// concurrency limits. A job refused by the manager stays queued and is
// offered again on the next tick.
//
//	m := queue.NewManager(configs...)
//	if m.Acquire(kind) {
//	    defer m.Release(kind)
//	    // run the job
//	}
//
// Kinds without a [Config] have no limits beyond the scheduler-wide
// concurrency.
package queue
