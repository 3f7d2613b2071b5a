// Package backoff provides pluggable retry delay strategies.
// All strategies are safe for concurrent use (they are stateless).
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry.
type Strategy interface {
	// Delay returns how long to wait before the retry numbered retryCount.
	// The scheduler increments a job's retry count before asking, so the
	// first retry is retryCount 1.
	Delay(retryCount int) time.Duration
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay regardless of retry count.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Linear
// ──────────────────────────────────────────────────

// Linear increases the delay linearly with the retry count.
// Delay = min(Base * retryCount, Max).
type Linear struct {
	Base time.Duration
	Max  time.Duration
}

// NewLinear creates a linear backoff strategy.
func NewLinear(base, maxDelay time.Duration) *Linear {
	return &Linear{Base: base, Max: maxDelay}
}

// Delay returns Base * retryCount, capped at Max.
func (l *Linear) Delay(retryCount int) time.Duration {
	d := l.Base * time.Duration(retryCount)
	if l.Max > 0 && d > l.Max {
		return l.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the delay with every retry.
// Delay = min(Base * 2^retryCount, Max). Max of zero means uncapped.
type Exponential struct {
	Base time.Duration
	Max  time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(base, maxDelay time.Duration) *Exponential {
	return &Exponential{Base: base, Max: maxDelay}
}

// Delay returns Base * 2^retryCount, capped at Max.
func (e *Exponential) Delay(retryCount int) time.Duration {
	d := float64(e.Base) * math.Pow(2, float64(max(retryCount, 0)))
	if e.Max > 0 && d > float64(e.Max) {
		return e.Max
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// ──────────────────────────────────────────────────
// Jittered (full jitter)
// ──────────────────────────────────────────────────

// Jittered applies full jitter to another strategy.
// Delay = random value in [0, Inner.Delay(retryCount)].
// This spreads retries when many jobs fail at the same moment.
type Jittered struct {
	Inner Strategy
}

// NewJittered wraps inner with full jitter.
func NewJittered(inner Strategy) *Jittered {
	return &Jittered{Inner: inner}
}

// Delay returns a random duration in [0, Inner.Delay(retryCount)].
func (j *Jittered) Delay(retryCount int) time.Duration {
	base := j.Inner.Delay(retryCount)
	if base <= 0 {
		return 0
	}
	return time.Duration(rand.Float64() * float64(base)) //nolint:gosec // jitter intentionally uses non-crypto rand
}

// ──────────────────────────────────────────────────
// Default
// ──────────────────────────────────────────────────

// DefaultStrategy returns the default backoff used by the scheduler:
// Exponential with a 1s base and no cap.
func DefaultStrategy() Strategy {
	return NewExponential(time.Second, 0)
}
