package cadence

import (
	"fmt"
	"time"
)

// Config holds configuration for a scheduler instance.
type Config struct {
	// MaxConcurrency is the maximum number of jobs executing at once.
	MaxConcurrency int `mapstructure:"max_concurrency"`

	// TickInterval is the period of the dispatch loop.
	TickInterval time.Duration `mapstructure:"tick_interval"`

	// DefaultMaxRetries applies to jobs submitted without WithMaxRetries.
	DefaultMaxRetries int `mapstructure:"default_max_retries"`

	// RetryBaseDelay is the backoff base: a job's nth retry waits
	// 2^n * RetryBaseDelay.
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`

	// MaxRetryDelay caps the backoff delay. Zero means uncapped.
	MaxRetryDelay time.Duration `mapstructure:"max_retry_delay"`

	// GCInterval is the minimum time between two garbage collection sweeps.
	GCInterval time.Duration `mapstructure:"gc_interval"`

	// RetentionWindow is how long terminal jobs are kept before they
	// become eligible for garbage collection.
	RetentionWindow time.Duration `mapstructure:"retention_window"`

	// MonitorInterval is the sampling period of the performance monitor.
	MonitorInterval time.Duration `mapstructure:"monitor_interval"`

	// EventWindow is how long performance events are retained.
	EventWindow time.Duration `mapstructure:"event_window"`

	// ShutdownTimeout bounds how long Stop waits for in-flight jobs when the
	// caller's context carries no deadline.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency:    3,
		TickInterval:      100 * time.Millisecond,
		DefaultMaxRetries: 3,
		RetryBaseDelay:    1 * time.Second,
		GCInterval:        60 * time.Second,
		RetentionWindow:   24 * time.Hour,
		MonitorInterval:   5 * time.Second,
		EventWindow:       24 * time.Hour,
		ShutdownTimeout:   30 * time.Second,
	}
}

// Validate reports whether the configuration can drive a scheduler.
func (c Config) Validate() error {
	switch {
	case c.MaxConcurrency < 1:
		return fmt.Errorf("%w: max_concurrency must be at least 1, got %d", ErrInvalidConfig, c.MaxConcurrency)
	case c.TickInterval <= 0:
		return fmt.Errorf("%w: tick_interval must be positive", ErrInvalidConfig)
	case c.DefaultMaxRetries < 0:
		return fmt.Errorf("%w: default_max_retries must not be negative", ErrInvalidConfig)
	case c.RetryBaseDelay < 0 || c.MaxRetryDelay < 0:
		return fmt.Errorf("%w: retry delays must not be negative", ErrInvalidConfig)
	case c.GCInterval <= 0:
		return fmt.Errorf("%w: gc_interval must be positive", ErrInvalidConfig)
	case c.RetentionWindow < 0:
		return fmt.Errorf("%w: retention_window must not be negative", ErrInvalidConfig)
	case c.MonitorInterval <= 0:
		return fmt.Errorf("%w: monitor_interval must be positive", ErrInvalidConfig)
	case c.EventWindow <= 0:
		return fmt.Errorf("%w: event_window must be positive", ErrInvalidConfig)
	}
	return nil
}
