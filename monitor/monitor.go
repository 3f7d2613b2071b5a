// Package monitor records performance events, keeps rolling statistics,
// evaluates thresholds and produces advisory recommendations. It samples on
// its own ticker, independently of the dispatch loop.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/id"
)

// Default monitor settings.
const (
	DefaultInterval    = 5 * time.Second
	DefaultEventWindow = 24 * time.Hour
	DefaultReportLimit = 10

	opsWindow = time.Minute
)

// QueueSource supplies queue statistics on every sampling tick.
type QueueSource func(ctx context.Context) (cadence.QueueStats, error)

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger for the monitor.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.clock = now }
}

// WithThresholds merges t over the default thresholds.
func WithThresholds(t Thresholds) Option {
	return func(m *Monitor) { m.thresholds = m.thresholds.merge(t) }
}

// WithQueueSource sets where queue statistics are pulled from.
func WithQueueSource(src QueueSource) Option {
	return func(m *Monitor) { m.queueSource = src }
}

// WithMemoryReader replaces cadence.MemoryUsage as the memory reader.
func WithMemoryReader(fn func() uint64) Option {
	return func(m *Monitor) { m.readMemory = fn }
}

// WithEventWindow sets how long events are retained.
func WithEventWindow(window time.Duration) Option {
	return func(m *Monitor) {
		if window > 0 {
			m.eventWindow = window
		}
	}
}

// WithMeter exports the monitor's gauges through meter.
func WithMeter(meter metric.Meter) Option {
	return func(m *Monitor) { m.meter = meter }
}

type operation struct {
	kind    string
	started time.Time
}

// Monitor is the performance monitor. It is safe for concurrent use.
type Monitor struct {
	logger      *slog.Logger
	clock       func() time.Time
	queueSource QueueSource
	readMemory  func() uint64
	eventWindow time.Duration
	meter       metric.Meter

	mu          sync.Mutex
	thresholds  Thresholds
	stats       Stats
	events      []Event
	ops         map[string]operation
	completions []time.Time
	memSamples  uint64
	memTotal    uint64
	alerts      alertState

	lifecycle sync.Mutex
	running   bool
	stopCh    chan struct{}
	done      chan struct{}
}

// alertState tracks which thresholds are currently crossed so that events
// fire on the rising edge only.
type alertState struct {
	memory      bool
	critical    bool
	queue       bool
	processing  bool
	failureRate bool
}

// New creates a Monitor.
func New(opts ...Option) (*Monitor, error) {
	m := &Monitor{
		logger:      slog.Default(),
		clock:       time.Now,
		readMemory:  cadence.MemoryUsage,
		eventWindow: DefaultEventWindow,
		thresholds:  DefaultThresholds(),
		ops:         make(map[string]operation),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.stats.StartedAt = m.clock()

	if m.meter != nil {
		if err := m.registerGauges(m.meter); err != nil {
			return nil, fmt.Errorf("monitor: register gauges: %w", err)
		}
	}
	return m, nil
}

// Start resets the statistics and launches the sampling loop. Calling Start
// on a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}

	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if m.running {
		return nil
	}

	m.reset()
	m.running = true
	m.stopCh = make(chan struct{})
	m.done = make(chan struct{})

	m.logger.Info("performance monitor started", slog.Duration("interval", interval))

	go m.loop(context.WithoutCancel(ctx), interval, m.stopCh, m.done)
	return nil
}

// Stop halts the sampling loop. It returns early if ctx expires.
func (m *Monitor) Stop(ctx context.Context) error {
	m.lifecycle.Lock()
	if !m.running {
		m.lifecycle.Unlock()
		return nil
	}
	m.running = false
	close(m.stopCh)
	done := m.done
	m.lifecycle.Unlock()

	select {
	case <-done:
		m.logger.Info("performance monitor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Monitor) loop(ctx context.Context, interval time.Duration, stopCh, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.Sample(ctx)
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.Sample(ctx)
		}
	}
}

func (m *Monitor) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = Stats{StartedAt: m.clock()}
	m.events = nil
	clear(m.ops)
	m.completions = nil
	m.memSamples = 0
	m.memTotal = 0
	m.alerts = alertState{}
}

// ──────────────────────────────────────────────────
// Operation recording
// ──────────────────────────────────────────────────

// RecordOperationStart records the start of an operation of the given kind
// and returns its ID.
func (m *Monitor) RecordOperationStart(kind string, data map[string]any) id.OperationID {
	opID := id.NewOperationID()
	now := m.clock()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops[opID.String()] = operation{kind: kind, started: now}
	m.stats.OperationsStarted++
	m.appendEvent(Event{
		Type:        EventOperationStart,
		Timestamp:   now,
		OperationID: opID,
		Kind:        kind,
		Data:        cloneData(data),
	})
	return opID
}

// RecordOperationComplete records the successful end of an operation.
func (m *Monitor) RecordOperationComplete(opID id.OperationID, data map[string]any) error {
	now := m.clock()

	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.takeOperation(opID)
	if !ok {
		return fmt.Errorf("%w: %s", cadence.ErrOperationNotFound, opID)
	}

	elapsed := now.Sub(op.started)
	m.stats.OperationsCompleted++
	m.stats.TotalProcessingTime += elapsed
	m.stats.AverageProcessingTime = m.stats.TotalProcessingTime / time.Duration(m.stats.OperationsCompleted)
	m.completions = append(m.completions, now)
	m.updateFailureRate()

	m.appendEvent(Event{
		Type:        EventOperationComplete,
		Timestamp:   now,
		OperationID: opID,
		Kind:        op.kind,
		Duration:    elapsed,
		Data:        cloneData(data),
	})
	return nil
}

// RecordOperationFail records the failed end of an operation.
func (m *Monitor) RecordOperationFail(opID id.OperationID, opErr error, data map[string]any) error {
	now := m.clock()

	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.takeOperation(opID)
	if !ok {
		return fmt.Errorf("%w: %s", cadence.ErrOperationNotFound, opID)
	}

	m.stats.OperationsFailed++
	m.updateFailureRate()

	evt := Event{
		Type:        EventOperationFail,
		Timestamp:   now,
		OperationID: opID,
		Kind:        op.kind,
		Duration:    now.Sub(op.started),
		Data:        cloneData(data),
	}
	if opErr != nil {
		evt.Error = opErr.Error()
	}
	m.appendEvent(evt)
	return nil
}

// UpdateQueueStats replaces the queue statistics held by the monitor.
func (m *Monitor) UpdateQueueStats(qs cadence.QueueStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Queue = qs
}

// Caller must hold m.mu.
func (m *Monitor) takeOperation(opID id.OperationID) (operation, bool) {
	key := opID.String()
	op, ok := m.ops[key]
	if ok {
		delete(m.ops, key)
	}
	return op, ok
}

// Caller must hold m.mu.
func (m *Monitor) updateFailureRate() {
	finished := m.stats.OperationsCompleted + m.stats.OperationsFailed
	if finished == 0 {
		m.stats.FailureRate = 0
		return
	}
	m.stats.FailureRate = float64(m.stats.OperationsFailed) / float64(finished) * 100
}

// appendEvent stamps evt with an ID and the current memory reading.
// Caller must hold m.mu.
func (m *Monitor) appendEvent(evt Event) {
	evt.ID = id.NewEventID()
	if evt.Memory == 0 {
		evt.Memory = m.stats.MemoryCurrent
	}
	m.events = append(m.events, evt)
}

// ──────────────────────────────────────────────────
// Sampling
// ──────────────────────────────────────────────────

// crossing is a threshold crossing to be logged once the lock is released.
type crossing struct {
	level slog.Level
	msg   string
	attrs []any
}

// Sample runs one sampling pass: it reads memory, pulls queue statistics,
// recomputes throughput and evaluates thresholds. The sampling loop calls
// it on every tick.
func (m *Monitor) Sample(ctx context.Context) {
	mem := m.readMemory()

	var (
		qs    cadence.QueueStats
		qsErr error
	)
	if m.queueSource != nil {
		qs, qsErr = m.queueSource(ctx)
	}

	now := m.clock()

	m.mu.Lock()
	m.stats.MemoryCurrent = mem
	m.stats.MemoryPeak = max(m.stats.MemoryPeak, mem)
	m.memSamples++
	m.memTotal += mem
	m.stats.MemoryAverage = m.memTotal / m.memSamples

	if m.queueSource != nil && qsErr == nil {
		m.stats.Queue = qs
	}

	m.pruneCompletions(now)
	m.stats.OperationsPerSecond = float64(len(m.completions)) / opsWindow.Seconds()
	m.pruneEvents(now)

	crossings := m.evaluate(now)

	m.stats.LastUpdate = now
	m.stats.Uptime = now.Sub(m.stats.StartedAt)
	m.mu.Unlock()

	if qsErr != nil {
		m.logger.Debug("monitor: queue stats unavailable", slog.String("error", qsErr.Error()))
	}
	for _, c := range crossings {
		m.logger.Log(ctx, c.level, c.msg, c.attrs...)
	}
}

// Caller must hold m.mu.
func (m *Monitor) pruneCompletions(now time.Time) {
	cutoff := now.Add(-opsWindow)
	i := 0
	for i < len(m.completions) && !m.completions[i].After(cutoff) {
		i++
	}
	m.completions = append(m.completions[:0], m.completions[i:]...)
}

// Caller must hold m.mu.
func (m *Monitor) pruneEvents(now time.Time) {
	cutoff := now.Add(-m.eventWindow)
	i := 0
	for i < len(m.events) && m.events[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		m.events = append(m.events[:0], m.events[i:]...)
	}
}

// evaluate compares the current stats with the thresholds. Memory and queue
// crossings append an event on the rising edge; every rising edge is
// returned for logging. Caller must hold m.mu.
func (m *Monitor) evaluate(now time.Time) []crossing {
	var out []crossing
	th := m.thresholds
	s := &m.stats

	memHigh := th.MemoryWarning > 0 && s.MemoryCurrent >= th.MemoryWarning
	memCritical := th.MemoryCritical > 0 && s.MemoryCurrent >= th.MemoryCritical
	if (memHigh && !m.alerts.memory) || (memCritical && !m.alerts.critical) {
		level, severity := slog.LevelWarn, "warning"
		if memCritical {
			level, severity = slog.LevelError, "critical"
		}
		m.appendEvent(Event{
			Type:      EventMemoryWarning,
			Timestamp: now,
			Memory:    s.MemoryCurrent,
			Data:      map[string]any{"severity": severity, "threshold": th.MemoryWarning},
		})
		out = append(out, crossing{level, "memory usage above threshold", []any{
			slog.String("severity", severity),
			slog.Uint64("memory", s.MemoryCurrent),
			slog.Uint64("warning", th.MemoryWarning),
			slog.Uint64("critical", th.MemoryCritical),
		}})
	}
	m.alerts.memory, m.alerts.critical = memHigh, memCritical

	queueFull := th.QueueLengthWarning > 0 && s.Queue.Pending >= th.QueueLengthWarning
	if queueFull && !m.alerts.queue {
		m.appendEvent(Event{
			Type:      EventQueueFull,
			Timestamp: now,
			Data:      map[string]any{"pending": s.Queue.Pending, "threshold": th.QueueLengthWarning},
		})
		out = append(out, crossing{slog.LevelWarn, "queue length above threshold", []any{
			slog.Int("pending", s.Queue.Pending),
			slog.Int("threshold", th.QueueLengthWarning),
		}})
	}
	m.alerts.queue = queueFull

	slow := th.ProcessingTimeWarning > 0 && s.AverageProcessingTime > th.ProcessingTimeWarning
	if slow && !m.alerts.processing {
		out = append(out, crossing{slog.LevelWarn, "average processing time above threshold", []any{
			slog.Duration("average", s.AverageProcessingTime),
			slog.Duration("threshold", th.ProcessingTimeWarning),
		}})
	}
	m.alerts.processing = slow

	failing := th.FailureRateWarning > 0 && s.OperationsFailed > 0 && s.FailureRate > th.FailureRateWarning
	if failing && !m.alerts.failureRate {
		out = append(out, crossing{slog.LevelWarn, "failure rate above threshold", []any{
			slog.Float64("failure_rate", s.FailureRate),
			slog.Float64("threshold", th.FailureRateWarning),
		}})
	}
	m.alerts.failureRate = failing

	return out
}

// ──────────────────────────────────────────────────
// Inspection and configuration
// ──────────────────────────────────────────────────

// Stats returns a snapshot of the rolling statistics.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot()
}

// Caller must hold m.mu.
func (m *Monitor) snapshot() Stats {
	s := m.stats
	if !s.LastUpdate.IsZero() {
		s.Uptime = s.LastUpdate.Sub(s.StartedAt)
	}
	return s
}

// Report returns the stats, the most recent limit events (DefaultReportLimit
// when limit is not positive) and recommendations.
func (m *Monitor) Report(limit int) Report {
	if limit <= 0 {
		limit = DefaultReportLimit
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.snapshot()
	start := max(len(m.events)-limit, 0)
	recent := make([]Event, 0, len(m.events)-start)
	for _, evt := range m.events[start:] {
		evt.Data = cloneData(evt.Data)
		recent = append(recent, evt)
	}

	return Report{
		Stats:           stats,
		RecentEvents:    recent,
		Recommendations: recommend(stats, m.thresholds),
	}
}

// Events returns all retained events, oldest first.
func (m *Monitor) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// SetThresholds merges partial into the current thresholds. Zero fields
// keep their current value.
func (m *Monitor) SetThresholds(partial Thresholds) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thresholds = m.thresholds.merge(partial)
}

// Thresholds returns the current thresholds.
func (m *Monitor) Thresholds() Thresholds {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.thresholds
}
