package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	gu "github.com/xraph/go-utils/metrics"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/backoff"
	"github.com/xraph/cadence/ext"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
	mw "github.com/xraph/cadence/middleware"
	"github.com/xraph/cadence/monitor"
	"github.com/xraph/cadence/observability"
	"github.com/xraph/cadence/queue"
	"github.com/xraph/cadence/store"
	"github.com/xraph/cadence/store/memory"
	"github.com/xraph/cadence/stream"
	"github.com/xraph/cadence/worker"
)

// instrumentationName is the OTel scope name used for engine-created
// tracers and meters.
const instrumentationName = "github.com/xraph/cadence"

// Engine is a self-contained scheduler instance. Several engines may run in
// one process; they share no state.
type Engine struct {
	config     cadence.Config
	logger     *slog.Logger
	store      store.Store
	registry   *job.Registry
	extensions *ext.Registry
	broker     *stream.Broker
	counters   *observability.MetricsExtension
	monitor    *monitor.Monitor
	dispatcher *worker.Dispatcher

	bo           backoff.Strategy
	mws          []mw.Middleware
	userExts     []ext.Extension
	thresholds   monitor.Thresholds
	queueConfigs []queue.Config
	queueManager *queue.Manager

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	metricFactory  gu.MetricFactory

	waitSeq atomic.Uint64
	stopped atomic.Bool
	halted  chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default configuration. Use cadence.LoadConfig to
// read one from a file and the environment.
func WithConfig(cfg cadence.Config) Option {
	return func(eng *Engine) { eng.config = cfg }
}

// WithLogger sets the logger shared by all subsystems.
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = l }
}

// WithStore sets the job record store. Defaults to an in-memory store.
func WithStore(s store.Store) Option {
	return func(eng *Engine) { eng.store = s }
}

// WithExtension registers a lifecycle extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) { eng.userExts = append(eng.userExts, e) }
}

// WithMiddleware adds middleware to the engine's chain, inside the
// built-in recover, tracing, metrics and logging middleware.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) { eng.mws = append(eng.mws, m) }
}

// WithBackoff sets the retry backoff strategy. If not set, an exponential
// strategy built from the configured base and maximum delay is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) { eng.bo = b }
}

// WithQueueConfig registers per-kind rate limiting and concurrency
// configurations. Kinds not listed have no limits.
func WithQueueConfig(configs ...queue.Config) Option {
	return func(eng *Engine) { eng.queueConfigs = append(eng.queueConfigs, configs...) }
}

// WithThresholds merges t over the monitor's default thresholds.
func WithThresholds(t monitor.Thresholds) Option {
	return func(eng *Engine) { eng.thresholds = t }
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine. It
// feeds the metrics middleware and the monitor's gauges. If not set, the
// global otel.GetMeterProvider() is used by the middleware and the monitor
// exports no gauges.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}

// WithMetricFactory sets the go-utils metric factory backing the lifecycle
// counters.
func WithMetricFactory(f gu.MetricFactory) Option {
	return func(eng *Engine) { eng.metricFactory = f }
}

// New creates an Engine. The engine does not dispatch until Start.
func New(opts ...Option) (*Engine, error) {
	eng := &Engine{
		config: cadence.DefaultConfig(),
		logger: slog.Default(),
		halted: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(eng)
	}

	if err := eng.config.Validate(); err != nil {
		return nil, err
	}
	cfg := eng.config
	logger := eng.logger

	if eng.store == nil {
		eng.store = memory.New()
	}
	if err := eng.store.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("cadence: ping store: %w", err)
	}
	if eng.bo == nil {
		eng.bo = backoff.NewExponential(cfg.RetryBaseDelay, cfg.MaxRetryDelay)
	}

	eng.registry = job.NewRegistry()
	eng.extensions = ext.NewRegistry(logger)
	eng.broker = stream.NewBroker(logger)

	// Performance monitor; its queue source is the dispatcher built below.
	monOpts := []monitor.Option{
		monitor.WithLogger(logger),
		monitor.WithEventWindow(cfg.EventWindow),
		monitor.WithThresholds(eng.thresholds),
		monitor.WithQueueSource(func(ctx context.Context) (cadence.QueueStats, error) {
			return eng.dispatcher.QueueStats(ctx)
		}),
	}
	if eng.meterProvider != nil {
		monOpts = append(monOpts, monitor.WithMeter(eng.meterProvider.Meter(instrumentationName+"/monitor")))
	}
	mon, err := monitor.New(monOpts...)
	if err != nil {
		return nil, err
	}
	eng.monitor = mon

	// Built-in extensions first, then the caller's in registration order.
	var counters *observability.MetricsExtension
	if eng.metricFactory != nil {
		counters = observability.NewMetricsExtensionWithFactory(eng.metricFactory)
	} else {
		counters = observability.NewMetricsExtension()
	}
	eng.counters = counters
	eng.extensions.Register(counters)
	eng.extensions.Register(monitor.NewHooks(mon))
	eng.extensions.Register(eng.broker)
	for _, e := range eng.userExts {
		eng.extensions.Register(e)
	}

	// Build default middleware stack: recover → tracing → metrics → logging.
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentationName))
	} else {
		tracingMw = mw.Tracing()
	}
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
	} else {
		metricsMw = mw.Metrics()
	}
	allMws := make([]mw.Middleware, 0, 4+len(eng.mws))
	allMws = append(allMws, mw.Recover(logger), tracingMw, metricsMw, mw.Logging(logger))
	allMws = append(allMws, eng.mws...)

	executor := worker.NewExecutor(eng.registry, logger, allMws...)

	dispOpts := []worker.DispatcherOption{
		worker.WithConcurrency(cfg.MaxConcurrency),
		worker.WithTickInterval(cfg.TickInterval),
		worker.WithDefaultMaxRetries(cfg.DefaultMaxRetries),
		worker.WithBackoff(eng.bo),
		worker.WithGCInterval(cfg.GCInterval),
		worker.WithRetention(cfg.RetentionWindow),
		worker.WithLogger(logger),
		worker.WithExtensions(eng.extensions),
	}
	if len(eng.queueConfigs) > 0 {
		eng.queueManager = queue.NewManager(eng.queueConfigs...)
		dispOpts = append(dispOpts, worker.WithManager(eng.queueManager))
	}
	eng.dispatcher = worker.NewDispatcher(eng.store, executor, dispOpts...)

	return eng, nil
}

// ──────────────────────────────────────────────────
// Registration and submission
// ──────────────────────────────────────────────────

// Register registers a typed executor definition with the engine.
// Registering a kind again replaces the previous executor.
func Register[T, R any](eng *Engine, def *job.Definition[T, R]) {
	job.RegisterDefinition(eng.registry, def)
}

// RegisterExecutor registers a raw executor for kind.
func (eng *Engine) RegisterExecutor(kind string, fn job.HandlerFunc) {
	eng.registry.Register(kind, fn)
}

// Submit JSON-encodes payload and submits a job of the given kind.
func Submit[T any](ctx context.Context, eng *Engine, kind string, payload T, opts ...job.Option) (id.JobID, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return id.JobID{}, fmt.Errorf("marshal payload for job %q: %w", kind, err)
	}
	return eng.SubmitRaw(ctx, kind, data, opts...)
}

// SubmitRaw submits a job with a pre-serialized payload.
func (eng *Engine) SubmitRaw(ctx context.Context, kind string, payload []byte, opts ...job.Option) (id.JobID, error) {
	return eng.dispatcher.Submit(ctx, kind, payload, opts...)
}

// ──────────────────────────────────────────────────
// Control
// ──────────────────────────────────────────────────

// Cancel cancels a pending or running job. It returns false for unknown
// and already terminal jobs.
func (eng *Engine) Cancel(ctx context.Context, jobID id.JobID) bool {
	return eng.dispatcher.Cancel(ctx, jobID)
}

// Retry re-queues a failed job with a fresh retry budget. It returns false
// unless the job is failed.
func (eng *Engine) Retry(ctx context.Context, jobID id.JobID) bool {
	return eng.dispatcher.Retry(ctx, jobID)
}

// ClearQueue removes every job that is not executing and returns how many
// were removed.
func (eng *Engine) ClearQueue(ctx context.Context) int {
	return eng.dispatcher.ClearQueue(ctx)
}

// ──────────────────────────────────────────────────
// Inspection
// ──────────────────────────────────────────────────

// GetJob returns a snapshot of a job.
func (eng *Engine) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return eng.dispatcher.Get(ctx, jobID)
}

// ListJobs returns jobs in submission order.
func (eng *Engine) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	return eng.dispatcher.List(ctx, opts)
}

// QueueStats returns a snapshot of the scheduler state.
func (eng *Engine) QueueStats(ctx context.Context) (cadence.QueueStats, error) {
	return eng.dispatcher.QueueStats(ctx)
}

// PerformanceReport returns the monitor's stats, the most recent limit
// events and its recommendations.
func (eng *Engine) PerformanceReport(limit int) monitor.Report {
	return eng.monitor.Report(limit)
}

// SetThresholds merges partial into the monitor thresholds. Zero fields
// keep their current value.
func (eng *Engine) SetThresholds(partial monitor.Thresholds) {
	eng.monitor.SetThresholds(partial)
}

// Subscribe opens a lifecycle event subscription on the given topics
// (stream.TopicJobs, stream.JobTopic, stream.KindTopic, ...).
func (eng *Engine) Subscribe(subscriberID string, topics ...string) *stream.Subscriber {
	return eng.broker.Subscribe(subscriberID, topics...)
}

// Wait blocks until the job reaches a terminal status and returns its
// final snapshot. It returns cadence.ErrJobNotFound if the job is unknown
// or removed while waiting, and cadence.ErrStopped if the engine shuts down
// first or was already stopped.
func (eng *Engine) Wait(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	subID := fmt.Sprintf("wait-%s-%d", jobID, eng.waitSeq.Add(1))
	sub := eng.broker.Subscribe(subID, stream.JobTopic(jobID.String()))
	defer eng.broker.RemoveSubscriber(subID)

	for {
		j, err := eng.dispatcher.Get(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if j.Status.IsTerminal() {
			return j, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-eng.halted:
			return eng.finalSnapshot(jobID)
		case evt, ok := <-sub.C():
			if !ok || evt.Type == stream.EventShutdown {
				return eng.finalSnapshot(jobID)
			}
			sub.AddCredits(1)
		}
	}
}

// finalSnapshot returns the job if it is terminal, or ErrStopped.
func (eng *Engine) finalSnapshot(jobID id.JobID) (*job.Job, error) {
	j, err := eng.dispatcher.Get(context.Background(), jobID)
	if err != nil {
		return nil, err
	}
	if j.Status.IsTerminal() {
		return j, nil
	}
	return nil, cadence.ErrStopped
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Start begins dispatching and monitoring.
func (eng *Engine) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.dispatcher.Start(gctx)
	})
	g.Go(func() error {
		return eng.monitor.Start(gctx, eng.config.MonitorInterval)
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("cadence: start: %w", err)
	}

	eng.logger.Info("cadence engine started",
		slog.Int("max_concurrency", eng.config.MaxConcurrency),
		slog.Int("executors", len(eng.registry.Kinds())),
	)
	return nil
}

// Stop stops dispatching, waits for in-flight jobs and shuts the
// subsystems down. When ctx carries no deadline, the configured shutdown
// timeout applies. Calling Stop more than once is a no-op.
func (eng *Engine) Stop(ctx context.Context) error {
	if eng.stopped.Swap(true) {
		return nil
	}

	if _, ok := ctx.Deadline(); !ok && eng.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, eng.config.ShutdownTimeout)
		defer cancel()
	}

	var g errgroup.Group
	g.Go(func() error {
		return eng.dispatcher.Stop(ctx)
	})
	g.Go(func() error {
		return eng.monitor.Stop(ctx)
	})
	stopErr := g.Wait()

	eng.extensions.EmitShutdown(ctx)
	close(eng.halted)

	if err := eng.store.Close(); err != nil {
		eng.logger.Error("close store", slog.String("error", err.Error()))
	}

	eng.logger.Info("cadence engine stopped")
	return stopErr
}

// ──────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────

// Config returns the engine configuration.
func (eng *Engine) Config() cadence.Config { return eng.config }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Registry returns the executor registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// Dispatcher returns the underlying dispatcher.
func (eng *Engine) Dispatcher() *worker.Dispatcher { return eng.dispatcher }

// Metrics returns the lifecycle counters extension.
func (eng *Engine) Metrics() *observability.MetricsExtension { return eng.counters }

// Monitor returns the performance monitor, for caller instrumentation with
// RecordOperationStart and friends.
func (eng *Engine) Monitor() *monitor.Monitor { return eng.monitor }

// Broker returns the lifecycle event broker.
func (eng *Engine) Broker() *stream.Broker { return eng.broker }

// QueueManager returns the per-kind admission manager, or nil if no queue
// configs were provided.
func (eng *Engine) QueueManager() *queue.Manager { return eng.queueManager }
