package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/cadence/backoff"
	"github.com/xraph/cadence/ext"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
	"github.com/xraph/cadence/queue"
)

// Default dispatcher settings.
const (
	DefaultConcurrency  = 3
	DefaultTickInterval = 100 * time.Millisecond
	DefaultMaxRetries   = 3
	DefaultGCInterval   = time.Minute
	DefaultRetention    = 24 * time.Hour

	maxSamples = 100
)

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithConcurrency sets the maximum number of jobs executing at once.
func WithConcurrency(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithTickInterval sets how often the dispatch loop runs without a nudge.
func WithTickInterval(interval time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.tickInterval = interval
		}
	}
}

// WithDefaultMaxRetries sets the retry budget of submissions that do not
// choose one.
func WithDefaultMaxRetries(n int) DispatcherOption {
	return func(d *Dispatcher) { d.defaultMaxRetries = max(n, 0) }
}

// WithBackoff sets the retry delay strategy.
func WithBackoff(s backoff.Strategy) DispatcherOption {
	return func(d *Dispatcher) { d.backoff = s }
}

// WithManager sets the per-kind admission manager.
func WithManager(m *queue.Manager) DispatcherOption {
	return func(d *Dispatcher) { d.manager = m }
}

// WithGCInterval sets the minimum time between two collection sweeps.
func WithGCInterval(interval time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.gcInterval = interval }
}

// WithRetention sets how long terminal records are kept.
func WithRetention(window time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.retention = window }
}

// WithClock replaces time.Now. Tests use it to drive the collector.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.clock = now }
}

// WithLogger sets the logger for the dispatcher.
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// WithExtensions sets the lifecycle hook registry.
func WithExtensions(r *ext.Registry) DispatcherOption {
	return func(d *Dispatcher) { d.extensions = r }
}

// execution tracks one in-flight job.
type execution struct {
	cancel context.CancelFunc
	kind   string
}

type signalKind int

const (
	signalProgress signalKind = iota
	signalOutcome
)

// signal is what an execution goroutine reports back to the loop.
type signal struct {
	kind     signalKind
	jobID    id.JobID
	progress job.Progress
	outcome  Outcome
}

// Dispatcher owns the job records' lifecycle. It keeps the priority lanes,
// the set of jobs blocked on dependencies, the set of jobs waiting out a
// retry backoff and the set of running jobs, all guarded by one mutex.
// Execution goroutines never mutate state; they send signals that the
// dispatch loop applies. Hooks and callbacks are handed to a notifier and
// never run on the loop.
type Dispatcher struct {
	store      job.Store
	executor   *Executor
	extensions *ext.Registry
	manager    *queue.Manager
	backoff    backoff.Strategy
	logger     *slog.Logger
	clock      func() time.Time

	concurrency       int
	tickInterval      time.Duration
	defaultMaxRetries int
	gcInterval        time.Duration
	retention         time.Duration

	mu        sync.Mutex
	lanes     *queue.Lanes
	waiting   map[string]id.JobID
	delayed   map[string]id.JobID
	running   map[string]*execution
	collected map[string]struct{}
	samples   []time.Duration
	processed int64
	lastGC    time.Time
	started   bool
	stopping  bool
	draining  bool
	baseCtx   context.Context

	notes    notifier
	signals  chan signal
	wake     chan struct{}
	stopCh   chan struct{}
	abandon  chan struct{}
	loopDone chan struct{}
	wg       sync.WaitGroup
}

// NewDispatcher creates a Dispatcher over the given store and executor.
func NewDispatcher(store job.Store, executor *Executor, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:             store,
		executor:          executor,
		backoff:           backoff.DefaultStrategy(),
		logger:            slog.Default(),
		clock:             time.Now,
		concurrency:       DefaultConcurrency,
		tickInterval:      DefaultTickInterval,
		defaultMaxRetries: DefaultMaxRetries,
		gcInterval:        DefaultGCInterval,
		retention:         DefaultRetention,
		lanes:             queue.NewLanes(),
		waiting:           make(map[string]id.JobID),
		delayed:           make(map[string]id.JobID),
		running:           make(map[string]*execution),
		collected:         make(map[string]struct{}),
		baseCtx:           context.Background(),
		signals:           make(chan signal),
		wake:              make(chan struct{}, 1),
		stopCh:            make(chan struct{}),
		abandon:           make(chan struct{}),
		loopDone:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.extensions == nil {
		d.extensions = ext.NewRegistry(d.logger)
	}
	return d
}

// Concurrency returns the configured concurrency cap.
func (d *Dispatcher) Concurrency() int { return d.concurrency }

// Start launches the dispatch loop. Calling Start on a dispatcher that was
// already started is a no-op; a stopped dispatcher cannot be restarted.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return nil
	}
	d.started = true
	d.baseCtx = context.WithoutCancel(ctx)
	d.mu.Unlock()

	d.logger.Info("dispatcher started",
		slog.Int("concurrency", d.concurrency),
		slog.Duration("tick_interval", d.tickInterval),
	)

	go d.loop()
	return nil
}

// Stop stops dispatching new jobs and waits for in-flight executions to
// report, then for queued hooks and callbacks to be delivered. If ctx
// expires first, the contexts of the remaining executions are cancelled
// and Stop returns without waiting for them.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.started || d.stopping {
		d.mu.Unlock()
		return nil
	}
	d.stopping = true
	d.mu.Unlock()

	d.logger.Info("dispatcher stopping")
	close(d.stopCh)

	select {
	case <-d.loopDone:
		d.logger.Info("dispatcher stopped gracefully")
	case <-ctx.Done():
		n := d.cancelRunning()
		d.logger.Warn("dispatcher stop timed out, cancelled in-flight jobs",
			slog.Int("cancelled", n),
		)
		close(d.abandon)
		<-d.loopDone
	}

	if err := d.notes.flush(ctx); err != nil {
		d.logger.Warn("dispatcher stop: pending notifications not delivered",
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// cancelRunning cancels the context of every in-flight execution.
func (d *Dispatcher) cancelRunning() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, exec := range d.running {
		exec.cancel()
	}
	return len(d.running)
}

// nudge wakes the loop without waiting for the next tick.
func (d *Dispatcher) nudge() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// loop is the dispatch loop. It is the only consumer of signals.
func (d *Dispatcher) loop() {
	defer close(d.loopDone)

	ticker := time.NewTicker(d.tickInterval)
	defer ticker.Stop()

	stopCh := d.stopCh
	for {
		select {
		case <-stopCh:
			if d.drain() {
				return
			}
			stopCh = nil
		case <-d.abandon:
			return
		case sig := <-d.signals:
			d.apply(sig)
			if stopCh == nil && d.idle() {
				return
			}
		case <-d.wake:
			d.tick()
		case <-ticker.C:
			d.tick()
		}
	}
}

// drain switches the loop to draining mode and reports whether nothing is
// left in flight.
func (d *Dispatcher) drain() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.draining = true
	return len(d.running) == 0
}

func (d *Dispatcher) idle() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.running) == 0
}

// send delivers sig to the loop, or applies it directly once the loop has
// exited so no outcome is lost.
func (d *Dispatcher) send(sig signal) {
	select {
	case d.signals <- sig:
	case <-d.loopDone:
		d.apply(sig)
	}
}

// tick runs one dispatch pass.
func (d *Dispatcher) tick() {
	now := d.clock()

	d.mu.Lock()
	if d.draining {
		d.mu.Unlock()
		return
	}
	d.promoteDelayed(now)
	d.dispatchLocked(now)
	d.mu.Unlock()

	d.maybeCollect(now)
}

// promoteDelayed moves retries whose backoff has elapsed into their lanes,
// or into the waiting set when a dependency is no longer satisfied.
// Caller must hold d.mu.
func (d *Dispatcher) promoteDelayed(now time.Time) {
	if len(d.delayed) == 0 {
		return
	}

	var due []*job.Job
	for key, jobID := range d.delayed {
		j, err := d.store.GetJob(d.baseCtx, jobID)
		if err != nil || j.Status != job.StatusPending {
			delete(d.delayed, key)
			continue
		}
		if j.RunAt.After(now) {
			continue
		}
		delete(d.delayed, key)
		due = append(due, j)
	}
	sortByRunAt(due)

	for _, j := range due {
		j.RunAt = time.Time{}
		if err := d.store.UpdateJob(d.baseCtx, j); err != nil {
			d.logStoreError("promote delayed job", j.ID, err)
			continue
		}
		d.enqueue(j)
	}
}

// enqueue places a pending job whose RunAt has elapsed in its lane or in
// the waiting set. Caller must hold d.mu.
func (d *Dispatcher) enqueue(j *job.Job) {
	if d.dependenciesMet(j) {
		d.lanes.Push(j.ID, j.Priority)
		return
	}
	d.waiting[j.ID.String()] = j.ID
}

// place indexes a pending job in the delayed set, its lane or the waiting
// set. Caller must hold d.mu.
func (d *Dispatcher) place(j *job.Job, now time.Time) {
	if !j.RunAt.IsZero() && j.RunAt.After(now) {
		d.delayed[j.ID.String()] = j.ID
		return
	}
	d.enqueue(j)
}

// dependenciesMet reports whether every dependency of j is completed. A
// completed dependency that was collected stays met; any other unknown
// dependency is never met. Caller must hold d.mu.
func (d *Dispatcher) dependenciesMet(j *job.Job) bool {
	for _, dep := range j.Dependencies {
		dj, err := d.store.GetJob(d.baseCtx, dep)
		if err != nil {
			if _, ok := d.collected[dep.String()]; ok {
				continue
			}
			return false
		}
		if dj.Status != job.StatusCompleted {
			return false
		}
	}
	return true
}

// forget removes a record from the store. A completed record leaves a
// tombstone so jobs depending on it can still run. Caller must hold d.mu.
func (d *Dispatcher) forget(ctx context.Context, j *job.Job) error {
	if err := d.store.DeleteJob(ctx, j.ID); err != nil {
		return err
	}
	if j.Status == job.StatusCompleted {
		d.collected[j.ID.String()] = struct{}{}
	}
	return nil
}

// notify queues fn for delivery in order on the notifier goroutine. It is
// safe to call with d.mu held.
func (d *Dispatcher) notify(fn func()) {
	d.notes.push(fn)
}

// releaseDependents moves waiting jobs whose dependencies are now all
// completed into their lanes. Caller must hold d.mu.
func (d *Dispatcher) releaseDependents() {
	if len(d.waiting) == 0 {
		return
	}

	var ready []*job.Job
	for key, jobID := range d.waiting {
		j, err := d.store.GetJob(d.baseCtx, jobID)
		if err != nil || j.Status != job.StatusPending {
			delete(d.waiting, key)
			continue
		}
		if d.dependenciesMet(j) {
			delete(d.waiting, key)
			ready = append(ready, j)
		}
	}
	sortByCreatedAt(ready)

	for _, j := range ready {
		d.lanes.Push(j.ID, j.Priority)
	}
}

// dispatchLocked starts eligible jobs until the concurrency cap is reached
// or the lanes are exhausted. Caller must hold d.mu.
func (d *Dispatcher) dispatchLocked(now time.Time) {
	for !d.draining && len(d.running) < d.concurrency {
		var picked *job.Job
		_, ok := d.lanes.Pop(func(jobID id.JobID) queue.Verdict {
			j, err := d.store.GetJob(d.baseCtx, jobID)
			if err != nil || j.Status != job.StatusPending {
				return queue.Evict
			}
			if !d.dependenciesMet(j) {
				d.waiting[jobID.String()] = jobID
				return queue.Evict
			}
			if d.manager != nil && !d.manager.Acquire(j.Kind) {
				return queue.Keep
			}
			picked = j
			return queue.Take
		})
		if !ok {
			break
		}
		d.startLocked(picked, now)
	}
}

// startLocked marks j running and launches its execution. Caller must
// hold d.mu.
func (d *Dispatcher) startLocked(j *job.Job, now time.Time) {
	started := now
	j.Status = job.StatusRunning
	j.StartedAt = &started
	j.Progress = nil

	if err := d.store.UpdateJob(d.baseCtx, j); err != nil {
		d.logStoreError("mark job running", j.ID, err)
		if d.manager != nil {
			d.manager.Release(j.Kind)
		}
		return
	}

	ctx, cancel := context.WithCancel(d.baseCtx)
	d.running[j.ID.String()] = &execution{cancel: cancel, kind: j.Kind}
	d.wg.Add(1)

	snap := j.Clone()
	d.logger.Debug("job dispatched",
		slog.String("job_id", j.ID.String()),
		slog.String("job_kind", j.Kind),
		slog.String("priority", string(j.Priority)),
		slog.Int("retry_count", j.RetryCount),
	)

	d.notify(func() { d.extensions.EmitJobStarted(d.baseCtx, snap) })
	go d.run(ctx, snap.Clone())
}

// run executes one job and reports its outcome to the loop.
func (d *Dispatcher) run(ctx context.Context, j *job.Job) {
	defer d.wg.Done()

	startedAt := d.clock()
	if j.StartedAt != nil {
		startedAt = *j.StartedAt
	}
	report := func(current, total int64, message string) {
		p := job.NewProgress(current, total, message, d.clock().Sub(startedAt))
		d.send(signal{kind: signalProgress, jobID: j.ID, progress: p})
	}

	out := d.executor.Execute(ctx, j, report)
	d.send(signal{kind: signalOutcome, jobID: j.ID, outcome: out})
}

// apply dispatches a signal to its handler.
func (d *Dispatcher) apply(sig signal) {
	switch sig.kind {
	case signalProgress:
		d.applyProgress(sig.jobID, sig.progress)
	case signalOutcome:
		d.applyOutcome(sig.outcome)
	}
}

// Wait blocks until every execution goroutine has returned. Stop does not
// wait for executions abandoned after its deadline; Wait does.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) logStoreError(op string, jobID id.JobID, err error) {
	d.logger.Error("job store error",
		slog.String("op", op),
		slog.String("job_id", jobID.String()),
		slog.String("error", err.Error()),
	)
}
