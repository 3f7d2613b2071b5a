package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/backoff"
	"github.com/xraph/cadence/ext"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
	"github.com/xraph/cadence/middleware"
	"github.com/xraph/cadence/queue"
	"github.com/xraph/cadence/store/memory"
	"github.com/xraph/cadence/worker"
)

func setupDispatcher(t *testing.T, opts ...worker.DispatcherOption) (*worker.Dispatcher, *job.Registry) {
	t.Helper()
	logger := discardLogger()
	reg := job.NewRegistry()
	executor := worker.NewExecutor(reg, logger, middleware.Recover(logger))

	base := []worker.DispatcherOption{
		worker.WithLogger(logger),
		worker.WithTickInterval(5 * time.Millisecond),
		worker.WithBackoff(backoff.NewConstant(time.Millisecond)),
	}
	d := worker.NewDispatcher(memory.New(), executor, append(base, opts...)...)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = d.Stop(ctx)
	})
	return d, reg
}

func start(t *testing.T, d *worker.Dispatcher) {
	t.Helper()
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
}

func submit(t *testing.T, d *worker.Dispatcher, kind string, opts ...job.Option) id.JobID {
	t.Helper()
	jobID, err := d.Submit(context.Background(), kind, nil, opts...)
	if err != nil {
		t.Fatalf("submit %q: %v", kind, err)
	}
	return jobID
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func waitStatus(t *testing.T, d *worker.Dispatcher, jobID id.JobID, want job.Status) *job.Job {
	t.Helper()
	var got *job.Job
	waitFor(t, "job "+jobID.String()+" to be "+string(want), func() bool {
		j, err := d.Get(context.Background(), jobID)
		if err != nil {
			return false
		}
		got = j
		return j.Status == want
	})
	return got
}

func mustGet(t *testing.T, d *worker.Dispatcher, jobID id.JobID) *job.Job {
	t.Helper()
	j, err := d.Get(context.Background(), jobID)
	if err != nil {
		t.Fatalf("get %s: %v", jobID, err)
	}
	return j
}

// waitRetry waits until the job is parked pending with the given retry
// count.
func waitRetry(t *testing.T, d *worker.Dispatcher, jobID id.JobID, retryCount int) *job.Job {
	t.Helper()
	var got *job.Job
	waitFor(t, "job "+jobID.String()+" to be parked for a retry", func() bool {
		j, err := d.Get(context.Background(), jobID)
		if err != nil {
			return false
		}
		got = j
		return j.Status == job.StatusPending && j.RetryCount == retryCount
	})
	return got
}

func noop(context.Context, []byte, job.ReportFunc) ([]byte, error) { return nil, nil }

// gated returns a handler that blocks until gate is closed and tracks how
// many executions overlap.
func gated(gate <-chan struct{}, current, peak *atomic.Int32) job.HandlerFunc {
	return func(context.Context, []byte, job.ReportFunc) ([]byte, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-gate
		current.Add(-1)
		return nil, nil
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

func TestDispatcher_StartStop(t *testing.T) {
	d, _ := setupDispatcher(t)
	start(t, d)

	// Double start should be no-op.
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("unexpected double-start error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Stop(ctx); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}
	// Double stop should be no-op.
	if err := d.Stop(ctx); err != nil {
		t.Fatalf("unexpected double-stop error: %v", err)
	}
}

func TestDispatcher_StopWaitsForInFlight(t *testing.T) {
	d, reg := setupDispatcher(t)
	var entered atomic.Bool
	reg.Register("slow", func(context.Context, []byte, job.ReportFunc) ([]byte, error) {
		entered.Store(true)
		time.Sleep(50 * time.Millisecond)
		return []byte("done"), nil
	})
	start(t, d)

	jobID := submit(t, d, "slow")
	waitFor(t, "slow job to start", entered.Load)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Stop(ctx); err != nil {
		t.Fatalf("stop error: %v", err)
	}

	got := mustGet(t, d, jobID)
	if got.Status != job.StatusCompleted {
		t.Errorf("status after graceful stop = %q, want %q", got.Status, job.StatusCompleted)
	}
}

func TestDispatcher_StopTimeoutCancelsExecutions(t *testing.T) {
	d, reg := setupDispatcher(t)
	var entered, sawCancel atomic.Bool
	reg.Register("stubborn", func(ctx context.Context, _ []byte, _ job.ReportFunc) ([]byte, error) {
		entered.Store(true)
		<-ctx.Done()
		sawCancel.Store(true)
		return nil, ctx.Err()
	})
	start(t, d)

	submit(t, d, "stubborn")
	waitFor(t, "job to start", entered.Load)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Stop(ctx); err != nil {
		t.Fatalf("stop error: %v", err)
	}
	d.Wait()

	if !sawCancel.Load() {
		t.Error("expected execution context to be cancelled after stop deadline")
	}
}

// ──────────────────────────────────────────────────
// Dispatch
// ──────────────────────────────────────────────────

func TestDispatcher_ImmediateEligibility(t *testing.T) {
	d, reg := setupDispatcher(t)
	reg.Register("greet", func(_ context.Context, payload []byte, _ job.ReportFunc) ([]byte, error) {
		return append([]byte("hello "), payload...), nil
	})
	start(t, d)

	jobID, err := d.Submit(context.Background(), "greet", []byte("alice"))
	if err != nil {
		t.Fatalf("submit error: %v", err)
	}

	got := waitStatus(t, d, jobID, job.StatusCompleted)
	if string(got.Result) != "hello alice" {
		t.Errorf("Result = %q, want %q", got.Result, "hello alice")
	}
	if got.StartedAt == nil || got.CompletedAt == nil {
		t.Error("expected StartedAt and CompletedAt to be set")
	}
	if got.Priority != job.PriorityNormal {
		t.Errorf("Priority = %q, want %q", got.Priority, job.PriorityNormal)
	}
	if got.MaxRetries != worker.DefaultMaxRetries {
		t.Errorf("MaxRetries = %d, want %d", got.MaxRetries, worker.DefaultMaxRetries)
	}
}

func TestDispatcher_InvalidSubmission(t *testing.T) {
	d, _ := setupDispatcher(t)

	tests := []struct {
		name string
		kind string
		opts []job.Option
	}{
		{"empty kind", "", nil},
		{"unknown priority", "x", []job.Option{job.WithPriority("urgent")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Submit(context.Background(), tt.kind, nil, tt.opts...)
			if !errors.Is(err, cadence.ErrInvalidJob) {
				t.Errorf("err = %v, want ErrInvalidJob", err)
			}
		})
	}
}

func TestDispatcher_DependencyOrdering(t *testing.T) {
	d, reg := setupDispatcher(t)

	gate := make(chan struct{})
	var seq atomic.Int32
	var parentDone, childStart atomic.Int32
	reg.Register("parent", func(context.Context, []byte, job.ReportFunc) ([]byte, error) {
		<-gate
		parentDone.Store(seq.Add(1))
		return nil, nil
	})
	reg.Register("child", func(context.Context, []byte, job.ReportFunc) ([]byte, error) {
		childStart.Store(seq.Add(1))
		return nil, nil
	})
	start(t, d)

	parent := submit(t, d, "parent")
	child := submit(t, d, "child", job.WithDependencies(parent))

	waitStatus(t, d, parent, job.StatusRunning)
	time.Sleep(30 * time.Millisecond)
	if got := mustGet(t, d, child); got.Status != job.StatusPending {
		t.Fatalf("child status = %q while parent runs, want pending", got.Status)
	}
	stats, err := d.QueueStats(context.Background())
	if err != nil {
		t.Fatalf("stats error: %v", err)
	}
	if stats.Waiting != 1 {
		t.Errorf("Waiting = %d, want 1", stats.Waiting)
	}

	close(gate)
	got := waitStatus(t, d, child, job.StatusCompleted)

	if childStart.Load() <= parentDone.Load() {
		t.Errorf("child started (%d) before parent finished (%d)", childStart.Load(), parentDone.Load())
	}
	parentJob := mustGet(t, d, parent)
	if got.StartedAt.Before(*parentJob.CompletedAt) {
		t.Error("child StartedAt precedes parent CompletedAt")
	}
}

func TestDispatcher_UnknownDependencyWaits(t *testing.T) {
	d, reg := setupDispatcher(t)
	reg.Register("orphan", noop)
	start(t, d)

	jobID := submit(t, d, "orphan", job.WithDependencies(id.NewJobID()))
	time.Sleep(30 * time.Millisecond)

	if got := mustGet(t, d, jobID); got.Status != job.StatusPending {
		t.Errorf("status = %q, want pending", got.Status)
	}
}

func TestDispatcher_ConcurrencyBound(t *testing.T) {
	d, reg := setupDispatcher(t, worker.WithConcurrency(2))

	gate := make(chan struct{})
	var current, peak atomic.Int32
	reg.Register("block", gated(gate, &current, &peak))
	start(t, d)

	ids := make([]id.JobID, 5)
	for i := range ids {
		ids[i] = submit(t, d, "block")
	}

	waitFor(t, "two jobs to run", func() bool { return current.Load() == 2 })
	time.Sleep(30 * time.Millisecond)

	stats, err := d.QueueStats(context.Background())
	if err != nil {
		t.Fatalf("stats error: %v", err)
	}
	if stats.Running != 2 || stats.Pending != 3 {
		t.Errorf("Running = %d, Pending = %d; want 2, 3", stats.Running, stats.Pending)
	}
	if stats.ActiveConcurrency != 2 || stats.MaxConcurrency != 2 {
		t.Errorf("ActiveConcurrency = %d, MaxConcurrency = %d; want 2, 2",
			stats.ActiveConcurrency, stats.MaxConcurrency)
	}

	close(gate)
	for _, jobID := range ids {
		waitStatus(t, d, jobID, job.StatusCompleted)
	}
	if p := peak.Load(); p != 2 {
		t.Errorf("peak concurrency = %d, want 2", p)
	}
}

func TestDispatcher_KindManagerLimits(t *testing.T) {
	mgr := queue.NewManager(queue.Config{Kind: "limited", MaxConcurrency: 1})
	d, reg := setupDispatcher(t, worker.WithConcurrency(3), worker.WithManager(mgr))

	gate := make(chan struct{})
	var current, peak atomic.Int32
	reg.Register("limited", gated(gate, &current, &peak))
	reg.Register("free", noop)
	start(t, d)

	ids := []id.JobID{submit(t, d, "limited"), submit(t, d, "limited"), submit(t, d, "limited")}
	free := submit(t, d, "free")

	waitStatus(t, d, free, job.StatusCompleted)
	time.Sleep(30 * time.Millisecond)
	if p := peak.Load(); p != 1 {
		t.Errorf("peak limited concurrency = %d, want 1", p)
	}

	close(gate)
	for _, jobID := range ids {
		waitStatus(t, d, jobID, job.StatusCompleted)
	}
	if n := mgr.ActiveCount("limited"); n != 0 {
		t.Errorf("ActiveCount = %d after completion, want 0", n)
	}
}

func TestDispatcher_PriorityOrder(t *testing.T) {
	d, reg := setupDispatcher(t, worker.WithConcurrency(1))

	var (
		mu    sync.Mutex
		order []string
	)
	reg.Register("record", func(_ context.Context, payload []byte, _ job.ReportFunc) ([]byte, error) {
		mu.Lock()
		order = append(order, string(payload))
		mu.Unlock()
		return nil, nil
	})

	ctx := context.Background()
	var last id.JobID
	for _, p := range []job.Priority{job.PriorityLow, job.PriorityNormal, job.PriorityHigh, job.PriorityLow, job.PriorityHigh} {
		jobID, err := d.Submit(ctx, "record", []byte(p), job.WithPriority(p))
		if err != nil {
			t.Fatalf("submit error: %v", err)
		}
		last = jobID
	}
	start(t, d)
	waitStatus(t, d, last, job.StatusCompleted)

	stats, err := d.QueueStats(ctx)
	if err != nil {
		t.Fatalf("stats error: %v", err)
	}
	if stats.Completed != 5 {
		t.Fatalf("Completed = %d, want 5", stats.Completed)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"high", "high", "normal", "low", "low"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

// ──────────────────────────────────────────────────
// Retries
// ──────────────────────────────────────────────────

func TestDispatcher_RetrySequence(t *testing.T) {
	tracker := &trackingExt{}
	extensions := ext.NewRegistry(discardLogger())
	extensions.Register(tracker)
	d, reg := setupDispatcher(t, worker.WithExtensions(extensions))

	var attempts, onError atomic.Int32
	reg.Register("flaky", func(context.Context, []byte, job.ReportFunc) ([]byte, error) {
		attempts.Add(1)
		return nil, errors.New("unavailable")
	})
	start(t, d)

	jobID := submit(t, d, "flaky",
		job.WithMaxRetries(2),
		job.WithOnError(func(_ *job.Job, _ error) { onError.Add(1) }),
	)

	got := waitStatus(t, d, jobID, job.StatusFailed)
	waitFor(t, "OnError", func() bool { return onError.Load() == 1 })

	if n := attempts.Load(); n != 3 {
		t.Errorf("attempts = %d, want 3", n)
	}
	if got.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2", got.RetryCount)
	}
	if got.Error != "unavailable" {
		t.Errorf("Error = %q, want %q", got.Error, "unavailable")
	}
	if got.CompletedAt == nil {
		t.Error("expected CompletedAt on failed job")
	}
	if n := tracker.retrying.Load(); n != 2 {
		t.Errorf("retrying hooks = %d, want 2", n)
	}
	if n := tracker.failed.Load(); n != 1 {
		t.Errorf("failed hooks = %d, want 1", n)
	}

	time.Sleep(20 * time.Millisecond)
	if n := onError.Load(); n != 1 {
		t.Errorf("OnError calls = %d, want 1", n)
	}
}

func TestDispatcher_PermanentErrorNotRetried(t *testing.T) {
	d, reg := setupDispatcher(t)

	var attempts atomic.Int32
	reg.Register("bad-input", func(context.Context, []byte, job.ReportFunc) ([]byte, error) {
		attempts.Add(1)
		return nil, job.Permanent(errors.New("malformed"))
	})
	start(t, d)

	jobID := submit(t, d, "bad-input", job.WithMaxRetries(5))
	got := waitStatus(t, d, jobID, job.StatusFailed)

	if n := attempts.Load(); n != 1 {
		t.Errorf("attempts = %d, want 1", n)
	}
	if got.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0", got.RetryCount)
	}
}

func TestDispatcher_MissingExecutorFails(t *testing.T) {
	d, reg := setupDispatcher(t)
	reg.Register("known", noop)
	start(t, d)

	var gotErr atomic.Pointer[error]
	missing := submit(t, d, "unknown", job.WithOnError(func(_ *job.Job, err error) {
		gotErr.Store(&err)
	}))
	known := submit(t, d, "known")

	got := waitStatus(t, d, missing, job.StatusFailed)
	waitStatus(t, d, known, job.StatusCompleted)
	waitFor(t, "OnError", func() bool { return gotErr.Load() != nil })

	if got.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0", got.RetryCount)
	}
	if err := *gotErr.Load(); !errors.Is(err, cadence.ErrExecutorNotFound) {
		t.Errorf("OnError err = %v, want ErrExecutorNotFound", err)
	}
}

func TestDispatcher_ExplicitRetry(t *testing.T) {
	d, reg := setupDispatcher(t)

	var attempts atomic.Int32
	reg.Register("second-time", func(context.Context, []byte, job.ReportFunc) ([]byte, error) {
		if attempts.Add(1) == 1 {
			return nil, errors.New("first attempt fails")
		}
		return []byte("ok"), nil
	})
	reg.Register("after", noop)
	start(t, d)

	ctx := context.Background()
	jobID := submit(t, d, "second-time", job.WithMaxRetries(0))
	dependent := submit(t, d, "after", job.WithDependencies(jobID))
	waitStatus(t, d, jobID, job.StatusFailed)

	if d.Retry(ctx, dependent) {
		t.Error("Retry on a pending job should return false")
	}
	if !d.Retry(ctx, jobID) {
		t.Fatal("Retry on a failed job should return true")
	}

	got := waitStatus(t, d, jobID, job.StatusCompleted)
	if got.RetryCount != 0 || got.Error != "" {
		t.Errorf("RetryCount = %d, Error = %q; want reset", got.RetryCount, got.Error)
	}
	waitStatus(t, d, dependent, job.StatusCompleted)

	if d.Retry(ctx, jobID) {
		t.Error("Retry on a completed job should return false")
	}
	if d.Retry(ctx, id.NewJobID()) {
		t.Error("Retry on an unknown job should return false")
	}
}

// ──────────────────────────────────────────────────
// Cancellation
// ──────────────────────────────────────────────────

func TestDispatcher_CancelPending(t *testing.T) {
	d, reg := setupDispatcher(t)
	var ran atomic.Bool
	reg.Register("never", func(context.Context, []byte, job.ReportFunc) ([]byte, error) {
		ran.Store(true)
		return nil, nil
	})

	ctx := context.Background()
	jobID := submit(t, d, "never")
	dependent := submit(t, d, "never", job.WithDependencies(jobID))

	if !d.Cancel(ctx, jobID) {
		t.Fatal("Cancel on a pending job should return true")
	}
	if d.Cancel(ctx, jobID) {
		t.Error("second Cancel should return false")
	}
	if d.Cancel(ctx, id.NewJobID()) {
		t.Error("Cancel on an unknown job should return false")
	}

	start(t, d)
	time.Sleep(30 * time.Millisecond)

	if ran.Load() {
		t.Error("cancelled job or its dependent ran")
	}
	if got := mustGet(t, d, jobID); got.Status != job.StatusCancelled || got.CompletedAt == nil {
		t.Errorf("status = %q, CompletedAt = %v; want cancelled with timestamp", got.Status, got.CompletedAt)
	}
	if got := mustGet(t, d, dependent); got.Status != job.StatusPending {
		t.Errorf("dependent status = %q, want pending", got.Status)
	}
}

func TestDispatcher_CancelRunning(t *testing.T) {
	d, reg := setupDispatcher(t)

	var entered atomic.Bool
	var lateErr atomic.Pointer[error]
	reg.Register("cooperative", func(ctx context.Context, _ []byte, _ job.ReportFunc) ([]byte, error) {
		entered.Store(true)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	reg.Register("dependent", noop)
	start(t, d)

	ctx := context.Background()
	jobID := submit(t, d, "cooperative", job.WithOnError(func(_ *job.Job, err error) {
		lateErr.Store(&err)
	}))
	dependent := submit(t, d, "dependent", job.WithDependencies(jobID))

	waitFor(t, "job to start", entered.Load)
	if !d.Cancel(ctx, jobID) {
		t.Fatal("Cancel on a running job should return true")
	}

	waitFor(t, "late outcome callback", func() bool { return lateErr.Load() != nil })
	if err := *lateErr.Load(); !errors.Is(err, context.Canceled) {
		t.Errorf("late err = %v, want context.Canceled", err)
	}

	time.Sleep(30 * time.Millisecond)
	got := mustGet(t, d, jobID)
	if got.Status != job.StatusCancelled {
		t.Errorf("status = %q, want cancelled", got.Status)
	}
	if got.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0", got.RetryCount)
	}
	if dep := mustGet(t, d, dependent); dep.Status != job.StatusPending {
		t.Errorf("dependent status = %q, want pending", dep.Status)
	}

	stats, err := d.QueueStats(ctx)
	if err != nil {
		t.Fatalf("stats error: %v", err)
	}
	if stats.ActiveConcurrency != 0 {
		t.Errorf("ActiveConcurrency = %d, want 0", stats.ActiveConcurrency)
	}
}

// ──────────────────────────────────────────────────
// Progress, stats, clear and collection
// ──────────────────────────────────────────────────

func TestDispatcher_ProgressCallbacks(t *testing.T) {
	d, reg := setupDispatcher(t)
	reg.Register("steps", func(_ context.Context, _ []byte, report job.ReportFunc) ([]byte, error) {
		report(1, 4, "started")
		report(4, 4, "finished")
		return nil, nil
	})
	start(t, d)

	var (
		mu      sync.Mutex
		reports []job.Progress
	)
	jobID := submit(t, d, "steps", job.WithOnProgress(func(_ *job.Job, p job.Progress) {
		mu.Lock()
		reports = append(reports, p)
		mu.Unlock()
	}))

	got := waitStatus(t, d, jobID, job.StatusCompleted)
	waitFor(t, "both progress callbacks", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reports) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	if reports[0].Percentage != 25 || reports[0].Message != "started" {
		t.Errorf("first report = %+v", reports[0])
	}
	if got.Progress == nil || got.Progress.Percentage != 100 {
		t.Errorf("stored progress = %+v, want 100%%", got.Progress)
	}
}

func TestDispatcher_StatsRoundTrip(t *testing.T) {
	d, reg := setupDispatcher(t)
	reg.Register("ok", noop)
	reg.Register("fail", func(context.Context, []byte, job.ReportFunc) ([]byte, error) {
		return nil, errors.New("nope")
	})
	start(t, d)

	const n, m = 4, 3
	var ids []id.JobID
	for range n {
		ids = append(ids, submit(t, d, "ok"))
	}
	for range m {
		ids = append(ids, submit(t, d, "fail", job.WithMaxRetries(0)))
	}
	for i, jobID := range ids {
		want := job.StatusCompleted
		if i >= n {
			want = job.StatusFailed
		}
		waitStatus(t, d, jobID, want)
	}

	stats, err := d.QueueStats(context.Background())
	if err != nil {
		t.Fatalf("stats error: %v", err)
	}
	if stats.TotalProcessed != n+m {
		t.Errorf("TotalProcessed = %d, want %d", stats.TotalProcessed, n+m)
	}
	if stats.Completed != n || stats.Failed != m {
		t.Errorf("Completed = %d, Failed = %d; want %d, %d", stats.Completed, stats.Failed, n, m)
	}
	if stats.Total() != n+m {
		t.Errorf("Total() = %d, want %d", stats.Total(), n+m)
	}
	if stats.MemoryUsage == 0 {
		t.Error("expected MemoryUsage to be reported")
	}
}

func TestDispatcher_ClearQueue(t *testing.T) {
	d, _ := setupDispatcher(t)
	ctx := context.Background()

	a := submit(t, d, "a")
	submit(t, d, "b", job.WithDependencies(a))
	c := submit(t, d, "c")
	d.Cancel(ctx, c)

	if n := d.ClearQueue(ctx); n != 3 {
		t.Errorf("ClearQueue = %d, want 3", n)
	}
	jobs, err := d.List(ctx, job.ListOpts{})
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("jobs after clear = %d, want 0", len(jobs))
	}
	if _, err := d.Get(ctx, a); !errors.Is(err, cadence.ErrJobNotFound) {
		t.Errorf("Get after clear err = %v, want ErrJobNotFound", err)
	}

	stats, err := d.QueueStats(ctx)
	if err != nil {
		t.Fatalf("stats error: %v", err)
	}
	if stats.Queued != 0 || stats.Waiting != 0 {
		t.Errorf("Queued = %d, Waiting = %d; want 0, 0", stats.Queued, stats.Waiting)
	}
}

func TestDispatcher_ListSubmissionOrder(t *testing.T) {
	d, _ := setupDispatcher(t)
	ctx := context.Background()

	want := []id.JobID{
		submit(t, d, "x", job.WithPriority(job.PriorityLow)),
		submit(t, d, "y", job.WithPriority(job.PriorityHigh)),
		submit(t, d, "z"),
	}

	jobs, err := d.List(ctx, job.ListOpts{})
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if len(jobs) != len(want) {
		t.Fatalf("jobs = %d, want %d", len(jobs), len(want))
	}
	for i := range want {
		if jobs[i].ID.String() != want[i].String() {
			t.Errorf("jobs[%d] = %s, want %s", i, jobs[i].ID, want[i])
		}
	}
}

func TestDispatcher_SweepIdempotent(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tracker := &trackingExt{}
	extensions := ext.NewRegistry(discardLogger())
	extensions.Register(tracker)
	d, _ := setupDispatcher(t,
		worker.WithClock(func() time.Time { return t0 }),
		worker.WithRetention(24*time.Hour),
		worker.WithExtensions(extensions),
	)
	ctx := context.Background()

	old := submit(t, d, "old")
	d.Cancel(ctx, old)
	pending := submit(t, d, "pending")

	if n := d.Sweep(t0.Add(time.Hour)); n != 0 {
		t.Errorf("sweep inside retention removed %d, want 0", n)
	}
	if n := d.Sweep(t0.Add(25 * time.Hour)); n != 1 {
		t.Errorf("first sweep removed %d, want 1", n)
	}
	if n := d.Sweep(t0.Add(25 * time.Hour)); n != 0 {
		t.Errorf("second sweep removed %d, want 0", n)
	}

	if _, err := d.Get(ctx, old); !errors.Is(err, cadence.ErrJobNotFound) {
		t.Errorf("collected job err = %v, want ErrJobNotFound", err)
	}
	if _, err := d.Get(ctx, pending); err != nil {
		t.Errorf("pending job should survive sweep: %v", err)
	}
	waitFor(t, "collected hook", func() bool { return tracker.collected.Load() == 1 })
}

func TestDispatcher_CollectedDependencyStillMet(t *testing.T) {
	var clockNanos atomic.Int64
	clockNanos.Store(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC).UnixNano())
	now := func() time.Time { return time.Unix(0, clockNanos.Load()).UTC() }

	d, reg := setupDispatcher(t,
		worker.WithClock(now),
		worker.WithRetention(24*time.Hour),
		worker.WithGCInterval(time.Hour),
	)
	reg.Register("step", noop)
	start(t, d)

	first := submit(t, d, "step")
	waitStatus(t, d, first, job.StatusCompleted)

	if n := d.Sweep(now().Add(48 * time.Hour)); n != 1 {
		t.Fatalf("sweep removed %d, want 1", n)
	}
	if _, err := d.Get(context.Background(), first); !errors.Is(err, cadence.ErrJobNotFound) {
		t.Fatalf("collected job err = %v, want ErrJobNotFound", err)
	}

	second := submit(t, d, "step", job.WithDependencies(first))
	waitStatus(t, d, second, job.StatusCompleted)

	orphan := submit(t, d, "step", job.WithDependencies(id.NewJobID()))
	time.Sleep(30 * time.Millisecond)
	if got := mustGet(t, d, orphan); got.Status != job.StatusPending {
		t.Errorf("job with an unknown dependency is %q, want pending", got.Status)
	}
}

// ──────────────────────────────────────────────────
// Notifications
// ──────────────────────────────────────────────────

func TestDispatcher_BlockingCallbackDoesNotStallDispatch(t *testing.T) {
	tracker := &trackingExt{}
	extensions := ext.NewRegistry(discardLogger())
	extensions.Register(tracker)
	d, reg := setupDispatcher(t, worker.WithExtensions(extensions))

	gate := make(chan struct{})
	var entered atomic.Bool
	reg.Register("first", noop)
	reg.Register("second", func(context.Context, []byte, job.ReportFunc) ([]byte, error) {
		entered.Store(true)
		<-gate
		return nil, nil
	})
	start(t, d)

	release := make(chan struct{})
	unblock := sync.OnceFunc(func() { close(release) })
	t.Cleanup(unblock)

	var inCallback atomic.Bool
	submit(t, d, "first", job.WithOnComplete(func(*job.Job) {
		inCallback.Store(true)
		<-release
	}))
	waitFor(t, "completion callback to block", inCallback.Load)

	second := submit(t, d, "second")
	waitFor(t, "second job to start", entered.Load)
	if got := mustGet(t, d, second); got.Status != job.StatusRunning {
		t.Errorf("second job status = %q, want running", got.Status)
	}
	close(gate)
	waitStatus(t, d, second, job.StatusCompleted)

	if n := tracker.completed.Load(); n != 1 {
		t.Errorf("completed hooks while callback blocks = %d, want 1", n)
	}
	unblock()
	waitFor(t, "queued hooks after the callback returns", func() bool {
		return tracker.started.Load() == 2 && tracker.completed.Load() == 2
	})
}

func TestDispatcher_HooksFollowTransitionOrder(t *testing.T) {
	rec := &orderExt{}
	extensions := ext.NewRegistry(discardLogger())
	extensions.Register(rec)
	d, reg := setupDispatcher(t, worker.WithExtensions(extensions))
	reg.Register("flaky", func(context.Context, []byte, job.ReportFunc) ([]byte, error) {
		return nil, errors.New("unavailable")
	})
	start(t, d)

	jobID := submit(t, d, "flaky", job.WithMaxRetries(1))
	waitStatus(t, d, jobID, job.StatusFailed)

	want := []string{"submitted", "started", "retrying", "started", "failed"}
	waitFor(t, "all hooks", func() bool { return len(rec.events()) == len(want) })
	got := rec.events()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("hooks = %v, want %v", got, want)
		}
	}
}

// ──────────────────────────────────────────────────
// Retry delays
// ──────────────────────────────────────────────────

func TestDispatcher_RetryWaitsForExponentialDelay(t *testing.T) {
	const base = time.Second
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var clockNanos atomic.Int64
	clockNanos.Store(t0.UnixNano())
	now := func() time.Time { return time.Unix(0, clockNanos.Load()).UTC() }
	advance := func(by time.Duration) { clockNanos.Add(int64(by)) }

	d, reg := setupDispatcher(t,
		worker.WithClock(now),
		worker.WithBackoff(backoff.NewExponential(base, 0)),
	)
	var calls atomic.Int32
	reg.Register("flaky", func(context.Context, []byte, job.ReportFunc) ([]byte, error) {
		calls.Add(1)
		return nil, errors.New("unavailable")
	})
	start(t, d)

	jobID := submit(t, d, "flaky", job.WithMaxRetries(2))
	first := waitRetry(t, d, jobID, 1)
	if want := t0.Add(2 * base); !first.RunAt.Equal(want) {
		t.Errorf("first retry RunAt = %v, want %v", first.RunAt, want)
	}

	stats, err := d.QueueStats(context.Background())
	if err != nil {
		t.Fatalf("stats error: %v", err)
	}
	if stats.Delayed != 1 || stats.Queued != 0 {
		t.Errorf("Delayed = %d, Queued = %d; want 1, 0", stats.Delayed, stats.Queued)
	}

	advance(2*base - time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Fatalf("executions before the delay elapsed = %d, want 1", n)
	}

	advance(time.Millisecond)
	retryAt := now()
	second := waitRetry(t, d, jobID, 2)
	if n := calls.Load(); n != 2 {
		t.Errorf("executions after the first delay = %d, want 2", n)
	}
	if want := retryAt.Add(4 * base); !second.RunAt.Equal(want) {
		t.Errorf("second retry RunAt = %v, want %v", second.RunAt, want)
	}

	advance(4 * base)
	got := waitStatus(t, d, jobID, job.StatusFailed)
	if got.RetryCount != 2 || calls.Load() != 3 {
		t.Errorf("RetryCount = %d, executions = %d; want 2, 3", got.RetryCount, calls.Load())
	}
}

func TestDispatcher_RetryNotRunEarlyInRealTime(t *testing.T) {
	const delay = 300 * time.Millisecond
	d, reg := setupDispatcher(t, worker.WithBackoff(backoff.NewConstant(delay)))

	var (
		mu       sync.Mutex
		attempts []time.Time
	)
	reg.Register("flaky-once", func(context.Context, []byte, job.ReportFunc) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		attempts = append(attempts, time.Now())
		if len(attempts) == 1 {
			return nil, errors.New("unavailable")
		}
		return nil, nil
	})
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(attempts)
	}
	start(t, d)

	jobID := submit(t, d, "flaky-once", job.WithMaxRetries(1))
	waitRetry(t, d, jobID, 1)

	time.Sleep(delay / 2)
	if n := count(); n != 1 {
		t.Fatalf("attempts halfway through the delay = %d, want 1", n)
	}

	waitStatus(t, d, jobID, job.StatusCompleted)
	mu.Lock()
	defer mu.Unlock()
	if gap := attempts[1].Sub(attempts[0]); gap < delay {
		t.Errorf("retry ran %v after the failure, want at least %v", gap, delay)
	}
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// trackingExt counts which hooks fired.
type trackingExt struct {
	started   atomic.Int32
	completed atomic.Int32
	retrying  atomic.Int32
	failed    atomic.Int32
	collected atomic.Int32
}

func (e *trackingExt) Name() string { return "tracker" }

func (e *trackingExt) OnJobStarted(_ context.Context, _ *job.Job) error {
	e.started.Add(1)
	return nil
}

func (e *trackingExt) OnJobCompleted(_ context.Context, _ *job.Job, _ time.Duration) error {
	e.completed.Add(1)
	return nil
}

func (e *trackingExt) OnJobRetrying(_ context.Context, _ *job.Job, _ int, _ time.Time) error {
	e.retrying.Add(1)
	return nil
}

func (e *trackingExt) OnJobFailed(_ context.Context, _ *job.Job, _ error) error {
	e.failed.Add(1)
	return nil
}

func (e *trackingExt) OnJobCollected(_ context.Context, _ id.JobID) error {
	e.collected.Add(1)
	return nil
}

// orderExt records hook names in delivery order.
type orderExt struct {
	mu  sync.Mutex
	log []string
}

func (e *orderExt) Name() string { return "order" }

func (e *orderExt) add(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append(e.log, name)
	return nil
}

func (e *orderExt) events() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.log...)
}

func (e *orderExt) OnJobSubmitted(_ context.Context, _ *job.Job) error { return e.add("submitted") }

func (e *orderExt) OnJobStarted(_ context.Context, _ *job.Job) error { return e.add("started") }

func (e *orderExt) OnJobRetrying(_ context.Context, _ *job.Job, _ int, _ time.Time) error {
	return e.add("retrying")
}

func (e *orderExt) OnJobFailed(_ context.Context, _ *job.Job, _ error) error { return e.add("failed") }
