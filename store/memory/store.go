package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
	"github.com/xraph/cadence/store"
)

// Ensure Store implements store.Store at compile time.
var _ store.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store.
// Safe for concurrent access. Records are copied on the way in and out.
type Store struct {
	mu sync.RWMutex

	jobs map[string]*job.Job
	// order holds job keys in insertion order.
	order []string
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs: make(map[string]*job.Job),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// PutJob inserts a new job record.
func (m *Store) PutJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return cadence.ErrJobAlreadyExists
	}
	m.jobs[key] = j.Clone()
	m.order = append(m.order, key)
	return nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, cadence.ErrJobNotFound
	}
	return j.Clone(), nil
}

// UpdateJob replaces an existing job record.
func (m *Store) UpdateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, ok := m.jobs[key]; !ok {
		return cadence.ErrJobNotFound
	}
	m.jobs[key] = j.Clone()
	return nil
}

// DeleteJob removes a job by ID.
func (m *Store) DeleteJob(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := jobID.String()
	if _, ok := m.jobs[key]; !ok {
		return cadence.ErrJobNotFound
	}
	delete(m.jobs, key)
	if i := slices.Index(m.order, key); i >= 0 {
		m.order = slices.Delete(m.order, i, i+1)
	}
	return nil
}

// ListJobs returns matching jobs in insertion order.
func (m *Store) ListJobs(_ context.Context, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0, len(m.order))
	for _, key := range m.order {
		j := m.jobs[key]
		if !matches(j, opts.Status, opts.Kind) {
			continue
		}
		result = append(result, j.Clone())
		if opts.Limit > 0 && len(result) == opts.Limit {
			break
		}
	}
	return result, nil
}

// CountJobs returns the number of jobs matching the given options.
func (m *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, j := range m.jobs {
		if matches(j, opts.Status, opts.Kind) {
			count++
		}
	}
	return count, nil
}

func matches(j *job.Job, status job.Status, kind string) bool {
	if status != "" && j.Status != status {
		return false
	}
	if kind != "" && j.Kind != kind {
		return false
	}
	return true
}
