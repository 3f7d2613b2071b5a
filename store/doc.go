// Package store defines the persistence interface for job records.
//
// The scheduler keeps every submitted job in a [Store] until the garbage
// collector removes it. Records are identified by job ID and hold the full
// lifecycle state: status, retry count, timestamps, result and error.
//
//	type Store interface {
//	    job.Store
//
//	    Ping(ctx context.Context) error
//	    Close() error
//	}
//
// # Available Backends
//
//   - store/memory: in-memory store, the default for the scheduler
//
// # Usage
//
//	s := memory.New()
//	eng, err := engine.New(engine.WithStore(s))
package store
