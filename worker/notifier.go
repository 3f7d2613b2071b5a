package worker

import (
	"context"
	"sync"
)

// notifier delivers lifecycle hooks and job callbacks on a goroutine of its
// own, in the order they were queued. Pushing never blocks, so the
// dispatcher may queue notifications while holding its lock and a slow
// listener cannot hold up dispatching.
type notifier struct {
	mu       sync.Mutex
	queue    []func()
	draining bool
}

// push queues fn. A drain goroutine is started when none is running.
func (n *notifier) push(fn func()) {
	n.mu.Lock()
	n.queue = append(n.queue, fn)
	if n.draining {
		n.mu.Unlock()
		return
	}
	n.draining = true
	n.mu.Unlock()

	go n.drain()
}

// drain runs queued notifications until the queue is empty, then exits.
func (n *notifier) drain() {
	for {
		n.mu.Lock()
		if len(n.queue) == 0 {
			n.draining = false
			n.queue = nil
			n.mu.Unlock()
			return
		}
		fn := n.queue[0]
		n.queue[0] = nil
		n.queue = n.queue[1:]
		n.mu.Unlock()

		fn()
	}
}

// flush blocks until every notification queued before the call has run or
// ctx is done.
func (n *notifier) flush(ctx context.Context) error {
	done := make(chan struct{})
	n.push(func() { close(done) })

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
