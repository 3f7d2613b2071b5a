package stream

import (
	"sync"
	"sync/atomic"
)

// sendResult is the outcome of offering an event to a subscriber.
type sendResult int

const (
	sendOK sendResult = iota
	// sendSkipped means the subscriber did not want the event (closed or
	// filtered out).
	sendSkipped
	// sendDropped means the subscriber wanted the event but had no credits
	// or buffer space left.
	sendDropped
)

// Subscriber receives events from topics it is subscribed to.
// It uses credit-based flow control: the subscriber grants credits
// indicating how many events it can receive. The broker stops
// sending when credits reach zero.
type Subscriber struct {
	// id uniquely identifies this subscriber.
	id string

	// ch is the buffered channel events are sent on.
	ch chan *Event

	// credits tracks remaining flow-control credits.
	credits atomic.Int64

	// dropped counts events lost to exhausted credits or a full buffer.
	dropped atomic.Int64

	// topics tracks which topics this subscriber is on.
	topics map[string]struct{}
	mu     sync.RWMutex

	// filter is an optional predicate. If set, only events
	// matching the filter are delivered.
	filter atomic.Pointer[func(*Event) bool]

	// sendMu serialises sends against Close so a send never hits a closed
	// channel.
	sendMu sync.Mutex
	closed bool
}

// NewSubscriber creates a subscriber with the given buffer size
// and initial credits.
func NewSubscriber(id string, bufferSize int, initialCredits int64) *Subscriber {
	s := &Subscriber{
		id:     id,
		ch:     make(chan *Event, bufferSize),
		topics: make(map[string]struct{}),
	}
	s.credits.Store(initialCredits)
	return s
}

// ID returns the subscriber identifier.
func (s *Subscriber) ID() string { return s.id }

// C returns the read-only event channel. It is closed when the subscriber
// is removed or the broker shuts down.
func (s *Subscriber) C() <-chan *Event { return s.ch }

// AddCredits replenishes flow-control credits.
func (s *Subscriber) AddCredits(n int64) {
	s.credits.Add(n)
}

// Credits returns the current credit count.
func (s *Subscriber) Credits() int64 {
	return s.credits.Load()
}

// Dropped returns how many events this subscriber has missed.
func (s *Subscriber) Dropped() int64 {
	return s.dropped.Load()
}

// SetFilter sets an optional event filter predicate.
func (s *Subscriber) SetFilter(fn func(*Event) bool) {
	s.filter.Store(&fn)
}

// addTopic records that this subscriber is on the given topic.
func (s *Subscriber) addTopic(topic string) {
	s.mu.Lock()
	s.topics[topic] = struct{}{}
	s.mu.Unlock()
}

// removeTopic removes a topic from the subscriber's tracked set.
func (s *Subscriber) removeTopic(topic string) {
	s.mu.Lock()
	delete(s.topics, topic)
	s.mu.Unlock()
}

// Topics returns a copy of all subscribed topic names.
func (s *Subscriber) Topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	return out
}

// send attempts a non-blocking delivery of evt.
func (s *Subscriber) send(evt *Event) sendResult {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.closed {
		return sendSkipped
	}
	if fn := s.filter.Load(); fn != nil && *fn != nil && !(*fn)(evt) {
		return sendSkipped
	}

	for {
		current := s.credits.Load()
		if current <= 0 {
			s.dropped.Add(1)
			return sendDropped
		}
		if s.credits.CompareAndSwap(current, current-1) {
			break
		}
	}

	select {
	case s.ch <- evt:
		return sendOK
	default:
		// Buffer full, restore credit.
		s.credits.Add(1)
		s.dropped.Add(1)
		return sendDropped
	}
}

// Close closes the subscriber channel. Safe to call multiple times.
func (s *Subscriber) Close() {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
