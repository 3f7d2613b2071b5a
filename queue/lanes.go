package queue

import (
	"slices"

	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
)

// Verdict tells Pop what to do with the job ID it is offering.
type Verdict int

const (
	// Take removes the ID and ends the scan.
	Take Verdict = iota
	// Keep leaves the ID queued and continues the scan.
	Keep
	// Evict removes the ID and continues the scan.
	Evict
)

// Lanes holds one FIFO lane of job IDs per priority level.
// It is not safe for concurrent use.
type Lanes struct {
	lanes [3][]id.JobID
	index map[string]job.Priority
}

// NewLanes creates empty lanes.
func NewLanes() *Lanes {
	return &Lanes{index: make(map[string]job.Priority)}
}

// Push appends jobID to the lane for p. Pushing an ID that is already
// queued is a no-op.
func (l *Lanes) Push(jobID id.JobID, p job.Priority) {
	key := jobID.String()
	if _, ok := l.index[key]; ok {
		return
	}
	r := p.Rank()
	l.lanes[r] = append(l.lanes[r], jobID)
	l.index[key] = p
}

// Remove deletes jobID from whichever lane holds it.
func (l *Lanes) Remove(jobID id.JobID) bool {
	key := jobID.String()
	p, ok := l.index[key]
	if !ok {
		return false
	}
	r := p.Rank()
	l.lanes[r] = slices.DeleteFunc(l.lanes[r], func(x id.JobID) bool {
		return x.String() == key
	})
	delete(l.index, key)
	return true
}

// Contains reports whether jobID is queued.
func (l *Lanes) Contains(jobID id.JobID) bool {
	_, ok := l.index[jobID.String()]
	return ok
}

// Len returns the number of IDs queued at priority p.
func (l *Lanes) Len(p job.Priority) int {
	return len(l.lanes[p.Rank()])
}

// Total returns the number of IDs across all lanes.
func (l *Lanes) Total() int {
	return len(l.index)
}

// Clear empties every lane.
func (l *Lanes) Clear() {
	for i := range l.lanes {
		l.lanes[i] = nil
	}
	clear(l.index)
}

// Pop scans high, then normal, then low, oldest first, and offers each ID to
// verdict. The first ID with a Take verdict is removed and returned. Evicted
// IDs are removed along the way; kept IDs stay in place.
func (l *Lanes) Pop(verdict func(id.JobID) Verdict) (id.JobID, bool) {
	for r := range l.lanes {
		lane := l.lanes[r]
		kept := lane[:0]
		var (
			taken id.JobID
			found bool
		)
		for i, jobID := range lane {
			if found {
				kept = append(kept, lane[i:]...)
				break
			}
			switch verdict(jobID) {
			case Take:
				taken, found = jobID, true
				delete(l.index, jobID.String())
			case Evict:
				delete(l.index, jobID.String())
			default:
				kept = append(kept, jobID)
			}
		}
		clear(lane[len(kept):])
		l.lanes[r] = kept
		if found {
			return taken, true
		}
	}
	return id.JobID{}, false
}
