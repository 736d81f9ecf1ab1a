package events

import (
	"sort"
	"sync"
)

// MemoryLog is an in-memory event log. Events are only dropped by Prune,
// once every durable sink holds them.
type MemoryLog struct {
	mu     sync.RWMutex
	events []Event

	// pruned is the highest sequence number no longer held.
	pruned uint64
	last   uint64
}

var _ Log = (*MemoryLog)(nil)

// NewMemoryLog returns an empty log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

// Append implements Log.
func (l *MemoryLog) Append(events []Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, events...)
	if n := len(l.events); n > 0 {
		l.last = l.events[n-1].Seq
	}
}

// Since returns up to limit events with a sequence number greater than seq.
// A limit of 0 means no limit.
func (l *MemoryLog) Since(seq uint64, limit int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i := sort.Search(len(l.events), func(i int) bool { return l.events[i].Seq > seq })
	end := len(l.events)
	if limit > 0 && i+limit < end {
		end = i + limit
	}
	return append([]Event(nil), l.events[i:end]...)
}

// ForTask returns all events about the given task, in order.
func (l *MemoryLog) ForTask(taskID uint64) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Event
	for _, ev := range l.events {
		if ev.TaskID == taskID && isTaskEvent(ev.Kind) {
			out = append(out, ev)
		}
	}
	return out
}

// Len returns the number of events in the log.
func (l *MemoryLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// LastSeq returns the sequence number of the newest event ever appended,
// including pruned ones.
func (l *MemoryLog) LastSeq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.last
}

// Pruned returns the highest sequence number dropped by Prune. Since is
// complete for any seq at or above it.
func (l *MemoryLog) Pruned() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pruned
}

// Prune drops events with a sequence number up to and including upTo, but
// always keeps the newest keep events. It returns how many were dropped.
func (l *MemoryLog) Prune(upTo uint64, keep int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := sort.Search(len(l.events), func(i int) bool { return l.events[i].Seq > upTo })
	if limit := len(l.events) - keep; n > limit {
		n = limit
	}
	if n <= 0 {
		return 0
	}
	l.pruned = l.events[n-1].Seq
	// Copy so the dropped prefix can be collected.
	l.events = append([]Event(nil), l.events[n:]...)
	return n
}

func isTaskEvent(k Kind) bool {
	return k != DepositMade && k != DepositWithdrawn
}
