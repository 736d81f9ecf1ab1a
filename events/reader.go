package events

import (
	"context"
	"fmt"
)

// Archive is a durable sink that can also be read back. It serves the
// events the in-memory log has already pruned.
type Archive interface {
	Since(ctx context.Context, seq uint64, limit int) ([]Event, error)
	ForTask(ctx context.Context, taskID uint64) ([]Event, error)
}

// Reader serves event queries from the in-memory log, falling back to an
// archive for pruned history.
type Reader struct {
	log     *MemoryLog
	archive Archive
}

// NewReader creates a reader over memLog. archive may be nil when the log is
// never pruned.
func NewReader(memLog *MemoryLog, archive Archive) *Reader {
	return &Reader{log: memLog, archive: archive}
}

// LastSeq returns the sequence number of the newest event.
func (r *Reader) LastSeq() uint64 {
	return r.log.LastSeq()
}

// Since returns up to limit events with a sequence number greater than seq.
// A limit of 0 means no limit.
func (r *Reader) Since(ctx context.Context, seq uint64, limit int) ([]Event, error) {
	if r.archive == nil || seq >= r.log.Pruned() {
		return r.log.Since(seq, limit), nil
	}
	out, err := r.archive.Since(ctx, seq, limit)
	if err != nil {
		return nil, fmt.Errorf("archived events: %w", err)
	}
	if limit > 0 && len(out) >= limit {
		return out, nil
	}
	next, rest := seq, 0
	if len(out) > 0 {
		next = out[len(out)-1].Seq
	}
	if limit > 0 {
		rest = limit - len(out)
	}
	return append(out, r.log.Since(next, rest)...), nil
}

// ForTask returns all events about the given task, in order.
func (r *Reader) ForTask(ctx context.Context, taskID uint64) ([]Event, error) {
	if r.archive == nil || r.log.Pruned() == 0 {
		return r.log.ForTask(taskID), nil
	}
	out, err := r.archive.ForTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("archived task events: %w", err)
	}
	var last uint64
	if len(out) > 0 {
		last = out[len(out)-1].Seq
	}
	for _, ev := range r.log.ForTask(taskID) {
		if ev.Seq > last {
			out = append(out, ev)
		}
	}
	return out, nil
}
