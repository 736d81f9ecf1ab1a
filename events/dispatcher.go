package events

import (
	"context"
	"time"

	"github.com/verilayer/verilayer/log"
)

const (
	moduleName = "events"

	// DefaultBatchSize is how many events are handed to a sink at once.
	DefaultBatchSize = 256

	retryInterval = time.Second
)

// Sink durably stores events, e.g. in a database. Writes must be idempotent
// per sequence number: after a failure the same events are written again.
type Sink interface {
	Name() string
	Write(ctx context.Context, events []Event) error
}

// Dispatcher appends events to an in-memory log and forwards them, in
// order, to a set of sinks in the background. A slow or failing sink never
// blocks Append; it catches up from the in-memory log once it recovers.
// Events every sink has stored are pruned from the log, keeping the newest
// retain of them.
type Dispatcher struct {
	log       *MemoryLog
	sinks     []Sink
	batchSize int
	retain    int
	notify    chan struct{}
	logger    *log.Logger
}

var _ Log = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher over memLog. A non-positive batchSize
// selects DefaultBatchSize. A non-positive retain disables pruning.
func NewDispatcher(memLog *MemoryLog, sinks []Sink, batchSize, retain int, logger *log.Logger) *Dispatcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Dispatcher{
		log:       memLog,
		sinks:     sinks,
		batchSize: batchSize,
		retain:    retain,
		notify:    make(chan struct{}, 1),
		logger:    logger.WithModule(moduleName),
	}
}

// Append implements Log.
func (d *Dispatcher) Append(events []Event) {
	d.log.Append(events)
	select {
	case d.notify <- struct{}{}:
	default:
		// A wakeup is already pending.
	}
}

// Log returns the underlying in-memory log.
func (d *Dispatcher) Log() *MemoryLog {
	return d.log
}

// Run forwards events to the sinks until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) error {
	cursors := make([]uint64, len(d.sinks))
	retry := time.NewTicker(retryInterval)
	defer retry.Stop()

	for {
		d.flush(ctx, cursors)
		d.prune(cursors)
		select {
		case <-ctx.Done():
			d.logger.Info("stopping event dispatcher", "pending", d.pending(cursors))
			return nil
		case <-d.notify:
		case <-retry.C:
		}
	}
}

// flush drains the log into each sink until it is caught up or fails.
func (d *Dispatcher) flush(ctx context.Context, cursors []uint64) {
	for i, sink := range d.sinks {
		for {
			batch := d.log.Since(cursors[i], d.batchSize)
			if len(batch) == 0 {
				break
			}
			if err := sink.Write(ctx, batch); err != nil {
				d.logger.Error("failed to write events to sink",
					"sink", sink.Name(),
					"from_seq", batch[0].Seq,
					"count", len(batch),
					"err", err,
				)
				break
			}
			cursors[i] = batch[len(batch)-1].Seq
		}
	}
}

// prune drops events below the slowest sink's cursor.
func (d *Dispatcher) prune(cursors []uint64) {
	if d.retain <= 0 || len(cursors) == 0 {
		return
	}
	low := cursors[0]
	for _, c := range cursors[1:] {
		if c < low {
			low = c
		}
	}
	if n := d.log.Prune(low, d.retain); n > 0 {
		d.logger.Debug("pruned stored events", "count", n, "up_to", d.log.Pruned())
	}
}

func (d *Dispatcher) pending(cursors []uint64) int {
	n := 0
	for _, c := range cursors {
		n += len(d.log.Since(c, 0))
	}
	return n
}
