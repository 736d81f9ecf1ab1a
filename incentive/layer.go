// Package incentive implements the bonded incentive layer for outsourced
// computation: the task state machine, the trigger for verification games
// and the settlement of bonds and rewards.
//
// All operations go through a Layer, which executes them one at a time. Each
// operation is atomic: it either commits every change it made, or none.
package incentive

import (
	"context"
	"fmt"
	"sync"

	ethCommon "github.com/ethereum/go-ethereum/common"

	"github.com/verilayer/verilayer/config"
	"github.com/verilayer/verilayer/events"
	"github.com/verilayer/verilayer/log"
	"github.com/verilayer/verilayer/metrics"
	"github.com/verilayer/verilayer/storage/kvstore"
	"github.com/verilayer/verilayer/substrate"
	"github.com/verilayer/verilayer/verification"
)

const moduleName = "incentive"

// Options are the protocol parameters of a Layer.
type Options struct {
	// Custody is the substrate account holding deposits and escrowed rewards.
	Custody ethCommon.Address
	// GraceBlocks is how long after the deadline of a disputed task only its
	// owner may finalize it.
	GraceBlocks uint64
}

// OptionsFromConfig derives layer options from the protocol configuration.
func OptionsFromConfig(cfg *config.ProtocolConfig) Options {
	return Options{
		Custody:     cfg.CustodyAddress(),
		GraceBlocks: cfg.Grace(),
	}
}

// Layer is the single serializer of the incentive protocol.
type Layer struct {
	mu sync.Mutex

	store     kvstore.KVStore
	substrate substrate.Substrate
	game      verification.Game
	events    events.Log
	opts      Options

	metrics metrics.ProtocolMetrics
	logger  *log.Logger
}

// NewLayer creates a layer over the given collaborators.
func NewLayer(store kvstore.KVStore, sub substrate.Substrate, game verification.Game, evLog events.Log, opts Options, logger *log.Logger) *Layer {
	return &Layer{
		store:     store,
		substrate: sub,
		game:      game,
		events:    evLog,
		opts:      opts,
		metrics:   metrics.NewDefaultProtocolMetrics(),
		logger:    logger.WithModule(moduleName),
	}
}

// Custody returns the substrate account holding escrowed value.
func (l *Layer) Custody() ethCommon.Address {
	return l.opts.Custody
}

func (l *Layer) begin(ctx context.Context) (*txn, error) {
	height, err := l.substrate.CurrentHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("current height: %w", err)
	}
	l.metrics.ObserveHeight(height)
	return newTxn(ctx, l, height), nil
}

// update runs fn in a transaction and commits it if fn succeeds.
func (l *Layer) update(ctx context.Context, op string, fn func(tx *txn) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.begin(ctx)
	if err != nil {
		return err
	}
	var committed []events.Event
	if err = fn(tx); err == nil {
		committed, err = tx.commit()
	}
	if err != nil {
		tx.rollback()
		l.metrics.Operations(op, "failure").Inc()
		l.logger.Debug("operation failed", "op", op, "height", tx.height, "err", err)
		return err
	}

	if len(committed) > 0 {
		l.events.Append(committed)
	}
	for _, s := range tx.transitions {
		l.metrics.Transitions(s.String()).Inc()
	}
	for _, r := range tx.finalized {
		l.metrics.Finalizations(r).Inc()
	}
	l.metrics.Operations(op, "success").Inc()
	return nil
}

// view runs fn in a transaction that is always discarded.
func (l *Layer) view(ctx context.Context, fn func(tx *txn) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.begin(ctx)
	if err != nil {
		return err
	}
	return fn(tx)
}
