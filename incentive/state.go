package incentive

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/oasisprotocol/oasis-core/go/common/quantity"

	"github.com/verilayer/verilayer/deposit"
	"github.com/verilayer/verilayer/events"
	"github.com/verilayer/verilayer/storage/kvstore"
)

var (
	accountPrefix   = []byte("acct/")
	taskPrefix      = []byte("task/")
	nextTaskIDKey   = kvstore.Key("meta/next_task_id")
	nextEventSeqKey = kvstore.Key("meta/next_event_seq")
)

func accountKey(addr ethCommon.Address) kvstore.Key {
	return append(append(kvstore.Key{}, accountPrefix...), addr.Bytes()...)
}

func taskKey(id uint64) kvstore.Key {
	return binary.BigEndian.AppendUint64(append(kvstore.Key{}, taskPrefix...), id)
}

// transfer is a substrate value transfer made by a transaction, kept so it
// can be reversed if the transaction fails.
type transfer struct {
	from, to ethCommon.Address
	amount   quantity.Quantity
}

// txn is a copy-on-write overlay over the durable store. Operations read
// and modify records through it; nothing reaches the store or the event log
// until commit.
type txn struct {
	ctx    context.Context
	layer  *Layer
	height uint64

	accounts      map[ethCommon.Address]*deposit.Account
	dirtyAccounts map[ethCommon.Address]struct{}
	tasks         map[uint64]*Task
	dirtyTasks    map[uint64]struct{}
	nextTaskID    *uint64

	events      []events.Event
	transfers   []transfer
	transitions []State
	finalized   []string

	ledger *deposit.Ledger
}

var (
	_ deposit.AccountStore = (*txn)(nil)
	_ deposit.Settlements  = (*txn)(nil)
)

func newTxn(ctx context.Context, layer *Layer, height uint64) *txn {
	tx := &txn{
		ctx:           ctx,
		layer:         layer,
		height:        height,
		accounts:      map[ethCommon.Address]*deposit.Account{},
		dirtyAccounts: map[ethCommon.Address]struct{}{},
		tasks:         map[uint64]*Task{},
		dirtyTasks:    map[uint64]struct{}{},
	}
	tx.ledger = deposit.NewLedger(tx, tx)
	return tx
}

// Account implements deposit.AccountStore.
func (tx *txn) Account(addr ethCommon.Address) (*deposit.Account, error) {
	if acct, ok := tx.accounts[addr]; ok {
		return acct, nil
	}
	acct := deposit.NewAccount(addr)
	switch err := kvstore.GetTyped(tx.layer.store, accountKey(addr), acct); {
	case errors.Is(err, kvstore.ErrNoSuchKey):
		acct = deposit.NewAccount(addr)
	case err != nil:
		return nil, fmt.Errorf("load account %s: %w", addr.Hex(), err)
	}
	if acct.Bonded == nil {
		acct.Bonded = map[uint64]quantity.Quantity{}
	}
	tx.accounts[addr] = acct
	return acct, nil
}

// PutAccount implements deposit.AccountStore.
func (tx *txn) PutAccount(acct *deposit.Account) error {
	tx.accounts[acct.Address] = acct
	tx.dirtyAccounts[acct.Address] = struct{}{}
	return nil
}

// Payout implements deposit.Settlements.
func (tx *txn) Payout(taskID uint64, addr ethCommon.Address) (quantity.Quantity, error) {
	t, err := tx.task(taskID)
	if err != nil {
		return quantity.Quantity{}, err
	}
	if t.Finality == Unresolved {
		return quantity.Quantity{}, fmt.Errorf("task %d: %w", taskID, ErrTaskNotTerminal)
	}
	return t.PayoutOf(addr), nil
}

func (tx *txn) task(id uint64) (*Task, error) {
	if t, ok := tx.tasks[id]; ok {
		return t, nil
	}
	var t Task
	switch err := kvstore.GetTyped(tx.layer.store, taskKey(id), &t); {
	case errors.Is(err, kvstore.ErrNoSuchKey):
		return nil, fmt.Errorf("task %d: %w", id, ErrTaskNotFound)
	case err != nil:
		return nil, fmt.Errorf("load task %d: %w", id, err)
	}
	tx.tasks[id] = &t
	return &t, nil
}

func (tx *txn) putTask(t *Task) {
	tx.tasks[t.ID] = t
	tx.dirtyTasks[t.ID] = struct{}{}
}

func (tx *txn) loadNextTaskID() (uint64, error) {
	if tx.nextTaskID != nil {
		return *tx.nextTaskID, nil
	}
	var next uint64
	if err := kvstore.GetTyped(tx.layer.store, nextTaskIDKey, &next); err != nil && !errors.Is(err, kvstore.ErrNoSuchKey) {
		return 0, fmt.Errorf("load next task id: %w", err)
	}
	tx.nextTaskID = &next
	return next, nil
}

func (tx *txn) allocTaskID() (uint64, error) {
	id, err := tx.loadNextTaskID()
	if err != nil {
		return 0, err
	}
	*tx.nextTaskID = id + 1
	return id, nil
}

// transition moves the task into state and restarts its deadline.
func (tx *txn) transition(t *Task, state State) {
	t.State = state
	t.LastTransition = tx.height
	tx.transitions = append(tx.transitions, state)
	tx.putTask(t)
}

func (tx *txn) emit(ev events.Event) {
	ev.Height = tx.height
	tx.events = append(tx.events, ev)
}

// transferValue moves value on the substrate and remembers the transfer for rollback.
func (tx *txn) transferValue(from, to ethCommon.Address, amount quantity.Quantity) error {
	if amount.IsZero() {
		return nil
	}
	if err := tx.layer.substrate.TransferValue(tx.ctx, from, to, amount); err != nil {
		return err
	}
	tx.transfers = append(tx.transfers, transfer{from: from, to: to, amount: amount})
	return nil
}

// rollback reverses substrate transfers. The overlay itself is simply dropped.
func (tx *txn) rollback() {
	for i := len(tx.transfers) - 1; i >= 0; i-- {
		tr := tx.transfers[i]
		if err := tx.layer.substrate.TransferValue(context.Background(), tr.to, tr.from, tr.amount); err != nil {
			tx.layer.logger.Error("failed to reverse substrate transfer",
				"from", tr.from.Hex(),
				"to", tr.to.Hex(),
				"amount", tr.amount.String(),
				"err", err,
			)
		}
	}
	tx.transfers = nil
}

// commit writes every modified record to the store and assigns sequence
// numbers to the buffered events, which it returns for publication.
func (tx *txn) commit() ([]events.Event, error) {
	for addr := range tx.dirtyAccounts {
		if err := tx.accounts[addr].Audit(); err != nil {
			return nil, fmt.Errorf("account invariant violated: %w", err)
		}
	}

	var seq uint64
	if len(tx.events) > 0 {
		if err := kvstore.GetTyped(tx.layer.store, nextEventSeqKey, &seq); err != nil && !errors.Is(err, kvstore.ErrNoSuchKey) {
			return nil, fmt.Errorf("load next event seq: %w", err)
		}
		if seq == 0 {
			seq = 1
		}
		for i := range tx.events {
			tx.events[i].Seq = seq
			seq++
		}
	}

	store := tx.layer.store
	for id := range tx.dirtyTasks {
		if err := kvstore.PutTyped(store, taskKey(id), tx.tasks[id]); err != nil {
			return nil, err
		}
	}
	for addr := range tx.dirtyAccounts {
		if err := kvstore.PutTyped(store, accountKey(addr), tx.accounts[addr]); err != nil {
			return nil, err
		}
	}
	if tx.nextTaskID != nil {
		if err := kvstore.PutTyped(store, nextTaskIDKey, *tx.nextTaskID); err != nil {
			return nil, err
		}
	}
	if len(tx.events) > 0 {
		if err := kvstore.PutTyped(store, nextEventSeqKey, seq); err != nil {
			return nil, err
		}
	}
	return tx.events, nil
}
