package incentive

import (
	"context"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/oasisprotocol/oasis-core/go/common/quantity"

	"github.com/verilayer/verilayer/deposit"
)

// Task returns a copy of the task.
func (l *Layer) Task(ctx context.Context, taskID uint64) (*Task, error) {
	var out *Task
	err := l.view(ctx, func(tx *txn) error {
		t, err := tx.task(taskID)
		if err != nil {
			return err
		}
		out = t.Clone()
		return nil
	})
	return out, err
}

// Tasks returns copies of up to limit tasks starting at id offset.
func (l *Layer) Tasks(ctx context.Context, offset, limit uint64) ([]*Task, error) {
	var out []*Task
	err := l.view(ctx, func(tx *txn) error {
		next, err := tx.loadNextTaskID()
		if err != nil {
			return err
		}
		for id := offset; id < next && uint64(len(out)) < limit; id++ {
			t, err := tx.task(id)
			if err != nil {
				return err
			}
			out = append(out, t.Clone())
		}
		return nil
	})
	return out, err
}

// TaskFinality returns the settlement status of the task.
func (l *Layer) TaskFinality(ctx context.Context, taskID uint64) (Finality, error) {
	var f Finality
	err := l.view(ctx, func(tx *txn) error {
		t, err := tx.task(taskID)
		if err != nil {
			return err
		}
		f = t.Finality
		return nil
	})
	return f, err
}

// Balance returns the free balance of addr.
func (l *Layer) Balance(ctx context.Context, addr ethCommon.Address) (quantity.Quantity, error) {
	var free quantity.Quantity
	err := l.view(ctx, func(tx *txn) error {
		var err error
		free, err = tx.ledger.BalanceOf(addr)
		return err
	})
	return free, err
}

// BondedDeposit returns the bond of addr on the task.
func (l *Layer) BondedDeposit(ctx context.Context, addr ethCommon.Address, taskID uint64) (quantity.Quantity, error) {
	var bonded quantity.Quantity
	err := l.view(ctx, func(tx *txn) error {
		var err error
		bonded, err = tx.ledger.BondedOf(addr, taskID)
		return err
	})
	return bonded, err
}

// Account returns a copy of the full ledger record of addr.
func (l *Layer) Account(ctx context.Context, addr ethCommon.Address) (*deposit.Account, error) {
	var out *deposit.Account
	err := l.view(ctx, func(tx *txn) error {
		acct, err := tx.Account(addr)
		if err != nil {
			return err
		}
		out = acct.Clone()
		return nil
	})
	return out, err
}

// Height returns the current substrate height.
func (l *Layer) Height(ctx context.Context) (uint64, error) {
	return l.substrate.CurrentHeight(ctx)
}
