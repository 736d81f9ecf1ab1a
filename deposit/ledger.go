// Package deposit implements the deposit ledger: per-account free balances
// and task-scoped bonds.
package deposit

import (
	"errors"
	"fmt"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/oasisprotocol/oasis-core/go/common/quantity"

	"github.com/verilayer/verilayer/common"
)

var (
	// ErrInsufficientBalance is returned when the free balance does not cover an amount.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrNoBondToRelease is returned when unbonding without a bond record.
	ErrNoBondToRelease = errors.New("no bond to release")
	// ErrTaskNotTerminal is returned when unbonding from a task that is not settled yet.
	ErrTaskNotTerminal = errors.New("task not terminal")
	// ErrInvalidAmount is returned for zero deposits and withdrawals.
	ErrInvalidAmount = errors.New("invalid amount")
)

// AccountStore loads and stores account records.
type AccountStore interface {
	// Account returns the record of addr, or a new empty record if there is none.
	// The returned record may be modified and passed to PutAccount.
	Account(addr ethCommon.Address) (*Account, error)
	PutAccount(acct *Account) error
}

// Settlements reports how much of a bond is paid out once a task is settled.
type Settlements interface {
	// Payout returns the amount owed to addr for its bond on the task, or
	// ErrTaskNotTerminal if the task is not settled yet.
	Payout(taskID uint64, addr ethCommon.Address) (quantity.Quantity, error)
}

// Ledger moves value between free balances and task bonds.
type Ledger struct {
	store       AccountStore
	settlements Settlements
}

// NewLedger creates a ledger over the given store.
func NewLedger(store AccountStore, settlements Settlements) *Ledger {
	return &Ledger{
		store:       store,
		settlements: settlements,
	}
}

func (l *Ledger) update(addr ethCommon.Address, fn func(acct *Account) error) error {
	acct, err := l.store.Account(addr)
	if err != nil {
		return err
	}
	if acct.Bonded == nil {
		acct.Bonded = map[uint64]quantity.Quantity{}
	}
	if err = fn(acct); err != nil {
		return err
	}
	return l.store.PutAccount(acct)
}

// Deposit increases the free balance of addr.
func (l *Ledger) Deposit(addr ethCommon.Address, amount quantity.Quantity) error {
	if amount.IsZero() {
		return fmt.Errorf("deposit: %w", ErrInvalidAmount)
	}
	return l.update(addr, func(acct *Account) error {
		acct.Free = common.Plus(acct.Free, amount)
		acct.Deposited = common.Plus(acct.Deposited, amount)
		return nil
	})
}

// Withdraw decreases the free balance of addr.
func (l *Ledger) Withdraw(addr ethCommon.Address, amount quantity.Quantity) error {
	if amount.IsZero() {
		return fmt.Errorf("withdraw: %w", ErrInvalidAmount)
	}
	return l.update(addr, func(acct *Account) error {
		free, err := common.Minus(acct.Free, amount)
		if err != nil {
			return fmt.Errorf("withdraw %s with free balance %s: %w", amount.String(), acct.Free.String(), ErrInsufficientBalance)
		}
		acct.Free = free
		acct.Withdrawn = common.Plus(acct.Withdrawn, amount)
		return nil
	})
}

// Credit pays a settlement amount, e.g. a task reward, into the free balance of addr.
func (l *Ledger) Credit(addr ethCommon.Address, amount quantity.Quantity) error {
	return l.update(addr, func(acct *Account) error {
		acct.Free = common.Plus(acct.Free, amount)
		acct.Credited = common.Plus(acct.Credited, amount)
		return nil
	})
}

// Bond moves amount from the free balance of addr into its bond on the task.
// Bonding twice for the same task adds to the bond.
func (l *Ledger) Bond(addr ethCommon.Address, taskID uint64, amount quantity.Quantity) error {
	return l.update(addr, func(acct *Account) error {
		free, err := common.Minus(acct.Free, amount)
		if err != nil {
			return fmt.Errorf("bond %s with free balance %s: %w", amount.String(), acct.Free.String(), ErrInsufficientBalance)
		}
		acct.Free = free
		acct.Bonded[taskID] = common.Plus(acct.Bonded[taskID], amount)
		return nil
	})
}

// Unbond releases the bond of addr on a settled task. The released amount is
// the settlement payout, which may be more or less than the bond, and is
// credited to the free balance. The bond record is removed, so a second
// call fails with ErrNoBondToRelease.
func (l *Ledger) Unbond(addr ethCommon.Address, taskID uint64) (quantity.Quantity, error) {
	var released quantity.Quantity
	err := l.update(addr, func(acct *Account) error {
		bond, ok := acct.Bonded[taskID]
		if !ok {
			return ErrNoBondToRelease
		}
		payout, err := l.settlements.Payout(taskID, addr)
		if err != nil {
			return err
		}

		switch {
		case payout.Cmp(&bond) > 0:
			gain, _ := common.Minus(payout, bond)
			acct.Credited = common.Plus(acct.Credited, gain)
		case payout.Cmp(&bond) < 0:
			loss, _ := common.Minus(bond, payout)
			acct.Forfeited = common.Plus(acct.Forfeited, loss)
		}
		acct.Free = common.Plus(acct.Free, payout)
		delete(acct.Bonded, taskID)
		released = payout
		return nil
	})
	if err != nil {
		return quantity.Quantity{}, err
	}
	return released, nil
}

// BalanceOf returns the free balance of addr.
func (l *Ledger) BalanceOf(addr ethCommon.Address) (quantity.Quantity, error) {
	acct, err := l.store.Account(addr)
	if err != nil {
		return quantity.Quantity{}, err
	}
	return *acct.Free.Clone(), nil
}

// BondedOf returns the bond of addr on the task, zero if there is none.
func (l *Ledger) BondedOf(addr ethCommon.Address, taskID uint64) (quantity.Quantity, error) {
	acct, err := l.store.Account(addr)
	if err != nil {
		return quantity.Quantity{}, err
	}
	bond := acct.Bonded[taskID]
	return *bond.Clone(), nil
}
