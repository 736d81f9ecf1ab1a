package deposit

import (
	"fmt"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/oasisprotocol/oasis-core/go/common/quantity"

	"github.com/verilayer/verilayer/common"
)

// Account is the ledger record of one identity.
//
// Free and Bonded hold the spendable and task-scoped balances. The remaining
// fields are running totals used to audit the record:
//
//	Free + ΣBonded == Deposited − Withdrawn + Credited − Forfeited
type Account struct {
	Address ethCommon.Address
	Free    quantity.Quantity
	Bonded  map[uint64]quantity.Quantity

	Deposited quantity.Quantity
	Withdrawn quantity.Quantity
	// Credited counts rewards and forfeited bonds of other parties paid to this account.
	Credited quantity.Quantity
	// Forfeited counts the parts of this account's bonds that were not returned.
	Forfeited quantity.Quantity
}

// NewAccount returns an empty account.
func NewAccount(addr ethCommon.Address) *Account {
	return &Account{
		Address: addr,
		Bonded:  map[uint64]quantity.Quantity{},
	}
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	c := &Account{
		Address:   a.Address,
		Free:      *a.Free.Clone(),
		Bonded:    make(map[uint64]quantity.Quantity, len(a.Bonded)),
		Deposited: *a.Deposited.Clone(),
		Withdrawn: *a.Withdrawn.Clone(),
		Credited:  *a.Credited.Clone(),
		Forfeited: *a.Forfeited.Clone(),
	}
	for id, b := range a.Bonded {
		c.Bonded[id] = *b.Clone()
	}
	return c
}

// TotalBonded returns the sum of all task bonds of the account.
func (a *Account) TotalBonded() quantity.Quantity {
	total := *quantity.NewQuantity()
	for _, b := range a.Bonded {
		total = common.Plus(total, b)
	}
	return total
}

// Audit checks the balance invariant of the account.
func (a *Account) Audit() error {
	held := common.Plus(a.Free, a.TotalBonded())
	inflow := common.Plus(a.Deposited, a.Credited)
	outflow := common.Plus(a.Withdrawn, a.Forfeited)
	expected, err := common.Minus(inflow, outflow)
	if err != nil {
		return fmt.Errorf("account %s: outflow %s exceeds inflow %s", a.Address.Hex(), outflow.String(), inflow.String())
	}
	if !common.Equal(held, expected) {
		return fmt.Errorf("account %s: holds %s, expected %s", a.Address.Hex(), held.String(), expected.String())
	}
	return nil
}
