package common

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/oasisprotocol/oasis-core/go/common/quantity"
)

// ErrNegativeAmount is returned when a subtraction would drop below zero.
var ErrNegativeAmount = errors.New("amount would become negative")

// Amount returns a quantity holding n.
func Amount(n uint64) quantity.Quantity {
	return *quantity.NewFromUint64(n)
}

// Plus returns a + b without modifying either operand.
func Plus(a, b quantity.Quantity) quantity.Quantity {
	sum := a.Clone()
	// Adding two valid quantities cannot fail.
	_ = sum.Add(&b)
	return *sum
}

// Minus returns a - b without modifying either operand.
func Minus(a, b quantity.Quantity) (quantity.Quantity, error) {
	if a.Cmp(&b) < 0 {
		return quantity.Quantity{}, fmt.Errorf("%s - %s: %w", a.String(), b.String(), ErrNegativeAmount)
	}
	diff := a.Clone()
	if err := diff.Sub(&b); err != nil {
		return quantity.Quantity{}, err
	}
	return *diff, nil
}

// Sum returns the total of all amounts.
func Sum(amounts ...quantity.Quantity) quantity.Quantity {
	total := *quantity.NewQuantity()
	for _, a := range amounts {
		total = Plus(total, a)
	}
	return total
}

// Equal reports whether a and b hold the same value.
func Equal(a, b quantity.Quantity) bool {
	return a.Cmp(&b) == 0
}

// SplitEvenly divides total into n shares. The remainder of the integer
// division is added to the first share, so the shares always sum to total.
func SplitEvenly(total quantity.Quantity, n int) []quantity.Quantity {
	if n <= 0 {
		return nil
	}
	count := big.NewInt(int64(n))
	share, rem := new(big.Int).QuoRem(total.ToBigInt(), count, new(big.Int))

	shares := make([]quantity.Quantity, n)
	for i := range shares {
		v := new(big.Int).Set(share)
		if i == 0 {
			v.Add(v, rem)
		}
		var q quantity.Quantity
		// share and rem are non-negative.
		_ = q.FromBigInt(v)
		shares[i] = q
	}
	return shares
}
