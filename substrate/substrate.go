// Package substrate defines what the incentive layer needs from the
// underlying ledger: a monotonic block height and value transfers between
// accounts.
package substrate

import (
	"context"
	"errors"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/oasisprotocol/oasis-core/go/common/quantity"
)

// ErrInsufficientFunds is returned when a transfer exceeds the sender's wallet.
var ErrInsufficientFunds = errors.New("insufficient funds on substrate")

// Substrate is the ledger the incentive layer runs on.
type Substrate interface {
	// CurrentHeight returns the latest block height. Heights never decrease.
	CurrentHeight(ctx context.Context) (uint64, error)

	// TransferValue moves amount from one substrate account to another.
	TransferValue(ctx context.Context, from, to ethCommon.Address, amount quantity.Quantity) error
}
