// Package memchain implements an in-memory substrate with manually mined
// blocks. Used by tests, the simulator, and development deployments.
//
// A chain created with Open keeps its height and wallets in a KVStore, so a
// development node restarted over the same store resumes where it stopped.
package memchain

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/oasisprotocol/oasis-core/go/common/quantity"

	"github.com/verilayer/verilayer/common"
	"github.com/verilayer/verilayer/log"
	"github.com/verilayer/verilayer/storage/kvstore"
	"github.com/verilayer/verilayer/substrate"
)

const moduleName = "memchain"

var stateKey = kvstore.Key("memchain/state")

// wallet is the stored form of one wallet balance.
type wallet struct {
	Address ethCommon.Address `json:"address"`
	Balance quantity.Quantity `json:"balance"`
}

// snapshot is the stored form of the whole chain.
type snapshot struct {
	Height  uint64   `json:"height"`
	Wallets []wallet `json:"wallets"`
}

// Chain is an in-memory substrate.
type Chain struct {
	mu      sync.RWMutex
	height  uint64
	wallets map[ethCommon.Address]quantity.Quantity

	// store is nil for a purely in-memory chain.
	store  kvstore.KVStore
	logger *log.Logger
}

var _ substrate.Substrate = (*Chain)(nil)

// New creates a chain at height 0 with no funded wallets. Its state is lost
// when the process exits.
func New(logger *log.Logger) *Chain {
	return &Chain{
		wallets: map[ethCommon.Address]quantity.Quantity{},
		logger:  logger.WithModule(moduleName),
	}
}

// Open creates a chain persisted in store, resuming from the state stored
// there if any.
func Open(store kvstore.KVStore, logger *log.Logger) (*Chain, error) {
	c := New(logger)
	c.store = store

	var snap snapshot
	switch err := kvstore.GetTyped(store, stateKey, &snap); {
	case errors.Is(err, kvstore.ErrNoSuchKey):
		c.logger.Info("starting new chain")
		return c, nil
	case err != nil:
		return nil, fmt.Errorf("load chain state: %w", err)
	}
	c.height = snap.Height
	for _, w := range snap.Wallets {
		c.wallets[w.Address] = w.Balance
	}
	c.logger.Info("resumed chain", "height", c.height, "wallets", len(c.wallets))
	return c, nil
}

// CurrentHeight implements substrate.Substrate.
func (c *Chain) CurrentHeight(ctx context.Context) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.height, nil
}

// TransferValue implements substrate.Substrate.
func (c *Chain) TransferValue(ctx context.Context, from, to ethCommon.Address, amount quantity.Quantity) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	remaining, err := common.Minus(c.wallets[from], amount)
	if err != nil {
		return fmt.Errorf("transfer %s from %s: %w", amount.String(), from.Hex(), substrate.ErrInsufficientFunds)
	}
	if from == to {
		return nil
	}
	if err = c.apply(c.height, map[ethCommon.Address]quantity.Quantity{
		from: remaining,
		to:   common.Plus(c.wallets[to], amount),
	}); err != nil {
		return fmt.Errorf("transfer %s from %s: %w", amount.String(), from.Hex(), err)
	}
	c.logger.Debug("transfer", "from", from.Hex(), "to", to.Hex(), "amount", amount.String())
	return nil
}

// Advance mines n empty blocks and returns the new height.
func (c *Chain) Advance(n uint64) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.apply(c.height+n, nil); err != nil {
		return c.height, fmt.Errorf("advance: %w", err)
	}
	c.logger.Debug("advanced", "height", c.height)
	return c.height, nil
}

// Fund mints amount into the wallet of addr.
func (c *Chain) Fund(addr ethCommon.Address, amount quantity.Quantity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.apply(c.height, map[ethCommon.Address]quantity.Quantity{
		addr: common.Plus(c.wallets[addr], amount),
	}); err != nil {
		return fmt.Errorf("fund %s: %w", addr.Hex(), err)
	}
	return nil
}

// Balance returns the wallet balance of addr.
func (c *Chain) Balance(addr ethCommon.Address) quantity.Quantity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	balance := c.wallets[addr]
	return *balance.Clone()
}

// apply moves the chain to height with the given wallet balances changed.
// The new state is stored first; on error the chain is left as it was.
// Callers hold c.mu.
func (c *Chain) apply(height uint64, changed map[ethCommon.Address]quantity.Quantity) error {
	if c.store != nil {
		snap := snapshot{Height: height}
		for addr, balance := range c.wallets {
			if _, ok := changed[addr]; !ok {
				snap.Wallets = append(snap.Wallets, wallet{Address: addr, Balance: balance})
			}
		}
		for addr, balance := range changed {
			snap.Wallets = append(snap.Wallets, wallet{Address: addr, Balance: balance})
		}
		if err := kvstore.PutTyped(c.store, stateKey, snap); err != nil {
			return err
		}
	}
	c.height = height
	for addr, balance := range changed {
		c.wallets[addr] = balance
	}
	return nil
}
