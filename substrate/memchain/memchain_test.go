package memchain

import (
	"context"
	"testing"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/verilayer/verilayer/common"
	"github.com/verilayer/verilayer/log"
	"github.com/verilayer/verilayer/storage/kvstore"
	"github.com/verilayer/verilayer/substrate"
)

var (
	alice = ethCommon.HexToAddress("0xa1")
	bob   = ethCommon.HexToAddress("0xb0b")
)

func TestChain(t *testing.T) {
	ctx := context.Background()
	chain := New(log.NewDefaultLogger("memchain-test"))

	height, err := chain.CurrentHeight(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(0), height)
	height, err = chain.Advance(5)
	require.NoError(t, err)
	require.Equal(t, uint64(5), height)

	require.NoError(t, chain.Fund(alice, common.Amount(100)))
	require.NoError(t, chain.TransferValue(ctx, alice, bob, common.Amount(60)))
	requireBalance(t, chain, alice, 40)
	requireBalance(t, chain, bob, 60)

	err = chain.TransferValue(ctx, alice, bob, common.Amount(41))
	require.ErrorIs(t, err, substrate.ErrInsufficientFunds)
	requireBalance(t, chain, alice, 40)

	require.NoError(t, chain.TransferValue(ctx, alice, alice, common.Amount(40)))
	requireBalance(t, chain, alice, 40)
}

func TestChainResumesFromStore(t *testing.T) {
	ctx := context.Background()
	logger := log.NewDefaultLogger("memchain-test")
	path := t.TempDir()

	store, err := kvstore.OpenKVStore(logger, path, nil)
	require.NoError(t, err)
	chain, err := Open(store, logger)
	require.NoError(t, err)
	require.NoError(t, chain.Fund(alice, common.Amount(100)))
	require.NoError(t, chain.TransferValue(ctx, alice, bob, common.Amount(30)))
	_, err = chain.Advance(7)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = kvstore.OpenKVStore(logger, path, nil)
	require.NoError(t, err)
	defer store.Close()
	resumed, err := Open(store, logger)
	require.NoError(t, err)

	height, err := resumed.CurrentHeight(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(7), height)
	requireBalance(t, resumed, alice, 70)
	requireBalance(t, resumed, bob, 30)
	require.NoError(t, resumed.TransferValue(ctx, bob, alice, common.Amount(30)))
}

func TestFreshStoreStartsEmpty(t *testing.T) {
	chain, err := Open(kvstore.NewMemoryKVStore(), log.NewDefaultLogger("memchain-test"))
	require.NoError(t, err)
	height, err := chain.CurrentHeight(context.Background())
	require.NoError(t, err)
	require.Zero(t, height)
	requireBalance(t, chain, alice, 0)
}

func requireBalance(t *testing.T, chain *Chain, addr ethCommon.Address, want uint64) {
	t.Helper()
	require.True(t, common.Equal(common.Amount(want), chain.Balance(addr)), "balance of %s", addr.Hex())
}
