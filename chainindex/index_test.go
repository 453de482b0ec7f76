package chainindex_test

import (
	"bytes"
	"context"
	"math/big"
	"testing"

	"github.com/coreledger/chaincore/chainindex"
	"github.com/coreledger/chaincore/errors"
	"github.com/coreledger/chaincore/model"
	"github.com/coreledger/chaincore/storage"
	"github.com/coreledger/chaincore/ulogger"
	"github.com/stretchr/testify/require"
)

func newIndex(t *testing.T) (*chainindex.Index, *model.ChainedHeader) {
	t.Helper()
	logger := ulogger.New("test", ulogger.WithWriter(&bytes.Buffer{}))
	backend := storage.NewMemoryBackend()

	genesisHeader := &model.BlockHeader{Version: 1, Bits: 0x207fffff}
	idx, err := chainindex.New(logger, backend.OpenHeaderIndex(), genesisHeader, nil)
	require.NoError(t, err)

	genesis, ok := idx.Get(context.Background(), idx.GenesisHash())
	require.True(t, ok)
	return idx, genesis
}

func TestInsertRejectsUnknownParent(t *testing.T) {
	idx, _ := newIndex(t)
	orphan := &model.BlockHeader{Version: 1, PreviousHash: model.Hash{0xff}, Bits: 0x207fffff}

	_, err := idx.Insert(context.Background(), orphan)
	require.ErrorIs(t, err, errors.ErrUnknownParent)
}

func TestInsertIsIdempotentForSameHeader(t *testing.T) {
	idx, genesis := newIndex(t)
	h1 := &model.BlockHeader{Version: 1, PreviousHash: genesis.Hash, Bits: 0x207fffff, Nonce: 1}

	ctx := context.Background()
	first, err := idx.Insert(ctx, h1)
	require.NoError(t, err)

	second, err := idx.Insert(ctx, h1)
	require.NoError(t, err)
	require.Equal(t, first.Hash, second.Hash)
	require.Equal(t, first.Height, second.Height)
}

func TestInsertAccumulatesHeightAndTotalWork(t *testing.T) {
	idx, genesis := newIndex(t)
	ctx := context.Background()

	h1 := &model.BlockHeader{Version: 1, PreviousHash: genesis.Hash, Bits: 0x207fffff, Nonce: 1}
	c1, err := idx.Insert(ctx, h1)
	require.NoError(t, err)
	require.Equal(t, uint32(1), c1.Height)
	delta := new(big.Int).Sub(c1.TotalWork, genesis.TotalWork)
	require.Equal(t, 0, delta.Cmp(model.WorkFromBits(h1.Bits)))

	h2 := &model.BlockHeader{Version: 1, PreviousHash: c1.Hash, Bits: 0x207fffff, Nonce: 2}
	c2, err := idx.Insert(ctx, h2)
	require.NoError(t, err)
	require.Equal(t, uint32(2), c2.Height)
}

func TestFindCommonAncestorAcrossAFork(t *testing.T) {
	idx, genesis := newIndex(t)
	ctx := context.Background()

	a1, err := idx.Insert(ctx, &model.BlockHeader{Version: 1, PreviousHash: genesis.Hash, Bits: 0x207fffff, Nonce: 1})
	require.NoError(t, err)
	a2, err := idx.Insert(ctx, &model.BlockHeader{Version: 1, PreviousHash: a1.Hash, Bits: 0x207fffff, Nonce: 2})
	require.NoError(t, err)

	b1, err := idx.Insert(ctx, &model.BlockHeader{Version: 1, PreviousHash: genesis.Hash, Bits: 0x207fffff, Nonce: 101})
	require.NoError(t, err)

	ancestor, err := idx.FindCommonAncestor(ctx, a2.Hash, b1.Hash)
	require.NoError(t, err)
	require.Equal(t, genesis.Hash, ancestor.Hash)
}

func TestChainToMaterializesGenesisToTip(t *testing.T) {
	idx, genesis := newIndex(t)
	ctx := context.Background()

	a1, err := idx.Insert(ctx, &model.BlockHeader{Version: 1, PreviousHash: genesis.Hash, Bits: 0x207fffff, Nonce: 1})
	require.NoError(t, err)
	a2, err := idx.Insert(ctx, &model.BlockHeader{Version: 1, PreviousHash: a1.Hash, Bits: 0x207fffff, Nonce: 2})
	require.NoError(t, err)

	chain, err := idx.ChainTo(ctx, a2.Hash)
	require.NoError(t, err)
	require.Equal(t, uint32(2), chain.Height())
	require.Equal(t, genesis.Hash, chain.Genesis().Hash)
	require.Equal(t, a2.Hash, chain.Tip().Hash)
}

