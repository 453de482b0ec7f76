package testfixtures_test

import (
	"math/big"
	"testing"

	"github.com/coreledger/chaincore/internal/testfixtures"
	"github.com/coreledger/chaincore/model"
	"github.com/stretchr/testify/require"
)

func TestChainBuildsConnectedHeaders(t *testing.T) {
	genesisHeader := testfixtures.Genesis()
	genesis := &model.ChainedHeader{
		Header:    genesisHeader,
		Hash:      genesisHeader.Hash(nil),
		Height:    0,
		TotalWork: model.WorkFromBits(genesisHeader.Bits),
	}

	headers, bodies := testfixtures.Chain(genesis, 3, 5_000_000_000, nil)
	require.Len(t, headers, 3)

	prevHash := genesis.Hash
	for i, h := range headers {
		require.Equal(t, prevHash, h.PreviousHash)
		txs, ok := bodies[h.Hash(nil)]
		require.True(t, ok, "block %d body missing", i)
		require.Len(t, txs, 1)
		require.True(t, txs[0].IsCoinbase())
		prevHash = h.Hash(nil)
	}
}

func TestSpendTxNonceProducesDistinctHashes(t *testing.T) {
	key := model.TxOutputKey{TxHash: model.Hash{0x01}, OutputIndex: 0}
	a := testfixtures.SpendTx(key, 1000, 10, 0)
	b := testfixtures.SpendTx(key, 1000, 10, 1)

	require.NotEqual(t, a.Hash(nil), b.Hash(nil))
	require.Equal(t, uint64(990), a.TotalOutputValue())
	require.Equal(t, big.NewInt(990).Uint64(), b.TotalOutputValue())
}
