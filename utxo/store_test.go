package utxo_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/coreledger/chaincore/model"
	"github.com/coreledger/chaincore/storage"
	"github.com/coreledger/chaincore/ulogger"
	"github.com/coreledger/chaincore/utxo"
	"github.com/stretchr/testify/require"
)

func newStore() *utxo.Store {
	logger := ulogger.New("test", ulogger.WithWriter(&bytes.Buffer{}))
	backend := storage.NewMemoryBackend().OpenUTXOBackend()
	return utxo.New(logger, backend)
}

func coinbaseTx(reward uint64) *model.Transaction {
	in := &model.TxInput{PrevOutput: model.TxOutputKey{OutputIndex: model.CoinbaseOutputIndex}}
	return model.NewTransaction(1, []*model.TxInput{in}, []*model.TxOutput{{Value: reward}}, 0, []byte{0x01})
}

func spendingTx(prev model.TxOutputKey, value uint64, salt byte) *model.Transaction {
	in := &model.TxInput{PrevOutput: prev}
	return model.NewTransaction(1, []*model.TxInput{in}, []*model.TxOutput{{Value: value}}, 0, []byte{salt})
}

func TestApplyThenUnwindRestoresPriorState(t *testing.T) {
	ctx := context.Background()
	store := newStore()

	cb := coinbaseTx(50)
	cbHash := cb.Hash(nil)

	undo1, err := store.ApplyBlock(ctx, 1, model.Hash{0x01}, []*model.Transaction{cb}, nil)
	require.NoError(t, err)

	spend := spendingTx(model.TxOutputKey{TxHash: cbHash, OutputIndex: 0}, 40, 0x02)

	undo2, err := store.ApplyBlock(ctx, 2, model.Hash{0x02}, []*model.Transaction{spend}, nil)
	require.NoError(t, err)

	_, ok, err := store.GetUnspentOutput(ctx, model.TxOutputKey{TxHash: cbHash, OutputIndex: 0})
	require.NoError(t, err)
	require.False(t, ok, "coinbase output should be spent")

	require.NoError(t, store.UnwindBlock(ctx, undo2))

	out, ok, err := store.GetUnspentOutput(ctx, model.TxOutputKey{TxHash: cbHash, OutputIndex: 0})
	require.NoError(t, err)
	require.True(t, ok, "unwind must restore the spent output")
	require.Equal(t, uint64(50), out.Value)

	tip, ok, err := store.ChainTip(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.Hash{0x01}, tip)

	require.NoError(t, store.UnwindBlock(ctx, undo1))
	_, ok, err = store.GetUnspentTx(ctx, cbHash)
	require.NoError(t, err)
	require.False(t, ok, "unwind must remove the added coinbase record")
}

func TestApplyBlockRejectsDoubleSpendWithinBlock(t *testing.T) {
	ctx := context.Background()
	store := newStore()

	cb := coinbaseTx(50)
	cbHash := cb.Hash(nil)
	_, err := store.ApplyBlock(ctx, 1, model.Hash{0x01}, []*model.Transaction{cb}, nil)
	require.NoError(t, err)

	key := model.TxOutputKey{TxHash: cbHash, OutputIndex: 0}
	spend1 := spendingTx(key, 10, 0x02)
	spend2 := spendingTx(key, 10, 0x03)

	_, err = store.ApplyBlock(ctx, 2, model.Hash{0x02}, []*model.Transaction{spend1, spend2}, nil)
	require.Error(t, err)

	// the whole block's mutation must have rolled back
	_, ok, err := store.GetUnspentOutput(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
}
