package mempool_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/coreledger/chaincore/mempool"
	"github.com/coreledger/chaincore/model"
	"github.com/coreledger/chaincore/storage"
	"github.com/coreledger/chaincore/ulogger"
	"github.com/stretchr/testify/require"
)

func newPool(t *testing.T) *mempool.Mempool {
	t.Helper()
	logger := ulogger.New("test", ulogger.WithWriter(&bytes.Buffer{}))
	backend := storage.NewMemoryBackend().OpenMempoolBackend()
	return mempool.New(logger, backend)
}

func tx(hash model.Hash, prev model.TxOutputKey) *model.UnconfirmedTx {
	in := &model.TxInput{PrevOutput: prev}
	txn := model.NewTransaction(1, []*model.TxInput{in}, []*model.TxOutput{{Value: 100}}, 0, hash[:])
	return &model.UnconfirmedTx{Tx: txn}
}

func TestTryAddRejectsConflictingSpend(t *testing.T) {
	ctx := context.Background()
	pool := newPool(t)

	prevKey := model.TxOutputKey{TxHash: model.Hash{0x01}, OutputIndex: 0}
	hash1 := model.Hash{0xa1}
	hash2 := model.Hash{0xa2}

	require.NoError(t, pool.TryAdd(ctx, hash1, tx(hash1, prevKey)))
	err := pool.TryAdd(ctx, hash2, tx(hash2, prevKey))
	require.Error(t, err)

	spender, ok := pool.GetSpending(prevKey)
	require.True(t, ok)
	require.Equal(t, hash1, spender)
}

func TestOnBlockAppliedRemovesConfirmedAndConflicting(t *testing.T) {
	ctx := context.Background()
	pool := newPool(t)

	prevKey := model.TxOutputKey{TxHash: model.Hash{0x02}, OutputIndex: 0}
	hash1 := model.Hash{0xb1}
	t1 := tx(hash1, prevKey)

	require.NoError(t, pool.TryAdd(ctx, hash1, t1))
	require.Equal(t, 1, pool.Size())

	require.NoError(t, pool.OnBlockApplied(ctx, []*model.Transaction{t1.Tx}, nil))
	require.Equal(t, 0, pool.Size())

	_, ok := pool.Get(hash1)
	require.False(t, ok)
	_, ok = pool.GetSpending(prevKey)
	require.False(t, ok)
}

func TestOnBlockUnwoundReadmits(t *testing.T) {
	ctx := context.Background()
	pool := newPool(t)

	prevKey := model.TxOutputKey{TxHash: model.Hash{0x03}, OutputIndex: 0}
	hash1 := model.Hash{0xc1}
	t1 := tx(hash1, prevKey)

	require.NoError(t, pool.OnBlockUnwound(ctx, []*model.UnconfirmedTx{t1}, nil))
	require.Equal(t, 1, pool.Size())
	_, ok := pool.Get(t1.Tx.Hash(nil))
	require.True(t, ok)
}
