package chainstate_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/coreledger/chaincore/blockvalidation"
	"github.com/coreledger/chaincore/chainindex"
	"github.com/coreledger/chaincore/chainstate"
	"github.com/coreledger/chaincore/invalidblocks"
	"github.com/coreledger/chaincore/mempool"
	"github.com/coreledger/chaincore/model"
	"github.com/coreledger/chaincore/settings"
	"github.com/coreledger/chaincore/storage"
	"github.com/coreledger/chaincore/ulogger"
	"github.com/coreledger/chaincore/utxo"
	"github.com/stretchr/testify/require"
)

type fakeBodies struct {
	byHash map[model.Hash][]*model.Transaction
}

func (f *fakeBodies) GetBlockTransactions(_ context.Context, hash model.Hash) ([]*model.Transaction, error) {
	return f.byHash[hash], nil
}

type acceptAllScripts struct{}

func (acceptAllScripts) VerifyInput(_ context.Context, _ *model.Transaction, _ int, _ *model.TxOutput) error {
	return nil
}

func testConsensus(genesisReward uint64) settings.ConsensusSettings {
	return settings.ConsensusSettings{
		MaxBlockSize:       1_000_000,
		MaxBlockSigops:     20_000,
		MaxMoney:           2_100_000_000_000_000,
		CoinbaseMaturity:   100,
		GenesisReward:      genesisReward,
		SubsidyHalvingRate: 210_000,
	}
}

func testValidator(logger ulogger.Logger, consensus settings.ConsensusSettings) *blockvalidation.Validator {
	return blockvalidation.New(logger, &settings.Settings{
		Consensus: consensus,
		Pipeline:  settings.PipelineSettings{StageCWorkers: 2, StageDWorkers: 2},
	}, acceptAllScripts{}, blockvalidation.NaiveSigOpCounter{}, nil)
}

func coinbase(salt byte, reward uint64) *model.Transaction {
	in := &model.TxInput{PrevOutput: model.TxOutputKey{OutputIndex: model.CoinbaseOutputIndex}}
	return model.NewTransaction(1, []*model.TxInput{in}, []*model.TxOutput{{Value: reward}}, 0, []byte{salt})
}

func TestApplyAdvancesTipAndUpdatesUTXOSet(t *testing.T) {
	ctx := context.Background()
	logger := ulogger.New("test", ulogger.WithWriter(&bytes.Buffer{}))
	backend := storage.NewMemoryBackend()

	genesisHeader := &model.BlockHeader{Version: 1, Bits: 0x207fffff}
	idx, err := chainindex.New(logger, backend.OpenHeaderIndex(), genesisHeader, nil)
	require.NoError(t, err)
	genesis, _ := idx.Get(ctx, idx.GenesisHash())

	cb1 := coinbase(0x01, 50)
	h1 := &model.BlockHeader{Version: 1, PreviousHash: genesis.Hash, MerkleRoot: cb1.Hash(nil), Bits: 0x207fffff, Nonce: 1}
	c1, err := idx.Insert(ctx, h1)
	require.NoError(t, err)

	bodies := &fakeBodies{byHash: map[model.Hash][]*model.Transaction{
		c1.Hash: {cb1},
	}}

	store := utxo.New(logger, backend.OpenUTXOBackend())
	pool := mempool.New(logger, backend.OpenMempoolBackend())
	invalid := invalidblocks.New(backend.OpenInvalidBlockBackend(), logger)
	defer invalid.Close()

	consensus := testConsensus(50)
	mgr := chainstate.New(logger, idx, store, pool, bodies, invalid, testValidator(logger, consensus), consensus, nil)

	chain := model.NewChain([]*model.ChainedHeader{genesis, c1})
	plan, err := mgr.Plan(ctx, chain)
	require.NoError(t, err)
	require.Equal(t, genesis.Hash, plan.CommonAncestor.Hash)
	require.Len(t, plan.AdvanceList, 1)
	require.Empty(t, plan.RewindList)

	require.NoError(t, mgr.Apply(ctx, plan))

	tip, ok, err := store.ChainTip(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, c1.Hash, tip)

	out, ok, err := store.GetUnspentOutput(ctx, model.TxOutputKey{TxHash: cb1.Hash(nil), OutputIndex: 0})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(50), out.Value)
}
