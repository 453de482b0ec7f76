package blockvalidation_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/coreledger/chaincore/blockvalidation"
	"github.com/coreledger/chaincore/errors"
	"github.com/coreledger/chaincore/model"
	"github.com/coreledger/chaincore/settings"
	"github.com/coreledger/chaincore/ulogger"
	"github.com/stretchr/testify/require"
)

type acceptAllScripts struct{}

func (acceptAllScripts) VerifyInput(_ context.Context, _ *model.Transaction, _ int, _ *model.TxOutput) error {
	return nil
}

func testSettings() *settings.Settings {
	return &settings.Settings{
		Consensus: settings.ConsensusSettings{
			MaxBlockSize:     1_000_000,
			MaxBlockSigops:   20_000,
			MaxMoney:         2_100_000_000_000_000,
			CoinbaseMaturity: 100,
		},
		Pipeline: settings.PipelineSettings{StageCWorkers: 2, StageDWorkers: 2},
	}
}

func coinbaseTx(reward uint64, salt byte) *model.Transaction {
	in := &model.TxInput{PrevOutput: model.TxOutputKey{OutputIndex: model.CoinbaseOutputIndex}}
	return model.NewTransaction(1, []*model.TxInput{in}, []*model.TxOutput{{Value: reward}}, 0, []byte{salt})
}

func buildBlock(t *testing.T, txs []*model.Transaction) *model.Block {
	t.Helper()
	hashes := make([]model.Hash, len(txs))
	for i, tx := range txs {
		hashes[i] = tx.Hash(nil)
	}
	root := merkleRootForTest(hashes)
	return &model.Block{
		Header:       &model.BlockHeader{Version: 1, MerkleRoot: root, Bits: 0x207fffff},
		Transactions: txs,
	}
}

// merkleRootForTest mirrors the pairwise double-hash construction used
// by the validator, kept test-local so the test doesn't reach into an
// unexported package function.
func merkleRootForTest(hashes []model.Hash) model.Hash {
	level := append([]model.Hash{}, hashes...)
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]model.Hash, len(level)/2)
		for i := range next {
			buf := make([]byte, 64)
			copy(buf[:32], level[2*i][:])
			copy(buf[32:], level[2*i+1][:])
			next[i] = model.DefaultCodec.DoubleSHA256(buf)
		}
		level = next
	}
	if len(level) == 0 {
		return model.ZeroHash
	}
	return level[0]
}

func TestValidateAcceptsWellFormedBlock(t *testing.T) {
	ctx := context.Background()
	logger := ulogger.New("test", ulogger.WithWriter(&bytes.Buffer{}))
	v := blockvalidation.New(logger, testSettings(), acceptAllScripts{}, blockvalidation.NaiveSigOpCounter{}, nil)

	cb := coinbaseTx(50_00000000, 0x01)
	block := buildBlock(t, []*model.Transaction{cb})

	err := v.Validate(ctx, block, &blockvalidation.Context{
		Height:          1,
		ExpectedSubsidy: 50_00000000,
		PrevOutputs:     map[model.TxOutputKey]blockvalidation.ResolvedOutput{},
	})
	require.NoError(t, err)
}

func TestValidateRejectsBadMerkleRoot(t *testing.T) {
	ctx := context.Background()
	logger := ulogger.New("test", ulogger.WithWriter(&bytes.Buffer{}))
	v := blockvalidation.New(logger, testSettings(), acceptAllScripts{}, blockvalidation.NaiveSigOpCounter{}, nil)

	cb := coinbaseTx(50_00000000, 0x01)
	block := &model.Block{
		Header:       &model.BlockHeader{Version: 1, MerkleRoot: model.Hash{0xff}, Bits: 0x207fffff},
		Transactions: []*model.Transaction{cb},
	}

	err := v.Validate(ctx, block, &blockvalidation.Context{Height: 1, ExpectedSubsidy: 50_00000000})
	require.Error(t, err)
}

// spendTx builds a plain, non-coinbase transaction spending prev,
// distinguished from other spendTx calls by salt so each hashes
// differently.
func spendTx(prev model.TxOutputKey, value uint64, salt byte) *model.Transaction {
	in := &model.TxInput{PrevOutput: prev}
	out := &model.TxOutput{Value: value}
	return model.NewTransaction(1, []*model.TxInput{in}, []*model.TxOutput{out}, 0, []byte{salt})
}

// TestValidateRejectsDuplicateTailTransaction is the CVE-2012-2459
// merkle-tree malleability case: the block's actual transaction list is
// [coinbase, t1, t1] (t1 repeated), but the header declares the root
// that an honest [coinbase, t1] block would carry. Stage A must never
// fault on the repeated hash itself — the repeated tx's hash still
// feeds the merkle builder at its real position, so the resulting root
// diverges from the header's declared root and MerkleRootMismatch is
// the only fault raised.
func TestValidateRejectsDuplicateTailTransaction(t *testing.T) {
	ctx := context.Background()
	logger := ulogger.New("test", ulogger.WithWriter(&bytes.Buffer{}))
	v := blockvalidation.New(logger, testSettings(), acceptAllScripts{}, blockvalidation.NaiveSigOpCounter{}, nil)

	cb := coinbaseTx(50_00000000, 0x01)
	t1 := spendTx(model.TxOutputKey{TxHash: cb.Hash(nil), OutputIndex: 0}, 10_000, 0x02)

	honestRoot := merkleRootForTest([]model.Hash{cb.Hash(nil), t1.Hash(nil)})
	block := &model.Block{
		Header:       &model.BlockHeader{Version: 1, MerkleRoot: honestRoot, Bits: 0x207fffff},
		Transactions: []*model.Transaction{cb, t1, t1},
	}

	err := v.Validate(ctx, block, &blockvalidation.Context{
		Height:          1,
		ExpectedSubsidy: 50_00000000,
		PrevOutputs: map[model.TxOutputKey]blockvalidation.ResolvedOutput{
			{TxHash: cb.Hash(nil), OutputIndex: 0}: {Output: cb.Outputs[0]},
		},
	})

	require.Error(t, err)
	verr, ok := err.(*errors.Error)
	require.True(t, ok, "expected *errors.Error, got %T", err)
	require.Equal(t, errors.ERR_MERKLE_ROOT_MISMATCH, verr.Code(), "must be rejected as a merkle root mismatch, never StructuralRule or DoubleSpendInBlock")
}

// TestValidateAcceptsOddTransactionCount guards against the false
// positive where ordinary tail-duplication padding at any reduction
// level (unavoidable whenever a level's leaf count is odd) is mistaken
// for the CVE-2012-2459 condition. A well-formed 3-transaction block
// (a non-power-of-two count) with a correctly computed root must
// validate cleanly.
func TestValidateAcceptsOddTransactionCount(t *testing.T) {
	ctx := context.Background()
	logger := ulogger.New("test", ulogger.WithWriter(&bytes.Buffer{}))
	v := blockvalidation.New(logger, testSettings(), acceptAllScripts{}, blockvalidation.NaiveSigOpCounter{}, nil)

	cb := coinbaseTx(50_00000000, 0x01)
	key1 := model.TxOutputKey{TxHash: cb.Hash(nil), OutputIndex: 0}
	key2 := model.TxOutputKey{TxHash: cb.Hash(nil), OutputIndex: 1}
	t1 := spendTx(key1, 10_000, 0x02)
	t2 := spendTx(key2, 20_000, 0x03)
	block := buildBlock(t, []*model.Transaction{cb, t1, t2})

	err := v.Validate(ctx, block, &blockvalidation.Context{
		Height:          1,
		ExpectedSubsidy: 50_00000000,
		PrevOutputs: map[model.TxOutputKey]blockvalidation.ResolvedOutput{
			key1: {Output: &model.TxOutput{Value: 10_000}},
			key2: {Output: &model.TxOutput{Value: 20_000}},
		},
	})
	require.NoError(t, err)
}

func TestValidateRejectsSecondCoinbase(t *testing.T) {
	ctx := context.Background()
	logger := ulogger.New("test", ulogger.WithWriter(&bytes.Buffer{}))
	v := blockvalidation.New(logger, testSettings(), acceptAllScripts{}, blockvalidation.NaiveSigOpCounter{}, nil)

	cb := coinbaseTx(50_00000000, 0x01)
	cb2 := coinbaseTx(1, 0x02)
	block := buildBlock(t, []*model.Transaction{cb, cb2})

	err := v.Validate(ctx, block, &blockvalidation.Context{Height: 1, ExpectedSubsidy: 50_00000000, PrevOutputs: map[model.TxOutputKey]blockvalidation.ResolvedOutput{}})
	require.Error(t, err)
}
