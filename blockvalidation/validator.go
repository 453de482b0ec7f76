// Package blockvalidation implements the block validator (spec §4.3): a
// four-stage cancellable pipeline that a candidate block must pass
// before the chain state manager will apply it. Grounded on the
// teacher's services/blockvalidation package (multi-stage validation
// with bounded worker pools per stage) but restructured around the
// spec's four named stages and propagate-completion semantics: a
// failure in any stage cancels the shared context immediately rather
// than letting sibling goroutines run to completion.
package blockvalidation

import (
	"context"

	"github.com/coreledger/chaincore/errors"
	"github.com/coreledger/chaincore/model"
	"github.com/coreledger/chaincore/settings"
	"github.com/coreledger/chaincore/ulogger"
	"github.com/dolthub/swiss"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Validator runs the four-stage pipeline over a candidate block.
type Validator struct {
	logger   ulogger.Logger
	settings *settings.Settings
	scripts  ScriptVerifier
	sigops   SigOpCounter
	codec    model.BlockCodec
}

// New constructs a Validator. codec defaults to model.DefaultCodec when nil.
func New(logger ulogger.Logger, cfg *settings.Settings, scripts ScriptVerifier, sigops SigOpCounter, codec model.BlockCodec) *Validator {
	if codec == nil {
		codec = model.DefaultCodec
	}
	return &Validator{
		logger:   logger.New("blockvalidation"),
		settings: cfg,
		scripts:  scripts,
		sigops:   sigops,
		codec:    codec,
	}
}

// Context carries the block-external facts the pipeline needs but
// cannot derive from the block bytes alone: its position in the chain
// and the resolved previous outputs for every non-coinbase input.
type Context struct {
	Height          uint32
	MedianTime      uint32
	ExpectedSubsidy uint64
	// PrevOutputs maps each input's PrevOutput key to the resolved
	// output and the height at which it was mined, so coinbase maturity
	// (spec §4.3 Stage C) can be checked without a second store round-trip.
	PrevOutputs map[model.TxOutputKey]ResolvedOutput
}

// ResolvedOutput is a previous output plus the height its owning
// transaction was mined at.
type ResolvedOutput struct {
	Output      *model.TxOutput
	MinedHeight uint32
	// IsCoinbase marks that Output was produced by a coinbase
	// transaction, so the coinbase maturity window applies to it.
	IsCoinbase bool
}

// Validate runs all four stages against block, returning the first
// error encountered. Every stage shares a single cancellable context so
// that once any goroutine anywhere in the pipeline fails, in-flight
// sibling work is told to stop rather than run to completion
// (propagate-completion semantics, spec §4.3).
func (v *Validator) Validate(ctx context.Context, block *model.Block, vctx *Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	repeated, err := v.stageA(ctx, block)
	if err != nil {
		return err
	}
	if err := v.stageB(ctx, block, vctx, repeated); err != nil {
		return err
	}
	if err := v.stageC(ctx, block, vctx, repeated); err != nil {
		cancel()
		return err
	}
	if err := v.stageD(ctx, block, vctx, repeated); err != nil {
		cancel()
		return err
	}
	return nil
}

// stageA is Merkle & Uniqueness: a streaming pass over the block's
// actual raw transaction list that marks any hash already seen earlier
// in the list as repeated, rather than faulting on it immediately — a
// repeated tx's inputs are dropped from every downstream stage, but its
// hash still feeds the merkle builder at its real position. This is the
// CVE-2012-2459 defense (merkle-tree malleability via a duplicated tail
// transaction): the root is always computed over the block's actual
// tx list, duplicates and all, so the root comparison against
// header.merkle_root — never a StructuralRule fault on the duplicate
// itself — is the sole discriminator between an honest block and one
// exploiting the duplicate-tail ambiguity.
func (v *Validator) stageA(ctx context.Context, block *model.Block) ([]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.New(errors.ERR_CONTEXT_CANCELED, "stage A cancelled", err)
	}

	if len(block.Transactions) == 0 {
		return nil, errors.New(errors.ERR_STRUCTURAL_RULE, "block has no transactions")
	}

	hashes := make([]model.Hash, len(block.Transactions))
	repeated := make([]bool, len(block.Transactions))
	seen := swiss.NewMap[model.Hash, struct{}](uint32(len(block.Transactions)))

	for i, tx := range block.Transactions {
		h := tx.Hash(v.codec)
		if _, dup := seen.Get(h); dup {
			repeated[i] = true
		} else {
			seen.Put(h, struct{}{})
		}
		hashes[i] = h
	}

	root := computeMerkleRoot(v.codec, hashes)
	if root != block.Header.MerkleRoot {
		return nil, errors.New(errors.ERR_MERKLE_ROOT_MISMATCH, "computed merkle root %s does not match header %s", root, block.Header.MerkleRoot)
	}

	return repeated, nil
}

// stageB is Structural & Accounting: exactly one coinbase at position
// zero, block size and sigop limits, and per-transaction / per-block
// value accounting. A transaction repeated is counted once toward
// block size (its bytes are physically present) but is excluded from
// sigop, max-money, and fee accounting: those checks already ran
// against the same bytes at its first occurrence, and re-running them
// on a dropped duplicate would double count fees it never actually
// paid twice.
func (v *Validator) stageB(ctx context.Context, block *model.Block, vctx *Context, repeated []bool) error {
	if err := ctx.Err(); err != nil {
		return errors.New(errors.ERR_CONTEXT_CANCELED, "stage B cancelled", err)
	}

	if !block.Transactions[0].IsCoinbase() {
		return errors.New(errors.ERR_STRUCTURAL_RULE, "first transaction is not a coinbase")
	}
	for i, tx := range block.Transactions[1:] {
		if tx.IsCoinbase() {
			return errors.New(errors.ERR_STRUCTURAL_RULE, "unexpected coinbase at position %d", i+1)
		}
	}

	const headerSize = 80
	totalSize := headerSize
	totalSigops := 0
	var totalFees uint64

	for i, tx := range block.Transactions {
		totalSize += tx.Size()
		if repeated[i] {
			continue
		}

		for _, out := range tx.Outputs {
			totalSigops += v.sigops.CountSigOps(out.ScriptPubKey)
			if out.Value > v.settings.Consensus.MaxMoney {
				return errors.New(errors.ERR_ACCOUNTING_OVERFLOW, "output value %d exceeds max money", out.Value)
			}
		}

		if tx.IsCoinbase() {
			continue
		}

		var totalIn, totalOut uint64
		for _, in := range tx.Inputs {
			totalSigops += v.sigops.CountSigOps(in.ScriptSig)
			resolved, ok := vctx.PrevOutputs[in.PrevOutput]
			if !ok {
				return errors.New(errors.ERR_MISSING_DATA, "missing previous output %s", in.PrevOutput.TxHash)
			}
			totalIn += resolved.Output.Value
		}
		for _, out := range tx.Outputs {
			totalOut += out.Value
		}
		if totalOut > totalIn {
			return errors.New(errors.ERR_ACCOUNTING_OVERFLOW, "transaction outputs (%d) exceed inputs (%d)", totalOut, totalIn)
		}
		totalFees += totalIn - totalOut
	}

	if totalSize > v.settings.Consensus.MaxBlockSize {
		return errors.New(errors.ERR_SIZE_LIMIT, "block size %d exceeds max %d", totalSize, v.settings.Consensus.MaxBlockSize)
	}
	if totalSigops > v.settings.Consensus.MaxBlockSigops {
		return errors.New(errors.ERR_SIGOP_LIMIT, "block sigop count %d exceeds max %d", totalSigops, v.settings.Consensus.MaxBlockSigops)
	}

	coinbaseValue := block.Transactions[0].TotalOutputValue()
	if coinbaseValue > vctx.ExpectedSubsidy+totalFees {
		return errors.New(errors.ERR_BAD_SUBSIDY, "coinbase pays %d, expected at most %d subsidy + %d fees", coinbaseValue, vctx.ExpectedSubsidy, totalFees)
	}

	return nil
}

// stageC is Contextual tx validation: locktime, coinbase maturity, and
// intra-block double-spend detection, run concurrently per transaction.
// A repeated transaction's inputs are dropped here rather than
// re-checked: they were already claimed against spent at the first
// occurrence, and re-processing them would raise a spurious
// DoubleSpendInBlock fault for what is, by construction, the very same
// spend recorded twice in the raw list — the kind of block this stage
// must let stageA's merkle-root comparison alone adjudicate.
func (v *Validator) stageC(ctx context.Context, block *model.Block, vctx *Context, repeated []bool) error {
	group, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(workerCount(v.settings.Pipeline.StageCWorkers)))
	spent := swiss.NewMap[model.TxOutputKey, model.Hash](uint32(len(block.Transactions)))

	for i, tx := range block.Transactions[1:] {
		absIdx := i + 1
		if repeated[absIdx] {
			continue
		}
		tx := tx
		if err := sem.Acquire(gctx, 1); err != nil {
			return group.Wait()
		}
		group.Go(func() error {
			defer sem.Release(1)
			return v.validateContextual(gctx, tx, vctx, spent)
		})
	}

	return group.Wait()
}

func (v *Validator) validateContextual(ctx context.Context, tx *model.Transaction, vctx *Context, spent *swiss.Map[model.TxOutputKey, model.Hash]) error {
	if err := ctx.Err(); err != nil {
		return errors.New(errors.ERR_CONTEXT_CANCELED, "stage C cancelled", err)
	}

	hash := tx.Hash(v.codec)

	if tx.LockTime > 0 {
		matured := tx.LockTime < 500_000_000 && uint32(tx.LockTime) <= vctx.Height
		matured = matured || (tx.LockTime >= 500_000_000 && tx.LockTime <= vctx.MedianTime)
		if !matured {
			return errors.New(errors.ERR_STRUCTURAL_RULE, "transaction %s not yet final: locktime %d", hash, tx.LockTime)
		}
	}

	for _, in := range tx.Inputs {
		if existing, dup := spent.Get(in.PrevOutput); dup {
			return errors.New(errors.ERR_DOUBLE_SPEND_IN_BLOCK, "input %s spent by both %s and %s", in.PrevOutput.TxHash, existing, hash)
		}
		spent.Put(in.PrevOutput, hash)

		resolved, ok := vctx.PrevOutputs[in.PrevOutput]
		if !ok {
			return errors.New(errors.ERR_MISSING_DATA, "missing previous output %s", in.PrevOutput.TxHash)
		}

		if in.PrevOutput.OutputIndex == model.CoinbaseOutputIndex {
			continue
		}
		if resolved.IsCoinbase && vctx.Height-resolved.MinedHeight < v.settings.Consensus.CoinbaseMaturity {
			return errors.New(errors.ERR_COINBASE_IMMATURE, "input %s spends an immature coinbase output (mined at %d, spent at %d)", in.PrevOutput.TxHash, resolved.MinedHeight, vctx.Height)
		}
	}

	return nil
}

// stageD is Script verification, run concurrently per input. A
// repeated transaction's inputs are skipped for the same reason stageC
// skips them: they were already verified at the first occurrence.
func (v *Validator) stageD(ctx context.Context, block *model.Block, vctx *Context, repeated []bool) error {
	if v.settings.Policy.IgnoreScriptErrors {
		return nil
	}

	group, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(workerCount(v.settings.Pipeline.StageDWorkers)))

	for i, tx := range block.Transactions[1:] {
		if repeated[i+1] {
			continue
		}
		tx := tx
		for i, in := range tx.Inputs {
			i, in := i, in
			resolved, ok := vctx.PrevOutputs[in.PrevOutput]
			if !ok {
				return errors.New(errors.ERR_MISSING_DATA, "missing previous output %s", in.PrevOutput.TxHash)
			}
			if err := sem.Acquire(gctx, 1); err != nil {
				return group.Wait()
			}
			group.Go(func() error {
				defer sem.Release(1)
				if err := gctx.Err(); err != nil {
					return errors.New(errors.ERR_CONTEXT_CANCELED, "stage D cancelled", err)
				}
				if err := v.scripts.VerifyInput(gctx, tx, i, resolved.Output); err != nil {
					return errors.New(errors.ERR_SCRIPT_INVALID, "input %d of %s", i, tx.Hash(v.codec), err)
				}
				return nil
			})
		}
	}

	return group.Wait()
}

func workerCount(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}
