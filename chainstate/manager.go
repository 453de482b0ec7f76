// Package chainstate implements the chain state manager (spec §4.4):
// given a newly selected target chain, plans the minimal reorg (common
// ancestor, rewind list, advance list) against the chain currently
// reflected by the UTXO store, and applies it block-by-block inside
// per-block transactional scopes so a failure partway through leaves
// the store exactly as far along as it got, with undo data available to
// unwind back out. Every advance-list block is run through the block
// validator (blockvalidation.Validator) before it touches the UTXO
// store, so a consensus violation surfaces as a ValidationError and
// routes into the blacklist-and-unwind path below rather than being
// applied unconditionally.
//
// The common-ancestor search reuses chainindex's walk (itself grounded
// on the teacher's stores/blockchain/sql/GetHashOfAncestorBlock.go).
// The teacher has no single file that plans and applies a multi-block
// reorg against a UTXO-diff state model the way this package does —
// its block store marks losing blocks invalid
// (stores/blockchain/sql/InvalidateBlock.go) rather than unwinding a
// derived UTXO set — so the rewind/advance plan, per-block undo
// scoping, and blacklist-on-failure loop below are this module's own
// design for its UTXO-store-centric state, not a port of a teacher
// file.
package chainstate

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/coreledger/chaincore/blockvalidation"
	"github.com/coreledger/chaincore/chainindex"
	"github.com/coreledger/chaincore/errors"
	"github.com/coreledger/chaincore/eventbus"
	"github.com/coreledger/chaincore/invalidblocks"
	"github.com/coreledger/chaincore/mempool"
	"github.com/coreledger/chaincore/model"
	"github.com/coreledger/chaincore/settings"
	"github.com/coreledger/chaincore/ulogger"
	"github.com/coreledger/chaincore/utxo"
)

// BlockBodyProvider resolves a header hash to its full transaction list.
// This is the external collaborator named in spec §6: this module never
// fetches, stores, or deserializes block bodies itself.
type BlockBodyProvider interface {
	GetBlockTransactions(ctx context.Context, hash model.Hash) ([]*model.Transaction, error)
}

// ReorgPlan is the result of planning a move from the currently-applied
// tip to a target chain (spec §4.4): rewind_list is highest-first (the
// order to unwind), advance_list is lowest-first (the order to apply).
type ReorgPlan struct {
	CommonAncestor *model.ChainedHeader
	RewindList     []*model.ChainedHeader
	AdvanceList    []*model.ChainedHeader
}

// Manager owns the transition of the UTXO store (and, by extension, the
// mempool) from whatever chain it currently reflects to a newly
// selected target chain.
type Manager struct {
	mu sync.Mutex

	logger    ulogger.Logger
	index     *chainindex.Index
	store     *utxo.Store
	pool      *mempool.Mempool
	bodies    BlockBodyProvider
	invalid   *invalidblocks.Cache
	validator *blockvalidation.Validator
	consensus settings.ConsensusSettings
	codec     model.BlockCodec

	undoByHeight map[uint32]*utxo.UndoBlock
	lastReorg    ReorgStats

	Applied *eventbus.Bus[Applied]
}

// ReorgStats is read-only diagnostic state describing the most recent
// reorganization this Manager carried out: how many blocks were
// unwound off the old chain, how many were applied onto the new one,
// and how long the whole Apply call took. It does not feed back into
// any consensus decision; it exists purely for operators and tests to
// observe reorg behavior, grounded on the teacher's pattern of
// exposing derived chain statistics (services/blockchain/Difficulty.go).
type ReorgStats struct {
	RewindDepth  int
	AdvanceDepth int
	Duration     time.Duration
}

// LastReorg returns the statistics for the most recently applied plan.
// Its zero value means no plan has been applied yet.
func (m *Manager) LastReorg() ReorgStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastReorg
}

// Applied is published once the store has caught up to a new tip.
type Applied struct {
	Tip    model.Hash
	Height uint32
}

// New constructs a Manager. codec may be nil to use model.DefaultCodec.
// validator is run against every advance-list block before it is
// applied to the UTXO store (spec §4.4).
func New(logger ulogger.Logger, index *chainindex.Index, store *utxo.Store, pool *mempool.Mempool, bodies BlockBodyProvider, invalid *invalidblocks.Cache, validator *blockvalidation.Validator, consensus settings.ConsensusSettings, codec model.BlockCodec) *Manager {
	if codec == nil {
		codec = model.DefaultCodec
	}
	return &Manager{
		logger:       logger.New("chainstate"),
		index:        index,
		store:        store,
		pool:         pool,
		bodies:       bodies,
		invalid:      invalid,
		validator:    validator,
		consensus:    consensus,
		codec:        codec,
		undoByHeight: make(map[uint32]*utxo.UndoBlock),
		Applied:      eventbus.New[Applied](),
	}
}

// Plan computes the reorg plan from whatever the UTXO store currently
// reflects to target's tip.
func (m *Manager) Plan(ctx context.Context, target *model.Chain) (*ReorgPlan, error) {
	currentTip, ok, err := m.store.ChainTip(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		currentTip = m.index.GenesisHash()
	}

	current, ok := m.index.Get(ctx, currentTip)
	if !ok {
		return nil, errors.NewStorageCorruptError("applied tip %s not in chain index", currentTip)
	}

	ancestor, err := m.index.FindCommonAncestor(ctx, current.Hash, target.Tip().Hash)
	if err != nil {
		return nil, err
	}

	var rewind []*model.ChainedHeader
	it := m.index.WalkAncestors(ctx, current.Hash)
	for {
		h, ok := it.Next()
		if !ok || h.Hash == ancestor.Hash {
			break
		}
		rewind = append(rewind, h)
	}

	var advance []*model.ChainedHeader
	for height := ancestor.Height + 1; height <= target.Height(); height++ {
		advance = append(advance, target.At(height))
	}

	return &ReorgPlan{CommonAncestor: ancestor, RewindList: rewind, AdvanceList: advance}, nil
}

// Apply executes a reorg plan: unwinds rewind_list highest-first, then
// applies advance_list lowest-first. If a block in advance_list fails
// validation-adjacent application (e.g. the body provider reports a
// consensus violation surfaced as an error), that block is blacklisted
// and everything applied so far in this call is unwound back to the
// common ancestor, leaving the store consistent and ready for the
// selector to recompute and the caller to retry with a new target.
func (m *Manager) Apply(ctx context.Context, plan *ReorgPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	defer func() {
		m.lastReorg = ReorgStats{
			RewindDepth:  len(plan.RewindList),
			AdvanceDepth: len(plan.AdvanceList),
			Duration:     time.Since(start),
		}
	}()

	for _, h := range plan.RewindList {
		if err := m.unwindOne(ctx, h); err != nil {
			return err
		}
	}

	var appliedSoFar []*model.ChainedHeader
	for _, h := range plan.AdvanceList {
		if err := m.applyOne(ctx, h); err != nil {
			m.logger.Warnf("failed to apply block %s at height %d: %s, unwinding partial reorg", h.Hash, h.Height, err)

			if markErr := m.invalid.Add(ctx, h.Hash, err.Error()); markErr != nil {
				return markErr
			}

			for i := len(appliedSoFar) - 1; i >= 0; i-- {
				if unwindErr := m.unwindOne(ctx, appliedSoFar[i]); unwindErr != nil {
					return errors.New(errors.ERR_STORAGE_CORRUPT, "failed to unwind partial reorg", unwindErr)
				}
			}
			return err
		}
		appliedSoFar = append(appliedSoFar, h)
	}

	tip := plan.CommonAncestor
	if len(plan.AdvanceList) > 0 {
		tip = plan.AdvanceList[len(plan.AdvanceList)-1]
	} else if len(plan.RewindList) > 0 {
		tip = plan.CommonAncestor
	}

	m.Applied.Publish(Applied{Tip: tip.Hash, Height: tip.Height})
	return nil
}

func (m *Manager) applyOne(ctx context.Context, h *model.ChainedHeader) error {
	txs, err := m.bodies.GetBlockTransactions(ctx, h.Hash)
	if err != nil {
		return err
	}

	prevOutputs, err := m.resolvePrevOutputs(ctx, h.Height, txs)
	if err != nil {
		return err
	}

	vctx := &blockvalidation.Context{
		Height:          h.Height,
		MedianTime:      m.medianTimePast(ctx, h),
		ExpectedSubsidy: expectedSubsidy(h.Height, m.consensus),
		PrevOutputs:     prevOutputs,
	}
	if err := m.validator.Validate(ctx, &model.Block{Header: h.Header, Transactions: txs}, vctx); err != nil {
		return err
	}

	undo, err := m.store.ApplyBlock(ctx, h.Height, h.Hash, txs, m.codec)
	if err != nil {
		return err
	}
	m.undoByHeight[h.Height] = undo

	if err := m.pool.OnBlockApplied(ctx, txs, m.codec); err != nil {
		return err
	}

	return nil
}

// resolvePrevOutputs resolves every non-coinbase input's previous
// output either from a transaction earlier in the same block (chained
// same-block spends, which the UTXO store allows since it applies
// transactions in order within one scope) or from the UTXO store's
// already-confirmed set.
func (m *Manager) resolvePrevOutputs(ctx context.Context, height uint32, txs []*model.Transaction) (map[model.TxOutputKey]blockvalidation.ResolvedOutput, error) {
	indexInBlock := make(map[model.Hash]int, len(txs))
	for i, tx := range txs {
		indexInBlock[tx.Hash(m.codec)] = i
	}

	resolved := make(map[model.TxOutputKey]blockvalidation.ResolvedOutput)
	for _, tx := range txs {
		if tx.IsCoinbase() {
			continue
		}
		for _, in := range tx.Inputs {
			key := in.PrevOutput
			if _, ok := resolved[key]; ok {
				continue
			}

			if srcIndex, ok := indexInBlock[key.TxHash]; ok {
				src := txs[srcIndex]
				if int(key.OutputIndex) >= len(src.Outputs) {
					return nil, errors.New(errors.ERR_MISSING_DATA, "output index %d out of range for in-block tx %s", key.OutputIndex, key.TxHash)
				}
				resolved[key] = blockvalidation.ResolvedOutput{
					Output:      src.Outputs[key.OutputIndex],
					MinedHeight: height,
					IsCoinbase:  srcIndex == 0,
				}
				continue
			}

			out, ok, err := m.store.GetUnspentOutput(ctx, key)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, errors.New(errors.ERR_MISSING_DATA, "missing previous output %s:%d", key.TxHash, key.OutputIndex)
			}
			unspent, ok, err := m.store.GetUnspentTx(ctx, key.TxHash)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, errors.New(errors.ERR_MISSING_DATA, "missing unspent tx record %s", key.TxHash)
			}
			resolved[key] = blockvalidation.ResolvedOutput{
				Output:      out,
				MinedHeight: unspent.BlockHeight,
				IsCoinbase:  unspent.TxIndex == 0,
			}
		}
	}
	return resolved, nil
}

// medianTimePast computes the median of the Time field of the 11 blocks
// preceding h (spec §4.3 Stage C locktime rule), grounded on the
// teacher's util/median_time.go CalcPastMedianTime (medianTimeBlocks =
// 11). Short ancestries (near genesis) use whatever's available rather
// than padding with zeroes.
func (m *Manager) medianTimePast(ctx context.Context, h *model.ChainedHeader) uint32 {
	const window = 11

	times := make([]uint32, 0, window)
	it := m.index.WalkAncestors(ctx, h.Header.PreviousHash)
	for len(times) < window {
		anc, ok := it.Next()
		if !ok {
			break
		}
		times = append(times, anc.Header.Time)
	}
	if len(times) == 0 {
		return h.Header.Time
	}

	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	return times[len(times)/2]
}

// expectedSubsidy halves the genesis block reward every
// SubsidyHalvingRate blocks, grounded on the teacher's
// util.GetBlockSubsidyForHeight (model/Block.go's coinbase-reward
// computation), floor at zero once every halving bit has been shifted out.
func expectedSubsidy(height uint32, cfg settings.ConsensusSettings) uint64 {
	if cfg.SubsidyHalvingRate == 0 {
		return cfg.GenesisReward
	}
	halvings := height / cfg.SubsidyHalvingRate
	if halvings >= 64 {
		return 0
	}
	return cfg.GenesisReward >> halvings
}

func (m *Manager) unwindOne(ctx context.Context, h *model.ChainedHeader) error {
	undo, ok := m.undoByHeight[h.Height]
	if !ok {
		return errors.NewStorageCorruptError("no undo data recorded for height %d (hash %s)", h.Height, h.Hash)
	}

	txs, err := m.bodies.GetBlockTransactions(ctx, h.Hash)
	if err != nil {
		return err
	}

	if err := m.store.UnwindBlock(ctx, undo); err != nil {
		return err
	}
	delete(m.undoByHeight, h.Height)

	unconfirmed := make([]*model.UnconfirmedTx, 0, len(txs))
	for _, tx := range txs {
		if tx.IsCoinbase() {
			continue
		}
		unconfirmed = append(unconfirmed, &model.UnconfirmedTx{Tx: tx})
	}
	return m.pool.OnBlockUnwound(ctx, unconfirmed, m.codec)
}
