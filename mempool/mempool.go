// Package mempool implements the mempool (spec §4.6): a hash ->
// UnconfirmedTx map plus a TxOutputKey -> spending-tx-hash index, kept
// consistent under a coarse update-lock (excludes other mempool
// mutators) and a narrower commit-lock (excludes only the index swap),
// matching the spec's two-lock discipline so reads during a block-apply
// batch don't stall behind the whole update. Grounded on the teacher's
// services/validator in-memory tx set plus stores/txmeta's commit-then-
// index pattern.
package mempool

import (
	"context"
	"sync"

	"github.com/coreledger/chaincore/errors"
	"github.com/coreledger/chaincore/eventbus"
	"github.com/coreledger/chaincore/model"
	"github.com/coreledger/chaincore/storage"
	"github.com/coreledger/chaincore/ulogger"
)

// TxAdded is published whenever a transaction is admitted via TryAdd.
type TxAdded struct {
	Hash model.Hash
	Tx   *model.UnconfirmedTx
}

// TxRemoved is published whenever a transaction leaves the mempool,
// either because a block containing it was applied or because it was
// evicted as a conflict.
type TxRemoved struct {
	Hash   model.Hash
	Reason string
}

// Mempool holds not-yet-confirmed transactions and the spend index used
// to reject double spends against other mempool transactions.
type Mempool struct {
	updateMu sync.Mutex // held across the whole of any mutating operation
	commitMu sync.Mutex // held only while swapping the in-memory index

	backend storage.MempoolBackend
	logger  ulogger.Logger

	byHash  map[model.Hash]*model.UnconfirmedTx
	spentBy map[model.TxOutputKey]model.Hash

	TxAdded   *eventbus.Bus[TxAdded]
	TxRemoved *eventbus.Bus[TxRemoved]
}

// New constructs an empty Mempool over backend.
func New(logger ulogger.Logger, backend storage.MempoolBackend) *Mempool {
	return &Mempool{
		backend:   backend,
		logger:    logger.New("mempool"),
		byHash:    make(map[model.Hash]*model.UnconfirmedTx),
		spentBy:   make(map[model.TxOutputKey]model.Hash),
		TxAdded:   eventbus.New[TxAdded](),
		TxRemoved: eventbus.New[TxRemoved](),
	}
}

// TryAdd admits tx if none of its inputs are already spent by another
// mempool transaction (spec §4.6 invariant: mempool inputs are always
// UTXO-unspent at admission time; callers validate against the UTXO
// store before calling TryAdd). Rejects with ERR_MEMPOOL_REJECT on a
// conflicting spend or a duplicate hash.
func (m *Mempool) TryAdd(ctx context.Context, hash model.Hash, tx *model.UnconfirmedTx) error {
	m.updateMu.Lock()
	defer m.updateMu.Unlock()

	if _, exists := m.byHash[hash]; exists {
		return errors.New(errors.ERR_MEMPOOL_REJECT, "transaction already in mempool")
	}

	for _, in := range tx.Tx.Inputs {
		if other, spent := m.spentBy[in.PrevOutput]; spent {
			return errors.New(errors.ERR_MEMPOOL_REJECT, "input already spent by mempool tx %s", other)
		}
	}

	cur, err := m.backend.Begin(ctx)
	if err != nil {
		return err
	}
	if err := cur.Put(ctx, hash, tx); err != nil {
		_ = cur.Rollback(ctx)
		return err
	}
	if err := cur.Commit(ctx); err != nil {
		return err
	}

	m.commitMu.Lock()
	m.byHash[hash] = tx
	for _, in := range tx.Tx.Inputs {
		m.spentBy[in.PrevOutput] = hash
	}
	m.commitMu.Unlock()

	m.TxAdded.Publish(TxAdded{Hash: hash, Tx: tx})
	return nil
}

// GetSpending returns the mempool transaction (if any) currently
// spending key, used by admission checks to detect conflicting inputs.
func (m *Mempool) GetSpending(key model.TxOutputKey) (model.Hash, bool) {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()
	hash, ok := m.spentBy[key]
	return hash, ok
}

// Get returns the mempool record for hash, if present.
func (m *Mempool) Get(hash model.Hash) (*model.UnconfirmedTx, bool) {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()
	tx, ok := m.byHash[hash]
	return tx, ok
}

// Size returns the number of transactions currently held.
func (m *Mempool) Size() int {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()
	return len(m.byHash)
}

// OnBlockApplied removes every transaction in the applied block from
// the mempool (spec §4.6): their inputs are now confirmed-spent, so
// they can no longer appear as pending work, and any other mempool tx
// that conflicted with one of them (same input, different tx) is
// evicted too since the conflict is now moot or unsatisfiable.
func (m *Mempool) OnBlockApplied(ctx context.Context, txs []*model.Transaction, codec model.BlockCodec) error {
	m.updateMu.Lock()
	defer m.updateMu.Unlock()

	cur, err := m.backend.Begin(ctx)
	if err != nil {
		return err
	}

	removed := make([]model.Hash, 0, len(txs))
	for _, tx := range txs {
		hash := tx.Hash(codec)
		if _, ok := m.byHash[hash]; ok {
			if err := cur.Delete(ctx, hash); err != nil {
				_ = cur.Rollback(ctx)
				return err
			}
			removed = append(removed, hash)
		}
		for _, in := range tx.Inputs {
			if conflict, spent := m.spentBy[in.PrevOutput]; spent && conflict != hash {
				if err := cur.Delete(ctx, conflict); err != nil {
					_ = cur.Rollback(ctx)
					return err
				}
				removed = append(removed, conflict)
			}
		}
	}

	if err := cur.Commit(ctx); err != nil {
		return err
	}

	m.commitMu.Lock()
	for _, hash := range removed {
		m.evictLocked(hash)
	}
	m.commitMu.Unlock()

	for _, hash := range removed {
		m.TxRemoved.Publish(TxRemoved{Hash: hash, Reason: "block_applied"})
	}
	return nil
}

// OnBlockUnwound re-admits transactions from an unwound block back into
// the mempool (spec §4.6), since their inputs are unspent again and
// they are once more valid candidates for a future block. Transactions
// whose inputs now conflict with something already in the mempool are
// silently dropped rather than re-admitted.
func (m *Mempool) OnBlockUnwound(ctx context.Context, txs []*model.UnconfirmedTx, codec model.BlockCodec) error {
	m.updateMu.Lock()
	defer m.updateMu.Unlock()

	for _, tx := range txs {
		hash := tx.Tx.Hash(codec)

		conflict := false
		for _, in := range tx.Tx.Inputs {
			if _, spent := m.spentBy[in.PrevOutput]; spent {
				conflict = true
				break
			}
		}
		if conflict {
			continue
		}

		cur, err := m.backend.Begin(ctx)
		if err != nil {
			return err
		}
		if err := cur.Put(ctx, hash, tx); err != nil {
			_ = cur.Rollback(ctx)
			return err
		}
		if err := cur.Commit(ctx); err != nil {
			return err
		}

		m.commitMu.Lock()
		m.byHash[hash] = tx
		for _, in := range tx.Tx.Inputs {
			m.spentBy[in.PrevOutput] = hash
		}
		m.commitMu.Unlock()

		m.TxAdded.Publish(TxAdded{Hash: hash, Tx: tx})
	}

	return nil
}

// evictLocked removes hash from both indexes. Caller must hold commitMu.
func (m *Mempool) evictLocked(hash model.Hash) {
	tx, ok := m.byHash[hash]
	if !ok {
		return
	}
	delete(m.byHash, hash)
	for _, in := range tx.Tx.Inputs {
		if m.spentBy[in.PrevOutput] == hash {
			delete(m.spentBy, in.PrevOutput)
		}
	}
}
