// Package storage defines the StorageBackend cursor contracts (spec
// §4.5/§6): the persistence boundary the chain index, chain state
// manager, UTXO store, mempool, and invalid-block cache are all built
// against. A concrete StorageBackend owns durability; everything above
// this package is storage-agnostic. Grounded on the teacher's
// stores/blockchain/sql and stores/utxo/sql packages, which follow the
// same open-a-handle / cursor-scoped-transaction shape.
package storage

import (
	"context"

	"github.com/coreledger/chaincore/model"
)

// HeaderIndex is the hash -> ChainedHeader contract used by chainindex.
type HeaderIndex interface {
	Get(ctx context.Context, hash model.Hash) (*model.ChainedHeader, bool)
	Put(ctx context.Context, header *model.ChainedHeader) error
}

// UTXOCursor is the transactional scope over the UTXO store (spec §4.5):
// begin, do work, commit or rollback. A cursor left open past its
// caller's scope without an explicit Commit is rolled back by whatever
// mechanism the concrete backend uses to enforce auto-rollback (e.g. a
// deferred Rollback that is a no-op after Commit).
type UTXOCursor interface {
	ChainTip(ctx context.Context) (model.Hash, bool, error)
	SetChainTip(ctx context.Context, hash model.Hash) error

	UnspentTxCount(ctx context.Context) (uint64, error)

	TryGetUnspentTx(ctx context.Context, hash model.Hash) (*model.UnspentTx, bool, error)
	TryGetUnspentOutput(ctx context.Context, key model.TxOutputKey) (*model.TxOutput, bool, error)

	// TryAddUnspentTx inserts a brand-new transaction's outputs into the
	// set. Fails with ERR_STORAGE_CORRUPT if the hash already exists
	// (callers are expected to have excluded that
	// case via Stage A uniqueness checks, so this is a storage-corruption
	// signal here, not a normal rejection path).
	TryAddUnspentTx(ctx context.Context, hash model.Hash, rec *model.UnspentTx, outputs []*model.TxOutput) error

	// TrySpendOutput marks a single output Spent. Returns ok=false if the
	// output does not exist or is already spent (double-spend).
	TrySpendOutput(ctx context.Context, key model.TxOutputKey) (ok bool, err error)

	// TryUnspendOutput reverses TrySpendOutput, used when unwinding a
	// block during reorg.
	TryUnspendOutput(ctx context.Context, key model.TxOutputKey) error

	// TryRemoveUnspentTx deletes a transaction's record whatever the state
	// of its outputs; used when unwinding the block that added it.
	TryRemoveUnspentTx(ctx context.Context, hash model.Hash) error

	// TryRestoreUnspentTx re-inserts a transaction's record during
	// unwind, restoring the per-output state it had before removal.
	TryRestoreUnspentTx(ctx context.Context, hash model.Hash, rec *model.UnspentTx, outputs []*model.TxOutput) error

	Iterate(ctx context.Context, fn func(hash model.Hash, rec *model.UnspentTx) bool) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// UTXOBackend opens transactional scopes over the UTXO store.
type UTXOBackend interface {
	Begin(ctx context.Context, readOnly bool) (UTXOCursor, error)
	// SupportsConcurrentReaders reports whether many read-only cursors
	// may be open alongside a single writer (spec §4.5 concurrency
	// model). False forces callers to serialize all access.
	SupportsConcurrentReaders() bool
}

// MempoolCursor is the transactional scope over the mempool's durable
// backing (spec §4.6), used for commit-lock-guarded batch updates such
// as on_block_applied/on_block_unwound.
type MempoolCursor interface {
	Put(ctx context.Context, hash model.Hash, tx *model.UnconfirmedTx) error
	Delete(ctx context.Context, hash model.Hash) error
	Get(ctx context.Context, hash model.Hash) (*model.UnconfirmedTx, bool, error)
	Iterate(ctx context.Context, fn func(hash model.Hash, tx *model.UnconfirmedTx) bool) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// MempoolBackend opens transactional scopes over the mempool's durable
// backing.
type MempoolBackend interface {
	Begin(ctx context.Context) (MempoolCursor, error)
}

// InvalidBlockBackend is the durable backing for the invalid-block
// cache (spec §4.7): a hash blacklist with a human-readable reason,
// surviving process restarts independent of the in-memory TTL front.
type InvalidBlockBackend interface {
	Add(ctx context.Context, hash model.Hash, reason string) error
	Contains(ctx context.Context, hash model.Hash) (reason string, ok bool, err error)
}

// Backend is the full StorageBackend contract (spec §6): the single
// external collaborator every persistence-facing component in this
// module is constructed against.
type Backend interface {
	OpenHeaderIndex() HeaderIndex
	OpenUTXOBackend() UTXOBackend
	OpenMempoolBackend() MempoolBackend
	OpenInvalidBlockBackend() InvalidBlockBackend
}
