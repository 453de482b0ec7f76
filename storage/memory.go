package storage

import (
	"context"
	"sync"

	"github.com/coreledger/chaincore/errors"
	"github.com/coreledger/chaincore/model"
)

// MemoryBackend is a process-local, mutex-guarded StorageBackend. It is
// the default backend for tests and for cmd/coreharness. The sqlstore
// package provides a SQL-backed HeaderIndex only; there is no SQL-backed
// implementation of the rest of the contract.
type MemoryBackend struct {
	headers *memoryHeaderIndex
	utxo    *memoryUTXOBackend
	mempool *memoryMempoolBackend
	invalid *memoryInvalidBlocks
}

// NewMemoryBackend constructs an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		headers: &memoryHeaderIndex{entries: make(map[model.Hash]*model.ChainedHeader)},
		utxo:    newMemoryUTXOBackend(),
		mempool: newMemoryMempoolBackend(),
		invalid: &memoryInvalidBlocks{entries: make(map[model.Hash]string)},
	}
}

func (b *MemoryBackend) OpenHeaderIndex() HeaderIndex             { return b.headers }
func (b *MemoryBackend) OpenUTXOBackend() UTXOBackend             { return b.utxo }
func (b *MemoryBackend) OpenMempoolBackend() MempoolBackend       { return b.mempool }
func (b *MemoryBackend) OpenInvalidBlockBackend() InvalidBlockBackend { return b.invalid }

// --- header index ---

type memoryHeaderIndex struct {
	mu      sync.RWMutex
	entries map[model.Hash]*model.ChainedHeader
}

func (m *memoryHeaderIndex) Get(_ context.Context, hash model.Hash) (*model.ChainedHeader, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.entries[hash]
	return h, ok
}

func (m *memoryHeaderIndex) Put(_ context.Context, header *model.ChainedHeader) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[header.Hash] = header
	return nil
}

// --- UTXO ---

type memoryUTXOBackend struct {
	mu       sync.RWMutex // guards writer exclusivity; readers take RLock
	chainTip model.Hash
	hasTip   bool
	records  map[model.Hash]*utxoRecord
}

type utxoRecord struct {
	tx      *model.UnspentTx
	outputs []*model.TxOutput
}

func newMemoryUTXOBackend() *memoryUTXOBackend {
	return &memoryUTXOBackend{records: make(map[model.Hash]*utxoRecord)}
}

func (b *memoryUTXOBackend) SupportsConcurrentReaders() bool { return true }

func (b *memoryUTXOBackend) Begin(_ context.Context, readOnly bool) (UTXOCursor, error) {
	if readOnly {
		b.mu.RLock()
	} else {
		b.mu.Lock()
	}
	return &memoryUTXOCursor{backend: b, readOnly: readOnly}, nil
}

// memoryUTXOCursor buffers writes and applies them atomically on
// Commit, so a Rollback (or a panic recovered by the caller) leaves the
// backend untouched.
type memoryUTXOCursor struct {
	backend  *memoryUTXOBackend
	readOnly bool
	closed   bool

	newTip    model.Hash
	tipSet    bool
	puts      map[model.Hash]*utxoRecord
	deletes   map[model.Hash]bool
	spends    map[model.TxOutputKey]bool
	unspends  map[model.TxOutputKey]bool
}

func (c *memoryUTXOCursor) lazyInit() {
	if c.puts == nil {
		c.puts = make(map[model.Hash]*utxoRecord)
		c.deletes = make(map[model.Hash]bool)
		c.spends = make(map[model.TxOutputKey]bool)
		c.unspends = make(map[model.TxOutputKey]bool)
	}
}

func (c *memoryUTXOCursor) ChainTip(_ context.Context) (model.Hash, bool, error) {
	if c.tipSet {
		return c.newTip, true, nil
	}
	return c.backend.chainTip, c.backend.hasTip, nil
}

func (c *memoryUTXOCursor) SetChainTip(_ context.Context, hash model.Hash) error {
	if c.readOnly {
		return errors.New(errors.ERR_INVALID_ARGUMENT, "cannot write on a read-only cursor")
	}
	c.newTip = hash
	c.tipSet = true
	return nil
}

func (c *memoryUTXOCursor) UnspentTxCount(_ context.Context) (uint64, error) {
	return uint64(len(c.backend.records)), nil
}

func (c *memoryUTXOCursor) lookup(hash model.Hash) (*utxoRecord, bool) {
	c.lazyInit()
	if c.deletes[hash] {
		return nil, false
	}
	if rec, ok := c.puts[hash]; ok {
		return rec, true
	}
	rec, ok := c.backend.records[hash]
	return rec, ok
}

func (c *memoryUTXOCursor) TryGetUnspentTx(_ context.Context, hash model.Hash) (*model.UnspentTx, bool, error) {
	rec, ok := c.lookup(hash)
	if !ok {
		return nil, false, nil
	}
	return rec.tx.Clone(), true, nil
}

func (c *memoryUTXOCursor) TryGetUnspentOutput(_ context.Context, key model.TxOutputKey) (*model.TxOutput, bool, error) {
	rec, ok := c.lookup(key.TxHash)
	if !ok || int(key.OutputIndex) >= len(rec.outputs) {
		return nil, false, nil
	}
	if rec.tx.OutputState[key.OutputIndex] == model.OutputSpent {
		return nil, false, nil
	}
	return rec.outputs[key.OutputIndex], true, nil
}

func (c *memoryUTXOCursor) TryAddUnspentTx(_ context.Context, hash model.Hash, rec *model.UnspentTx, outputs []*model.TxOutput) error {
	if c.readOnly {
		return errors.New(errors.ERR_INVALID_ARGUMENT, "cannot write on a read-only cursor")
	}
	c.lazyInit()
	if _, exists := c.lookup(hash); exists {
		return errors.NewStorageCorruptError("unspent tx %s already present", hash)
	}
	c.puts[hash] = &utxoRecord{tx: rec.Clone(), outputs: outputs}
	delete(c.deletes, hash)
	return nil
}

func (c *memoryUTXOCursor) TryRestoreUnspentTx(_ context.Context, hash model.Hash, rec *model.UnspentTx, outputs []*model.TxOutput) error {
	if c.readOnly {
		return errors.New(errors.ERR_INVALID_ARGUMENT, "cannot write on a read-only cursor")
	}
	c.lazyInit()
	c.puts[hash] = &utxoRecord{tx: rec.Clone(), outputs: outputs}
	delete(c.deletes, hash)
	return nil
}

func (c *memoryUTXOCursor) TrySpendOutput(_ context.Context, key model.TxOutputKey) (bool, error) {
	if c.readOnly {
		return false, errors.New(errors.ERR_INVALID_ARGUMENT, "cannot write on a read-only cursor")
	}
	rec, ok := c.lookup(key.TxHash)
	if !ok || int(key.OutputIndex) >= len(rec.tx.OutputState) {
		return false, nil
	}
	if rec.tx.OutputState[key.OutputIndex] == model.OutputSpent {
		return false, nil
	}
	c.lazyInit()
	staged := rec.tx.Clone()
	staged.OutputState[key.OutputIndex] = model.OutputSpent
	c.puts[key.TxHash] = &utxoRecord{tx: staged, outputs: rec.outputs}
	return true, nil
}

func (c *memoryUTXOCursor) TryUnspendOutput(_ context.Context, key model.TxOutputKey) error {
	if c.readOnly {
		return errors.New(errors.ERR_INVALID_ARGUMENT, "cannot write on a read-only cursor")
	}
	rec, ok := c.lookup(key.TxHash)
	if !ok {
		return errors.NewStorageCorruptError("cannot unspend missing tx %s", key.TxHash)
	}
	c.lazyInit()
	staged := rec.tx.Clone()
	staged.OutputState[key.OutputIndex] = model.OutputUnspent
	c.puts[key.TxHash] = &utxoRecord{tx: staged, outputs: rec.outputs}
	return nil
}

func (c *memoryUTXOCursor) TryRemoveUnspentTx(_ context.Context, hash model.Hash) error {
	if c.readOnly {
		return errors.New(errors.ERR_INVALID_ARGUMENT, "cannot write on a read-only cursor")
	}
	c.lazyInit()
	delete(c.puts, hash)
	c.deletes[hash] = true
	return nil
}

func (c *memoryUTXOCursor) Iterate(_ context.Context, fn func(hash model.Hash, rec *model.UnspentTx) bool) error {
	c.lazyInit()
	seen := make(map[model.Hash]bool)
	for hash, rec := range c.puts {
		seen[hash] = true
		if !fn(hash, rec.tx) {
			return nil
		}
	}
	for hash, rec := range c.backend.records {
		if seen[hash] || c.deletes[hash] {
			continue
		}
		if !fn(hash, rec.tx) {
			return nil
		}
	}
	return nil
}

func (c *memoryUTXOCursor) Commit(_ context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true
	defer c.unlock()

	if c.readOnly {
		return nil
	}

	for hash := range c.deletes {
		delete(c.backend.records, hash)
	}
	for hash, rec := range c.puts {
		c.backend.records[hash] = rec
	}
	if c.tipSet {
		c.backend.chainTip = c.newTip
		c.backend.hasTip = true
	}
	return nil
}

func (c *memoryUTXOCursor) Rollback(_ context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.unlock()
	return nil
}

func (c *memoryUTXOCursor) unlock() {
	if c.readOnly {
		c.backend.mu.RUnlock()
	} else {
		c.backend.mu.Unlock()
	}
}

// --- mempool ---

type memoryMempoolBackend struct {
	mu      sync.Mutex
	entries map[model.Hash]*model.UnconfirmedTx
}

func newMemoryMempoolBackend() *memoryMempoolBackend {
	return &memoryMempoolBackend{entries: make(map[model.Hash]*model.UnconfirmedTx)}
}

func (b *memoryMempoolBackend) Begin(_ context.Context) (MempoolCursor, error) {
	b.mu.Lock()
	return &memoryMempoolCursor{backend: b}, nil
}

type memoryMempoolCursor struct {
	backend *memoryMempoolBackend
	closed  bool
	puts    map[model.Hash]*model.UnconfirmedTx
	deletes map[model.Hash]bool
}

func (c *memoryMempoolCursor) lazyInit() {
	if c.puts == nil {
		c.puts = make(map[model.Hash]*model.UnconfirmedTx)
		c.deletes = make(map[model.Hash]bool)
	}
}

func (c *memoryMempoolCursor) Put(_ context.Context, hash model.Hash, tx *model.UnconfirmedTx) error {
	c.lazyInit()
	c.puts[hash] = tx
	delete(c.deletes, hash)
	return nil
}

func (c *memoryMempoolCursor) Delete(_ context.Context, hash model.Hash) error {
	c.lazyInit()
	delete(c.puts, hash)
	c.deletes[hash] = true
	return nil
}

func (c *memoryMempoolCursor) Get(_ context.Context, hash model.Hash) (*model.UnconfirmedTx, bool, error) {
	c.lazyInit()
	if c.deletes[hash] {
		return nil, false, nil
	}
	if tx, ok := c.puts[hash]; ok {
		return tx, true, nil
	}
	tx, ok := c.backend.entries[hash]
	return tx, ok, nil
}

func (c *memoryMempoolCursor) Iterate(_ context.Context, fn func(hash model.Hash, tx *model.UnconfirmedTx) bool) error {
	c.lazyInit()
	seen := make(map[model.Hash]bool)
	for hash, tx := range c.puts {
		seen[hash] = true
		if !fn(hash, tx) {
			return nil
		}
	}
	for hash, tx := range c.backend.entries {
		if seen[hash] || c.deletes[hash] {
			continue
		}
		if !fn(hash, tx) {
			return nil
		}
	}
	return nil
}

func (c *memoryMempoolCursor) Commit(_ context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true
	defer c.backend.mu.Unlock()

	for hash := range c.deletes {
		delete(c.backend.entries, hash)
	}
	for hash, tx := range c.puts {
		c.backend.entries[hash] = tx
	}
	return nil
}

func (c *memoryMempoolCursor) Rollback(_ context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.backend.mu.Unlock()
	return nil
}

// --- invalid block cache ---

type memoryInvalidBlocks struct {
	mu      sync.RWMutex
	entries map[model.Hash]string
}

func (m *memoryInvalidBlocks) Add(_ context.Context, hash model.Hash, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[hash] = reason
	return nil
}

func (m *memoryInvalidBlocks) Contains(_ context.Context, hash model.Hash) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reason, ok := m.entries[hash]
	return reason, ok, nil
}
