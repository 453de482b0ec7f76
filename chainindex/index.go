// Package chainindex implements the persistent append-only header index
// (spec §4.1): hash -> ChainedHeader, plus ancestor walking and common
// ancestor queries. Grounded on the teacher's stores/blockchain/sql
// package (hash-keyed header table with height/total-work columns) but
// backed here by the storage.HeaderIndex cursor contract so any
// StorageBackend can serve it.
package chainindex

import (
	"context"
	"math/big"
	"sync"

	"github.com/coreledger/chaincore/errors"
	"github.com/coreledger/chaincore/model"
	"github.com/coreledger/chaincore/storage"
	"github.com/coreledger/chaincore/ulogger"
)

// Index is the append-only hash -> ChainedHeader map with a genesis
// anchor, insert validation, and ancestor-walk queries.
type Index struct {
	mu      sync.RWMutex
	backend storage.HeaderIndex
	logger  ulogger.Logger
	genesis model.Hash
	codec   model.BlockCodec
}

// New constructs an Index over backend. genesisHeader is inserted
// immediately with height 0 and total_work = work_from_bits(genesisHeader.Bits).
func New(logger ulogger.Logger, backend storage.HeaderIndex, genesisHeader *model.BlockHeader, codec model.BlockCodec) (*Index, error) {
	if codec == nil {
		codec = model.DefaultCodec
	}

	idx := &Index{backend: backend, logger: logger.New("chainindex"), codec: codec}

	genesisHash := genesisHeader.Hash(codec)
	if _, ok := backend.Get(context.Background(), genesisHash); !ok {
		genesis := &model.ChainedHeader{
			Header:    genesisHeader,
			Hash:      genesisHash,
			Height:    0,
			TotalWork: model.WorkFromBits(genesisHeader.Bits),
		}
		if err := backend.Put(context.Background(), genesis); err != nil {
			return nil, err
		}
	}

	idx.genesis = genesisHash
	return idx, nil
}

// Insert adds header to the index. Fails with ERR_UNKNOWN_PARENT if
// previous_hash is not indexed (and header is not genesis). The entry's
// total_work is not supplied by the caller: Insert computes it as
// prev.total_work + work_from_bits(header.bits).
func (idx *Index) Insert(ctx context.Context, header *model.BlockHeader) (*model.ChainedHeader, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	hash := header.Hash(idx.codec)

	if existing, ok := idx.backend.Get(ctx, hash); ok {
		return existing, nil
	}

	if hash == idx.genesis {
		return nil, errors.New(errors.ERR_INVALID_ARGUMENT, "genesis already indexed, cannot re-insert")
	}

	prev, ok := idx.backend.Get(ctx, header.PreviousHash)
	if !ok {
		return nil, errors.ErrUnknownParent
	}

	work := new(big.Int).Add(prev.TotalWork, model.WorkFromBits(header.Bits))

	chained := &model.ChainedHeader{
		Header:    header,
		Hash:      hash,
		Height:    prev.Height + 1,
		TotalWork: work,
	}

	if err := idx.backend.Put(ctx, chained); err != nil {
		return nil, err
	}

	idx.logger.Debugf("indexed header %s at height %d", hash, chained.Height)

	return chained, nil
}

// Get looks up a header by hash.
func (idx *Index) Get(ctx context.Context, hash model.Hash) (*model.ChainedHeader, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.backend.Get(ctx, hash)
}

// GenesisHash returns the anchor genesis hash.
func (idx *Index) GenesisHash() model.Hash {
	return idx.genesis
}

// WalkAncestors returns a lazy iterator over the ancestry of hash,
// starting at hash itself and terminating at genesis inclusive.
func (idx *Index) WalkAncestors(ctx context.Context, hash model.Hash) *AncestorIterator {
	return &AncestorIterator{idx: idx, ctx: ctx, next: hash, done: false}
}

// AncestorIterator produces a finite sequence of ChainedHeaders walking
// backwards from a starting hash to genesis, one Next() call at a time,
// so callers never materialize the full ancestry unless they choose to.
type AncestorIterator struct {
	idx  *Index
	ctx  context.Context
	next model.Hash
	done bool
}

// Next returns the next ancestor, or (nil, false) once genesis has been
// yielded.
func (it *AncestorIterator) Next() (*model.ChainedHeader, bool) {
	if it.done {
		return nil, false
	}

	header, ok := it.idx.Get(it.ctx, it.next)
	if !ok {
		it.done = true
		return nil, false
	}

	if header.Hash == it.idx.genesis {
		it.done = true
	} else {
		it.next = header.Header.PreviousHash
	}

	return header, true
}

// FindCommonAncestor walks both hashes back to equal height, then
// together until the hashes match, per spec §4.1.
func (idx *Index) FindCommonAncestor(ctx context.Context, a, b model.Hash) (*model.ChainedHeader, error) {
	ha, ok := idx.Get(ctx, a)
	if !ok {
		return nil, errors.NewNotFoundError("header %s not indexed", a)
	}
	hb, ok := idx.Get(ctx, b)
	if !ok {
		return nil, errors.NewNotFoundError("header %s not indexed", b)
	}

	for ha.Height > hb.Height {
		ha, ok = idx.Get(ctx, ha.Header.PreviousHash)
		if !ok {
			return nil, errors.NewStorageCorruptError("ancestor of %s missing from index", a)
		}
	}
	for hb.Height > ha.Height {
		hb, ok = idx.Get(ctx, hb.Header.PreviousHash)
		if !ok {
			return nil, errors.NewStorageCorruptError("ancestor of %s missing from index", b)
		}
	}

	for ha.Hash != hb.Hash {
		if ha.Height == 0 {
			return nil, errors.NewStorageCorruptError("chains %s and %s share no common ancestor", a, b)
		}
		ha, ok = idx.Get(ctx, ha.Header.PreviousHash)
		if !ok {
			return nil, errors.NewStorageCorruptError("ancestor missing from index")
		}
		hb, ok = idx.Get(ctx, hb.Header.PreviousHash)
		if !ok {
			return nil, errors.NewStorageCorruptError("ancestor missing from index")
		}
	}

	return ha, nil
}

// ChainTo materializes the full genesis-to-hash Chain by walking
// ancestors. Used by callers (selector, chain state manager) that need
// random access into the chain, not just a streaming walk.
func (idx *Index) ChainTo(ctx context.Context, hash model.Hash) (*model.Chain, error) {
	tip, ok := idx.Get(ctx, hash)
	if !ok {
		return nil, errors.NewNotFoundError("header %s not indexed", hash)
	}

	headers := make([]*model.ChainedHeader, tip.Height+1)
	it := idx.WalkAncestors(ctx, hash)
	for {
		h, ok := it.Next()
		if !ok {
			break
		}
		headers[h.Height] = h
	}

	for _, h := range headers {
		if h == nil {
			return nil, errors.NewStorageCorruptError("gap in ancestry of %s", hash)
		}
	}

	return model.NewChain(headers), nil
}
