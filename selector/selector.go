// Package selector implements the target chain selector (spec §4.2): it
// tracks every known chain tip, picks the one with the greatest
// cumulative work, and recomputes incrementally whenever a header is
// inserted or a block is marked invalid, breaking ties by which tip was
// seen first. Grounded on the teacher's services/blockchain best-block
// tracking (a single in-memory "current tip" recomputed on every header
// notification) generalized to the spec's fork-choice-by-total-work rule.
package selector

import (
	"context"
	"sync"

	"github.com/coreledger/chaincore/chainindex"
	"github.com/coreledger/chaincore/eventbus"
	"github.com/coreledger/chaincore/invalidblocks"
	"github.com/coreledger/chaincore/model"
	"github.com/coreledger/chaincore/ulogger"
)

// TargetChanged is published whenever the selected target tip changes.
type TargetChanged struct {
	Previous *model.ChainedHeader
	Current  *model.ChainedHeader
}

// Selector holds the set of known leaf tips (headers with no indexed
// child yet) and the currently selected target among them.
type Selector struct {
	mu        sync.Mutex
	index     *chainindex.Index
	invalid   *invalidblocks.Cache
	logger    ulogger.Logger
	tips      map[model.Hash]*model.ChainedHeader
	firstSeen map[model.Hash]int64
	seq       int64
	current   *model.ChainedHeader

	TargetChanged *eventbus.Bus[TargetChanged]
}

// New constructs a Selector seeded with genesis as the initial (and, at
// construction time, only) tip, and subscribes to invalid-block events
// so a later blacklisting of the current target triggers recompute.
func New(logger ulogger.Logger, index *chainindex.Index, invalid *invalidblocks.Cache) *Selector {
	logger = logger.New("selector")

	genesis, _ := index.Get(context.Background(), index.GenesisHash())

	s := &Selector{
		index:         index,
		invalid:       invalid,
		logger:        logger,
		tips:          map[model.Hash]*model.ChainedHeader{genesis.Hash: genesis},
		firstSeen:     map[model.Hash]int64{genesis.Hash: 0},
		current:       genesis,
		TargetChanged: eventbus.New[TargetChanged](),
	}

	invalid.Added.Subscribe(func(a invalidblocks.Addition) {
		_ = s.OnInvalidBlock(context.Background(), a.Hash)
	})

	return s
}

// OnHeaderInserted registers a newly-indexed header as a candidate tip
// (removing its parent, which now has a child and so is no longer a
// leaf), and recomputes the target if this tip outranks the current one.
func (s *Selector) OnHeaderInserted(ctx context.Context, chained *model.ChainedHeader) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if chained.Height > 0 {
		delete(s.tips, chained.Header.PreviousHash)
	}
	s.tips[chained.Hash] = chained
	s.markSeen(chained.Hash)

	return s.recomputeLocked(ctx)
}

// OnInvalidBlock drops hash from the tip set (if it was one), puts that
// tip's indexed parent back into the tip set as a candidate, and
// recomputes the target, since the previously-best chain may now be
// disqualified.
func (s *Selector) OnInvalidBlock(ctx context.Context, hash model.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tip, ok := s.tips[hash]; ok {
		delete(s.tips, hash)
		if parent, found := s.index.Get(ctx, tip.Header.PreviousHash); found {
			s.tips[parent.Hash] = parent
			s.markSeen(parent.Hash)
		}
	}
	return s.recomputeLocked(ctx)
}

// Current returns the presently selected target chain tip.
func (s *Selector) Current() *model.ChainedHeader {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Chain materializes the full genesis-to-tip Chain for the current
// target by delegating to the chain index.
func (s *Selector) Chain(ctx context.Context) (*model.Chain, error) {
	s.mu.Lock()
	tip := s.current
	s.mu.Unlock()
	return s.index.ChainTo(ctx, tip.Hash)
}

func (s *Selector) markSeen(hash model.Hash) {
	if _, ok := s.firstSeen[hash]; !ok {
		s.seq++
		s.firstSeen[hash] = s.seq
	}
}

// recomputeLocked scans every known tip, skips any whose ancestry
// includes a blacklisted hash, and selects the remaining tip with the
// greatest total work, breaking ties by first-seen order. Must be
// called with s.mu held.
func (s *Selector) recomputeLocked(ctx context.Context) error {
	var best *model.ChainedHeader

	for hash, tip := range s.tips {
		blacklisted, err := s.chainIsBlacklisted(ctx, tip)
		if err != nil {
			return err
		}
		if blacklisted {
			continue
		}

		if best == nil {
			best = tip
			continue
		}

		cmp := tip.TotalWork.Cmp(best.TotalWork)
		if cmp > 0 || (cmp == 0 && s.firstSeen[hash] < s.firstSeen[best.Hash]) {
			best = tip
		}
	}

	if best == nil {
		return nil
	}

	if s.current == nil || best.Hash != s.current.Hash {
		previous := s.current
		s.current = best
		s.logger.Infof("target chain changed: height %d hash %s", best.Height, best.Hash)
		s.TargetChanged.Publish(TargetChanged{Previous: previous, Current: best})
	}

	return nil
}

// chainIsBlacklisted walks tip's ancestry checking the invalid-block
// cache. Tips are few relative to chain depth in practice (one per
// live fork), so a full ancestor walk per recompute is acceptable; a
// production deployment could cache the deepest-known-good height per
// tip to bound this, which this module does not attempt.
func (s *Selector) chainIsBlacklisted(ctx context.Context, tip *model.ChainedHeader) (bool, error) {
	if _, ok, err := s.invalid.Contains(ctx, tip.Hash); err != nil {
		return false, err
	} else if ok {
		return true, nil
	}

	it := s.index.WalkAncestors(ctx, tip.Header.PreviousHash)
	for {
		h, ok := it.Next()
		if !ok {
			break
		}
		if _, invalid, err := s.invalid.Contains(ctx, h.Hash); err != nil {
			return false, err
		} else if invalid {
			return true, nil
		}
	}
	return false, nil
}
