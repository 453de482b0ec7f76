// Package invalidblocks implements the invalid-block cache (spec §4.7):
// a durable hash blacklist, fronted by an in-process TTL cache so
// repeated lookups (the selector consults this for every ancestor of
// every candidate tip) don't round-trip storage. Grounded on the
// teacher's use of github.com/jellydator/ttlcache/v3 for hot-path
// negative caches (services/blockvalidation uses the same library for
// its subtree existence cache).
package invalidblocks

import (
	"context"
	"time"

	"github.com/coreledger/chaincore/eventbus"
	"github.com/coreledger/chaincore/model"
	"github.com/coreledger/chaincore/storage"
	"github.com/coreledger/chaincore/ulogger"
	"github.com/jellydator/ttlcache/v3"
)

// Addition is published on the Added bus whenever a hash is newly
// marked invalid, so the target chain selector can react (spec §4.2/§4.7).
type Addition struct {
	Hash   model.Hash
	Reason string
}

// Cache is the invalid-block cache: Add durably records a hash as
// invalid with a reason; Contains answers in O(1) from the hot cache,
// falling back to the durable backend on a miss.
type Cache struct {
	backend storage.InvalidBlockBackend
	hot     *ttlcache.Cache[model.Hash, string]
	logger  ulogger.Logger

	Added *eventbus.Bus[Addition]
}

// New constructs a Cache with a 24h hot-entry TTL — long enough that a
// busy validator never round-trips storage for a hash it has already
// rejected this session, short enough that memory doesn't grow
// unbounded across a long-running process (the durable backend is the
// source of truth regardless of eviction).
func New(backend storage.InvalidBlockBackend, logger ulogger.Logger) *Cache {
	hot := ttlcache.New[model.Hash, string](
		ttlcache.WithTTL[model.Hash, string](24 * time.Hour),
	)
	go hot.Start()

	return &Cache{
		backend: backend,
		hot:     hot,
		logger:  logger.New("invalidblocks"),
		Added:   eventbus.New[Addition](),
	}
}

// Add durably marks hash as invalid with reason, populates the hot
// cache, and publishes an Addition event.
func (c *Cache) Add(ctx context.Context, hash model.Hash, reason string) error {
	if err := c.backend.Add(ctx, hash, reason); err != nil {
		return err
	}
	c.hot.Set(hash, reason, ttlcache.DefaultTTL)
	c.logger.Infof("marked block %s invalid: %s", hash, reason)
	c.Added.Publish(Addition{Hash: hash, Reason: reason})
	return nil
}

// Contains reports whether hash has been marked invalid, and if so why.
func (c *Cache) Contains(ctx context.Context, hash model.Hash) (reason string, ok bool, err error) {
	if item := c.hot.Get(hash); item != nil {
		return item.Value(), true, nil
	}
	reason, ok, err = c.backend.Contains(ctx, hash)
	if err != nil {
		return "", false, err
	}
	if ok {
		c.hot.Set(hash, reason, ttlcache.DefaultTTL)
	}
	return reason, ok, nil
}

// Close stops the hot cache's background eviction goroutine.
func (c *Cache) Close() {
	c.hot.Stop()
}
