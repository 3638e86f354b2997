// Package cache holds storage usage records keyed by fid so repeated selections
// do not refetch accounts they have already seen.
package cache

import (
	"context"
	"strconv"

	"golang.org/x/sync/singleflight"

	"fcgift/internal/metrics"
	"fcgift/internal/models"
)

// Store is a key value store of usage records. Lookups never fail: backend
// problems are reported as a miss.
type Store interface {
	Get(ctx context.Context, fid int64) (*models.UsageRecord, bool)
	Put(ctx context.Context, fid int64, record *models.UsageRecord)
}

// Loader fetches a usage record on a cache miss.
type Loader func(ctx context.Context) (*models.UsageRecord, error)

// UsageCache provides cache-or-load semantics over a Store
type UsageCache struct {
	store   Store
	group   singleflight.Group
	metrics metrics.Collector
}

// New creates a new UsageCache instance
func New(store Store, collector metrics.Collector) *UsageCache {
	if collector == nil {
		collector = metrics.NewNop()
	}
	return &UsageCache{
		store:   store,
		metrics: collector,
	}
}

// Get returns the cached record for fid.
func (c *UsageCache) Get(ctx context.Context, fid int64) (*models.UsageRecord, bool) {
	record, ok := c.store.Get(ctx, fid)
	if ok {
		c.metrics.CacheLookup(metrics.CacheHit)
	} else {
		c.metrics.CacheLookup(metrics.CacheMiss)
	}
	return record, ok
}

// Put stores a record for fid.
func (c *UsageCache) Put(ctx context.Context, fid int64, record *models.UsageRecord) {
	c.store.Put(ctx, fid, record)
}

// GetOrLoad retrieves the record for fid from cache or calls the loader.
// Concurrent misses for the same fid share one loader call. The loader runs on a
// context detached from any single caller's cancellation but bounded by its
// deadline; each caller stops waiting when its own ctx is done. Only complete
// records returned without error are cached; failures are returned to every
// waiter and retried on the next lookup.
func (c *UsageCache) GetOrLoad(ctx context.Context, fid int64, loader Loader) (*models.UsageRecord, error) {
	if record, ok := c.Get(ctx, fid); ok {
		return record, nil
	}

	ch := c.group.DoChan(strconv.FormatInt(fid, 10), func() (any, error) {
		loadCtx, cancel := detach(ctx)
		defer cancel()

		// Another caller may have filled the entry while this one waited.
		if record, ok := c.store.Get(loadCtx, fid); ok {
			return record, nil
		}

		record, err := loader(loadCtx)
		if err != nil {
			return record, err
		}
		if record.Complete() {
			c.store.Put(loadCtx, fid, record)
		}
		return record, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		record, _ := res.Val.(*models.UsageRecord)
		return record, res.Err
	}
}

// detach drops ctx's cancellation and keeps its deadline.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	base := context.WithoutCancel(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(base, deadline)
	}
	return context.WithCancel(base)
}
