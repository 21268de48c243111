// Package tiered implements a two-level (L1 + L2) cache adapter.
package tiered

import (
	"context"
	"time"

	"github.com/Strob0t/LabCore/internal/port/cache"
)

// Cache combines an L1 (in-process) and an optional L2 (shared) cache.
// Get checks L1 first, then L2 (backfilling L1 on L2 hit).
// Set and Delete operate on both levels.
type Cache struct {
	l1    cache.Cache
	l2    cache.Cache
	l1TTL time.Duration
}

// New creates a tiered cache. l2 may be nil for a single-process deployment.
// l1TTL caps how long any entry lives in L1, so an entry changed by another
// process is stale locally for at most l1TTL.
func New(l1, l2 cache.Cache, l1TTL time.Duration) *Cache {
	return &Cache{l1: l1, l2: l2, l1TTL: l1TTL}
}

// Get checks L1, then L2. On L2 hit, backfills L1.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	val, found, err := c.l1.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found || c.l2 == nil {
		return val, found, nil
	}

	val, found, err = c.l2.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		_ = c.l1.Set(ctx, key, val, c.l1TTL)
		return val, true, nil
	}
	return nil, false, nil
}

// Set writes to both levels. L1 keeps the entry for the shorter of ttl and
// the L1 cap.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.l1.Set(ctx, key, value, c.localTTL(ttl)); err != nil {
		return err
	}
	if c.l2 == nil {
		return nil
	}
	return c.l2.Set(ctx, key, value, ttl)
}

// Delete removes from both levels. L2 goes first so a concurrent L1 miss
// cannot backfill the old value.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if c.l2 != nil {
		if err := c.l2.Delete(ctx, key); err != nil {
			return err
		}
	}
	return c.l1.Delete(ctx, key)
}

// EvictLocal drops key from L1 only. Used when another process announced
// that it changed the shared entry.
func (c *Cache) EvictLocal(ctx context.Context, key string) error {
	return c.l1.Delete(ctx, key)
}

func (c *Cache) localTTL(ttl time.Duration) time.Duration {
	if c.l1TTL > 0 && (ttl <= 0 || ttl > c.l1TTL) {
		return c.l1TTL
	}
	return ttl
}

var _ cache.Evicter = (*Cache)(nil)
