package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Strob0t/LabCore/internal/port/cache"
)

// GuardedCache puts a Breaker in front of a shared cache level. While the
// breaker is open, reads report a miss and writes are skipped, so callers
// fall through to the database instead of waiting on a dead backend.
// Deletes always reach the backend: a skipped delete would leave a revoked
// membership cached until it expires.
type GuardedCache struct {
	next    cache.Cache
	breaker *Breaker
	name    string
}

// GuardCache wraps next. name labels the backend in log lines.
func GuardCache(next cache.Cache, b *Breaker, name string) *GuardedCache {
	return &GuardedCache{next: next, breaker: b, name: name}
}

// Get implements cache.Cache.
func (g *GuardedCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		data []byte
		ok   bool
	)
	err := g.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		data, ok, err = g.next.Get(ctx, key)
		return err
	})
	if err != nil {
		g.logSkip(ctx, "get", err)
		return nil, false, nil
	}
	return data, ok, nil
}

// Set implements cache.Cache.
func (g *GuardedCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := g.breaker.Do(ctx, func(ctx context.Context) error {
		return g.next.Set(ctx, key, value, ttl)
	})
	if err != nil {
		g.logSkip(ctx, "set", err)
	}
	return nil
}

// Delete implements cache.Cache.
func (g *GuardedCache) Delete(ctx context.Context, key string) error {
	err := g.next.Delete(ctx, key)
	g.breaker.record(err == nil)
	return err
}

func (g *GuardedCache) logSkip(ctx context.Context, op string, err error) {
	if errors.Is(err, ErrCircuitOpen) {
		slog.DebugContext(ctx, "cache level skipped", "cache", g.name, "op", op)
		return
	}
	slog.WarnContext(ctx, "cache level failed", "cache", g.name, "op", op, "error", err)
}

var _ cache.Cache = (*GuardedCache)(nil)
