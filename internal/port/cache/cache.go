// Package cache defines the port interface for caching.
package cache

import (
	"context"
	"time"
)

// Cache is the port interface for key-value caching.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Evicter is implemented by caches with a process-local level that can be
// dropped without touching shared levels.
type Evicter interface {
	EvictLocal(ctx context.Context, key string) error
}

// MembershipKey is the cache key for a user's membership list.
func MembershipKey(userID string) string {
	return "memberships." + userID
}
