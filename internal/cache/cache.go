package cache

import (
	"context"
	"time"
)

// Cache defines the cache interface
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context, pattern string) error
}

// LibraryKey is the cache key for a tenant's serialized protocol library.
func LibraryKey(tenantID string) string {
	return tenantID + ":protocols"
}

// TenantPattern matches every cached key of a tenant, for invalidation on
// protocol mutations.
func TenantPattern(tenantID string) string {
	return tenantID + ":*"
}
