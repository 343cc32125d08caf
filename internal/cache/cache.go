// Package cache stores upstream feature info payloads.
package cache

import (
	"context"
	"time"
)

type Interface interface {
	MGet(ctx context.Context, keys []string) (map[string][]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	// Incr bumps a counter and returns the new value
	Incr(ctx context.Context, key string) (int64, error)
}
