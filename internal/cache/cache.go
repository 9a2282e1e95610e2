package cache

import (
	"context"
	"time"
)

// BytesCache is the minimal cache surface the services need; backed by redis
// in production and a map in tests.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
