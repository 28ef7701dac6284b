package adapter

import (
	"context"
	"time"
)

// RateLimiter bounds attempts per key within a sliding window. The claim
// endpoint depends on this to keep the code keyspace unguessable within the
// TTL; it is a required control, not hardening.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
