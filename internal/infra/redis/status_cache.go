package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"device-pairing-service/internal/domain/ports/adapter"
)

var _ adapter.StatusCache = (*StatusCache)(nil)

// StatusCache keeps terminal poll results for a few seconds so a fleet of
// displays polling on a 2-5s interval does not hammer the store. Misses and
// backend errors both read as "not cached".
type StatusCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewStatusCache(client RedisClient, ttl time.Duration) *StatusCache {
	return &StatusCache{client: client, ttl: ttl}
}

func statusKey(code string) string { return "pairing:status:" + code }

func (c *StatusCache) Get(ctx context.Context, code string) (string, string, bool) {
	raw, err := c.client.Get(ctx, statusKey(code))
	if err != nil {
		return "", "", false
	}
	status, userID, found := strings.Cut(raw, "|")
	if !found {
		return "", "", false
	}
	return status, userID, true
}

func (c *StatusCache) Set(ctx context.Context, code, status, userID string) error {
	return c.client.Set(ctx, statusKey(code), status+"|"+userID, c.ttl)
}

func (c *StatusCache) Invalidate(ctx context.Context, code string) error {
	err := c.client.Del(ctx, statusKey(code))
	if errors.Is(err, Nil) {
		return nil
	}
	return err
}
