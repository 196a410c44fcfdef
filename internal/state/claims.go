// Package state keeps short-lived coordination keys in Redis.
package state

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// BlockClaims hands out one claim per actor per window, so that concurrent
// evaluations of the same burst write a single audit record and alert.
type BlockClaims struct {
	redis   *redis.Client
	enabled bool
	prefix  string
}

func NewBlockClaims(redisClient *redis.Client, enabled bool) *BlockClaims {
	return &BlockClaims{
		redis:   redisClient,
		enabled: enabled,
		prefix:  "sentinel:block:",
	}
}

func (c *BlockClaims) IsEnabled() bool {
	return c != nil && c.enabled && c.redis != nil
}

// Claim returns true when the caller is the first to claim actorID within ttl.
// When claims are disabled every caller wins.
func (c *BlockClaims) Claim(ctx context.Context, actorID, owner string, ttl time.Duration) (bool, error) {
	if !c.IsEnabled() {
		return true, nil
	}

	ok, err := c.redis.SetNX(ctx, c.key(actorID), owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim block for %s: %w", actorID, err)
	}
	return ok, nil
}

// Release drops the claim so a later evaluation can retry the audit write.
func (c *BlockClaims) Release(ctx context.Context, actorID string) error {
	if !c.IsEnabled() {
		return nil
	}
	if err := c.redis.Del(ctx, c.key(actorID)).Err(); err != nil {
		return fmt.Errorf("failed to release block claim: %w", err)
	}
	return nil
}

func (c *BlockClaims) Ping(ctx context.Context) error {
	if !c.IsEnabled() {
		return nil
	}
	return c.redis.Ping(ctx).Err()
}

func (c *BlockClaims) key(actorID string) string {
	return c.prefix + actorID
}
