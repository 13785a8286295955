package academic

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const structureCacheKey = "classtrack:structure"

// CachedStructure serves the public academic structure through Redis. The
// hierarchy changes rarely but is read on every registration page load, so a
// short TTL keeps the database out of the hot path. Cache misses and Redis
// outages fall through to Postgres.
type CachedStructure struct {
	repo  *Repository
	redis *redis.Client
	ttl   time.Duration
}

// NewCachedStructure wraps the repo with a Redis cache. A nil client disables
// caching.
func NewCachedStructure(repo *Repository, client *redis.Client, ttl time.Duration) *CachedStructure {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedStructure{repo: repo, redis: client, ttl: ttl}
}

// Structure returns the cached hierarchy, refreshing it on a miss.
func (c *CachedStructure) Structure(ctx context.Context) (Structure, error) {
	if c.redis != nil {
		if raw, err := c.redis.Get(ctx, structureCacheKey).Bytes(); err == nil {
			var st Structure
			if err := json.Unmarshal(raw, &st); err == nil {
				return st, nil
			}
		}
	}

	st, err := c.repo.Structure(ctx)
	if err != nil {
		return Structure{}, err
	}

	if c.redis != nil {
		if raw, err := json.Marshal(st); err == nil {
			if err := c.redis.Set(ctx, structureCacheKey, raw, c.ttl).Err(); err != nil {
				log.Printf("structure cache write failed: %v", err)
			}
		}
	}
	return st, nil
}
