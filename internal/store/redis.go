package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis backs the redemption queue, the programme-structure cache, and the
// worker's daily presence counters. All three degrade gracefully when it is
// down, so timeouts are kept short rather than letting requests stall.
type Redis struct {
	Client *redis.Client
}

// NewRedis builds a client for addr. Connectivity is checked lazily via
// Healthy, not at construction, so a cold cache never blocks startup.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy reports whether Redis answers a ping.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

// Close releases the client's connections.
func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}
