// Package rediscache caches account balances in Redis so the balance endpoint
// does not hit PostgreSQL on every poll. A nil *Cache is valid and disables
// caching, which keeps the wallet service free of redis conditionals.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrMiss is returned when the requested balance is not cached.
var ErrMiss = errors.New("cache miss")

const defaultTTL = 30 * time.Second

// Cache wraps a redis client for balance lookups.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a Cache. The connection is verified eagerly so a misconfigured
// address fails at startup rather than on the first request.
func New(ctx context.Context, addr string) (*Cache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Cache{client: client, ttl: defaultTTL}, nil
}

func balanceKey(accountID string) string {
	return "balance:" + accountID
}

// GetBalance returns the cached balance for the account, or ErrMiss.
func (c *Cache) GetBalance(ctx context.Context, accountID string) (int64, error) {
	if c == nil {
		return 0, ErrMiss
	}
	val, err := c.client.Get(ctx, balanceKey(accountID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrMiss
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}

// SetBalance stores the balance with the cache TTL.
func (c *Cache) SetBalance(ctx context.Context, accountID string, balance int64) error {
	if c == nil {
		return nil
	}
	return c.client.Set(ctx, balanceKey(accountID), strconv.FormatInt(balance, 10), c.ttl).Err()
}

// Invalidate drops the cached balance after a write to the account.
func (c *Cache) Invalidate(ctx context.Context, accountID string) error {
	if c == nil {
		return nil
	}
	return c.client.Del(ctx, balanceKey(accountID)).Err()
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
