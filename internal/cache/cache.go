// Package cache wraps the shared redis store used for lockout counters, the
// session-validation cache, transient two-factor challenges, and cross-instance
// broadcast. Redis is never the source of truth: every caller degrades to the
// relational store (or to correct-but-slower behavior) when it is unreachable.
package cache

import (
	"context"
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

var ErrUnavailable = errors.New("cache backend unavailable")

type Cache struct {
	rdb redis.UniversalClient
}

func New(rdb redis.UniversalClient) *Cache {
	return &Cache{rdb: rdb}
}

// Connect dials redis and pings it. A failed ping logs a warning and still
// returns a usable client; operations will surface ErrUnavailable and callers
// fall back to the relational store.
func Connect(addr, password string, db int) *Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		slog.Warn("redis unreachable, degrading to store-only paths", "addr", addr, "error", err)
	}
	return &Cache{rdb: rdb}
}

func (c *Cache) Close() error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

// Publish fans a payload out to other instances. Best-effort: a publish
// failure is the caller's to log, never to propagate.
func (c *Cache) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := c.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	return nil
}

// Subscribe returns a pub/sub subscription for the given channel. The caller
// owns the subscription lifecycle.
func (c *Cache) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	return c.rdb.Subscribe(ctx, channel)
}
