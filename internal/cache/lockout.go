package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockoutConfig tunes the brute-force guard: Threshold failures inside
// Window set a lock flag that lasts for Duration.
type LockoutConfig struct {
	Threshold int
	Window    time.Duration
	Duration  time.Duration
}

func DefaultLockoutConfig() LockoutConfig {
	return LockoutConfig{
		Threshold: 5,
		Window:    time.Hour,
		Duration:  15 * time.Minute,
	}
}

// Lockout tracks failed login attempts per email. The counter and the lock
// flag live only in redis with explicit TTLs; if redis is down the check
// reports unlocked and the credential check still runs, trading lockout
// coverage for availability, never authorization correctness.
type Lockout struct {
	cache  *Cache
	config LockoutConfig
}

func NewLockout(c *Cache, cfg LockoutConfig) *Lockout {
	return &Lockout{cache: c, config: cfg}
}

func (l *Lockout) counterKey(email string) string {
	return "lockout:fail:" + strings.ToLower(email)
}

func (l *Lockout) flagKey(email string) string {
	return "lockout:flag:" + strings.ToLower(email)
}

// IsLocked reports whether the email is currently locked out. Checked before
// the credential store is touched so a locked attempt costs no hash work.
func (l *Lockout) IsLocked(ctx context.Context, email string) (bool, error) {
	err := l.cache.rdb.Get(ctx, l.flagKey(email)).Err()
	if err == nil {
		return true, nil
	}
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	return false, errors.Join(ErrUnavailable, err)
}

// RecordFailure increments the failure counter and sets the lock flag once
// the threshold is reached. Returns true when this failure triggered the lock.
func (l *Lockout) RecordFailure(ctx context.Context, email string) (bool, error) {
	key := l.counterKey(email)
	count, err := l.cache.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, errors.Join(ErrUnavailable, err)
	}
	if count == 1 {
		// TTL on first failure makes the counter a rolling window.
		if err := l.cache.rdb.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return false, errors.Join(ErrUnavailable, err)
		}
	}
	if count < int64(l.config.Threshold) {
		return false, nil
	}
	if err := l.cache.rdb.Set(ctx, l.flagKey(email), 1, l.config.Duration).Err(); err != nil {
		return false, errors.Join(ErrUnavailable, err)
	}
	return true, nil
}

// Reset clears the failure counter after a successful login.
func (l *Lockout) Reset(ctx context.Context, email string) error {
	if err := l.cache.rdb.Del(ctx, l.counterKey(email)).Err(); err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	return nil
}

// FailureCount returns the current counter value, zero when absent.
func (l *Lockout) FailureCount(ctx context.Context, email string) (int, error) {
	count, err := l.cache.rdb.Get(ctx, l.counterKey(email)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, errors.Join(ErrUnavailable, err)
	}
	return int(count), nil
}
