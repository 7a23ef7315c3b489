package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionEntry is the cached projection of a UserSession used on the hot
// request-validation path.
type SessionEntry struct {
	SessionID    uuid.UUID `json:"sessionId"`
	UserID       uuid.UUID `json:"userId"`
	FamilyID     uuid.UUID `json:"familyId"`
	IsCurrent    bool      `json:"isCurrent"`
	LastActiveAt time.Time `json:"lastActiveAt"`
}

// SessionCache fronts the user_sessions table for per-request validation.
// Entries carry a TTL; a miss falls back to the relational store and the
// caller repopulates. The in-flight map is a reentrancy guard so one process
// never runs two concurrent store refreshes for the same key; late arrivals
// wait on the first caller's result.
type SessionCache struct {
	cache *Cache
	ttl   time.Duration

	mu       sync.Mutex
	inflight map[string]*sessionCall
}

type sessionCall struct {
	done  chan struct{}
	entry *SessionEntry
	err   error
}

func NewSessionCache(c *Cache, ttl time.Duration) *SessionCache {
	return &SessionCache{
		cache:    c,
		ttl:      ttl,
		inflight: make(map[string]*sessionCall),
	}
}

func sessionKey(userID, familyID uuid.UUID) string {
	return "sess:" + userID.String() + ":" + familyID.String()
}

func (sc *SessionCache) Get(ctx context.Context, userID, familyID uuid.UUID) (*SessionEntry, error) {
	data, err := sc.cache.rdb.Get(ctx, sessionKey(userID, familyID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.Join(ErrUnavailable, err)
	}
	var entry SessionEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		// Corrupt entries count as misses; the store remains authoritative.
		return nil, nil
	}
	return &entry, nil
}

func (sc *SessionCache) Set(ctx context.Context, entry *SessionEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := sc.cache.rdb.Set(ctx, sessionKey(entry.UserID, entry.FamilyID), data, sc.ttl).Err(); err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	return nil
}

func (sc *SessionCache) Delete(ctx context.Context, userID, familyID uuid.UUID) error {
	if err := sc.cache.rdb.Del(ctx, sessionKey(userID, familyID)).Err(); err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	return nil
}

// GetOrFill returns the cached entry, or runs fill exactly once per key while
// concurrent callers for the same key wait for that result. A nil entry from
// fill is cached as a miss by the caller's policy, not here.
func (sc *SessionCache) GetOrFill(
	ctx context.Context,
	userID, familyID uuid.UUID,
	fill func(ctx context.Context) (*SessionEntry, error),
) (*SessionEntry, error) {
	if entry, err := sc.Get(ctx, userID, familyID); err == nil && entry != nil {
		return entry, nil
	}

	key := sessionKey(userID, familyID)

	sc.mu.Lock()
	if call, ok := sc.inflight[key]; ok {
		sc.mu.Unlock()
		select {
		case <-call.done:
			return call.entry, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	call := &sessionCall{done: make(chan struct{})}
	sc.inflight[key] = call
	sc.mu.Unlock()

	call.entry, call.err = fill(ctx)

	sc.mu.Lock()
	delete(sc.inflight, key)
	sc.mu.Unlock()
	close(call.done)

	if call.err == nil && call.entry != nil {
		if err := sc.Set(ctx, call.entry); err != nil && !errors.Is(err, ErrUnavailable) {
			return call.entry, err
		}
	}
	return call.entry, call.err
}
