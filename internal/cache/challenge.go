package cache

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrChallengeNotFound = errors.New("challenge not found")
	ErrChallengeExceeded = errors.New("challenge attempts exceeded")
)

const challengeMaxAttempts = 5

// ChallengeStore keeps the transient emailed two-factor codes. A challenge is
// a hashed code with a TTL and an attempt counter; it disappears on success,
// expiry, or too many wrong guesses.
type ChallengeStore struct {
	cache *Cache
	ttl   time.Duration
}

func NewChallengeStore(c *Cache, ttl time.Duration) *ChallengeStore {
	return &ChallengeStore{cache: c, ttl: ttl}
}

func challengeKey(userID uuid.UUID) string {
	return "2fc:code:" + userID.String()
}

func challengeAttemptsKey(userID uuid.UUID) string {
	return "2fc:attempts:" + userID.String()
}

// Save stores the code hash, replacing any pending challenge for the user.
func (cs *ChallengeStore) Save(ctx context.Context, userID uuid.UUID, codeHash []byte) error {
	pipe := cs.cache.rdb.TxPipeline()
	pipe.Set(ctx, challengeKey(userID), hex.EncodeToString(codeHash), cs.ttl)
	pipe.Set(ctx, challengeAttemptsKey(userID), 0, cs.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	return nil
}

// Verify compares the presented code hash against the pending challenge.
// Every call burns an attempt; a match or an exceeded attempt cap deletes
// the challenge.
func (cs *ChallengeStore) Verify(ctx context.Context, userID uuid.UUID, codeHash []byte) (bool, error) {
	stored, err := cs.cache.rdb.Get(ctx, challengeKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, ErrChallengeNotFound
		}
		return false, errors.Join(ErrUnavailable, err)
	}

	attempts, err := cs.cache.rdb.Incr(ctx, challengeAttemptsKey(userID)).Result()
	if err != nil {
		return false, errors.Join(ErrUnavailable, err)
	}
	if attempts > challengeMaxAttempts {
		_ = cs.Delete(ctx, userID)
		return false, ErrChallengeExceeded
	}

	storedBytes, err := hex.DecodeString(stored)
	if err != nil {
		_ = cs.Delete(ctx, userID)
		return false, ErrChallengeNotFound
	}
	if subtle.ConstantTimeCompare(storedBytes, codeHash) != 1 {
		return false, nil
	}

	if err := cs.Delete(ctx, userID); err != nil {
		return false, err
	}
	return true, nil
}

func (cs *ChallengeStore) Delete(ctx context.Context, userID uuid.UUID) error {
	if err := cs.cache.rdb.Del(ctx, challengeKey(userID), challengeAttemptsKey(userID)).Err(); err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	return nil
}
