package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb), mr
}

func TestLockoutThreshold(t *testing.T) {
	c, _ := newTestCache(t)
	lockout := NewLockout(c, LockoutConfig{Threshold: 5, Window: time.Hour, Duration: 15 * time.Minute})
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		lockedNow, err := lockout.RecordFailure(ctx, "bob@example.com")
		if err != nil {
			t.Fatalf("failure %d errored: %v", i, err)
		}
		if lockedNow {
			t.Fatalf("failure %d must not trigger the lock", i)
		}
	}
	if locked, _ := lockout.IsLocked(ctx, "bob@example.com"); locked {
		t.Fatalf("locked before the threshold")
	}

	lockedNow, err := lockout.RecordFailure(ctx, "bob@example.com")
	if err != nil {
		t.Fatalf("fifth failure errored: %v", err)
	}
	if !lockedNow {
		t.Fatalf("fifth failure must trigger the lock")
	}
	if locked, _ := lockout.IsLocked(ctx, "bob@example.com"); !locked {
		t.Fatalf("expected locked state")
	}

	// Other accounts are unaffected.
	if locked, _ := lockout.IsLocked(ctx, "carol@example.com"); locked {
		t.Fatalf("lock leaked to a different email")
	}
}

func TestLockoutExpires(t *testing.T) {
	c, mr := newTestCache(t)
	lockout := NewLockout(c, LockoutConfig{Threshold: 2, Window: time.Hour, Duration: 15 * time.Minute})
	ctx := context.Background()

	lockout.RecordFailure(ctx, "bob@example.com")
	lockout.RecordFailure(ctx, "bob@example.com")
	if locked, _ := lockout.IsLocked(ctx, "bob@example.com"); !locked {
		t.Fatalf("expected lock after threshold")
	}

	mr.FastForward(16 * time.Minute)
	if locked, _ := lockout.IsLocked(ctx, "bob@example.com"); locked {
		t.Fatalf("lock must expire after its duration")
	}
}

func TestLockoutResetClearsCounter(t *testing.T) {
	c, _ := newTestCache(t)
	lockout := NewLockout(c, DefaultLockoutConfig())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		lockout.RecordFailure(ctx, "bob@example.com")
	}
	if err := lockout.Reset(ctx, "bob@example.com"); err != nil {
		t.Fatalf("reset errored: %v", err)
	}
	if n, _ := lockout.FailureCount(ctx, "bob@example.com"); n != 0 {
		t.Fatalf("counter survived reset: %d", n)
	}

	// Post-reset failures start a fresh window.
	if lockedNow, _ := lockout.RecordFailure(ctx, "bob@example.com"); lockedNow {
		t.Fatalf("first failure after reset must not lock")
	}
}

func TestLockoutCaseInsensitiveEmail(t *testing.T) {
	c, _ := newTestCache(t)
	lockout := NewLockout(c, LockoutConfig{Threshold: 2, Window: time.Hour, Duration: 15 * time.Minute})
	ctx := context.Background()

	lockout.RecordFailure(ctx, "Bob@Example.com")
	lockout.RecordFailure(ctx, "bob@example.com")
	if locked, _ := lockout.IsLocked(ctx, "BOB@EXAMPLE.COM"); !locked {
		t.Fatalf("case variants must share one counter")
	}
}
