package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})
	return NewRedisStore(cache, ttl), mr
}

func TestCoordinator_RedisStore(t *testing.T) {
	store, _ := newRedisStore(t, 0)
	exerciseStore(t, store)
}

func TestRedisStore_RecordsExpireWithTTL(t *testing.T) {
	store, mr := newRedisStore(t, time.Hour)
	coord := NewCoordinator(store)
	ctx := context.Background()

	out, err := coord.Claim(ctx, "ttl-key")
	if err != nil || out.State != Claimed {
		t.Fatalf("expected claim, got %+v err=%v", out, err)
	}
	if err := coord.Finalize(ctx, "ttl-key", out.Token, 201, []byte(`{}`)); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if ttl := mr.TTL(redisKeyPrefix + "ttl-key"); ttl != time.Hour {
		t.Fatalf("expected ttl 1h, got %v", ttl)
	}

	mr.FastForward(2 * time.Hour)
	if out, err = coord.Claim(ctx, "ttl-key"); err != nil || out.State != Claimed {
		t.Fatalf("expected expired key to be claimable, got %+v err=%v", out, err)
	}
}

func TestRedisStore_FinalizeAfterExpiryLosesClaim(t *testing.T) {
	store, mr := newRedisStore(t, time.Minute)
	coord := NewCoordinator(store)
	ctx := context.Background()

	out, err := coord.Claim(ctx, "slow-key")
	if err != nil || out.State != Claimed {
		t.Fatalf("expected claim, got %+v err=%v", out, err)
	}
	mr.FastForward(2 * time.Minute)
	if err := coord.Finalize(ctx, "slow-key", out.Token, 200, []byte(`{}`)); !errors.Is(err, ErrClaimLost) {
		t.Fatalf("expected lost claim after expiry, got %v", err)
	}
	if mr.Exists(redisKeyPrefix + "slow-key") {
		t.Fatalf("lost finalize must not recreate the record")
	}
}
