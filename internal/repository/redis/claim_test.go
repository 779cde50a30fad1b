package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *redisClaims) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedisClaimStore(client, ttl).(*redisClaims)
}

func TestClaim_Exclusive(t *testing.T) {
	_, store := newTestStore(t, time.Minute)
	ctx := context.Background()

	ok, err := store.Claim(ctx, 7)
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	ok, err = store.Claim(ctx, 7)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if ok {
		t.Error("second claim on the same ticket must fail")
	}

	ok, _ = store.Claim(ctx, 8)
	if !ok {
		t.Error("claims on different tickets must not interfere")
	}
}

func TestRelease_AllowsReclaim(t *testing.T) {
	_, store := newTestStore(t, time.Minute)
	ctx := context.Background()

	if _, err := store.Claim(ctx, 7); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.Release(ctx, 7); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err := store.Claim(ctx, 7)
	if err != nil || !ok {
		t.Errorf("reclaim after release: ok=%v err=%v", ok, err)
	}
}

func TestClaim_ExpiresAfterTTL(t *testing.T) {
	mr, store := newTestStore(t, time.Minute)
	ctx := context.Background()

	if _, err := store.Claim(ctx, 9); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if ttl := mr.TTL(claimKey(9)); ttl != time.Minute {
		t.Errorf("expected TTL 1m, got %s", ttl)
	}

	mr.FastForward(2 * time.Minute)
	ok, _ := store.Claim(ctx, 9)
	if !ok {
		t.Error("claim should be free after TTL expiry")
	}
}

func TestNewRedisClaimStore_DefaultTTL(t *testing.T) {
	_, store := newTestStore(t, 0)
	if store.ttl != DefaultClaimTTL {
		t.Errorf("expected default TTL, got %s", store.ttl)
	}
}

func TestClaim_RedisDown(t *testing.T) {
	mr, store := newTestStore(t, time.Minute)
	mr.Close()

	if _, err := store.Claim(context.Background(), 1); err == nil {
		t.Error("expected error when redis is unreachable")
	}
}
