package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Harsh-BH/alsit/internal/repository"
)

var _ repository.ClaimStore = (*redisClaims)(nil)

const (
	claimKeyPrefix = "alsit:claim:"

	// DefaultClaimTTL outlives any sane run so a crashed process frees its tickets eventually.
	DefaultClaimTTL = 30 * time.Minute
)

type redisClaims struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewRedisClaimStore creates a Redis-backed claim store using SETNX with a TTL.
func NewRedisClaimStore(client *goredis.Client, ttl time.Duration) repository.ClaimStore {
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	return &redisClaims{client: client, ttl: ttl}
}

func claimKey(ticketID int64) string {
	return claimKeyPrefix + strconv.FormatInt(ticketID, 10)
}

// Claim uses Redis SETNX to atomically take a ticket.
func (r *redisClaims) Claim(ctx context.Context, ticketID int64) (bool, error) {
	ok, err := r.client.SetNX(ctx, claimKey(ticketID), time.Now().Unix(), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: claim ticket: %w", err)
	}
	return ok, nil
}

// Release deletes the claim so the ticket can be judged again.
func (r *redisClaims) Release(ctx context.Context, ticketID int64) error {
	if err := r.client.Del(ctx, claimKey(ticketID)).Err(); err != nil {
		return fmt.Errorf("redis: release ticket: %w", err)
	}
	return nil
}
