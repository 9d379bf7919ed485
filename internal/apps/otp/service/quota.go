package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// IssueQuota caps how many codes one phone may receive per window. Take
// returns how long to wait when the cap is hit, zero otherwise. Refund gives
// back a granted Take whose issuance did not go through.
type IssueQuota interface {
	Take(ctx context.Context, phone string) (time.Duration, error)
	Refund(ctx context.Context, phone string) error
}

type unlimitedQuota struct{}

func (unlimitedQuota) Take(context.Context, string) (time.Duration, error) { return 0, nil }

func (unlimitedQuota) Refund(context.Context, string) error { return nil }

// NewUnlimitedQuota is used when no redis is configured
func NewUnlimitedQuota() IssueQuota {
	return unlimitedQuota{}
}

// redisQuota is a fixed-window counter per phone
type redisQuota struct {
	client redis.UniversalClient
	limit  int64
	window time.Duration
}

// NewRedisQuota creates a quota allowing limit issuances per window
func NewRedisQuota(client redis.UniversalClient, limit int, window time.Duration) IssueQuota {
	if limit <= 0 {
		return unlimitedQuota{}
	}
	return &redisQuota{client: client, limit: int64(limit), window: window}
}

func quotaKey(phone string) string {
	return fmt.Sprintf("otp:quota:%s", phone)
}

func (q *redisQuota) Take(ctx context.Context, phone string) (time.Duration, error) {
	key := quotaKey(phone)

	count, err := q.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("otp quota: %w", err)
	}
	if count == 1 {
		if err := q.client.Expire(ctx, key, q.window).Err(); err != nil {
			return 0, fmt.Errorf("otp quota expire: %w", err)
		}
	}
	if count <= q.limit {
		return 0, nil
	}

	wait, err := q.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("otp quota ttl: %w", err)
	}
	if wait <= 0 {
		// a counter without expiry would block the phone forever
		_ = q.client.Expire(ctx, key, q.window).Err()
		wait = q.window
	}
	return wait, nil
}

func (q *redisQuota) Refund(ctx context.Context, phone string) error {
	count, err := q.client.Decr(ctx, quotaKey(phone)).Result()
	if err != nil {
		return fmt.Errorf("otp quota refund: %w", err)
	}
	if count <= 0 {
		// the window expired between Take and Refund
		_ = q.client.Del(ctx, quotaKey(phone)).Err()
	}
	return nil
}
