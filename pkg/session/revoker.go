package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revoker remembers session ids that must be rejected before they expire
type Revoker interface {
	Revoke(ctx context.Context, id string, ttl time.Duration) error
	IsRevoked(ctx context.Context, id string) (bool, error)
}

type noopRevoker struct{}

func (noopRevoker) Revoke(context.Context, string, time.Duration) error { return nil }

func (noopRevoker) IsRevoked(context.Context, string) (bool, error) { return false, nil }

// RedisRevoker stores revoked session ids as expiring redis keys
type RedisRevoker struct {
	client redis.UniversalClient
	prefix string
}

var _ Revoker = (*RedisRevoker)(nil)

// NewRedisRevoker constructs a redis-backed revocation list
func NewRedisRevoker(client redis.UniversalClient) *RedisRevoker {
	return &RedisRevoker{client: client, prefix: "session:revoked:"}
}

// Revoke marks id as revoked for ttl
func (r *RedisRevoker) Revoke(ctx context.Context, id string, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+id, "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// IsRevoked reports whether id was revoked
func (r *RedisRevoker) IsRevoked(ctx context.Context, id string) (bool, error) {
	err := r.client.Get(ctx, r.prefix+id).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check session revocation: %w", err)
	}
	return true, nil
}
