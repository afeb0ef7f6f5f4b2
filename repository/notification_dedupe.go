package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const confirmationKeyPrefix = "zenhaven:confirmation:"

type redisSetDeleter interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisNotificationDeduper claims one confirmation e-mail per session.
type RedisNotificationDeduper struct {
	client redisSetDeleter
	ttl    time.Duration
}

func NewRedisNotificationDeduper(client *redis.Client, ttl time.Duration) *RedisNotificationDeduper {
	return &RedisNotificationDeduper{client: client, ttl: ttl}
}

// Claim reports whether the caller won the right to send for sessionID.
func (d *RedisNotificationDeduper) Claim(ctx context.Context, sessionID string) (bool, error) {
	return d.client.SetNX(ctx, confirmationKeyPrefix+sessionID, time.Now().UTC().Format(time.RFC3339), d.ttl).Result()
}

// Release gives the claim back so a redelivered event can try again.
func (d *RedisNotificationDeduper) Release(ctx context.Context, sessionID string) error {
	return d.client.Del(ctx, confirmationKeyPrefix+sessionID).Err()
}
