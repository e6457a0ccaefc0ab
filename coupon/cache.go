package coupon

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const issuedKeyPrefix = "coupon:issued:"

// Cache remembers issued codes by payment id. Issued is terminal, so entries never go stale.
type Cache interface {
	GetIssued(ctx context.Context, paymentID string) (string, bool, error)
	SetIssued(ctx context.Context, paymentID, code string) error
}

type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) Cache {
	return &redisCache{client: client, ttl: ttl}
}

func (c *redisCache) GetIssued(ctx context.Context, paymentID string) (string, bool, error) {
	code, err := c.client.Get(ctx, issuedKeyPrefix+paymentID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return code, true, nil
}

func (c *redisCache) SetIssued(ctx context.Context, paymentID, code string) error {
	return c.client.Set(ctx, issuedKeyPrefix+paymentID, code, c.ttl).Err()
}
