package event

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "coupon:webhook:processed:"

var _ Repository = (*repository)(nil)

// Repository stores processed-event markers. Markers expire; they only short-circuit
// redeliveries, idempotency itself lives in the coupon store.
type Repository interface {
	Exists(ctx context.Context, eventID string) (bool, error)
	MarkAsProcessed(ctx context.Context, eventID string) (bool, error)
}

type repository struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRepository(client *redis.Client, ttl time.Duration, logger *zap.Logger) Repository {
	return &repository{
		client: client,
		ttl:    ttl,
		logger: logger.Named("event.repository"),
	}
}

func (r *repository) Exists(ctx context.Context, eventID string) (bool, error) {
	_, err := r.client.Get(ctx, keyPrefix+eventID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkAsProcessed reports whether this call created the marker.
func (r *repository) MarkAsProcessed(ctx context.Context, eventID string) (bool, error) {
	return r.client.SetNX(ctx, keyPrefix+eventID, time.Now().UTC().Format(time.RFC3339), r.ttl).Result()
}
