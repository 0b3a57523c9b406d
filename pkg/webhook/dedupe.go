package webhook

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupeKeyPrefix = "webhook:delivery:"

// Deduper remembers delivery ids for a bounded window so replayed
// callbacks (valid signature included) are processed at most once.
type Deduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDeduper(client *redis.Client, ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Deduper{client: client, ttl: ttl}
}

// MarkSeen records the delivery id and reports whether it was new.
// SETNX makes the check-and-set atomic across handler instances.
func (d *Deduper) MarkSeen(ctx context.Context, deliveryID string) (bool, error) {
	return d.client.SetNX(ctx, dedupeKeyPrefix+deliveryID, time.Now().UTC().Format(time.RFC3339), d.ttl).Result()
}

// Forget releases a delivery id so the provider's retry of the same
// delivery is processed again. Called when handling failed after the
// id was marked; leaving the mark in place would swallow the retry.
func (d *Deduper) Forget(ctx context.Context, deliveryID string) error {
	return d.client.Del(ctx, dedupeKeyPrefix+deliveryID).Err()
}
