package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	r := redis.NewClient(&redis.Options{Addr: addr})
	_ = r.WithTimeout(2 * time.Second)
	return r
}

func Exists(ctx context.Context, rdb *redis.Client, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// MarkOnce records an event id for a service and reports whether it was
// already processed. SETNX keeps the check and the mark one round trip.
func MarkOnce(ctx context.Context, rdb *redis.Client, service, eventID string) (dup bool, err error) {
	key := fmt.Sprintf(KeyDedup, service, eventID)
	set, err := rdb.SetNX(ctx, key, "1", TTLDedup).Result()
	if err != nil {
		return false, err
	}
	return !set, nil
}

// TouchPresence refreshes the user's liveness key.
func TouchPresence(ctx context.Context, rdb *redis.Client, userID string, at time.Time) error {
	key := fmt.Sprintf(KeyPresence, userID)
	return rdb.Set(ctx, key, at.Unix(), TTLPresence).Err()
}
