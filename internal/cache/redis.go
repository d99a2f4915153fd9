// Package cache keeps the plant summary and the scheduler lock in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/chandanyadavsde/vms-v2/internal/config"
	"github.com/chandanyadavsde/vms-v2/internal/store"
	"github.com/redis/go-redis/v9"
)

const plantsKey = "vms:plants"

// Redis wraps a go-redis client and a lock client on top of it.
type Redis struct {
	rdb    *redis.Client
	locker *redislock.Client
	ttl    time.Duration
}

// Connect opens a client and pings it once.
func Connect(ctx context.Context, cfg config.RedisConfig) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect redis at %s: %w", cfg.Addr, err)
	}
	return New(rdb, cfg.PlantCacheTTL), nil
}

// New wraps an existing client. A non-positive ttl stores entries without
// expiry.
func New(rdb *redis.Client, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, locker: redislock.New(rdb), ttl: ttl}
}

// Ping checks that Redis answers.
func (r *Redis) Ping(ctx context.Context) error { return r.rdb.Ping(ctx).Err() }

// Close closes the client.
func (r *Redis) Close() error { return r.rdb.Close() }

// GetPlants returns the cached plant summary, if present.
func (r *Redis) GetPlants(ctx context.Context) ([]store.PlantCount, bool, error) {
	val, err := r.rdb.Get(ctx, plantsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var plants []store.PlantCount
	if err := json.Unmarshal(val, &plants); err != nil {
		return nil, false, fmt.Errorf("decode cached plants: %w", err)
	}
	return plants, true, nil
}

// SetPlants caches the plant summary for the configured ttl.
func (r *Redis) SetPlants(ctx context.Context, plants []store.PlantCount) error {
	b, err := json.Marshal(plants)
	if err != nil {
		return err
	}
	ttl := r.ttl
	if ttl < 0 {
		ttl = 0
	}
	return r.rdb.Set(ctx, plantsKey, b, ttl).Err()
}

// InvalidatePlants drops the cached plant summary.
func (r *Redis) InvalidatePlants(ctx context.Context) error {
	return r.rdb.Del(ctx, plantsKey).Err()
}

// Acquire obtains key for ttl. ok is false when someone else holds it.
func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	lock, err := r.locker.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	release := func(ctx context.Context) error {
		err := lock.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			return nil
		}
		return err
	}
	return release, true, nil
}
