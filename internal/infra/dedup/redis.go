package dedup

import (
	"context"
	"time"

	"checkout-saga/internal/pkg/config"
	"checkout-saga/internal/pkg/errs"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "dedup:"

type RedisDeduplicator struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func NewRedisDeduplicator(client *redis.Client, ttl time.Duration) *RedisDeduplicator {
	return &RedisDeduplicator{client: client, ttl: ttl}
}

func (d *RedisDeduplicator) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, keyPrefix+key, 1, d.ttl).Result()
	if err != nil {
		return false, errs.Wrapf(err, "claim dedup key %s", key)
	}
	return ok, nil
}

func (d *RedisDeduplicator) Release(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return errs.Wrapf(err, "release dedup key %s", key)
	}
	return nil
}
